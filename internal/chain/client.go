// Package chain bridges the gateway to a ledger node over JSON-RPC.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/metrics"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/internal/sync"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultLookupTimeout = 5 * time.Second
)

// Client talks JSON-RPC 2.0 to the node's gateway bridge. It implements
// ledger.NodeState and ledger.IdentityLookup.
type Client struct {
	mu            sync.RWMutex
	rpcURL        string
	httpClient    *http.Client
	lookupTimeout time.Duration
	registry      *serialization.Registry
	catalog       *catalog.Catalog
	nextID        int64
	log           *logger.Logger
}

// Config holds client configuration.
type Config struct {
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// LookupTimeout bounds identity lookups made while decoding parties.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// Option configures a Client.
type Option func(*Client)

// WithCatalog lets the client decode transaction outputs of known contracts.
func WithCatalog(c *catalog.Catalog) Option {
	return func(cl *Client) { cl.catalog = c }
}

func WithLogger(log *logger.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cl *Client) { cl.httpClient = hc }
}

// NewClient creates a node client. Typed payloads are decoded with reg.
func NewClient(cfg Config, reg *serialization.Registry, opts ...Option) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	if reg == nil {
		return nil, fmt.Errorf("codec registry required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	lookupTimeout := cfg.LookupTimeout
	if lookupTimeout == 0 {
		lookupTimeout = defaultLookupTimeout
	}

	c := &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		lookupTimeout: lookupTimeout,
		registry:      reg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault("chain")
	}
	return c, nil
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes an RPC call and returns the result member of the response.
func (c *Client) Call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	start := time.Now()
	res, err := c.call(ctx, method, params)
	metrics.RecordNodeCall(method, time.Since(start), err)
	return res, err
}

func (c *Client) call(ctx context.Context, method string, params []any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, &RPCError{Code: resp.StatusCode, Message: fmt.Sprintf("%s: http status %d", method, resp.StatusCode)}
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("unmarshal response: invalid json from %s", method)
	}

	parsed := gjson.ParseBytes(respBody)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		e := &RPCError{
			Code:    int(rpcErr.Get("code").Int()),
			Message: rpcErr.Get("message").String(),
			Data:    rpcErr.Get("data").String(),
		}
		c.log.WithField("method", method).WithError(e).Debug("node rpc failed")
		return gjson.Result{}, e
	}
	return parsed.Get("result"), nil
}

// decode decodes an RPC result with the codec of key.
func (c *Client) decode(result gjson.Result, key serialization.TypeKey) (any, error) {
	codec, err := c.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	tree, err := serialization.ParseJSON([]byte(result.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	v, err := codec.Decode(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrMalformedPayload, key, err)
	}
	return v, nil
}

// encode renders v with the codec of key as a JSON value tree.
func (c *Client) encode(v any, key serialization.TypeKey) (any, error) {
	codec, err := c.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	return codec.Encode(v)
}
