// Package httpapi exposes the ledger node over HTTP. Request and response
// bodies are encoded with codecs from the serialization registry, so every
// payload shape is the one advertised by /api.json.
package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/ledger_gateway/internal/chain"
	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/metrics"
	"github.com/R3E-Network/ledger_gateway/internal/middleware"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Node     ledger.NodeState
	Registry *serialization.Registry
	Catalog  *catalog.Catalog
	// Tracker is optional; without it snapshots come straight from the node.
	Tracker *flowcache.Tracker
	Log     *logger.Logger
}

// handler bundles HTTP endpoints for the node.
type handler struct {
	node     ledger.NodeState
	registry *serialization.Registry
	catalog  *catalog.Catalog
	tracker  *flowcache.Tracker
	log      *logger.Logger
}

// NewHandler returns a router exposing the gateway API. Extra middleware runs
// after metrics instrumentation.
func NewHandler(deps Deps, mws ...mux.MiddlewareFunc) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		node:     deps.Node,
		registry: deps.Registry,
		catalog:  deps.Catalog,
		tracker:  deps.Tracker,
		log:      log,
	}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Use(mws...)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api.json", h.apiCatalogue).Methods(http.MethodGet)

	node := r.PathPrefix("/node").Subrouter()
	node.HandleFunc("/info", h.nodeInfo).Methods(http.MethodGet)
	node.HandleFunc("/version", h.nodeVersion).Methods(http.MethodGet)
	node.HandleFunc("/partyFromKey/{key}", h.partyFromKey).Methods(http.MethodGet)
	node.HandleFunc("/tx/{hash}", h.transaction).Methods(http.MethodGet)
	node.HandleFunc("/states/{state}", h.queryStates).Methods(http.MethodGet, http.MethodPost)
	node.HandleFunc("/states/{state}/{txhash}/{index:[0-9]+}", h.stateByRef).Methods(http.MethodGet)
	node.HandleFunc("/statesCount/{state}", h.countStates).Methods(http.MethodPost)
	node.HandleFunc("/statesTotalAmount/{state}", h.totalAmount).Methods(http.MethodPost)
	node.HandleFunc("/flows/{flow}", h.startFlow).Methods(http.MethodPost)
	node.HandleFunc("/flows/{flow}/snapshots/{runId}", h.flowSnapshot).Methods(http.MethodGet)
	node.HandleFunc("/flows/{flow}/snapshots/{runId}/updates", h.flowUpdates).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("no such endpoint"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Errors
// =============================================================================

// requestError is a malformed request that never reached a codec.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusOf maps an error to the HTTP status reported to the client.
func statusOf(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case chain.IsMalformedPayload(err), chain.IsRPCError(err):
		return http.StatusBadGateway
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case serialization.IsSerialization(err), serialization.IsUnsupported(err):
		return http.StatusBadRequest
	case serialization.IsResolution(err), serialization.IsCyclicType(err):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.WithField("trace_id", middleware.TraceID(r.Context())).
			WithField("path", r.URL.Path).
			WithError(err).
			Warn("request failed")
	}
	writeError(w, status, err)
}

// =============================================================================
// Encoding
// =============================================================================

// readTree reads a JSON request body. An empty body reads as an empty object
// when allowEmpty is set.
func readTree(r *http.Request, allowEmpty bool) (any, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	if len(data) > maxBodyBytes {
		return nil, badRequest("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if allowEmpty {
			return map[string]any{}, nil
		}
		return nil, badRequest("request body required")
	}
	return serialization.ParseJSON(data)
}

// decodeBody decodes the request body with the codec of key.
func (h *handler) decodeBody(r *http.Request, key serialization.TypeKey, allowEmpty bool) (any, error) {
	codec, err := h.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	tree, err := readTree(r, allowEmpty)
	if err != nil {
		return nil, err
	}
	return codec.Decode(tree)
}

// encode renders v with the codec of key.
func (h *handler) encode(v any, key serialization.TypeKey) (any, error) {
	codec, err := h.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	return codec.Encode(v)
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, status int, v any, key serialization.TypeKey) {
	tree, err := h.encode(v, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, tree)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
