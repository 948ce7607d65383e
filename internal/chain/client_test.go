package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/ledger_gateway/internal/codecs"
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/internal/sync"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

const (
	bankJSON   = `{"name":"O=Bank, L=London, C=GB","owningKey":"AQID"}`
	notaryJSON = `{"name":"O=Notary, L=Zurich, C=CH"}`
	runID      = "5f8c7a4e-3b1d-4c6a-9e2f-1a2b3c4d5e6f"
)

var (
	bank   = ledger.Party{Name: ledger.X500Name{Organisation: "Bank", Locality: "London", Country: "GB"}, OwningKey: []byte{1, 2, 3}}
	notary = ledger.Party{Name: ledger.X500Name{Organisation: "Notary", Locality: "Zurich", Country: "CH"}}
	txHash = ledger.SHA256([]byte("tx"))
)

type handlerFunc func(params []gjson.Result) (json.RawMessage, *RPCError)

// fakeNode answers JSON-RPC calls from per-method handlers.
type fakeNode struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	params   map[string][]gjson.Result
	status   int
}

func newFakeNode() *fakeNode {
	n := &fakeNode{
		handlers: make(map[string]handlerFunc),
		calls:    make(map[string]int),
		params:   make(map[string][]gjson.Result),
	}
	n.handle(MethodPartiesFromName, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		switch params[0].String() {
		case "O=Bank, L=London, C=GB":
			return json.RawMessage(`[` + bankJSON + `]`), nil
		case "O=Notary, L=Zurich, C=CH":
			return json.RawMessage(`[` + notaryJSON + `]`), nil
		}
		return json.RawMessage(`[]`), nil
	})
	return n
}

func (n *fakeNode) handle(method string, h handlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) remove(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, method)
}

func (n *fakeNode) reply(method, result string) {
	n.handle(method, func([]gjson.Result) (json.RawMessage, *RPCError) { return json.RawMessage(result), nil })
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) sent(method string) []gjson.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params[method]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     int64             `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := make([]gjson.Result, len(req.Params))
	for i, p := range req.Params {
		params[i] = gjson.ParseBytes(p)
	}

	n.mu.Lock()
	n.calls[req.Method]++
	n.params[req.Method] = params
	h, ok := n.handlers[req.Method]
	status := n.status
	n.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &RPCError{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	reg := serialization.NewRegistry(serialization.WithLogger(logger.NewDiscard()))
	client, err := NewClient(Config{RPCURL: srv.URL}, reg,
		WithCatalog(catalog.IOU()),
		WithLogger(logger.NewDiscard()),
	)
	require.NoError(t, err)
	codecs.Register(reg, codecs.Deps{Identities: client, States: client})
	return client
}

func iouJSON() string {
	return `{"amount":100,"currency":"GBP","lender":{"name":"O=Bank, L=London, C=GB"},` +
		`"borrower":{"name":"O=Notary, L=Zurich, C=CH"},"linearId":"` + runID + `"}`
}

func stateAndRefJSON() string {
	return fmt.Sprintf(`{"state":{"data":%s,"contract":%q,"notary":{"name":"O=Notary, L=Zurich, C=CH"}},"ref":{"txhash":%q,"index":0}}`,
		iouJSON(), catalog.IOUContract, txHash.String())
}

// =============================================================================
// Transport
// =============================================================================

func TestNewClient_Validation(t *testing.T) {
	reg := serialization.NewRegistry(serialization.WithLogger(logger.NewDiscard()))

	_, err := NewClient(Config{}, reg)
	assert.Error(t, err)

	_, err = NewClient(Config{RPCURL: "http://localhost"}, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{RPCURL: "http://localhost"}, reg)
	require.NoError(t, err)
	assert.Equal(t, defaultLookupTimeout, c.lookupTimeout)
}

func TestCall_RPCError(t *testing.T) {
	node := newFakeNode()
	node.handle("boom", func([]gjson.Result) (json.RawMessage, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "vault unavailable"}
	})
	c := newTestClient(t, node)

	_, err := c.Call(context.Background(), "boom")
	require.Error(t, err)
	assert.True(t, IsRPCError(err))
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "vault unavailable", rpcErr.Message)

	_, err = c.Call(context.Background(), "unknownMethod")
	assert.True(t, IsRPCError(err))
}

func TestCall_HTTPStatus(t *testing.T) {
	node := newFakeNode()
	node.status = http.StatusBadGateway
	c := newTestClient(t, node)

	_, err := c.Call(context.Background(), MethodNodeInfo)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadGateway, rpcErr.Code)
}

func TestCall_ParamsAndResult(t *testing.T) {
	node := newFakeNode()
	node.handle("echo", func(params []gjson.Result) (json.RawMessage, *RPCError) {
		return json.RawMessage(fmt.Sprintf(`{"n":%d,"first":%q}`, len(params), params[0].String())), nil
	})
	c := newTestClient(t, node)

	res, err := c.Call(context.Background(), "echo", "a", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Get("n").Int())
	assert.Equal(t, "a", res.Get("first").String())
}

// =============================================================================
// Node and identities
// =============================================================================

func TestNodeInfo(t *testing.T) {
	node := newFakeNode()
	node.reply(MethodNodeInfo, `{
		"addresses": [{"host": "localhost", "port": 10002}],
		"legalIdentities": [{"name": "O=Bank, L=London, C=GB", "owningKey": "AQID", "certPath": ["CQ=="]}],
		"platformVersion": 4,
		"serial": 7
	}`)
	c := newTestClient(t, node)

	info, err := c.NodeInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.NetworkHostAndPort{{Host: "localhost", Port: 10002}}, info.Addresses)
	require.Len(t, info.LegalIdentities, 1)
	assert.Equal(t, bank, info.LegalIdentities[0].Party)
	assert.Equal(t, [][]byte{{9}}, info.LegalIdentities[0].CertPath)
	assert.Equal(t, 4, info.PlatformVersion)
	assert.Equal(t, int64(7), info.Serial)
}

func TestNodeInfo_BadIdentity(t *testing.T) {
	node := newFakeNode()
	node.reply(MethodNodeInfo, `{"legalIdentities": [{"name": "L=London"}]}`)
	c := newTestClient(t, node)

	_, err := c.NodeInfo(context.Background())
	assert.Error(t, err)
}

func TestNodeVersionInfo(t *testing.T) {
	node := newFakeNode()
	node.reply(MethodNodeVersion, `{"releaseVersion":"4.11","revision":"abc","platformVersion":13,"vendor":"Ledger Node Open Source"}`)
	c := newTestClient(t, node)

	v, err := c.NodeVersionInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledger.NodeVersionInfo{ReleaseVersion: "4.11", Revision: "abc", PlatformVersion: 13, Vendor: "Ledger Node Open Source"}, v)
}

func TestWellKnownParty(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodWellKnownParty, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		if params[0].String() == bank.Name.String() {
			return json.RawMessage(bankJSON), nil
		}
		return json.RawMessage(`null`), nil
	})
	c := newTestClient(t, node)

	p, err := c.WellKnownParty(context.Background(), bank.Name)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, bank, *p)

	p, err = c.WellKnownParty(context.Background(), ledger.X500Name{Organisation: "Nobody", Locality: "Paris", Country: "FR"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPartyFromKey(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodPartyFromKey, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		switch params[0].String() {
		case "AQID":
			return json.RawMessage(bankJSON), nil
		case "BA==":
			return json.RawMessage(`{"name":"not a name"}`), nil
		}
		return json.RawMessage(`null`), nil
	})
	c := newTestClient(t, node)

	p, err := c.PartyFromKey(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, bank, *p)

	p, err = c.PartyFromKey(context.Background(), []byte{9})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = c.PartyFromKey(context.Background(), []byte{4})
	assert.True(t, IsMalformedPayload(err))
}

func TestPartiesFromName(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node)

	assert.Equal(t, []ledger.Party{bank}, c.PartiesFromName(bank.Name))
	assert.Empty(t, c.PartiesFromName(ledger.X500Name{Organisation: "Nobody", Locality: "Paris", Country: "FR"}))

	node.remove(MethodPartiesFromName)
	assert.Empty(t, c.PartiesFromName(bank.Name))
}

// =============================================================================
// Transactions and vault
// =============================================================================

func TestFindTransaction(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodFindTransaction, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		if params[0].String() != txHash.String() {
			return json.RawMessage(`null`), nil
		}
		return json.RawMessage(fmt.Sprintf(`{
			"id": %q,
			"inputs": [{"txhash": %q, "index": 1}],
			"outputs": [
				{"data": %s, "contract": %q, "notary": %s},
				{"data": {"foo": [1, "x"]}, "contract": "com.example.Other", "notary": %s}
			],
			"notary": %s,
			"sigs": ["AQI="]
		}`, txHash.String(), txHash.String(), iouJSON(), catalog.IOUContract, notaryJSON, notaryJSON, notaryJSON)), nil
	})
	c := newTestClient(t, node)

	tx, err := c.FindTransaction(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, txHash, tx.ID)
	assert.Equal(t, []ledger.StateRef{{TxHash: txHash, Index: 1}}, tx.Inputs)
	require.Len(t, tx.Outputs, 2)

	iou, ok := tx.Outputs[0].Data.(catalog.IOUState)
	require.True(t, ok)
	assert.Equal(t, int64(100), iou.Amount)
	assert.Equal(t, bank, iou.Lender)
	assert.Equal(t, int64(0), iou.Paid)
	assert.Equal(t, notary, tx.Outputs[0].Notary)

	raw, ok := tx.Outputs[1].Data.(map[string]any)
	require.True(t, ok)
	assert.Len(t, raw["foo"], 2)

	require.NotNil(t, tx.Notary)
	assert.Equal(t, notary, *tx.Notary)
	assert.Equal(t, [][]byte{{1, 2}}, tx.Signatures)

	_, err = c.FindTransaction(context.Background(), ledger.SHA256([]byte("other")))
	assert.True(t, ledger.IsNotFound(err))
}

func TestFindStateByRef(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodFindStateByRef, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		if params[0].Get("txhash").String() == txHash.String() && params[0].Get("index").Int() == 0 {
			return json.RawMessage(stateAndRefJSON()), nil
		}
		return json.RawMessage(`null`), nil
	})
	c := newTestClient(t, node)
	key := serialization.KeyFor[ledger.StateAndRef](serialization.KeyFor[catalog.IOUState]())

	sar, err := c.FindStateByRef(context.Background(), ledger.StateRef{TxHash: txHash}, "", key)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateRef{TxHash: txHash}, sar.Ref)
	assert.Equal(t, int64(100), sar.State.Data.(catalog.IOUState).Amount)
	assert.Equal(t, string(ledger.StateAll), node.sent(MethodFindStateByRef)[1].String())

	_, err = c.FindStateByRef(context.Background(), ledger.StateRef{TxHash: txHash, Index: 3}, ledger.StateConsumed, key)
	assert.True(t, ledger.IsNotFound(err))
	assert.Equal(t, string(ledger.StateConsumed), node.sent(MethodFindStateByRef)[1].String())
}

func TestQueryStates(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodVaultQuery, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		return json.RawMessage(fmt.Sprintf(`{
			"states": [%s],
			"statesMetadata": [{"ref": {"txhash": %q, "index": 0}, "contractStateClassName": %q,
				"recordedTime": "2024-01-02T03:04:05Z", "status": "UNCONSUMED"}],
			"totalStatesAvailable": 1,
			"stateTypes": "UNCONSUMED"
		}`, stateAndRefJSON(), txHash.String(), catalog.IOUContract)), nil
	})
	c := newTestClient(t, node)

	pageKey := serialization.KeyFor[ledger.VaultPage](serialization.KeyFor[catalog.IOUState]())
	page, err := c.QueryStates(context.Background(), ledger.VaultQuery{ContractStateType: catalog.IOUContract}, pageKey)
	require.NoError(t, err)

	sent := node.sent(MethodVaultQuery)
	require.Len(t, sent, 2)
	assert.Equal(t, catalog.IOUContract, sent[0].String())
	assert.Equal(t, int64(ledger.DefaultPageSize), sent[1].Get("pageSize").Int())
	assert.Equal(t, "UNCONSUMED", sent[1].Get("stateStatus").String())
	assert.Equal(t, "ALL", sent[1].Get("relevancyStatus").String())

	require.Len(t, page.States, 1)
	iou := page.States[0].State.Data.(catalog.IOUState)
	assert.Equal(t, "GBP", iou.Currency)
	assert.Equal(t, uuid.MustParse(runID), iou.LinearID)
	assert.Equal(t, int64(1), page.TotalStatesAvailable)
	require.Len(t, page.StatesMetadata, 1)
	assert.Nil(t, page.StatesMetadata[0].ConsumedTime)
}

func TestQueryStates_UnknownParty(t *testing.T) {
	node := newFakeNode()
	node.reply(MethodVaultQuery, fmt.Sprintf(`{"states":[{"state":{"data":{"amount":1,"currency":"GBP",
		"lender":{"name":"O=Ghost, L=Nowhere, C=GB"},"borrower":{"name":"O=Bank, L=London, C=GB"},"linearId":%q},
		"contract":%q,"notary":{"name":"O=Notary, L=Zurich, C=CH"}},"ref":{"txhash":%q,"index":0}}],
		"statesMetadata":[],"totalStatesAvailable":1,"stateTypes":"UNCONSUMED"}`, runID, catalog.IOUContract, txHash.String()))
	c := newTestClient(t, node)

	pageKey := serialization.KeyFor[ledger.VaultPage](serialization.KeyFor[catalog.IOUState]())
	_, err := c.QueryStates(context.Background(), ledger.VaultQuery{ContractStateType: catalog.IOUContract}, pageKey)
	assert.True(t, serialization.IsSerialization(err))
	assert.True(t, IsMalformedPayload(err))
}

func TestCountStates(t *testing.T) {
	node := newFakeNode()
	node.reply(MethodVaultCount, `42`)
	c := newTestClient(t, node)

	n, err := c.CountStates(context.Background(), ledger.VaultQuery{ContractStateType: catalog.IOUContract})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, 1, node.count(MethodVaultCount))
}

// =============================================================================
// Flows
// =============================================================================

func TestStartFlow(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodStartFlow, func([]gjson.Result) (json.RawMessage, *RPCError) {
		return json.RawMessage(`{"flowClass":"SettleIOUFlow","flowRunId":"` + runID + `","startedAt":"2024-01-02T03:04:05Z"}`), nil
	})
	c := newTestClient(t, node)

	handle, err := c.StartFlow(context.Background(), ledger.FlowInstruction{
		FlowClass: "SettleIOUFlow",
		Arguments: catalog.SettleIOUFlow{LinearID: uuid.MustParse(runID), Amount: 10},
	}, serialization.KeyFor[catalog.SettleIOUFlow]())
	require.NoError(t, err)

	sent := node.sent(MethodStartFlow)
	require.Len(t, sent, 2)
	assert.Equal(t, "SettleIOUFlow", sent[0].String())
	assert.Equal(t, int64(10), sent[1].Get("arguments.amount").Int())
	assert.Equal(t, runID, sent[1].Get("arguments.linearId").String())
	assert.Equal(t, uuid.MustParse(runID), handle.RunID)
	assert.Equal(t, "SettleIOUFlow", handle.FlowClass)
}

func TestStartFlow_WrongArguments(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node)

	_, err := c.StartFlow(context.Background(), ledger.FlowInstruction{
		FlowClass: "SettleIOUFlow",
		Arguments: "not a flow",
	}, serialization.KeyFor[catalog.SettleIOUFlow]())
	assert.True(t, serialization.IsSerialization(err))
	assert.Equal(t, 0, node.count(MethodStartFlow))
}

func TestFlowStatus(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodFlowStatus, func(params []gjson.Result) (json.RawMessage, *RPCError) {
		switch params[0].String() {
		case runID:
			return json.RawMessage(fmt.Sprintf(`{"running":false,"snapshot":{"flowClass":"SettleIOUFlow","flowRunId":%q,
				"startedAt":"2024-01-02T03:04:05Z","result":{"timestamp":"2024-01-02T03:04:09Z","value":%s}}}`,
				runID, stateAndRefJSON())), nil
		case "failed":
			return json.RawMessage(fmt.Sprintf(`{"running":false,"snapshot":{"flowClass":"SettleIOUFlow","flowRunId":%q,
				"startedAt":"2024-01-02T03:04:05Z","result":{"timestamp":"2024-01-02T03:04:09Z",
				"error":{"errorType":"FlowException","message":"no funds"}}}}`, runID)), nil
		case "both":
			return json.RawMessage(fmt.Sprintf(`{"running":false,"snapshot":{"flowClass":"SettleIOUFlow","flowRunId":%q,
				"startedAt":"2024-01-02T03:04:05Z","result":{"timestamp":"2024-01-02T03:04:09Z","value":%s,
				"error":{"message":"no funds"}}}}`, runID, stateAndRefJSON())), nil
		case "running":
			return json.RawMessage(fmt.Sprintf(`{"running":true,"snapshot":{"flowClass":"SettleIOUFlow","flowRunId":%q,
				"startedAt":"2024-01-02T03:04:05Z","currentProgress":{"currentStepName":"Signing","timestamp":"2024-01-02T03:04:06Z"}}}`,
				runID)), nil
		}
		return json.RawMessage(`null`), nil
	})
	c := newTestClient(t, node)

	returns := serialization.KeyFor[ledger.StateAndRef](serialization.KeyFor[catalog.IOUState]())
	snapshotKey := serialization.KeyFor[ledger.FlowSnapshot](returns)

	status, err := c.FlowStatus(context.Background(), runID, snapshotKey)
	require.NoError(t, err)
	assert.False(t, status.Running)
	require.True(t, status.Snapshot.Completed())
	value := status.Snapshot.Result.Value.(ledger.StateAndRef)
	assert.Equal(t, int64(100), value.State.Data.(catalog.IOUState).Amount)

	status, err = c.FlowStatus(context.Background(), "failed", snapshotKey)
	require.NoError(t, err)
	require.True(t, status.Snapshot.Result.IsError())
	assert.Equal(t, &ledger.FlowError{Type: "FlowException", Message: "no funds"}, status.Snapshot.Result.Error)

	status, err = c.FlowStatus(context.Background(), "running", snapshotKey)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.False(t, status.Snapshot.Completed())
	require.NotNil(t, status.Snapshot.CurrentProgress)
	assert.Equal(t, "Signing", status.Snapshot.CurrentProgress.CurrentStepName)

	_, err = c.FlowStatus(context.Background(), "both", snapshotKey)
	assert.Error(t, err)

	_, err = c.FlowStatus(context.Background(), "missing", snapshotKey)
	assert.True(t, ledger.IsNotFound(err))
}

func TestFlowStatus_IssuedTransaction(t *testing.T) {
	node := newFakeNode()
	node.handle(MethodFlowStatus, func([]gjson.Result) (json.RawMessage, *RPCError) {
		return json.RawMessage(fmt.Sprintf(`{"running":false,"snapshot":{"flowClass":"IssueIOUFlow","flowRunId":%q,
			"startedAt":"2024-01-02T03:04:05Z","result":{"timestamp":"2024-01-02T03:04:09Z","value":{
				"id":%q,"inputs":[],"sigs":["AQI="],"notary":%s,
				"outputs":[{"data":%s,"contract":%q,"notary":%s}]}}}}`,
			runID, txHash.String(), notaryJSON, iouJSON(), catalog.IOUContract, notaryJSON)), nil
	})
	c := newTestClient(t, node)

	snapshotKey := serialization.KeyFor[ledger.FlowSnapshot](serialization.KeyFor[ledger.SignedTransaction]())
	status, err := c.FlowStatus(context.Background(), runID, snapshotKey)
	require.NoError(t, err)
	require.True(t, status.Snapshot.Completed())

	tx, ok := status.Snapshot.Result.Value.(ledger.SignedTransaction)
	require.True(t, ok)
	assert.Equal(t, txHash, tx.ID)
	assert.Empty(t, tx.Inputs)
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, bank, tx.Outputs[0].Data.(catalog.IOUState).Lender)
	require.NotNil(t, tx.Notary)
	assert.Equal(t, notary, *tx.Notary)
}
