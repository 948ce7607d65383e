package httpapi

import (
	"net/http"

	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// Endpoint describes one route and the schemas of its payloads.
type Endpoint struct {
	Method   string                `json:"method"`
	Path     string                `json:"path"`
	Summary  string                `json:"summary"`
	Request  *serialization.Schema `json:"request,omitempty"`
	Response *serialization.Schema `json:"response,omitempty"`
}

// Catalogue lists every endpoint the gateway serves.
type Catalogue struct {
	Endpoints []Endpoint `json:"endpoints"`
}

var countSchema = serialization.NewObjectSchema().
	Property("count", serialization.Scalar("number", "int64"), true).
	Build()

var totalSchema = serialization.NewObjectSchema().
	Property("path", serialization.Scalar("string", ""), true).
	Property("count", serialization.Scalar("number", ""), true).
	Property("total", serialization.Scalar("number", ""), true).
	Build()

// catalogueBuilder resolves schemas while endpoints are listed and keeps
// the first resolution failure.
type catalogueBuilder struct {
	registry  *serialization.Registry
	endpoints []Endpoint
	err       error
}

func (b *catalogueBuilder) schema(key serialization.TypeKey) *serialization.Schema {
	if b.err != nil {
		return nil
	}
	codec, err := b.registry.Resolve(key)
	if err != nil {
		b.err = err
		return nil
	}
	return codec.Schema()
}

func (b *catalogueBuilder) add(method, path, summary string, request, response *serialization.Schema) {
	b.endpoints = append(b.endpoints, Endpoint{
		Method:   method,
		Path:     path,
		Summary:  summary,
		Request:  request,
		Response: response,
	})
}

// catalogue builds the endpoint list for the registered flows and states.
func (h *handler) catalogue() (Catalogue, error) {
	b := &catalogueBuilder{registry: h.registry}

	b.add(http.MethodGet, "/node/info", "Node addresses and legal identities",
		nil, b.schema(serialization.KeyFor[ledger.NodeInfo]()))
	b.add(http.MethodGet, "/node/version", "Node software version",
		nil, b.schema(serialization.KeyFor[ledger.NodeVersionInfo]()))
	b.add(http.MethodGet, "/node/partyFromKey/{key}", "Party owning a base64url public key",
		nil, b.schema(serialization.KeyFor[ledger.Party]()))
	b.add(http.MethodGet, "/node/tx/{hash}", "Signed transaction by id",
		nil, b.schema(serialization.KeyFor[ledger.SignedTransaction]()))

	query := b.schema(serialization.KeyFor[ledger.VaultQuery]())
	for _, s := range h.catalog.States() {
		page := b.schema(pageKey(s))
		b.add(http.MethodPost, "/node/states/"+s.Name, "Query "+s.Name+" states", query, page)
		b.add(http.MethodGet, "/node/states/"+s.Name, "Query "+s.Name+" states with URL parameters", nil, page)
		b.add(http.MethodGet, "/node/states/"+s.Name+"/{txhash}/{index}?status={status}", s.Name+" recorded at a transaction output",
			nil, b.schema(stateKey(s)))
		b.add(http.MethodPost, "/node/statesCount/"+s.Name, "Count matching "+s.Name+" states", query, countSchema)
		b.add(http.MethodPost, "/node/statesTotalAmount/"+s.Name+"?path={jsonpath}",
			"Sum the numbers a JSONPath selects from matching "+s.Name+" states", query, totalSchema)
	}

	for _, f := range h.catalog.Flows() {
		snapshot := b.schema(flowcache.SnapshotKey(f.Returns))
		b.add(http.MethodPost, "/node/flows/"+f.Name, "Start "+f.Name,
			b.schema(serialization.KeyFor[ledger.FlowInstruction](f.Args)), snapshot)
		b.add(http.MethodGet, "/node/flows/"+f.Name+"/snapshots/{runId}", "Latest snapshot of a "+f.Name+" run",
			nil, snapshot)
		b.add(http.MethodGet, "/node/flows/"+f.Name+"/snapshots/{runId}/updates", "Websocket stream of "+f.Name+" snapshots",
			nil, snapshot)
	}

	if b.err != nil {
		return Catalogue{}, b.err
	}
	return Catalogue{Endpoints: b.endpoints}, nil
}

func (h *handler) apiCatalogue(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalogue()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
