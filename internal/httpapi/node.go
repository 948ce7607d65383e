package httpapi

import (
	"encoding/base64"
	"math/big"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

func (h *handler) nodeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.node.NodeInfo(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, info, serialization.KeyFor[ledger.NodeInfo]())
}

func (h *handler) nodeVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.node.NodeVersionInfo(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, version, serialization.KeyFor[ledger.NodeVersionInfo]())
}

func (h *handler) transaction(w http.ResponseWriter, r *http.Request) {
	hash, err := ledger.ParseSecureHash(mux.Vars(r)["hash"])
	if err != nil {
		h.fail(w, r, badRequest("invalid transaction hash: %v", err))
		return
	}
	tx, err := h.node.FindTransaction(r.Context(), hash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, *tx, serialization.KeyFor[ledger.SignedTransaction]())
}

// partyFromKey looks a party up by its owning key, given as URL-safe base64.
func (h *handler) partyFromKey(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["key"]
	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil || len(key) == 0 {
		h.fail(w, r, badRequest("invalid owning key %q", raw))
		return
	}
	party, err := h.node.PartyFromKey(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if party == nil {
		h.fail(w, r, ledger.NewNotFoundError("party with key", raw))
		return
	}
	h.respond(w, r, http.StatusOK, *party, serialization.KeyFor[ledger.Party]())
}

// =============================================================================
// Vault
// =============================================================================

func (h *handler) state(r *http.Request) (catalog.StateDescriptor, error) {
	name := mux.Vars(r)["state"]
	desc, ok := h.catalog.State(name)
	if !ok {
		return catalog.StateDescriptor{}, ledger.NewNotFoundError("state type", name)
	}
	return desc, nil
}

func pageKey(desc catalog.StateDescriptor) serialization.TypeKey {
	return serialization.KeyFor[ledger.VaultPage](desc.Key)
}

// vaultQuery builds the query for a state endpoint from the request body,
// or from URL parameters on GET.
func (h *handler) vaultQuery(r *http.Request, desc catalog.StateDescriptor) (ledger.VaultQuery, error) {
	key := serialization.KeyFor[ledger.VaultQuery]()
	var (
		v   any
		err error
	)
	if r.Method == http.MethodGet {
		var codec serialization.Codec
		if codec, err = h.registry.Resolve(key); err == nil {
			v, err = codec.Decode(queryTree(r.URL.Query()))
		}
	} else {
		v, err = h.decodeBody(r, key, true)
	}
	if err != nil {
		return ledger.VaultQuery{}, err
	}

	query := v.(ledger.VaultQuery)
	for _, sc := range query.SortCriteria {
		if _, ok := ledger.LookupSortAttribute(sc.SortAttribute); !ok {
			return ledger.VaultQuery{}, badRequest("unknown sort attribute %q", sc.SortAttribute)
		}
	}
	query.ContractStateType = desc.Contract
	return query.Normalize(), nil
}

// queryTree maps URL parameters onto the JSON shape of a vault query.
// Repeated parameters build lists; sort takes "attribute" or
// "attribute:DIRECTION".
func queryTree(values url.Values) map[string]any {
	tree := make(map[string]any)
	for _, name := range []string{"pageNumber", "pageSize"} {
		if v := values.Get(name); v != "" {
			tree[name] = json.Number(v)
		}
	}
	for _, name := range []string{"stateStatus", "relevancyStatus", "recordedTimeIsAfter", "consumedTimeIsAfter"} {
		if v := values.Get(name); v != "" {
			tree[name] = v
		}
	}
	for _, name := range []string{"linearStateUUIDs", "linearStateExternalIds", "ownerNames", "participantNames", "notaryNames"} {
		if vs, ok := values[name]; ok {
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			tree[name] = list
		}
	}
	if sorts, ok := values["sort"]; ok {
		criteria := make([]any, 0, len(sorts))
		for _, s := range sorts {
			attr, dir, found := strings.Cut(s, ":")
			column := map[string]any{"sortAttribute": attr}
			if found {
				column["direction"] = strings.ToUpper(dir)
			}
			criteria = append(criteria, column)
		}
		tree["sortCriteria"] = criteria
	}
	return tree
}

func (h *handler) queryStates(w http.ResponseWriter, r *http.Request) {
	desc, err := h.state(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query, err := h.vaultQuery(r, desc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.node.QueryStates(r.Context(), query, pageKey(desc))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, page, pageKey(desc))
}

func stateKey(desc catalog.StateDescriptor) serialization.TypeKey {
	return serialization.KeyFor[ledger.StateAndRef](desc.Key)
}

// stateByRef returns one state by the transaction output that recorded it.
// The status parameter defaults to ALL.
func (h *handler) stateByRef(w http.ResponseWriter, r *http.Request) {
	desc, err := h.state(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	hash, err := ledger.ParseSecureHash(vars["txhash"])
	if err != nil {
		h.fail(w, r, badRequest("invalid transaction hash: %v", err))
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil || index < 0 {
		h.fail(w, r, badRequest("invalid output index %q", vars["index"]))
		return
	}
	status := ledger.StateAll
	if v := r.URL.Query().Get("status"); v != "" {
		status = ledger.StateStatus(strings.ToUpper(v))
		if !slices.Contains(status.EnumValues(), string(status)) {
			h.fail(w, r, badRequest("unknown state status %q", v))
			return
		}
	}

	ref := ledger.StateRef{TxHash: hash, Index: index}
	sar, err := h.node.FindStateByRef(r.Context(), ref, status, stateKey(desc))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sar.State.Contract != "" && sar.State.Contract != desc.Contract {
		h.fail(w, r, ledger.NewNotFoundError(desc.Name, ref.String()))
		return
	}
	h.respond(w, r, http.StatusOK, sar, stateKey(desc))
}

func (h *handler) countStates(w http.ResponseWriter, r *http.Request) {
	desc, err := h.state(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query, err := h.vaultQuery(r, desc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	count, err := h.node.CountStates(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// totalAmount sums the numbers a JSONPath selects from the encoded page of
// matching states.
func (h *handler) totalAmount(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.fail(w, r, badRequest("path parameter required"))
		return
	}
	desc, err := h.state(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query, err := h.vaultQuery(r, desc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.node.QueryStates(r.Context(), query, pageKey(desc))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tree, err := h.encode(page, pageKey(desc))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	selected, err := jsonpath.Get(path, tree)
	if err != nil {
		h.fail(w, r, badRequest("evaluate path %q: %v", path, err))
		return
	}
	total, count, err := sumNumbers(selected)
	if err != nil {
		h.fail(w, r, badRequest("path %q: %v", path, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"count": count,
		"total": json.Number(total.Text('f', -1)),
	})
}

// sumNumbers adds up a selected number or list of numbers exactly.
func sumNumbers(selected any) (*big.Float, int, error) {
	values, ok := selected.([]any)
	if !ok {
		values = []any{selected}
	}
	total := new(big.Float).SetPrec(256)
	for _, v := range values {
		var n *big.Float
		switch x := v.(type) {
		case json.Number:
			f, _, err := big.ParseFloat(string(x), 10, 256, big.ToNearestEven)
			if err != nil {
				return nil, 0, err
			}
			n = f
		case float64:
			n = big.NewFloat(x)
		case int:
			n = new(big.Float).SetInt64(int64(x))
		case int64:
			n = new(big.Float).SetInt64(x)
		default:
			return nil, 0, badRequest("selected value %v is not a number", v)
		}
		total.Add(total, n)
	}
	return total, len(values), nil
}
