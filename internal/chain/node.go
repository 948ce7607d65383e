package chain

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

var (
	_ ledger.NodeState      = (*Client)(nil)
	_ ledger.IdentityLookup = (*Client)(nil)
)

// =============================================================================
// Node and identities
// =============================================================================

// NodeInfo returns the node's addresses and legal identities.
func (c *Client) NodeInfo(ctx context.Context) (ledger.NodeInfo, error) {
	res, err := c.Call(ctx, MethodNodeInfo)
	if err != nil {
		return ledger.NodeInfo{}, err
	}

	info := ledger.NodeInfo{
		PlatformVersion: int(res.Get("platformVersion").Int()),
		Serial:          res.Get("serial").Int(),
	}
	for _, a := range res.Get("addresses").Array() {
		info.Addresses = append(info.Addresses, ledger.NetworkHostAndPort{
			Host: a.Get("host").String(),
			Port: int(a.Get("port").Int()),
		})
	}
	for _, id := range res.Get("legalIdentities").Array() {
		party, err := parseParty(id)
		if err != nil {
			return ledger.NodeInfo{}, fmt.Errorf("parse node identity: %w", err)
		}
		pc := ledger.PartyAndCertificate{Party: party}
		for _, cert := range id.Get("certPath").Array() {
			raw, err := base64.StdEncoding.DecodeString(cert.String())
			if err != nil {
				return ledger.NodeInfo{}, fmt.Errorf("parse certificate of %s: %w", party.Name, err)
			}
			pc.CertPath = append(pc.CertPath, raw)
		}
		info.LegalIdentities = append(info.LegalIdentities, pc)
	}
	return info, nil
}

// NodeVersionInfo returns the node's release information.
func (c *Client) NodeVersionInfo(ctx context.Context) (ledger.NodeVersionInfo, error) {
	res, err := c.Call(ctx, MethodNodeVersion)
	if err != nil {
		return ledger.NodeVersionInfo{}, err
	}
	v, err := c.decode(res, serialization.KeyFor[ledger.NodeVersionInfo]())
	if err != nil {
		return ledger.NodeVersionInfo{}, err
	}
	return v.(ledger.NodeVersionInfo), nil
}

// WellKnownParty returns the party registered under name, or nil.
func (c *Client) WellKnownParty(ctx context.Context, name ledger.X500Name) (*ledger.Party, error) {
	res, err := c.Call(ctx, MethodWellKnownParty, name.String())
	if err != nil {
		return nil, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}
	party, err := parseParty(res)
	if err != nil {
		return nil, err
	}
	return &party, nil
}

// PartyFromKey returns the party owning key, or nil.
func (c *Client) PartyFromKey(ctx context.Context, owningKey []byte) (*ledger.Party, error) {
	res, err := c.Call(ctx, MethodPartyFromKey, base64.StdEncoding.EncodeToString(owningKey))
	if err != nil {
		return nil, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}
	party, err := parseParty(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &party, nil
}

// PartiesFromName implements ledger.IdentityLookup. Lookup failures are
// logged and reported as no candidates.
func (c *Client) PartiesFromName(name ledger.X500Name) []ledger.Party {
	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	defer cancel()

	res, err := c.Call(ctx, MethodPartiesFromName, name.String())
	if err != nil {
		c.log.WithField("name", name.String()).WithError(err).Warn("party lookup failed")
		return nil
	}
	var parties []ledger.Party
	for _, p := range res.Array() {
		party, err := parseParty(p)
		if err != nil {
			c.log.WithField("name", name.String()).WithError(err).Warn("skipping malformed party")
			continue
		}
		parties = append(parties, party)
	}
	return parties
}

func parseParty(r gjson.Result) (ledger.Party, error) {
	name, err := ledger.ParseX500Name(r.Get("name").String())
	if err != nil {
		return ledger.Party{}, err
	}
	party := ledger.Party{Name: name}
	if key := r.Get("owningKey"); key.Exists() && key.Type != gjson.Null {
		if party.OwningKey, err = base64.StdEncoding.DecodeString(key.String()); err != nil {
			return ledger.Party{}, fmt.Errorf("owning key of %s: %w", name, err)
		}
	}
	return party, nil
}

// =============================================================================
// Transactions and vault
// =============================================================================

// FindTransaction returns a verified transaction by hash.
func (c *Client) FindTransaction(ctx context.Context, hash ledger.SecureHash) (*ledger.SignedTransaction, error) {
	res, err := c.Call(ctx, MethodFindTransaction, hash.String())
	if err != nil {
		return nil, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, ledger.NewNotFoundError("transaction", hash.String())
	}

	v, err := c.decode(res, serialization.KeyFor[ledger.SignedTransaction]())
	if err != nil {
		return nil, err
	}
	tx := v.(ledger.SignedTransaction)
	return &tx, nil
}

// FindStateByRef returns the state recorded at ref, decoded with stateKey,
// which must be a StateAndRef key carrying the state type argument.
func (c *Client) FindStateByRef(ctx context.Context, ref ledger.StateRef, status ledger.StateStatus, stateKey serialization.TypeKey) (ledger.StateAndRef, error) {
	body, err := c.encode(ref, serialization.KeyFor[ledger.StateRef]())
	if err != nil {
		return ledger.StateAndRef{}, err
	}
	if status == "" {
		status = ledger.StateAll
	}
	res, err := c.Call(ctx, MethodFindStateByRef, body, string(status))
	if err != nil {
		return ledger.StateAndRef{}, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return ledger.StateAndRef{}, ledger.NewNotFoundError("state", ref.String())
	}
	v, err := c.decode(res, stateKey)
	if err != nil {
		return ledger.StateAndRef{}, err
	}
	return v.(ledger.StateAndRef), nil
}

// StateKey returns the key of the catalog state type recorded under
// contract. It lets the transaction codec type output data.
func (c *Client) StateKey(contract string) (serialization.TypeKey, bool) {
	if c.catalog == nil {
		return serialization.TypeKey{}, false
	}
	return c.catalog.StateKey(contract)
}

// QueryStates runs a vault query and decodes the page with pageKey, which
// must be a VaultPage key carrying the state type argument.
func (c *Client) QueryStates(ctx context.Context, query ledger.VaultQuery, pageKey serialization.TypeKey) (ledger.VaultPage, error) {
	query = query.Normalize()
	body, err := c.encode(query, serialization.KeyFor[ledger.VaultQuery]())
	if err != nil {
		return ledger.VaultPage{}, err
	}
	res, err := c.Call(ctx, MethodVaultQuery, query.ContractStateType, body)
	if err != nil {
		return ledger.VaultPage{}, err
	}
	v, err := c.decode(res, pageKey)
	if err != nil {
		return ledger.VaultPage{}, err
	}
	return v.(ledger.VaultPage), nil
}

// CountStates returns how many states match query.
func (c *Client) CountStates(ctx context.Context, query ledger.VaultQuery) (int64, error) {
	body, err := c.encode(query.Normalize(), serialization.KeyFor[ledger.VaultQuery]())
	if err != nil {
		return 0, err
	}
	res, err := c.Call(ctx, MethodVaultCount, query.ContractStateType, body)
	if err != nil {
		return 0, err
	}
	return res.Int(), nil
}

// =============================================================================
// Flows
// =============================================================================

// StartFlow submits a flow. argsKey is the key of the flow's arguments.
func (c *Client) StartFlow(ctx context.Context, instruction ledger.FlowInstruction, argsKey serialization.TypeKey) (ledger.FlowHandle, error) {
	body, err := c.encode(instruction, serialization.KeyFor[ledger.FlowInstruction](argsKey))
	if err != nil {
		return ledger.FlowHandle{}, err
	}
	res, err := c.Call(ctx, MethodStartFlow, instruction.FlowClass, body)
	if err != nil {
		return ledger.FlowHandle{}, err
	}
	v, err := c.decode(res, serialization.KeyFor[ledger.FlowHandle]())
	if err != nil {
		return ledger.FlowHandle{}, err
	}
	return v.(ledger.FlowHandle), nil
}

// FlowStatus reports the state of a flow run. snapshotKey is a
// FlowSnapshot key carrying the flow's return type.
func (c *Client) FlowStatus(ctx context.Context, runID string, snapshotKey serialization.TypeKey) (ledger.FlowStatus, error) {
	res, err := c.Call(ctx, MethodFlowStatus, runID)
	if err != nil {
		return ledger.FlowStatus{}, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return ledger.FlowStatus{}, ledger.NewNotFoundError("flow", runID)
	}
	v, err := c.decode(res.Get("snapshot"), snapshotKey)
	if err != nil {
		return ledger.FlowStatus{}, err
	}
	snapshot := v.(ledger.FlowSnapshot)
	if snapshot.Result != nil {
		if err := snapshot.Result.Validate(); err != nil {
			return ledger.FlowStatus{}, fmt.Errorf("flow %s: %w", runID, err)
		}
	}
	return ledger.FlowStatus{Snapshot: snapshot, Running: res.Get("running").Bool()}, nil
}
