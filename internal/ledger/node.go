package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// NetworkHostAndPort is a node's advertised address.
type NetworkHostAndPort struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a NetworkHostAndPort) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// NodeInfo describes the node the gateway talks to.
type NodeInfo struct {
	Addresses       []NetworkHostAndPort  `json:"addresses"`
	LegalIdentities []PartyAndCertificate `json:"legalIdentitiesAndCerts"`
	PlatformVersion int                   `json:"platformVersion"`
	Serial          int64                 `json:"serial"`
}

// NodeVersionInfo reports the node's software release.
type NodeVersionInfo struct {
	ReleaseVersion  string `json:"releaseVersion"`
	Revision        string `json:"revision"`
	PlatformVersion int    `json:"platformVersion"`
	Vendor          string `json:"vendor"`
}

// SignedTransaction is a transaction with the signatures collected for it.
type SignedTransaction struct {
	ID         SecureHash         `json:"id"`
	Inputs     []StateRef         `json:"inputs"`
	Outputs    []TransactionState `json:"outputs"`
	Notary     *Party             `json:"notary"`
	Signatures [][]byte           `json:"sigs"`
}

// NodeState is the gateway's view of one ledger node.
//
// Methods that return typed payloads take the TypeKey the payload should be
// decoded with: a VaultPage key for queries, a StateAndRef key for state
// lookups, a FlowSnapshot key for flows.
type NodeState interface {
	NodeInfo(ctx context.Context) (NodeInfo, error)
	NodeVersionInfo(ctx context.Context) (NodeVersionInfo, error)
	WellKnownParty(ctx context.Context, name X500Name) (*Party, error)
	PartyFromKey(ctx context.Context, owningKey []byte) (*Party, error)
	FindTransaction(ctx context.Context, hash SecureHash) (*SignedTransaction, error)
	FindStateByRef(ctx context.Context, ref StateRef, status StateStatus, state serialization.TypeKey) (StateAndRef, error)
	QueryStates(ctx context.Context, query VaultQuery, page serialization.TypeKey) (VaultPage, error)
	CountStates(ctx context.Context, query VaultQuery) (int64, error)
	StartFlow(ctx context.Context, instruction FlowInstruction, args serialization.TypeKey) (FlowHandle, error)
	FlowStatus(ctx context.Context, runID string, snapshot serialization.TypeKey) (FlowStatus, error)
}

// ErrNotFound is matched by NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing ledger entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
