package chain

import (
	"errors"
	"fmt"
)

// Node bridge RPC methods.
const (
	MethodNodeInfo        = "nodeInfo"
	MethodNodeVersion     = "nodeVersionInfo"
	MethodWellKnownParty  = "wellKnownPartyFromX500Name"
	MethodPartyFromKey    = "partyFromKey"
	MethodPartiesFromName = "partiesFromName"
	MethodFindTransaction = "findTransaction"
	MethodFindStateByRef  = "vaultStateByRef"
	MethodVaultQuery      = "vaultQuery"
	MethodVaultCount      = "vaultCount"
	MethodStartFlow       = "startFlow"
	MethodFlowStatus      = "flowStatus"
)

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrMalformedPayload marks node results that do not decode into the
// requested type.
var ErrMalformedPayload = errors.New("malformed node payload")

func IsMalformedPayload(err error) bool { return errors.Is(err, ErrMalformedPayload) }

// IsRPCError reports whether err came from the node.
func IsRPCError(err error) bool {
	var e *RPCError
	return errors.As(err, &e)
}
