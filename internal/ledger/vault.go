package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StateRef points at one output of a transaction.
type StateRef struct {
	TxHash SecureHash `json:"txhash"`
	Index  int        `json:"index"`
}

func (r StateRef) String() string { return fmt.Sprintf("%s(%d)", r.TxHash, r.Index) }

// TransactionState wraps a contract state with its contract and notary.
// Data is typed by the key's first type argument.
type TransactionState struct {
	Data     any    `json:"data" gateway:"param=0,required"`
	Contract string `json:"contract"`
	Notary   Party  `json:"notary"`
}

// StateAndRef is a contract state together with where it was recorded.
type StateAndRef struct {
	State TransactionState `json:"state" gateway:"args=0"`
	Ref   StateRef         `json:"ref"`
}

// StateStatus filters states by consumption.
type StateStatus string

const (
	StateUnconsumed StateStatus = "UNCONSUMED"
	StateConsumed   StateStatus = "CONSUMED"
	StateAll        StateStatus = "ALL"
)

func (StateStatus) EnumValues() []string {
	return []string{string(StateUnconsumed), string(StateConsumed), string(StateAll)}
}

// RelevancyStatus filters states by whether the node is a participant.
type RelevancyStatus string

const (
	Relevant     RelevancyStatus = "RELEVANT"
	NotRelevant  RelevancyStatus = "NOT_RELEVANT"
	RelevancyAll RelevancyStatus = "ALL"
)

func (RelevancyStatus) EnumValues() []string {
	return []string{string(Relevant), string(NotRelevant), string(RelevancyAll)}
}

// SortDirection orders a sort column.
type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

func (SortDirection) EnumValues() []string {
	return []string{string(SortAscending), string(SortDescending)}
}

// StateMetadata describes the vault bookkeeping of one state.
type StateMetadata struct {
	Ref          StateRef    `json:"ref"`
	ContractType string      `json:"contractStateClassName"`
	RecordedTime time.Time   `json:"recordedTime"`
	ConsumedTime *time.Time  `json:"consumedTime"`
	Status       StateStatus `json:"status"`
	Notary       *Party      `json:"notary"`
	LockID       string      `json:"lockId,omitempty"`
}

// VaultPage is one page of a vault query, typed by the state argument.
type VaultPage struct {
	States               []StateAndRef   `json:"states" gateway:"args=0"`
	StatesMetadata       []StateMetadata `json:"statesMetadata"`
	TotalStatesAvailable int64           `json:"totalStatesAvailable"`
	StateTypes           StateStatus     `json:"stateTypes"`
}

// SortColumn is one sort criterion of a vault query.
type SortColumn struct {
	SortAttribute string        `json:"sortAttribute"`
	Direction     SortDirection `json:"direction" default:"\"ASC\""`
}

// VaultQuery selects contract states from the vault. ContractStateType is
// taken from the request path, not from the body.
type VaultQuery struct {
	ContractStateType      string          `json:"-"`
	PageNumber             int             `json:"pageNumber" default:"0"`
	PageSize               int             `json:"pageSize" default:"200"`
	StateStatus            StateStatus     `json:"stateStatus" default:"\"UNCONSUMED\""`
	RelevancyStatus        RelevancyStatus `json:"relevancyStatus" default:"\"ALL\""`
	LinearStateUUIDs       []uuid.UUID     `json:"linearStateUUIDs,omitempty"`
	LinearStateExternalIDs []string        `json:"linearStateExternalIds,omitempty"`
	OwnerNames             []X500Name      `json:"ownerNames,omitempty"`
	ParticipantNames       []X500Name      `json:"participantNames,omitempty"`
	NotaryNames            []X500Name      `json:"notaryNames,omitempty"`
	RecordedTimeIsAfter    *time.Time      `json:"recordedTimeIsAfter"`
	ConsumedTimeIsAfter    *time.Time      `json:"consumedTimeIsAfter"`
	SortCriteria           []SortColumn    `json:"sortCriteria,omitempty"`
}

// Normalize applies paging defaults and drops the consumed-time filter
// when a recorded-time filter is present.
func (q VaultQuery) Normalize() VaultQuery {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageNumber < 0 {
		q.PageNumber = 0
	}
	if q.StateStatus == "" {
		q.StateStatus = StateUnconsumed
	}
	if q.RelevancyStatus == "" {
		q.RelevancyStatus = RelevancyAll
	}
	if q.RecordedTimeIsAfter != nil {
		q.ConsumedTimeIsAfter = nil
	}
	return q
}

// DefaultPageSize is used when a query does not set a page size.
const DefaultPageSize = 200

// Sort attribute groups understood by the node.
const (
	SortGroupCommon   = "common"
	SortGroupVault    = "vault"
	SortGroupLinear   = "linear"
	SortGroupFungible = "fungible"
)

// SortAttribute maps a public attribute name to the node's column.
type SortAttribute struct {
	Name   string
	Group  string
	Column string
}

// StandardSortAttributes lists the sort attributes a query may name.
var StandardSortAttributes = []SortAttribute{
	{"stateRef", SortGroupCommon, "STATE_REF"},
	{"stateRefTxId", SortGroupCommon, "STATE_REF_TXN_ID"},
	{"stateRefIndex", SortGroupCommon, "STATE_REF_INDEX"},
	{"notary", SortGroupVault, "NOTARY_NAME"},
	{"contractStateClassName", SortGroupVault, "CONTRACT_STATE_TYPE"},
	{"stateStatus", SortGroupVault, "STATE_STATUS"},
	{"recordedTime", SortGroupVault, "RECORDED_TIME"},
	{"consumedTime", SortGroupVault, "CONSUMED_TIME"},
	{"lockId", SortGroupVault, "LOCK_ID"},
	{"constraintType", SortGroupVault, "CONSTRAINT_TYPE"},
	{"uuid", SortGroupLinear, "UUID"},
	{"externalId", SortGroupLinear, "EXTERNAL_ID"},
	{"quantity", SortGroupFungible, "QUANTITY"},
	{"issuerRef", SortGroupFungible, "ISSUER_REF"},
}

// LookupSortAttribute finds a standard sort attribute by name.
func LookupSortAttribute(name string) (SortAttribute, bool) {
	for _, a := range StandardSortAttributes {
		if a.Name == name {
			return a, true
		}
	}
	return SortAttribute{}, false
}
