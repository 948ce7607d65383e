package catalog

import (
	"github.com/google/uuid"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// IOUContract is the contract name IOU states are recorded under.
const IOUContract = "com.example.contracts.IOUContract"

// IOUState records that the borrower owes the lender an amount.
type IOUState struct {
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	Lender     ledger.Party `json:"lender"`
	Borrower   ledger.Party `json:"borrower"`
	Paid       int64        `json:"paid" default:"0"`
	LinearID   uuid.UUID    `json:"linearId"`
	ExternalID string       `json:"externalId,omitempty"`
}

// Outstanding is the unpaid part of the IOU.
func (s IOUState) Outstanding() int64 { return s.Amount - s.Paid }

// IssueIOUFlow issues a new IOU from the node's identity to a lender.
type IssueIOUFlow struct {
	Amount     int64        `json:"amount"`
	Currency   string       `json:"currency"`
	Lender     ledger.Party `json:"lender"`
	ExternalID string       `json:"externalId,omitempty"`
}

// SettleIOUFlow pays off part or all of an IOU.
type SettleIOUFlow struct {
	LinearID uuid.UUID `json:"linearId"`
	Amount   int64     `json:"amount"`
}

// IOU returns the catalog of the sample IOU application.
func IOU() *Catalog {
	c := New()
	iouKey := serialization.KeyFor[IOUState]()
	c.RegisterState(StateDescriptor{Name: "IOUState", Contract: IOUContract, Key: iouKey})
	c.RegisterFlow(FlowDescriptor{
		Name:    "IssueIOUFlow",
		Args:    serialization.KeyFor[IssueIOUFlow](),
		Returns: serialization.KeyFor[ledger.SignedTransaction](),
	})
	c.RegisterFlow(FlowDescriptor{
		Name:    "SettleIOUFlow",
		Args:    serialization.KeyFor[SettleIOUFlow](),
		Returns: serialization.KeyFor[ledger.StateAndRef](iouKey),
	})
	return c
}
