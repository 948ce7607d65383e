package codecs

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

func sampleIOU() catalog.IOUState {
	return catalog.IOUState{
		Amount:   100,
		Currency: "GBP",
		Lender:   bank,
		Borrower: notary,
		LinearID: uuid.MustParse("5f8c7a4e-3b1d-4c6a-9e2f-1a2b3c4d5e6f"),
	}
}

func TestVaultPage_RoundTrip(t *testing.T) {
	reg := newRegistry(t)
	iouKey := serialization.KeyFor[catalog.IOUState]()
	c := reg.MustResolve(serialization.KeyFor[ledger.VaultPage](iouKey))

	states := c.Schema().Property("states")
	require.NotNil(t, states)
	data := states.Items.Property("state").Property("data")
	assert.True(t, data.Equal(reg.MustResolve(iouKey).Schema()))

	ref := ledger.StateRef{TxHash: ledger.SHA256([]byte("tx")), Index: 0}
	page := ledger.VaultPage{
		States: []ledger.StateAndRef{{
			State: ledger.TransactionState{Data: sampleIOU(), Contract: catalog.IOUContract, Notary: notary},
			Ref:   ref,
		}},
		StatesMetadata: []ledger.StateMetadata{{
			Ref:          ref,
			ContractType: catalog.IOUContract,
			RecordedTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			Status:       ledger.StateUnconsumed,
		}},
		TotalStatesAvailable: 1,
		StateTypes:           ledger.StateUnconsumed,
	}

	out, err := serialization.Marshal(c, page)
	require.NoError(t, err)
	back, err := serialization.Unmarshal(c, out)
	require.NoError(t, err)
	assert.Equal(t, page, back)
}

func TestVaultQuery_Defaults(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.VaultQuery]())

	assert.Empty(t, c.Schema().Required)

	q, err := serialization.DecodeInto[ledger.VaultQuery](c, map[string]any{
		"ownerNames":   []any{"O=Bank, L=London, C=GB"},
		"sortCriteria": []any{map[string]any{"sortAttribute": "recordedTime"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultPageSize, q.PageSize)
	assert.Equal(t, ledger.StateUnconsumed, q.StateStatus)
	assert.Equal(t, ledger.RelevancyAll, q.RelevancyStatus)
	assert.Equal(t, []ledger.X500Name{bankName}, q.OwnerNames)
	require.Len(t, q.SortCriteria, 1)
	assert.Equal(t, ledger.SortAscending, q.SortCriteria[0].Direction)

	_, err = serialization.DecodeInto[ledger.VaultQuery](c, map[string]any{"stateStatus": "GONE"})
	assert.True(t, serialization.IsSerialization(err))
}

func TestFlowSnapshot_ValueAndError(t *testing.T) {
	reg := newRegistry(t)
	iouKey := serialization.KeyFor[catalog.IOUState]()
	resultKey := serialization.KeyFor[ledger.StateAndRef](iouKey)
	c := reg.MustResolve(serialization.KeyFor[ledger.FlowSnapshot](resultKey))

	handle := ledger.FlowHandle{FlowClass: "SettleIOUFlow", RunID: uuid.New(), StartedAt: time.Unix(1700000000, 0).UTC()}
	initial := handle.InitialSnapshot()

	out, err := serialization.Marshal(c, initial)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "result")
	back, err := serialization.Unmarshal(c, out)
	require.NoError(t, err)
	assert.Equal(t, initial, back)

	value := ledger.StateAndRef{
		State: ledger.TransactionState{Data: sampleIOU(), Contract: catalog.IOUContract, Notary: notary},
		Ref:   ledger.StateRef{TxHash: ledger.SHA256([]byte("settle")), Index: 1},
	}
	done := initial.
		WithProgress(ledger.FlowProgress{CurrentStepName: "Done", Timestamp: time.Unix(1700000001, 0).UTC()}).
		WithResult(&ledger.FlowResult{Timestamp: time.Unix(1700000002, 0).UTC(), Value: value})
	out, err = serialization.Marshal(c, done)
	require.NoError(t, err)
	back, err = serialization.Unmarshal(c, out)
	require.NoError(t, err)
	assert.Equal(t, done, back)

	failed := initial.WithResult(&ledger.FlowResult{
		Timestamp: time.Unix(1700000003, 0).UTC(),
		Error:     &ledger.FlowError{Type: "FlowException", Message: "insufficient balance"},
	})
	out, err = serialization.Marshal(c, failed)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"message":"insufficient balance"`)
	back, err = serialization.Unmarshal(c, out)
	require.NoError(t, err)
	assert.Equal(t, failed, back)
}

func TestFlowInstruction_ArgumentsDecoded(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.FlowInstruction](serialization.KeyFor[catalog.IssueIOUFlow]()))

	assert.Equal(t, []string{"arguments"}, c.Schema().Required)

	in, err := serialization.Unmarshal(c, []byte(`{
		"arguments": {"amount": 10, "currency": "GBP", "lender": {"name": "O=Bank, L=London, C=GB"}},
		"options": {"trackProgress": true}
	}`))
	require.NoError(t, err)
	instr := in.(ledger.FlowInstruction)
	args := instr.Arguments.(catalog.IssueIOUFlow)
	assert.Equal(t, int64(10), args.Amount)
	assert.Equal(t, bank, args.Lender)
	require.NotNil(t, instr.Options)
	assert.True(t, instr.Options.TrackProgress)

	_, err = serialization.Unmarshal(c, []byte(`{"arguments": {"amount": 10, "currency": "GBP", "lender": {"name": "O=Nobody, L=London, C=GB"}}}`))
	var se *serialization.SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "arguments", se.Property)
}

func sampleTransaction() ledger.SignedTransaction {
	return ledger.SignedTransaction{
		ID:         ledger.SHA256([]byte("tx")),
		Inputs:     []ledger.StateRef{{TxHash: ledger.SHA256([]byte("prev")), Index: 1}},
		Outputs:    []ledger.TransactionState{{Data: sampleIOU(), Contract: catalog.IOUContract, Notary: notary}},
		Notary:     &notary,
		Signatures: [][]byte{{1, 2}},
	}
}

func TestSignedTransaction_RoundTrip(t *testing.T) {
	reg := serialization.NewRegistry()
	Register(reg, Deps{Identities: ledger.StaticIdentities{bank, notary}, States: catalog.IOU()})
	c := reg.MustResolve(serialization.KeyFor[ledger.SignedTransaction]())

	tx := sampleTransaction()
	out, err := serialization.Marshal(c, tx)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"currency":"GBP"`)
	assert.Contains(t, string(out), `"sigs":["AQI="]`)

	v, err := serialization.Unmarshal(c, out)
	require.NoError(t, err)
	assert.Equal(t, tx, v)

	assert.Equal(t, "array", c.Schema().Property("outputs").Type)
}

func TestSignedTransaction_EmptyCollections(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.SignedTransaction]())

	out, err := serialization.Marshal(c, ledger.SignedTransaction{ID: ledger.SHA256([]byte("tx"))})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"inputs":[]`)
	assert.Contains(t, string(out), `"sigs":[]`)

	v, err := serialization.Unmarshal(c, out)
	require.NoError(t, err)
	tx := v.(ledger.SignedTransaction)
	assert.Empty(t, tx.Inputs)
	assert.Empty(t, tx.Outputs)
	assert.Nil(t, tx.Notary)
}

func TestSignedTransaction_UnknownContractKeepsRawData(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.SignedTransaction]())

	payload := `{"id":"` + ledger.SHA256([]byte("tx")).String() + `","inputs":[],"sigs":[],` +
		`"outputs":[{"contract":"com.example.Other","data":{"units":3},"notary":{"name":"O=Notary, L=Zurich, C=CH"}}]}`
	v, err := serialization.Unmarshal(c, []byte(payload))
	require.NoError(t, err)
	tx := v.(ledger.SignedTransaction)
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, notary, tx.Outputs[0].Notary)
	data, ok := tx.Outputs[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), data["units"])

	out, err := serialization.Marshal(c, tx)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"data":{"units":3}`)
}

func TestSignedTransaction_DecodeErrors(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.SignedTransaction]())
	id := ledger.SHA256([]byte("tx")).String()

	for _, payload := range []string{
		`[]`,
		`{"inputs":[],"outputs":[],"sigs":[]}`,
		`{"id":"` + id + `","inputs":[],"outputs":{},"sigs":[]}`,
		`{"id":"` + id + `","inputs":[],"outputs":[],"sigs":[],"notary":{"name":"O=Nobody, L=Paris, C=FR"}}`,
		`{"id":"` + id + `","inputs":[],"outputs":[{"contract":"x","data":null}],"sigs":[]}`,
	} {
		_, err := serialization.Unmarshal(c, []byte(payload))
		assert.True(t, serialization.IsSerialization(err), payload)
	}
}

func TestNodeInfo_Encode(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.NodeInfo]())

	out, err := serialization.Marshal(c, ledger.NodeInfo{
		Addresses:       []ledger.NetworkHostAndPort{{Host: "localhost", Port: 10002}},
		LegalIdentities: []ledger.PartyAndCertificate{{Party: bank}},
		PlatformVersion: 4,
		Serial:          1,
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"addresses":[{"host":"localhost","port":10002}],"legalIdentitiesAndCerts":[{"party":{"name":"O=Bank, L=London, C=GB"}}],"platformVersion":4,"serial":1}`,
		string(out))
}
