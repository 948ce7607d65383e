package codecs

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

var (
	bankName  = ledger.X500Name{Organisation: "Bank", Locality: "London", Country: "GB"}
	bank      = ledger.Party{Name: bankName, OwningKey: []byte{1, 2, 3}}
	notary    = ledger.Party{Name: ledger.X500Name{Organisation: "Notary", Locality: "Zurich", Country: "CH"}}
	twinName  = ledger.X500Name{Organisation: "Twin", Locality: "Oslo", Country: "NO"}
	twinParty = ledger.Party{Name: twinName}
)

func newRegistry(t *testing.T) *serialization.Registry {
	t.Helper()
	reg := serialization.NewRegistry(serialization.WithLogger(logger.NewDiscard()))
	Register(reg, Deps{Identities: ledger.StaticIdentities{bank, notary, twinParty, twinParty}})
	return reg
}

func schemaJSON(t *testing.T, c serialization.Codec) string {
	t.Helper()
	out, err := json.Marshal(c.Schema())
	require.NoError(t, err)
	return string(out)
}

func marshal(t *testing.T, c serialization.Codec, v any) string {
	t.Helper()
	out, err := serialization.Marshal(c, v)
	require.NoError(t, err)
	return string(out)
}

// =============================================================================
// Identities
// =============================================================================

func TestX500Name(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.X500Name]())

	assert.JSONEq(t, `{"type":"string"}`, schemaJSON(t, c))

	parsed, err := ledger.ParseX500Name("O=Bank,L=London,C=GB")
	require.NoError(t, err)
	assert.Equal(t, `"O=Bank, L=London, C=GB"`, marshal(t, c, parsed))

	v, err := serialization.Unmarshal(c, []byte(`"O=Bank, L=London, C=GB"`))
	require.NoError(t, err)
	assert.Equal(t, parsed, v)

	_, err = serialization.Unmarshal(c, []byte(`"L=London"`))
	assert.True(t, serialization.IsSerialization(err))
}

func TestParty(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.Party]())

	assert.Equal(t, `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`, schemaJSON(t, c))
	assert.Equal(t, `{"name":"O=Bank, L=London, C=GB"}`, marshal(t, c, bank))

	v, err := serialization.Unmarshal(c, []byte(`{"name":"O=Bank, L=London, C=GB"}`))
	require.NoError(t, err)
	assert.Equal(t, bank, v)

	_, err = serialization.Unmarshal(c, []byte(`{"name":"O=UnknownBank, L=London, C=GB"}`))
	assert.True(t, serialization.IsSerialization(err))

	_, err = serialization.Unmarshal(c, []byte(`{"name":"O=Twin, L=Oslo, C=NO"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = serialization.Unmarshal(c, []byte(`{}`))
	assert.True(t, serialization.IsSerialization(err))
}

func TestPartyAndCertificate(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[ledger.PartyAndCertificate]())

	assert.JSONEq(t,
		`{"type":"object","properties":{"party":{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}},"required":[]}`,
		schemaJSON(t, c))
	assert.Equal(t, `{"party":{"name":"O=Bank, L=London, C=GB"}}`,
		marshal(t, c, ledger.PartyAndCertificate{Party: bank, CertPath: [][]byte{{9}}}))

	_, err := serialization.Unmarshal(c, []byte(`{"name":"O=UnknownBank, L=London, C=GB"}`))
	assert.True(t, serialization.IsUnsupported(err))
}

// =============================================================================
// Scalars
// =============================================================================

func TestTimeUUIDAndHash(t *testing.T) {
	reg := newRegistry(t)

	tc := reg.MustResolve(serialization.KeyFor[time.Time]())
	assert.Equal(t, "date-time", tc.Schema().Format)
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)
	assert.Equal(t, `"2024-03-01T12:30:00.0000005Z"`, marshal(t, tc, ts))
	v, err := serialization.Unmarshal(tc, []byte(`"2024-03-01T12:30:00.0000005Z"`))
	require.NoError(t, err)
	assert.True(t, ts.Equal(v.(time.Time)))

	uc := reg.MustResolve(serialization.KeyFor[uuid.UUID]())
	id := uuid.New()
	assert.Equal(t, `"`+id.String()+`"`, marshal(t, uc, id))
	_, err = serialization.Unmarshal(uc, []byte(`"not-a-uuid"`))
	assert.True(t, serialization.IsSerialization(err))

	hc := reg.MustResolve(serialization.KeyFor[ledger.SecureHash]())
	h := ledger.SHA256([]byte("tx"))
	v, err = serialization.Unmarshal(hc, []byte(marshal(t, hc, h)))
	require.NoError(t, err)
	assert.Equal(t, h, v)
}

func TestErrorCodec(t *testing.T) {
	reg := newRegistry(t)
	c := reg.MustResolve(serialization.KeyFor[error]())

	assert.True(t, c.Schema().IsRequired("message"))
	assert.False(t, c.Schema().IsRequired("errorType"))

	assert.JSONEq(t, `{"errorType":"*errors.errorString","message":"boom"}`, marshal(t, c, errors.New("boom")))
	assert.JSONEq(t, `{"errorType":"FlowException","message":"no funds"}`,
		marshal(t, c, &ledger.FlowError{Type: "FlowException", Message: "no funds"}))

	v, err := serialization.Unmarshal(c, []byte(`{"errorType":"FlowException","message":"no funds"}`))
	require.NoError(t, err)
	assert.Equal(t, &ledger.FlowError{Type: "FlowException", Message: "no funds"}, v)

	_, err = serialization.Unmarshal(c, []byte(`{"errorType":"X"}`))
	assert.True(t, serialization.IsSerialization(err))
}
