package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseX500Name_RoundTrip(t *testing.T) {
	n, err := ParseX500Name("O=Bank, L=London, C=GB")
	require.NoError(t, err)
	assert.Equal(t, X500Name{Organisation: "Bank", Locality: "London", Country: "GB"}, n)
	assert.Equal(t, "O=Bank, L=London, C=GB", n.String())

	full, err := ParseX500Name("C=US,ST=NY, L=New York ,O=Notary Service,OU=Ops,CN=notary")
	require.NoError(t, err)
	assert.Equal(t, "CN=notary, OU=Ops, O=Notary Service, L=New York, ST=NY, C=US", full.String())
}

func TestParseX500Name_Invalid(t *testing.T) {
	tests := []string{
		"",
		"O=Bank, L=London",
		"O=Bank, C=GB",
		"L=London, C=GB",
		"O=Bank, L=London, C=gb",
		"O=Bank, L=London, C=GBR",
		"O=Bank, O=Other, L=London, C=GB",
		"O=Bank, L=London, C=GB, X=1",
		"O=Bank, London, C=GB",
	}
	for _, in := range tests {
		_, err := ParseX500Name(in)
		assert.Error(t, err, in)
	}
}

func TestSecureHash(t *testing.T) {
	h := SHA256([]byte("hello"))
	assert.Equal(t, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", h.String())

	back, err := ParseSecureHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, back)

	lower, err := ParseSecureHash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	require.NoError(t, err)
	assert.Equal(t, h, lower)

	h3 := SHA3256([]byte("hello"))
	assert.Equal(t, AlgorithmSHA3256, h3.Algorithm)
	assert.Contains(t, h3.String(), "SHA3-256:")
	back3, err := ParseSecureHash(h3.String())
	require.NoError(t, err)
	assert.Equal(t, h3, back3)

	_, err = ParseSecureHash("ABCD")
	assert.Error(t, err)
	_, err = ParseSecureHash("zz")
	assert.Error(t, err)

	assert.True(t, SecureHash{}.IsZero())
	assert.False(t, h.IsZero())
}

func TestFlowResult_ValueXorError(t *testing.T) {
	r, err := NewFlowValue("done")
	require.NoError(t, err)
	assert.False(t, r.IsError())
	assert.NoError(t, r.Validate())

	r, err = NewFlowError(errors.New("failed"))
	require.NoError(t, err)
	assert.True(t, r.IsError())

	_, err = NewFlowValue(nil)
	assert.Error(t, err)
	_, err = newFlowResult(time.Now(), "v", errors.New("e"))
	assert.Error(t, err)
	assert.Error(t, (&FlowResult{}).Validate())
}

func TestFlowSnapshot_Transitions(t *testing.T) {
	h := FlowHandle{FlowClass: "IssueIOUFlow", StartedAt: time.Unix(100, 0).UTC()}
	s := h.InitialSnapshot()
	assert.False(t, s.Completed())
	assert.Nil(t, s.CurrentProgress)

	p := s.WithProgress(FlowProgress{CurrentStepName: "Signing"})
	require.NotNil(t, p.CurrentProgress)
	assert.Equal(t, "Signing", p.CurrentProgress.CurrentStepName)
	assert.Nil(t, s.CurrentProgress)

	r, _ := NewFlowValue(1)
	done := p.WithResult(r)
	assert.True(t, done.Completed())
	assert.False(t, p.Completed())
}

func TestFlowError(t *testing.T) {
	assert.Equal(t, "boom", (&FlowError{Message: "boom"}).Error())
	assert.Equal(t, "FlowException: boom", (&FlowError{Type: "FlowException", Message: "boom"}).Error())
}

func TestVaultQuery_Normalize(t *testing.T) {
	recorded := time.Now()
	q := VaultQuery{PageNumber: -3, RecordedTimeIsAfter: &recorded, ConsumedTimeIsAfter: &recorded}.Normalize()

	assert.Equal(t, 0, q.PageNumber)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Equal(t, StateUnconsumed, q.StateStatus)
	assert.Equal(t, RelevancyAll, q.RelevancyStatus)
	assert.Nil(t, q.ConsumedTimeIsAfter)
}

func TestLookupSortAttribute(t *testing.T) {
	a, ok := LookupSortAttribute("recordedTime")
	require.True(t, ok)
	assert.Equal(t, SortGroupVault, a.Group)
	assert.Equal(t, "RECORDED_TIME", a.Column)

	_, ok = LookupSortAttribute("colour")
	assert.False(t, ok)
}

func TestStaticIdentities(t *testing.T) {
	bank := X500Name{Organisation: "Bank", Locality: "London", Country: "GB"}
	ids := StaticIdentities{
		{Name: bank},
		{Name: X500Name{Organisation: "Other", Locality: "Paris", Country: "FR"}},
	}
	assert.Len(t, ids.PartiesFromName(bank), 1)
	assert.Empty(t, ids.PartiesFromName(X500Name{Organisation: "None"}))
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("transaction", "ABC")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "transaction ABC not found", err.Error())
	assert.False(t, IsNotFound(errors.New("other")))
}
