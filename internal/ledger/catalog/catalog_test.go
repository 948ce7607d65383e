package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/internal/codecs"
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

func TestCatalog_Order(t *testing.T) {
	c := New()
	c.RegisterFlow(FlowDescriptor{Name: "b"})
	c.RegisterFlow(FlowDescriptor{Name: "a"})

	flows := c.Flows()
	require.Len(t, flows, 2)
	assert.Equal(t, "b", flows[0].Name)
	assert.Equal(t, "a", flows[1].Name)

	assert.Panics(t, func() { c.RegisterFlow(FlowDescriptor{Name: "a"}) })
}

func TestIOU_Lookups(t *testing.T) {
	c := IOU()

	f, ok := c.Flow("IssueIOUFlow")
	require.True(t, ok)
	assert.True(t, f.Args.Equal(serialization.KeyFor[IssueIOUFlow]()))

	_, ok = c.Flow("Unknown")
	assert.False(t, ok)

	s, ok := c.StateByContract(IOUContract)
	require.True(t, ok)
	assert.Equal(t, "IOUState", s.Name)
	_, ok = c.StateByContract("other")
	assert.False(t, ok)

	assert.Len(t, c.Keys(), 5)
}

// Every key the sample catalog names must resolve once the ledger codecs
// are registered.
func TestIOU_KeysResolve(t *testing.T) {
	reg := serialization.NewRegistry(serialization.WithLogger(logger.NewDiscard()))
	codecs.Register(reg, codecs.Deps{Identities: ledger.StaticIdentities{}})

	c := IOU()
	for _, key := range c.Keys() {
		_, err := reg.Resolve(key)
		assert.NoError(t, err, key.String())
	}
	for _, s := range c.States() {
		_, err := reg.Resolve(serialization.KeyFor[ledger.VaultPage](s.Key))
		assert.NoError(t, err)
	}
	for _, f := range c.Flows() {
		_, err := reg.Resolve(serialization.KeyFor[ledger.FlowSnapshot](f.Returns))
		assert.NoError(t, err)
		_, err = reg.Resolve(serialization.KeyFor[ledger.FlowInstruction](f.Args))
		assert.NoError(t, err)
	}
}
