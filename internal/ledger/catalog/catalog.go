// Package catalog describes the flows and contract states a gateway
// deployment exposes over HTTP.
package catalog

import (
	"sort"

	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/internal/sync"
)

// FlowDescriptor names a flow and the keys of its arguments and result.
type FlowDescriptor struct {
	Name    string
	Args    serialization.TypeKey
	Returns serialization.TypeKey
}

// StateDescriptor names a contract state type.
type StateDescriptor struct {
	Name     string
	Contract string
	Key      serialization.TypeKey
}

// Catalog holds flow and state descriptors in registration order.
type Catalog struct {
	mu         sync.RWMutex
	flows      map[string]FlowDescriptor
	states     map[string]StateDescriptor
	flowOrder  []string
	stateOrder []string
}

func New() *Catalog {
	return &Catalog{
		flows:  make(map[string]FlowDescriptor),
		states: make(map[string]StateDescriptor),
	}
}

// RegisterFlow adds a flow. Names must be unique.
func (c *Catalog) RegisterFlow(d FlowDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.flows[d.Name]; exists {
		panic("flow already registered: " + d.Name)
	}
	c.flows[d.Name] = d
	c.flowOrder = append(c.flowOrder, d.Name)
}

// RegisterState adds a contract state type. Names must be unique.
func (c *Catalog) RegisterState(d StateDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.states[d.Name]; exists {
		panic("state already registered: " + d.Name)
	}
	c.states[d.Name] = d
	c.stateOrder = append(c.stateOrder, d.Name)
}

func (c *Catalog) Flow(name string) (FlowDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.flows[name]
	return d, ok
}

func (c *Catalog) State(name string) (StateDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.states[name]
	return d, ok
}

// StateByContract finds the state type recorded under a contract name.
func (c *Catalog) StateByContract(contract string) (StateDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.stateOrder {
		if d := c.states[name]; d.Contract == contract {
			return d, true
		}
	}
	return StateDescriptor{}, false
}

// StateKey returns the key of the state type recorded under contract.
func (c *Catalog) StateKey(contract string) (serialization.TypeKey, bool) {
	d, ok := c.StateByContract(contract)
	return d.Key, ok
}

// Flows returns all flows in registration order.
func (c *Catalog) Flows() []FlowDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]FlowDescriptor, 0, len(c.flowOrder))
	for _, name := range c.flowOrder {
		result = append(result, c.flows[name])
	}
	return result
}

// States returns all states in registration order.
func (c *Catalog) States() []StateDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]StateDescriptor, 0, len(c.stateOrder))
	for _, name := range c.stateOrder {
		result = append(result, c.states[name])
	}
	return result
}

// Keys lists every TypeKey the catalog refers to, sorted by ID.
func (c *Catalog) Keys() []serialization.TypeKey {
	var keys []serialization.TypeKey
	for _, f := range c.Flows() {
		keys = append(keys, f.Args, f.Returns)
	}
	for _, s := range c.States() {
		keys = append(keys, s.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID() < keys[j].ID() })
	return keys
}
