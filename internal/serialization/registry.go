package serialization

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/ledger_gateway/internal/sync"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

// Registry resolves and memoizes codecs by TypeKey.
//
// Custom factories are consulted first, in registration order, matching on
// the raw type only. Otherwise the engine builds a codec from the key's
// kind, and struct kinds are reflected into composite codecs. Each key is
// built at most once; concurrent callers share the in-flight build.
type Registry struct {
	mu        sync.RWMutex
	customs   []customEntry
	cache     map[string]Codec
	inflight  map[string]*buildSlot
	reflector *Reflector
	observer  Observer
	log       *logger.Logger
}

type customEntry struct {
	raw     reflect.Type
	factory Factory
}

// buildSlot holds the single result of one in-flight build.
type buildSlot struct {
	key   TypeKey
	done  chan struct{}
	codec Codec
	err   error
	owner *buildChain
}

// buildChain is the stack of keys being built by one top-level Resolve
// call. waiting is set while the chain blocks on another chain's slot.
type buildChain struct {
	keys    []TypeKey
	waiting *buildSlot
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		cache:     make(map[string]Codec),
		inflight:  make(map[string]*buildSlot),
		reflector: NewReflector(),
		observer:  NoopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewDefault("serialization")
	}
	if r.observer == nil {
		r.observer = NoopObserver{}
	}
	return r
}

// RegisterCustom adds a factory for raw. The first factory registered for
// a raw type wins; later ones are ignored. Codecs already memoized are
// not rebuilt.
func (r *Registry) RegisterCustom(raw reflect.Type, factory Factory) {
	if raw == nil || factory == nil {
		panic("serialization: RegisterCustom with nil type or factory")
	}
	for raw.Kind() == reflect.Pointer {
		raw = raw.Elem()
	}
	r.mu.Lock()
	r.customs = append(r.customs, customEntry{raw: raw, factory: factory})
	r.mu.Unlock()
	r.log.WithField("type", raw.String()).Debug("registered custom codec")
}

// RegisterCustomFor registers factory for T.
func RegisterCustomFor[T any](r *Registry, factory Factory) {
	r.RegisterCustom(reflect.TypeOf((*T)(nil)).Elem(), factory)
}

// Resolve returns the codec for key, building it on first use.
func (r *Registry) Resolve(key TypeKey) (Codec, error) {
	return r.resolve(key, &buildChain{})
}

// MustResolve is Resolve for keys known to be valid at startup.
func (r *Registry) MustResolve(key TypeKey) Codec {
	c, err := r.Resolve(key)
	if err != nil {
		panic(err)
	}
	return c
}

// ResolveFor resolves the key of T with the given type arguments.
func ResolveFor[T any](r *Registry, args ...TypeKey) (Codec, error) {
	return r.Resolve(KeyFor[T](args...))
}

// Keys lists the IDs of memoized codecs in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) resolve(key TypeKey, chain *buildChain) (Codec, error) {
	if key.IsZero() {
		return nil, &ResolutionError{Key: key, Reason: "empty type key"}
	}
	id := key.ID()

	r.mu.RLock()
	codec, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		r.observer.OnResolve(key, OutcomeHit)
		return codec, nil
	}

	r.mu.Lock()
	if codec, ok := r.cache[id]; ok {
		r.mu.Unlock()
		r.observer.OnResolve(key, OutcomeHit)
		return codec, nil
	}
	if chain.contains(id) {
		err := &CyclicTypeError{Key: key, Chain: chain.path(key)}
		r.mu.Unlock()
		return nil, r.failed(key, err)
	}
	if slot, ok := r.inflight[id]; ok {
		if slot.leadsTo(chain) {
			err := &CyclicTypeError{Key: key, Chain: chain.path(key)}
			r.mu.Unlock()
			return nil, r.failed(key, err)
		}
		chain.waiting = slot
		r.mu.Unlock()

		<-slot.done

		r.mu.Lock()
		chain.waiting = nil
		r.mu.Unlock()
		if slot.err != nil {
			r.observer.OnResolve(key, OutcomeFailed)
			return nil, slot.err
		}
		r.observer.OnResolve(key, OutcomeShared)
		return slot.codec, nil
	}

	slot := &buildSlot{key: key, done: make(chan struct{}), owner: chain}
	r.inflight[id] = slot
	chain.keys = append(chain.keys, key)
	customs := r.customs[:len(r.customs):len(r.customs)]
	r.mu.Unlock()

	start := time.Now()
	codec, kind, err := r.build(key, chain, customs)
	elapsed := time.Since(start)
	r.observer.OnBuild(key, kind, elapsed, err)

	r.mu.Lock()
	chain.keys = chain.keys[:len(chain.keys)-1]
	delete(r.inflight, id)
	if err == nil {
		r.cache[id] = codec
	}
	slot.codec, slot.err = codec, err
	close(slot.done)
	r.mu.Unlock()

	if err != nil {
		return nil, r.failed(key, err)
	}
	r.log.WithField("key", key.String()).
		WithField("kind", string(kind)).
		WithField("duration", elapsed.String()).
		Debug("codec built")
	r.observer.OnResolve(key, OutcomeBuilt)
	return codec, nil
}

func (r *Registry) failed(key TypeKey, err error) error {
	r.log.WithField("key", key.String()).WithError(err).Warn("codec resolution failed")
	r.observer.OnResolve(key, OutcomeFailed)
	return err
}

func (r *Registry) build(key TypeKey, chain *buildChain, customs []customEntry) (codec Codec, kind BuildKind, err error) {
	res := &chainResolver{registry: r, chain: chain}
	defer res.release()
	defer func() {
		if p := recover(); p != nil {
			codec = nil
			err = &ResolutionError{Key: key, Reason: fmt.Sprintf("codec factory panicked: %v", p)}
		}
	}()

	for _, entry := range customs {
		if entry.raw != key.Raw() {
			continue
		}
		kind = BuildCustom
		codec, err = entry.factory(key, res)
		if err != nil {
			return nil, kind, asResolutionError(key, err)
		}
		if codec == nil {
			return nil, kind, &ResolutionError{Key: key, Reason: "factory returned no codec"}
		}
		return codec, kind, nil
	}

	kind = BuildBuiltin
	codec, handled, err := builtin(key, res)
	if handled {
		return codec, kind, err
	}
	kind = BuildComposite
	codec, err = buildComposite(key, r.reflector, res)
	return codec, kind, err
}

func asResolutionError(key TypeKey, err error) error {
	var re *ResolutionError
	var ce *CyclicTypeError
	if errors.As(err, &re) || errors.As(err, &ce) {
		return err
	}
	return &ResolutionError{Key: key, Reason: "custom codec factory failed", Cause: err}
}

func (c *buildChain) contains(id string) bool {
	for _, k := range c.keys {
		if k.id == id {
			return true
		}
	}
	return false
}

func (c *buildChain) path(key TypeKey) []TypeKey {
	out := make([]TypeKey, 0, len(c.keys)+1)
	out = append(out, c.keys...)
	return append(out, key)
}

// leadsTo reports whether waiting on s would make chain wait on itself.
func (s *buildSlot) leadsTo(chain *buildChain) bool {
	for owner := s.owner; owner != nil; {
		if owner == chain {
			return true
		}
		if owner.waiting == nil {
			return false
		}
		owner = owner.waiting.owner
	}
	return false
}

// chainResolver resolves nested keys inside the build chain of the codec
// being built. Once the build returns it falls back to fresh chains.
type chainResolver struct {
	registry *Registry
	chain    *buildChain
	released atomic.Bool
}

func (c *chainResolver) Resolve(key TypeKey) (Codec, error) {
	if c.released.Load() {
		return c.registry.Resolve(key)
	}
	return c.registry.resolve(key, c.chain)
}

func (c *chainResolver) release() { c.released.Store(true) }
