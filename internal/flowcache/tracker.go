package flowcache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/internal/sync"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

const (
	pollTimeout      = 10 * time.Second
	subscriberBuffer = 8
)

// SnapshotKey is the key of snapshots of a flow returning returnKey.
func SnapshotKey(returnKey serialization.TypeKey) serialization.TypeKey {
	return serialization.KeyFor[ledger.FlowSnapshot](returnKey)
}

type trackedFlow struct {
	key  serialization.TypeKey
	last ledger.FlowSnapshot
}

// Tracker follows running flows on the node, stores their snapshots and
// fans updates out to subscribers.
type Tracker struct {
	node      ledger.NodeState
	registry  *serialization.Registry
	store     Store
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	sweepSpec string
	now       func() time.Time

	mu      sync.Mutex
	flows   map[string]*trackedFlow
	subs    map[string]map[int]chan ledger.FlowSnapshot
	nextSub int
	cancel  context.CancelFunc
	sweeper *cron.Cron
	wg      sync.WaitGroup
	running bool
}

// NewTracker creates a lifecycle-managed flow tracker.
func NewTracker(node ledger.NodeState, reg *serialization.Registry, store Store, cfg Config, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewDefault("flow-tracker")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	return &Tracker{
		node:      node,
		registry:  reg,
		store:     store,
		log:       log,
		interval:  interval,
		retention: cfg.Retention,
		sweepSpec: cfg.SweepSchedule,
		now:       time.Now,
		flows:     make(map[string]*trackedFlow),
		subs:      make(map[string]map[int]chan ledger.FlowSnapshot),
	}
}

func (t *Tracker) Name() string { return "flow-tracker" }

// Tracked reports how many flows are being polled.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// =============================================================================
// Snapshots
// =============================================================================

// Track stores the initial snapshot of a started flow and polls it until it
// completes.
func (t *Tracker) Track(ctx context.Context, handle ledger.FlowHandle, returnKey serialization.TypeKey) (ledger.FlowSnapshot, error) {
	key := SnapshotKey(returnKey)
	snapshot := handle.InitialSnapshot()
	runID := handle.RunID.String()
	if err := t.persist(ctx, runID, key, snapshot); err != nil {
		return ledger.FlowSnapshot{}, err
	}

	t.mu.Lock()
	t.flows[runID] = &trackedFlow{key: key, last: snapshot}
	t.mu.Unlock()

	t.log.WithField("flow", handle.FlowClass).WithField("run_id", runID).Debug("tracking flow")
	return snapshot, nil
}

// Snapshot returns the latest known snapshot of a run: the tracked one,
// the stored one, or failing both the node's.
func (t *Tracker) Snapshot(ctx context.Context, runID string, returnKey serialization.TypeKey) (ledger.FlowSnapshot, error) {
	t.mu.Lock()
	f, ok := t.flows[runID]
	t.mu.Unlock()
	if ok {
		return f.last, nil
	}

	key := SnapshotKey(returnKey)
	data, err := t.store.Get(ctx, runID)
	switch {
	case err == nil:
		return t.decode(key, data)
	case !errors.Is(err, ErrNotFound):
		return ledger.FlowSnapshot{}, err
	}

	status, err := t.node.FlowStatus(ctx, runID, key)
	if err != nil {
		return ledger.FlowSnapshot{}, err
	}
	if err := t.persist(ctx, runID, key, status.Snapshot); err != nil {
		t.log.WithField("run_id", runID).WithError(err).Warn("store flow snapshot failed")
	}
	if status.Running && !status.Snapshot.Completed() {
		t.mu.Lock()
		if _, exists := t.flows[runID]; !exists {
			t.flows[runID] = &trackedFlow{key: key, last: status.Snapshot}
		}
		t.mu.Unlock()
	}
	return status.Snapshot, nil
}

// Subscribe returns a channel of snapshot updates for a tracked run. The
// channel is closed once the flow completes or cancel is called. ok is false
// when the run is not being tracked.
func (t *Tracker) Subscribe(runID string) (updates <-chan ledger.FlowSnapshot, cancel func(), ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, tracked := t.flows[runID]; !tracked {
		return nil, func() {}, false
	}
	ch := make(chan ledger.FlowSnapshot, subscriberBuffer)
	id := t.nextSub
	t.nextSub++
	if t.subs[runID] == nil {
		t.subs[runID] = make(map[int]chan ledger.FlowSnapshot)
	}
	t.subs[runID][id] = ch

	cancel = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if m, ok := t.subs[runID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(t.subs, runID)
			}
		}
	}
	return ch, cancel, true
}

func (t *Tracker) persist(ctx context.Context, runID string, key serialization.TypeKey, snapshot ledger.FlowSnapshot) error {
	codec, err := t.registry.Resolve(key)
	if err != nil {
		return err
	}
	data, err := serialization.Marshal(codec, snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", runID, err)
	}
	return t.store.Put(ctx, runID, data, t.retention)
}

func (t *Tracker) decode(key serialization.TypeKey, data []byte) (ledger.FlowSnapshot, error) {
	codec, err := t.registry.Resolve(key)
	if err != nil {
		return ledger.FlowSnapshot{}, err
	}
	v, err := serialization.Unmarshal(codec, data)
	if err != nil {
		return ledger.FlowSnapshot{}, fmt.Errorf("decode stored snapshot: %w", err)
	}
	return v.(ledger.FlowSnapshot), nil
}

// publish sends snapshot to the run's subscribers, closing them when final.
// A full buffer drops progress updates, but the final snapshot replaces the
// oldest pending one so every subscriber sees the result. Callers hold t.mu.
func (t *Tracker) publish(runID string, snapshot ledger.FlowSnapshot, final bool) {
	for id, ch := range t.subs[runID] {
		select {
		case ch <- snapshot:
		default:
			if !final {
				t.log.WithField("run_id", runID).WithField("subscriber", id).Warn("dropping snapshot for slow subscriber")
				continue
			}
			// Senders hold t.mu, so a drained slot stays free.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
		if final {
			close(ch)
		}
	}
	if final {
		delete(t.subs, runID)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)

	sweeper := cron.New()
	if t.sweepSpec != "" {
		if _, err := sweeper.AddFunc(t.sweepSpec, func() { t.sweep(runCtx) }); err != nil {
			t.mu.Unlock()
			cancel()
			return fmt.Errorf("schedule flow cache sweep %q: %w", t.sweepSpec, err)
		}
	}
	t.cancel = cancel
	t.sweeper = sweeper
	t.running = true
	t.mu.Unlock()

	sweeper.Start()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				t.poll(runCtx)
			}
		}
	}()

	t.log.WithField("interval", t.interval).Info("flow tracker started")
	return nil
}

func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	sweeper := t.sweeper
	t.running = false
	t.cancel = nil
	t.sweeper = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
		if sweeper != nil {
			<-sweeper.Stop().Done()
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.log.Info("flow tracker stopped")
	return nil
}

func (t *Tracker) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	t.mu.Lock()
	pending := make(map[string]trackedFlow, len(t.flows))
	for id, f := range t.flows {
		pending[id] = *f
	}
	t.mu.Unlock()

	for runID, f := range pending {
		status, err := t.node.FlowStatus(ctx, runID, f.key)
		if err != nil {
			if ledger.IsNotFound(err) {
				t.log.WithField("run_id", runID).Warn("flow disappeared from node")
				t.finish(runID)
				continue
			}
			t.log.WithError(err).WithField("run_id", runID).Warn("flow status poll failed")
			continue
		}

		snapshot := status.Snapshot
		changed := !reflect.DeepEqual(snapshot, f.last)
		done := !status.Running || snapshot.Completed()
		if changed || done {
			if err := t.persist(ctx, runID, f.key, snapshot); err != nil {
				t.log.WithError(err).WithField("run_id", runID).Warn("store flow snapshot failed")
			}
		}

		t.mu.Lock()
		if tracked, ok := t.flows[runID]; ok {
			if changed {
				tracked.last = snapshot
			}
			if changed || done {
				t.publish(runID, snapshot, done)
			}
			if done {
				delete(t.flows, runID)
			}
		}
		t.mu.Unlock()
	}
}

// finish stops tracking a run and closes its subscribers.
func (t *Tracker) finish(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flows, runID)
	for _, ch := range t.subs[runID] {
		close(ch)
	}
	delete(t.subs, runID)
}

func (t *Tracker) sweep(ctx context.Context) {
	removed, err := t.store.Sweep(ctx, t.now())
	if err != nil {
		t.log.WithError(err).Warn("flow cache sweep failed")
		return
	}
	if removed > 0 {
		t.log.WithField("removed", removed).Debug("flow cache swept")
	}
}
