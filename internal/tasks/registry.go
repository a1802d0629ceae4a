package tasks

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/sourcegraph/log"

	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/retry"
)

// ProgressFunc is invoked by a GitBackend as it makes progress. phase is a
// short label ("receiving", "resolving", "writing"), percent is 0-100.
// Returning false asks the backend to abort the underlying operation
// (spec.md §4.3: the interrupt-flag check happens inside this callback).
type ProgressFunc func(phase string, percent uint32, objects, bytes, totalHint *uint64) (ok bool)

// GitBackend is the external collaborator that performs the actual Git
// object/pack protocol work (spec.md §1 non-goals: delegated to a Git
// library). internal/gitops implements this over go-git.
type GitBackend interface {
	Clone(ctx context.Context, params any, progress ProgressFunc) error
	Fetch(ctx context.Context, params any, progress ProgressFunc) error
	Push(ctx context.Context, params any, progress ProgressFunc) error
	Init(ctx context.Context, params any, progress ProgressFunc) error
	Add(ctx context.Context, params any, progress ProgressFunc) error
	Commit(ctx context.Context, params any, progress ProgressFunc) error
	Branch(ctx context.Context, params any, progress ProgressFunc) error
	Checkout(ctx context.Context, params any, progress ProgressFunc) error
	Tag(ctx context.Context, params any, progress ProgressFunc) error
	RemoteAdd(ctx context.Context, params any, progress ProgressFunc) error
	RemoteSet(ctx context.Context, params any, progress ProgressFunc) error
	RemoteRemove(ctx context.Context, params any, progress ProgressFunc) error
}

// Registry owns task records, spawns per-kind workers, and bridges
// progress/terminal state into the event bus (spec.md §4.3).
type Registry struct {
	logger log.Logger
	bus    *events.Bus
	git    GitBackend

	planMu sync.RWMutex
	plan   retry.Plan

	strategyMu sync.RWMutex
	http       retry.HttpConfig
	tls        retry.TlsConfig

	workers *pool.ContextPool

	mu    sync.Mutex
	tasks map[string]*Task
}

const defaultMaxWorkers = 8

// NewRegistry constructs a Registry. maxWorkers bounds the number of
// concurrently-running blocking Git workers (spec.md §5); 0 selects a
// sensible default.
func NewRegistry(logger log.Logger, bus *events.Bus, git GitBackend, plan retry.Plan, maxWorkers int) *Registry {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	return &Registry{
		logger:  logger.Scoped("taskregistry", "owns task lifecycle and spawns Git workers"),
		bus:     bus,
		git:     git,
		plan:    plan,
		workers: pool.New().WithMaxGoroutines(maxWorkers).WithContext(context.Background()),
		tasks:   make(map[string]*Task),
	}
}

// UpdateStrategy swaps in the global HTTP/TLS policy a task's
// StrategyOverride is applied against (spec.md §4.4); it takes effect for
// every task spawned after the call returns, same as UpdatePlan.
func (r *Registry) UpdateStrategy(http retry.HttpConfig, tls retry.TlsConfig) {
	r.strategyMu.Lock()
	r.http, r.tls = http, tls
	r.strategyMu.Unlock()
}

// Strategy returns the global HTTP/TLS policy new tasks are spawned with.
func (r *Registry) Strategy() (retry.HttpConfig, retry.TlsConfig) {
	r.strategyMu.RLock()
	defer r.strategyMu.RUnlock()
	return r.http, r.tls
}

// Create inserts a Pending record and returns its id and a cancel handle
// (spec.md §4.3's create(kind) contract). It does not spawn a worker; call
// Spawn once params are ready.
func (r *Registry) Create(kind Kind, params any, override *retry.StrategyOverride) (taskID string, cancel func()) {
	t := newTask(kind, params, override)

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	return t.ID, t.Cancel
}

// Spawn moves the task to Running and spawns its blocking worker on the
// bounded pool, returning immediately (spec.md §4.3 spawn_* contract).
func (r *Registry) Spawn(taskID string) {
	t, ok := r.get(taskID)
	if !ok {
		return
	}
	t.transition(Running, nil)
	r.bus.Publish(events.TaskStarted{ID: t.ID, Kind: string(t.Kind)})

	plan := r.Plan()
	httpCfg, tlsCfg := r.Strategy()
	r.workers.Go(func(ctx context.Context) error {
		runWorker(ctx, r.logger, r.bus, r.git, plan, httpCfg, tlsCfg, t)
		return nil
	})
}

// Plan returns the retry plan new tasks are spawned with.
func (r *Registry) Plan() retry.Plan {
	r.planMu.RLock()
	defer r.planMu.RUnlock()
	return r.plan
}

// UpdatePlan swaps in a freshly reloaded retry.Plan; it takes effect for
// every task spawned after the call returns (spec.md §4.4's retry knobs
// are hot-reloadable). Tasks already running keep the plan they started
// with.
func (r *Registry) UpdatePlan(plan retry.Plan) {
	r.planMu.Lock()
	r.plan = plan
	r.planMu.Unlock()
}

// Cancel marks the cancellation signal for taskID and reports whether the
// task existed (spec.md §4.3).
func (r *Registry) Cancel(taskID string) bool {
	t, ok := r.get(taskID)
	if !ok {
		return false
	}
	t.Cancel()
	return true
}

// Snapshot is a read-only view of a task's current state.
type Snapshot struct {
	ID        string
	Kind      Kind
	State     State
	CreatedAt int64
	Failure   *FailureReason
}

// Snapshot returns a read-only view of taskID's current state.
func (r *Registry) Snapshot(taskID string) (Snapshot, bool) {
	t, ok := r.get(taskID)
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{ID: t.ID, Kind: t.Kind, State: t.State(), CreatedAt: t.CreatedAt.Unix(), Failure: t.Failure()}, true
}

// List returns read-only snapshots of all known tasks.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	ts := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		ts = append(ts, t)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(ts))
	for _, t := range ts {
		out = append(out, Snapshot{ID: t.ID, Kind: t.Kind, State: t.State(), CreatedAt: t.CreatedAt.Unix(), Failure: t.Failure()})
	}
	return out
}

// Wait blocks until all spawned workers have returned. Intended for tests
// and graceful shutdown.
func (r *Registry) Wait() error {
	return r.workers.Wait()
}

func (r *Registry) get(taskID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	return t, ok
}
