// Package tasks implements the task registry (spec.md §4.3): task records,
// per-kind worker spawning, cooperative cancellation, and the progress/
// terminal-event bridge.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gitmesh/gitmesh/internal/retry"
)

// Kind enumerates the Git operations the registry can drive (spec.md §3).
type Kind string

const (
	KindGitClone     Kind = "GitClone"
	KindGitFetch     Kind = "GitFetch"
	KindGitPush      Kind = "GitPush"
	KindGitInit      Kind = "GitInit"
	KindGitAdd       Kind = "GitAdd"
	KindGitCommit    Kind = "GitCommit"
	KindGitBranch    Kind = "GitBranch"
	KindGitCheckout  Kind = "GitCheckout"
	KindGitTag       Kind = "GitTag"
	KindGitRemoteAdd Kind = "GitRemoteAdd"
	KindGitRemoteSet Kind = "GitRemoteSet"
	KindGitRemoteDel Kind = "GitRemoteRemove"
)

// State is the finite set from spec.md §3. Transitions form a DAG:
// Pending->Running; Running->{Completed,Failed,Canceled}.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Canceled
}

// FailureReason captures the category/code/message attached to a Failed
// terminal event (spec.md §3, §7).
type FailureReason struct {
	Category     retry.Category
	Code         string
	Message      string
	RetriedTimes uint32
}

// Task is exclusively owned by the Registry; worker goroutines hold only a
// weak reference through the cancellation signal (spec.md §3).
type Task struct {
	ID        string
	Kind      Kind
	Params    any
	Override  *retry.StrategyOverride
	CreatedAt time.Time

	mu      sync.Mutex
	state   State
	failure *FailureReason

	cancel    context.CancelFunc
	ctx       context.Context
	interrupt *interruptFlag
}

// interruptFlag is the second, non-context-based cancellation mechanism for
// blocking Git operations that cannot poll a context (spec.md §4.3):
// Task.Cancel raises the flag alongside canceling the task's context, and
// progress callbacks check it directly.
type interruptFlag struct {
	flag atomic.Bool
}

func newTask(kind Kind, params any, override *retry.StrategyOverride) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    params,
		Override:  override,
		CreatedAt: time.Now(),
		state:     Pending,
		ctx:       ctx,
		cancel:    cancel,
		interrupt: &interruptFlag{},
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Failure() *FailureReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// transition moves the task to next, enforcing the DAG: terminal states are
// sticky, and a second terminal transition is a programming error the
// registry must not attempt (the caller guarantees this by construction of
// the worker loop).
func (t *Task) transition(next State, failure *FailureReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.state = next
	if failure != nil {
		t.failure = failure
	}
}

// Context is the cooperative cancellation signal shared with the worker.
func (t *Task) Context() context.Context { return t.ctx }

// Cancel raises the cancellation signal and the interrupt flag. Workers are
// expected to observe it within a bounded interval from a network-quiet
// point (spec.md §4.3).
func (t *Task) Cancel() {
	t.cancel()
	t.interrupt.raise()
}

func (f *interruptFlag) raise() {
	f.flag.Store(true)
}

func (f *interruptFlag) raised() bool {
	return f.flag.Load()
}

// Interrupted reports whether this task's cancellation has been raised; Git
// progress callbacks that cannot observe a context.Context poll this
// directly and return false to abort the underlying operation
// (spec.md §4.3).
func (t *Task) Interrupted() bool {
	return t.interrupt.raised()
}
