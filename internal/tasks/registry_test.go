package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"

	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/events/eventtest"
	"github.com/gitmesh/gitmesh/internal/retry"
)

// fakeGit is a GitBackend whose Clone behavior is scripted per test.
type fakeGit struct {
	cloneFn func(ctx context.Context, params any, progress ProgressFunc) error
}

func (f *fakeGit) Clone(ctx context.Context, params any, progress ProgressFunc) error {
	return f.cloneFn(ctx, params, progress)
}
func (f *fakeGit) Fetch(ctx context.Context, params any, progress ProgressFunc) error        { return nil }
func (f *fakeGit) Push(ctx context.Context, params any, progress ProgressFunc) error         { return nil }
func (f *fakeGit) Init(ctx context.Context, params any, progress ProgressFunc) error         { return nil }
func (f *fakeGit) Add(ctx context.Context, params any, progress ProgressFunc) error          { return nil }
func (f *fakeGit) Commit(ctx context.Context, params any, progress ProgressFunc) error       { return nil }
func (f *fakeGit) Branch(ctx context.Context, params any, progress ProgressFunc) error       { return nil }
func (f *fakeGit) Checkout(ctx context.Context, params any, progress ProgressFunc) error     { return nil }
func (f *fakeGit) Tag(ctx context.Context, params any, progress ProgressFunc) error          { return nil }
func (f *fakeGit) RemoteAdd(ctx context.Context, params any, progress ProgressFunc) error    { return nil }
func (f *fakeGit) RemoteSet(ctx context.Context, params any, progress ProgressFunc) error    { return nil }
func (f *fakeGit) RemoteRemove(ctx context.Context, params any, progress ProgressFunc) error { return nil }

func TestRegistry_SuccessPublishesStartedProgressCompleted(t *testing.T) {
	bus := events.NewBus(logtest.Scoped(t))
	mem := events.NewMemoryBus(64)
	bus.Subscribe("mem", mem)

	git := &fakeGit{cloneFn: func(ctx context.Context, params any, progress ProgressFunc) error {
		progress("receiving", 50, nil, nil, nil)
		progress("receiving", 100, nil, nil, nil)
		return nil
	}}

	reg := NewRegistry(logtest.Scoped(t), bus, git, retry.DefaultPlan(), 2)
	id, _ := reg.Create(KindGitClone, nil, nil)
	reg.Spawn(id)
	require.NoError(t, reg.Wait())

	eventtest.RequireMonotonicProgress(t, mem, id)
	term := eventtest.RequireExactlyOneTerminal(t, mem, id)
	_, ok := term.(events.TaskCompleted)
	require.True(t, ok, "expected TaskCompleted, got %#v", term)

	snap, ok := reg.Snapshot(id)
	require.True(t, ok)
	require.Equal(t, Completed, snap.State)
}

func TestRegistry_RetriesThenFails(t *testing.T) {
	bus := events.NewBus(logtest.Scoped(t))
	mem := events.NewMemoryBus(64)
	bus.Subscribe("mem", mem)

	var calls int32
	git := &fakeGit{cloneFn: func(ctx context.Context, params any, progress ProgressFunc) error {
		atomic.AddInt32(&calls, 1)
		return timeoutErr{}
	}}

	plan := retry.Plan{Max: 3, BaseMs: 1, Factor: 1, Jitter: false}
	reg := NewRegistry(logtest.Scoped(t), bus, git, plan, 2)
	id, _ := reg.Create(KindGitClone, nil, nil)
	reg.Spawn(id)
	require.NoError(t, reg.Wait())

	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, 2, eventtest.RetryCount(mem, id), "expected 2 RetryApplied before the 3rd (terminal) attempt")

	term := eventtest.RequireExactlyOneTerminal(t, mem, id)
	failed, ok := term.(events.TaskFailed)
	require.True(t, ok)
	require.Equal(t, "Network", failed.Category)
	require.NotNil(t, failed.RetriedTimes)
	require.Equal(t, uint32(2), *failed.RetriedTimes)
}

func TestRegistry_Cancel(t *testing.T) {
	bus := events.NewBus(logtest.Scoped(t))
	mem := events.NewMemoryBus(64)
	bus.Subscribe("mem", mem)

	started := make(chan struct{})
	git := &fakeGit{cloneFn: func(ctx context.Context, params any, progress ProgressFunc) error {
		close(started)
		for i := 0; i < 1000; i++ {
			if ok := progress("receiving", uint32(i%100), nil, nil, nil); !ok {
				return context.Canceled
			}
			time.Sleep(time.Millisecond)
		}
		return nil
	}}

	reg := NewRegistry(logtest.Scoped(t), bus, git, retry.DefaultPlan(), 2)
	id, _ := reg.Create(KindGitClone, nil, nil)
	reg.Spawn(id)

	<-started
	require.True(t, reg.Cancel(id))
	require.NoError(t, reg.Wait())

	term := eventtest.RequireExactlyOneTerminal(t, mem, id)
	_, ok := term.(events.TaskCanceled)
	require.True(t, ok, "expected TaskCanceled, got %#v", term)
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
