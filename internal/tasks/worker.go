package tasks

import (
	"context"
	"time"

	"github.com/sourcegraph/log"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/redact"
	"github.com/gitmesh/gitmesh/internal/retry"
)

// runWorker drives a single task to a terminal state: it invokes the Git
// backend for t.Kind, bridges its progress callback to TaskProgress events,
// retries on classified-retryable failures per plan (honoring any per-task
// StrategyOverride), and finishes with exactly one terminal event
// (spec.md §4.3, §4.4).
func runWorker(ctx context.Context, logger log.Logger, bus *events.Bus, git GitBackend, plan retry.Plan, globalHttp retry.HttpConfig, globalTls retry.TlsConfig, t *Task) {
	logger = logger.With(log.String("taskID", t.ID), log.String("kind", string(t.Kind)))

	globalRetry := retry.RetryConfig{Max: plan.Max, BaseMs: plan.BaseMs, Factor: plan.Factor, Jitter: plan.Jitter}
	effectiveRetry := globalRetry
	effectivePlan := plan
	var retryChanged []string
	if t.Override != nil && t.Override.Retry != nil {
		result, _ := retry.ApplyRetryOverride(globalRetry, t.Override.Retry)
		effectiveRetry = result
		effectivePlan = retry.Plan{Max: result.Max, BaseMs: result.BaseMs, Factor: result.Factor, Jitter: result.Jitter}
		retryChanged = t.Override.Retry.ChangedFields(globalRetry, effectiveRetry)
	}

	effectiveHttp, effectiveTls := applyStrategyOverride(bus, t.ID, globalHttp, globalTls, t.Override)
	bus.Publish(events.Summary{
		ID: t.ID, Kind: string(t.Kind),
		HttpFollow: effectiveHttp.FollowRedirects, HttpMax: effectiveHttp.MaxRedirects,
		RetryMax: effectiveRetry.Max, RetryBaseMs: effectiveRetry.BaseMs, RetryFactor: effectiveRetry.Factor, RetryJitter: effectiveRetry.Jitter,
		TlsInsecure: effectiveTls.InsecureSkipVerify, TlsSkipSan: effectiveTls.SkipSanWhitelist,
		AppliedCodes: retryChanged, FilterRequested: requestsPartialFilter(t.Params),
	})

	progress := func(phase string, percent uint32, objects, bytes, totalHint *uint64) bool {
		if t.Interrupted() {
			return false
		}
		bus.Publish(events.TaskProgress{
			TaskID: t.ID, Kind: string(t.Kind), Phase: phase, Percent: percent,
			Objects: objects, Bytes: bytes, TotalHint: totalHint,
		})
		return true
	}

	var attempt uint32
	for {
		attempt++
		runCtx, cancel := context.WithCancel(t.Context())
		runCtx = retry.WithEffective(runCtx, retry.Effective{Http: effectiveHttp, Tls: effectiveTls})
		err := invoke(runCtx, git, t.Kind, t.Params, progress)
		cancel()

		if err == nil {
			t.transition(Completed, nil)
			bus.Publish(events.TaskCompleted{ID: t.ID})
			return
		}

		category := retry.Classify(runCtx, err)

		if category == retry.CategoryCancel {
			t.transition(Canceled, nil)
			bus.Publish(events.TaskCanceled{ID: t.ID})
			return
		}

		if !effectivePlan.ShouldRetry(attempt, category) {
			retried := attempt - 1
			// err.Error() can echo a remote URL verbatim (go-git includes it in
			// transport errors); mask any embedded credentials before this
			// reaches the event bus or an API client (spec.md §7).
			message := redact.Message(err.Error())
			reason := &FailureReason{Category: category, Code: errors.CodeOf(err), Message: message, RetriedTimes: retried}
			t.transition(Failed, reason)
			bus.Publish(events.TaskFailed{
				ID: t.ID, Category: string(category), Code: reason.Code, Message: reason.Message, RetriedTimes: &retried,
			})
			logger.Warn("task failed", log.String("category", string(category)), log.String("error", message))
			return
		}

		bus.Publish(events.RetryApplied{ID: t.ID, Code: string(category), Changed: retryChanged, RetriedTimes: attempt})
		delay := effectivePlan.Delay(attempt, nil)

		select {
		case <-time.After(delay):
		case <-t.Context().Done():
			t.transition(Canceled, nil)
			bus.Publish(events.TaskCanceled{ID: t.ID})
			return
		}
	}
}

// applyStrategyOverride resolves a task's http/tls StrategyOverride against
// the daemon's global policy (spec.md §4.4/§8 properties 2-3), publishing
// Conflict on a forced normalization and HttpApplied/TlsApplied whenever the
// resolved policy actually differs from global.
func applyStrategyOverride(bus *events.Bus, taskID string, globalHttp retry.HttpConfig, globalTls retry.TlsConfig, override *retry.StrategyOverride) (retry.HttpConfig, retry.TlsConfig) {
	var httpOverride *retry.HttpOverride
	var tlsOverride *retry.TlsOverride
	if override != nil {
		httpOverride, tlsOverride = override.Http, override.Tls
	}

	effectiveHttp, httpChanged, httpConflict := retry.ApplyHttpOverride(globalHttp, httpOverride)
	if httpConflict != nil {
		bus.Publish(events.Conflict{ID: taskID, Kind: "http", Message: *httpConflict})
	}
	if httpChanged {
		bus.Publish(events.HttpApplied{ID: taskID, Follow: effectiveHttp.FollowRedirects, MaxRedirects: effectiveHttp.MaxRedirects})
	}

	effectiveTls, tlsChanged, tlsConflict := retry.ApplyTlsOverride(globalTls, tlsOverride)
	if tlsConflict != nil {
		bus.Publish(events.Conflict{ID: taskID, Kind: "tls", Message: *tlsConflict})
	}
	if tlsChanged {
		bus.Publish(events.TlsApplied{ID: taskID, InsecureSkipVerify: effectiveTls.InsecureSkipVerify, SkipSanWhitelist: effectiveTls.SkipSanWhitelist})
	}

	return effectiveHttp, effectiveTls
}

// filterAware is implemented by gitops.CloneParams/FetchParams; kept as a
// narrow local interface so this package never imports internal/gitops
// (which itself imports internal/tasks).
type filterAware interface {
	PartialFilter() string
}

func requestsPartialFilter(params any) bool {
	fa, ok := params.(filterAware)
	return ok && fa.PartialFilter() != ""
}

func invoke(ctx context.Context, git GitBackend, kind Kind, params any, progress ProgressFunc) error {
	switch kind {
	case KindGitClone:
		return git.Clone(ctx, params, progress)
	case KindGitFetch:
		return git.Fetch(ctx, params, progress)
	case KindGitPush:
		return git.Push(ctx, params, progress)
	case KindGitInit:
		return git.Init(ctx, params, progress)
	case KindGitAdd:
		return git.Add(ctx, params, progress)
	case KindGitCommit:
		return git.Commit(ctx, params, progress)
	case KindGitBranch:
		return git.Branch(ctx, params, progress)
	case KindGitCheckout:
		return git.Checkout(ctx, params, progress)
	case KindGitTag:
		return git.Tag(ctx, params, progress)
	case KindGitRemoteAdd:
		return git.RemoteAdd(ctx, params, progress)
	case KindGitRemoteSet:
		return git.RemoteSet(ctx, params, progress)
	case KindGitRemoteDel:
		return git.RemoteRemove(ctx, params, progress)
	default:
		return errors.Newf("unknown task kind %q", kind)
	}
}
