package soak

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sourcegraph/log"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/gitops"
	"github.com/gitmesh/gitmesh/internal/retry"
	"github.com/gitmesh/gitmesh/internal/tasks"
	"github.com/gitmesh/gitmesh/internal/transport"
)

const pollInterval = 10 * time.Millisecond

// Run drives opts.Iterations rounds of commit→push→fetch→clone against a
// throwaway local origin repository, returning the aggregated readiness
// report (spec.md §3). It never touches a real remote: origin lives under
// opts.BaseDir (or a fresh temp dir) and is reached over go-git's built-in
// local filesystem transport, the same way backend_test.go exercises Clone.
func Run(ctx context.Context, logger log.Logger, opts Options) (*Report, error) {
	iterations := opts.Iterations
	if iterations == 0 {
		iterations = 10
	}

	workspace := opts.BaseDir
	if workspace == "" {
		dir, err := os.MkdirTemp("", "gitmesh-soak-*")
		if err != nil {
			return nil, errors.Wrap(err, "create workspace dir")
		}
		workspace = dir
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, errors.Wrap(err, "create workspace dir")
	}

	originDir := filepath.Join(workspace, "origin.git")
	producerDir := filepath.Join(workspace, "producer")
	consumerDir := filepath.Join(workspace, "consumer")
	clonesDir := filepath.Join(workspace, "clones")
	if err := os.MkdirAll(clonesDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create clones dir")
	}

	bus := events.NewBus(logger)
	agg := newAggregator(iterations)
	unsubscribe := bus.Subscribe("soak-aggregator", agg)
	defer unsubscribe()

	dialer := transport.NewDialer(transport.Config{}, nil, bus)
	backend := gitops.NewBackend(dialer, bus)
	plan := opts.RetryPlan
	if plan == (retry.Plan{}) {
		plan = retry.DefaultPlan()
	}
	registry := tasks.NewRegistry(logger, bus, backend, plan, 4)

	started := time.Now()

	if err := initOrigin(ctx, registry, agg, originDir); err != nil {
		return nil, errors.Wrap(err, "init origin")
	}

	branch, err := setupProducer(ctx, registry, agg, producerDir, originDir)
	if err != nil {
		return nil, errors.Wrap(err, "setup producer")
	}

	if err := run(ctx, registry, agg, gitops.CloneParams{URL: originDir, Path: consumerDir}, tasks.KindGitClone); err != nil {
		return nil, errors.Wrap(err, "bootstrap consumer clone")
	}

	for round := uint32(0); round < iterations; round++ {
		if err := writeIterationFile(producerDir, round, branch); err != nil {
			return nil, errors.Wrapf(err, "prepare commit for iteration %d", round)
		}
		name := fmt.Sprintf("soak_iter_%d.txt", round)
		if err := run(ctx, registry, agg, gitops.AddParams{Path: producerDir, PathSpec: []string{name}}, tasks.KindGitAdd); err != nil {
			return nil, errors.Wrapf(err, "add at iteration %d", round)
		}
		if err := run(ctx, registry, agg, gitops.CommitParams{
			Path: producerDir, Message: fmt.Sprintf("Soak iteration %d", round),
			AuthorName: "gitmesh-soak", AuthorEmail: "soak@gitmesh.local",
		}, tasks.KindGitCommit); err != nil {
			return nil, errors.Wrapf(err, "commit at iteration %d", round)
		}
		if err := run(ctx, registry, agg, gitops.PushParams{Path: producerDir}, tasks.KindGitPush); err != nil {
			return nil, errors.Wrapf(err, "push at iteration %d", round)
		}
		if err := run(ctx, registry, agg, gitops.FetchParams{Path: consumerDir}, tasks.KindGitFetch); err != nil {
			return nil, errors.Wrapf(err, "fetch at iteration %d", round)
		}

		cloneDest := filepath.Join(clonesDir, "round-"+strconv.FormatUint(uint64(round), 10))
		if err := run(ctx, registry, agg, gitops.CloneParams{URL: originDir, Path: cloneDest}, tasks.KindGitClone); err != nil {
			return nil, errors.Wrapf(err, "clone at iteration %d", round)
		}
		if !opts.KeepClones {
			_ = os.RemoveAll(cloneDest)
		}
	}

	if err := registry.Wait(); err != nil {
		return nil, errors.Wrap(err, "waiting for soak workers")
	}

	finished := time.Now()

	optsSnap := OptionsSnapshot{
		Iterations:     iterations,
		KeepClones:     opts.KeepClones,
		WorkspaceDir:   workspace,
		BaselineReport: opts.BaselineReport,
		Thresholds:     opts.Thresholds,
	}
	report := agg.into(started.Unix(), finished.Unix(), int64(finished.Sub(started).Seconds()), optsSnap)

	if opts.BaselineReport != "" {
		baseline, err := loadReport(opts.BaselineReport)
		if err != nil {
			if target := report.Options.Thresholds.MinLatencyImprovement; target != nil {
				report.ThresholdsOut.SetLatencyImprovement(NotApplicable(*target, ">=", "failed to load baseline: "+err.Error()))
			}
		} else {
			summary := BuildComparisonSummary(opts.BaselineReport, baseline, report)
			if target := report.Options.Thresholds.MinLatencyImprovement; target != nil {
				if summary.GitCloneTotalP50Improvement != nil {
					report.ThresholdsOut.SetLatencyImprovement(AtLeast(*summary.GitCloneTotalP50Improvement, *target))
				} else {
					report.ThresholdsOut.SetLatencyImprovement(NotApplicable(*target, ">=", "GitClone total_ms p50 unavailable in baseline or current report"))
				}
			}
			report.Comparison = &summary
		}
	} else if target := report.Options.Thresholds.MinLatencyImprovement; target != nil {
		report.ThresholdsOut.SetLatencyImprovement(NotApplicable(*target, ">=", "baseline report not provided; latency improvement cannot be evaluated"))
	}

	if !opts.KeepClones {
		_ = os.RemoveAll(filepath.Join(workspace, "producer"))
	}

	return report, nil
}

func initOrigin(ctx context.Context, registry *tasks.Registry, agg *aggregator, originDir string) error {
	return run(ctx, registry, agg, gitops.InitParams{Path: originDir, Bare: true}, tasks.KindGitInit)
}

func setupProducer(ctx context.Context, registry *tasks.Registry, agg *aggregator, producerDir, originDir string) (string, error) {
	if err := os.MkdirAll(producerDir, 0o755); err != nil {
		return "", err
	}
	if err := run(ctx, registry, agg, gitops.InitParams{Path: producerDir}, tasks.KindGitInit); err != nil {
		return "", err
	}

	readme := filepath.Join(producerDir, "README.md")
	if err := os.WriteFile(readme, []byte("Adaptive TLS Soak\n"), 0o644); err != nil {
		return "", err
	}

	if err := run(ctx, registry, agg, gitops.AddParams{Path: producerDir, PathSpec: []string{"README.md"}}, tasks.KindGitAdd); err != nil {
		return "", err
	}
	if err := run(ctx, registry, agg, gitops.CommitParams{
		Path: producerDir, Message: "Initial soak seed",
		AuthorName: "gitmesh-soak", AuthorEmail: "soak@gitmesh.local",
	}, tasks.KindGitCommit); err != nil {
		return "", err
	}

	const branch = "main"
	if err := run(ctx, registry, agg, gitops.RemoteAddParams{Path: producerDir, Name: "origin", URL: originDir}, tasks.KindGitRemoteAdd); err != nil {
		return "", err
	}
	if err := run(ctx, registry, agg, gitops.PushParams{Path: producerDir, RefSpec: "refs/heads/" + branch + ":refs/heads/" + branch}, tasks.KindGitPush); err != nil {
		return "", err
	}
	return branch, nil
}

func writeIterationFile(producerDir string, round uint32, branch string) error {
	name := fmt.Sprintf("soak_iter_%d.txt", round)
	content := fmt.Sprintf("iteration %d on branch %s at %s\n", round, branch, time.Now().UTC().Format(time.RFC3339Nano))
	return os.WriteFile(filepath.Join(producerDir, name), []byte(content), 0o644)
}

// run creates and spawns kind/params on registry, blocks until the task
// reaches a terminal state, records the outcome on agg, and returns an
// error if the task did not complete (a Failed or Canceled outcome still
// counts toward the report; only a caller-facing error aborts the soak run
// early, matching the original run()'s ensure!()-on-non-Completed checks).
func run(ctx context.Context, registry *tasks.Registry, agg *aggregator, params any, kind tasks.Kind) error {
	id, _ := registry.Create(kind, params, nil)
	registry.Spawn(id)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, ok := registry.Snapshot(id)
			if !ok || !snap.State.Terminal() {
				continue
			}
			agg.recordOutcome(string(kind), snap.State.String())
			if snap.State != tasks.Completed {
				msg := "task did not complete"
				if snap.Failure != nil {
					msg = snap.Failure.Message
				}
				return errors.Newf("%s %s: %s (state=%s)", kind, id, msg, snap.State)
			}
			return nil
		}
	}
}

func loadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// WriteReport serializes report as indented JSON to path.
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
