// Package gitops implements tasks.GitBackend over go-git (spec.md §1
// non-goal: no from-scratch Git object/pack protocol, delegate to a
// library). It wires internal/transport's adaptive-TLS Dialer in as the
// HTTP client go-git uses for every https:// remote, and bridges go-git's
// progress sideband into tasks.ProgressFunc.
package gitops

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/retry"
	"github.com/gitmesh/gitmesh/internal/tasks"
	"github.com/gitmesh/gitmesh/internal/transport"
)

// Backend is the gitmesh GitBackend: one per process, sharing a single
// adaptive-TLS *http.Client across every operation so the IP pool and
// fallback state machine see the daemon's full connection history
// (spec.md §4.2's gates and history are host-scoped, not task-scoped).
type Backend struct {
	dialer     *transport.Dialer
	httpClient *http.Client
	bus        *events.Bus
}

// NewBackend constructs a Backend and installs its HTTP client as the
// process-wide handler for "https://" go-git remotes. Only one Backend
// should be constructed per process; constructing a second would silently
// replace the first's installed protocol.
func NewBackend(dialer *transport.Dialer, bus *events.Bus) *Backend {
	client := newHTTPClient(dialer)
	installHTTPProtocol(client)
	return &Backend{dialer: dialer, httpClient: client, bus: bus}
}

// applyPartialFilterFallback implements spec.md §4.4/§8 property 4 for
// Clone/Fetch: go-git v5 never negotiates Git's partial-clone filter
// capability, so any non-empty filter is always unsupported server-side as
// far as this backend can tell, and decide_partial_fallback always falls
// back to a depth-bounded (or full) clone/fetch.
func (b *Backend) applyPartialFilterFallback(taskID string, depth int, filter string) {
	if filter == "" {
		return
	}
	b.bus.Publish(events.PartialFilterCapability{ID: taskID, Supported: false})
	b.bus.Publish(events.PartialFilterUnsupported{ID: taskID, Requested: filter})

	var depthPtr *uint32
	if depth > 0 {
		d := uint32(depth)
		depthPtr = &d
	}
	decision := retry.DecidePartialFallback(depthPtr, filter, false)
	if decision == nil {
		return
	}
	message := fmt.Sprintf("filter %q unsupported by go-git, falling back to full clone", filter)
	if decision.Shallow {
		message = fmt.Sprintf("filter %q unsupported by go-git, falling back to shallow clone (depth=%d)", filter, depth)
	}
	b.bus.Publish(events.PartialFilterFallback{ID: taskID, Shallow: decision.Shallow, Message: message})
}

func (b *Backend) Clone(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(CloneParams)
	if !ok {
		return errors.Newf("gitops: Clone expects CloneParams, got %T", params)
	}
	ctx, span := startOp(ctx, "clone", p.Path)
	defer func() { endOp(span, nil) }()

	ctx = withAttemptInfo(ctx, buildAttemptInfo(ctx, p.Path, "GitClone"))
	b.applyPartialFilterFallback(p.Path, p.Depth, p.Filter)

	opts := &git.CloneOptions{
		URL:      p.URL,
		Auth:     authMethod(p.Auth),
		Progress: newProgressWriter(progress),
		Depth:    p.Depth,
	}
	if p.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(p.Branch)
	}

	_, err := git.PlainCloneContext(ctx, p.Path, p.Bare, opts)
	if err != nil {
		return errors.Wrap(err, "git clone")
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(FetchParams)
	if !ok {
		return errors.Newf("gitops: Fetch expects FetchParams, got %T", params)
	}
	ctx, span := startOp(ctx, "fetch", p.Path)
	defer func() { endOp(span, nil) }()
	ctx = withAttemptInfo(ctx, buildAttemptInfo(ctx, p.Path, "GitFetch"))
	b.applyPartialFilterFallback(p.Path, p.Depth, p.Filter)

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}

	remote := p.Remote
	if remote == "" {
		remote = git.DefaultRemoteName
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		Progress:   newProgressWriter(progress),
		Depth:      p.Depth,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, "git fetch")
	}
	return nil
}

func (b *Backend) Push(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(PushParams)
	if !ok {
		return errors.Newf("gitops: Push expects PushParams, got %T", params)
	}
	ctx, span := startOp(ctx, "push", p.Path)
	defer func() { endOp(span, nil) }()
	ctx = withAttemptInfo(ctx, buildAttemptInfo(ctx, p.Path, "GitPush"))

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}

	remote := p.Remote
	if remote == "" {
		remote = git.DefaultRemoteName
	}

	opts := &git.PushOptions{
		RemoteName: remote,
		Progress:   newProgressWriter(progress),
		Force:      p.Force,
	}
	if p.RefSpec != "" {
		opts.RefSpecs = []config.RefSpec{config.RefSpec(p.RefSpec)}
	}

	err = repo.PushContext(ctx, opts)
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, "git push")
	}
	return nil
}

func (b *Backend) Init(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(InitParams)
	if !ok {
		return errors.Newf("gitops: Init expects InitParams, got %T", params)
	}
	_, span := startOp(ctx, "init", p.Path)
	defer func() { endOp(span, nil) }()

	if _, err := git.PlainInit(p.Path, p.Bare); err != nil {
		return errors.Wrap(err, "git init")
	}
	progress("init", 100, nil, nil, nil)
	return nil
}

func (b *Backend) Add(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(AddParams)
	if !ok {
		return errors.Newf("gitops: Add expects AddParams, got %T", params)
	}
	_, span := startOp(ctx, "add", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}

	specs := p.PathSpec
	if len(specs) == 0 {
		specs = []string{"."}
	}
	for i, spec := range specs {
		if _, err := wt.Add(spec); err != nil {
			return errors.Wrapf(err, "git add %q", spec)
		}
		if !progress("add", uint32((i+1)*100/len(specs)), nil, nil, nil) {
			return errors.WithCategory(context.Canceled, errors.CategoryCancel, "")
		}
	}
	return nil
}

func (b *Backend) Commit(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(CommitParams)
	if !ok {
		return errors.Newf("gitops: Commit expects CommitParams, got %T", params)
	}
	_, span := startOp(ctx, "commit", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}

	_, err = wt.Commit(p.Message, &git.CommitOptions{
		AllowEmptyCommits: p.AllowEmpty,
		Author: &object.Signature{
			Name:  p.AuthorName,
			Email: p.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return errors.Wrap(err, "git commit")
	}
	progress("commit", 100, nil, nil, nil)
	return nil
}

func (b *Backend) Branch(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(BranchParams)
	if !ok {
		return errors.Newf("gitops: Branch expects BranchParams, got %T", params)
	}
	_, span := startOp(ctx, "branch", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}

	fromRef := plumbing.HEAD
	if p.From != "" {
		fromRef = refName(p.From)
	}
	head, err := repo.Reference(fromRef, true)
	if err != nil {
		return errors.Wrap(err, "resolving start point")
	}

	newRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName(p.Name), head.Hash())
	if err := repo.Storer.SetReference(newRef); err != nil {
		return errors.Wrap(err, "creating branch")
	}
	progress("branch", 100, nil, nil, nil)
	return nil
}

func (b *Backend) Checkout(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(CheckoutParams)
	if !ok {
		return errors.Newf("gitops: Checkout expects CheckoutParams, got %T", params)
	}
	_, span := startOp(ctx, "checkout", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "opening worktree")
	}

	err = wt.Checkout(&git.CheckoutOptions{
		Branch: refName(p.Ref),
		Create: p.Create,
	})
	if err != nil {
		return errors.Wrap(err, "git checkout")
	}
	progress("checkout", 100, nil, nil, nil)
	return nil
}

func (b *Backend) Tag(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(TagParams)
	if !ok {
		return errors.Newf("gitops: Tag expects TagParams, got %T", params)
	}
	_, span := startOp(ctx, "tag", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}

	ref := plumbing.HEAD
	if p.Ref != "" {
		ref = refName(p.Ref)
	}
	head, err := repo.Reference(ref, true)
	if err != nil {
		return errors.Wrap(err, "resolving tag target")
	}

	var opts *git.CreateTagOptions
	if p.Message != "" {
		opts = &git.CreateTagOptions{
			Message: p.Message,
			Tagger:  &object.Signature{Name: p.TaggerName, Email: p.TaggerEmail, When: time.Now()},
		}
	}
	if _, err := repo.CreateTag(p.Name, head.Hash(), opts); err != nil {
		return errors.Wrap(err, "git tag")
	}
	progress("tag", 100, nil, nil, nil)
	return nil
}

func (b *Backend) RemoteAdd(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(RemoteAddParams)
	if !ok {
		return errors.Newf("gitops: RemoteAdd expects RemoteAddParams, got %T", params)
	}
	_, span := startOp(ctx, "remote_add", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: p.Name, URLs: []string{p.URL}}); err != nil {
		return errors.Wrap(err, "git remote add")
	}
	progress("remote_add", 100, nil, nil, nil)
	return nil
}

func (b *Backend) RemoteSet(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(RemoteSetParams)
	if !ok {
		return errors.Newf("gitops: RemoteSet expects RemoteSetParams, got %T", params)
	}
	_, span := startOp(ctx, "remote_set", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}

	cfg, err := repo.Config()
	if err != nil {
		return errors.Wrap(err, "reading repository config")
	}
	rc, ok := cfg.Remotes[p.Name]
	if !ok {
		return errors.Newf("gitops: remote %q does not exist", p.Name)
	}
	rc.URLs = []string{p.URL}
	if err := repo.SetConfig(cfg); err != nil {
		return errors.Wrap(err, "git remote set-url")
	}
	progress("remote_set", 100, nil, nil, nil)
	return nil
}

func (b *Backend) RemoteRemove(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	p, ok := params.(RemoteRemoveParams)
	if !ok {
		return errors.Newf("gitops: RemoteRemove expects RemoteRemoveParams, got %T", params)
	}
	_, span := startOp(ctx, "remote_remove", p.Path)
	defer func() { endOp(span, nil) }()

	repo, err := git.PlainOpen(p.Path)
	if err != nil {
		return errors.Wrap(err, "opening repository")
	}
	if err := repo.DeleteRemote(p.Name); err != nil {
		return errors.Wrap(err, "git remote remove")
	}
	progress("remote_remove", 100, nil, nil, nil)
	return nil
}

// refName accepts either a fully-qualified reference ("refs/heads/main") or
// a bare branch name ("main") and returns the qualified form Checkout/
// Branch expect.
func refName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}
