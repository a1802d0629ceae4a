package v1

import (
	"encoding/json"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/gitops"
	"github.com/gitmesh/gitmesh/internal/tasks"
)

// decodeParams unmarshals raw into the internal/gitops Params struct that
// matches kind, so callers outside the process (which only know JSON) can
// drive the same tasks.GitBackend that in-process callers use directly.
func decodeParams(kind tasks.Kind, raw json.RawMessage) (any, error) {
	var target any
	switch kind {
	case tasks.KindGitClone:
		target = &gitops.CloneParams{}
	case tasks.KindGitFetch:
		target = &gitops.FetchParams{}
	case tasks.KindGitPush:
		target = &gitops.PushParams{}
	case tasks.KindGitInit:
		target = &gitops.InitParams{}
	case tasks.KindGitAdd:
		target = &gitops.AddParams{}
	case tasks.KindGitCommit:
		target = &gitops.CommitParams{}
	case tasks.KindGitBranch:
		target = &gitops.BranchParams{}
	case tasks.KindGitCheckout:
		target = &gitops.CheckoutParams{}
	case tasks.KindGitTag:
		target = &gitops.TagParams{}
	case tasks.KindGitRemoteAdd:
		target = &gitops.RemoteAddParams{}
	case tasks.KindGitRemoteSet:
		target = &gitops.RemoteSetParams{}
	case tasks.KindGitRemoteDel:
		target = &gitops.RemoteRemoveParams{}
	default:
		return nil, errors.Newf("v1: unknown task kind %q", kind)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, errors.Wrapf(err, "decoding params for %q", kind)
	}
	return derefParams(target), nil
}

// derefParams unwraps the pointer decodeParams unmarshals into, since
// tasks.GitBackend's implementations type-assert on the value type
// (gitops.CloneParams, not *gitops.CloneParams).
func derefParams(ptr any) any {
	switch p := ptr.(type) {
	case *gitops.CloneParams:
		return *p
	case *gitops.FetchParams:
		return *p
	case *gitops.PushParams:
		return *p
	case *gitops.InitParams:
		return *p
	case *gitops.AddParams:
		return *p
	case *gitops.CommitParams:
		return *p
	case *gitops.BranchParams:
		return *p
	case *gitops.CheckoutParams:
		return *p
	case *gitops.TagParams:
		return *p
	case *gitops.RemoteAddParams:
		return *p
	case *gitops.RemoteSetParams:
		return *p
	case *gitops.RemoteRemoveParams:
		return *p
	default:
		return ptr
	}
}
