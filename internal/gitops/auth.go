package gitops

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// authMethod converts the operation's plain-text credentials into a go-git
// AuthMethod. spec.md §1 excludes credential encryption from this module's
// scope: callers are responsible for where Username/Password come from and
// how long they live before this call.
func authMethod(a *AuthParams) transport.AuthMethod {
	if a == nil || (a.Username == "" && a.Password == "") {
		return nil
	}
	return &githttp.BasicAuth{Username: a.Username, Password: a.Password}
}
