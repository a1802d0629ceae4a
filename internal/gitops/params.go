package gitops

// AuthParams is the plain-text credential bundle passed with any operation
// that talks to a remote. spec.md §1 marks credential encryption at rest
// out of scope: callers own secure storage, gitops only ever holds these
// values in memory for the lifetime of one operation.
type AuthParams struct {
	Username string
	Password string // password, PAT, or OAuth token depending on host
}

// PartialFilter reports the requested Git partial-clone filter, if any, so
// internal/tasks can include it in a task's strategy Summary event without
// importing this package's concrete param types.
func (p CloneParams) PartialFilter() string { return p.Filter }

type CloneParams struct {
	URL    string
	Path   string
	Bare   bool
	Branch string // empty selects the remote's default branch
	Depth  int    // 0 means full history
	Filter string // e.g. "blob:none"; falls back per decide_partial_fallback since go-git can't negotiate it
	Auth   *AuthParams
}

// PartialFilter reports the requested Git partial-clone filter, if any.
func (p FetchParams) PartialFilter() string { return p.Filter }

type FetchParams struct {
	Path   string
	Remote string // empty defaults to "origin"
	Depth  int    // 0 means unbounded
	Filter string // see CloneParams.Filter
	Auth   *AuthParams
}

type PushParams struct {
	Path       string
	Remote     string // empty defaults to "origin"
	RefSpec    string // empty pushes the current branch
	Force      bool
	Auth       *AuthParams
}

type InitParams struct {
	Path string
	Bare bool
}

type AddParams struct {
	Path     string
	PathSpec []string // empty means "."
}

type CommitParams struct {
	Path           string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AllowEmpty     bool
}

type BranchParams struct {
	Path string
	Name string
	From string // empty starts from HEAD
}

type CheckoutParams struct {
	Path   string
	Ref    string
	Create bool
}

type TagParams struct {
	Path        string
	Name        string
	Ref         string // empty tags HEAD
	Message     string // empty creates a lightweight tag
	TaggerName  string // required when Message is set
	TaggerEmail string
}

type RemoteAddParams struct {
	Path string
	Name string
	URL  string
}

type RemoteSetParams struct {
	Path string
	Name string
	URL  string
}

type RemoteRemoveParams struct {
	Path string
	Name string
}
