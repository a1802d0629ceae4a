// Package events implements the in-process publish/subscribe event bus
// (spec.md §4.5) and the four event families it carries: Task, Strategy,
// Policy, Transport. Each event is its own Go type implementing the Event
// marker interface, matching the field-exact schemas in spec.md §6.
package events

// Event is implemented by every concrete event payload. Subscribers type
// switch on the concrete type.
type Event interface {
	// Family groups events for metrics/UI routing: "task", "strategy",
	// "policy", "transport".
	Family() string
}

// TaskRef is implemented by events that name the task they concern, so
// subscribers (such as MemoryBus.ForTask) can key on it. The Bus itself does
// not read it.
type TaskRef interface {
	TaskRef() string
}

// ---- Task family ----

type TaskStarted struct {
	ID   string
	Kind string
}

func (TaskStarted) Family() string    { return "task" }
func (e TaskStarted) TaskRef() string { return e.ID }

type TaskProgress struct {
	TaskID    string
	Kind      string
	Phase     string
	Percent   uint32
	Objects   *uint64
	Bytes     *uint64
	TotalHint *uint64
}

func (TaskProgress) Family() string    { return "task" }
func (e TaskProgress) TaskRef() string { return e.TaskID }

type TaskCompleted struct {
	ID string
}

func (TaskCompleted) Family() string    { return "task" }
func (e TaskCompleted) TaskRef() string { return e.ID }

type TaskFailed struct {
	ID           string
	Category     string
	Code         string
	Message      string
	RetriedTimes *uint32
}

func (TaskFailed) Family() string    { return "task" }
func (e TaskFailed) TaskRef() string { return e.ID }

type TaskCanceled struct {
	ID string
}

func (TaskCanceled) Family() string    { return "task" }
func (e TaskCanceled) TaskRef() string { return e.ID }

// ---- Strategy family ----

type AdaptiveTlsRollout struct {
	ID             string
	Kind           string
	PercentApplied uint8
	Sampled        bool
}

func (AdaptiveTlsRollout) Family() string    { return "strategy" }
func (e AdaptiveTlsRollout) TaskRef() string { return e.ID }

type AdaptiveTlsTiming struct {
	ID            string
	Kind          string
	UsedFakeSni   bool
	FallbackStage string
	ConnectMs     *uint32
	TlsMs         *uint32
	FirstByteMs   *uint32
	TotalMs       *uint32
	CertFpChanged bool
}

func (AdaptiveTlsTiming) Family() string    { return "strategy" }
func (e AdaptiveTlsTiming) TaskRef() string { return e.ID }

type AdaptiveTlsFallback struct {
	ID     string
	Kind   string
	From   string
	To     string
	Reason string
}

func (AdaptiveTlsFallback) Family() string    { return "strategy" }
func (e AdaptiveTlsFallback) TaskRef() string { return e.ID }

type AdaptiveTlsAutoDisable struct {
	ID           string
	Kind         string
	Enabled      bool
	ThresholdPct uint8
	CooldownSecs uint32
}

func (AdaptiveTlsAutoDisable) Family() string    { return "strategy" }
func (e AdaptiveTlsAutoDisable) TaskRef() string { return e.ID }

type HttpApplied struct {
	ID           string
	Follow       bool
	MaxRedirects uint8
}

func (HttpApplied) Family() string    { return "strategy" }
func (e HttpApplied) TaskRef() string { return e.ID }

type TlsApplied struct {
	ID                 string
	InsecureSkipVerify bool
	SkipSanWhitelist   bool
}

func (TlsApplied) Family() string    { return "strategy" }
func (e TlsApplied) TaskRef() string { return e.ID }

type Conflict struct {
	ID      string
	Kind    string // "http" | "tls"
	Message string
}

func (Conflict) Family() string    { return "strategy" }
func (e Conflict) TaskRef() string { return e.ID }

type Summary struct {
	ID              string
	Kind            string
	HttpFollow      bool
	HttpMax         uint8
	RetryMax        uint32
	RetryBaseMs     uint64
	RetryFactor     float64
	RetryJitter     bool
	TlsInsecure     bool
	TlsSkipSan      bool
	AppliedCodes    []string
	FilterRequested bool
}

func (Summary) Family() string    { return "strategy" }
func (e Summary) TaskRef() string { return e.ID }

type IpPoolSelection struct {
	ID        string
	Host      string
	Port      uint16
	Strategy  string // "Cached" | "SystemDefault"
	Source    string
	LatencyMs *uint32
}

func (IpPoolSelection) Family() string    { return "strategy" }
func (e IpPoolSelection) TaskRef() string { return e.ID }

type IpPoolRefresh struct {
	Host    string
	Port    uint16
	Success bool
	Reason  string
}

func (IpPoolRefresh) Family() string { return "strategy" }

type IpPoolIpTripped struct {
	IP     string
	Reason string
}

func (IpPoolIpTripped) Family() string { return "strategy" }

type IpPoolIpRecovered struct {
	IP string
}

func (IpPoolIpRecovered) Family() string { return "strategy" }

type IpPoolCidrFilter struct {
	IP   string
	List string
}

func (IpPoolCidrFilter) Family() string { return "strategy" }

type IpPoolConfigUpdate struct {
	Summary string
}

func (IpPoolConfigUpdate) Family() string { return "strategy" }

// ---- Policy family ----

type RetryApplied struct {
	ID           string
	Code         string
	Changed      []string
	RetriedTimes uint32
}

func (RetryApplied) Family() string    { return "policy" }
func (e RetryApplied) TaskRef() string { return e.ID }

// ---- Transport family ----

type PartialFilterCapability struct {
	ID        string
	Supported bool
}

func (PartialFilterCapability) Family() string    { return "transport" }
func (e PartialFilterCapability) TaskRef() string { return e.ID }

type PartialFilterUnsupported struct {
	ID        string
	Requested string
}

func (PartialFilterUnsupported) Family() string    { return "transport" }
func (e PartialFilterUnsupported) TaskRef() string { return e.ID }

type PartialFilterFallback struct {
	ID      string
	Shallow bool
	Message string
}

func (PartialFilterFallback) Family() string    { return "transport" }
func (e PartialFilterFallback) TaskRef() string { return e.ID }

type CertFingerprintChanged struct {
	Host string
}

func (CertFingerprintChanged) Family() string { return "transport" }
