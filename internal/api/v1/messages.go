package v1

import (
	"encoding/json"

	"github.com/gitmesh/gitmesh/internal/retry"
)

// CreateTaskRequest carries the task kind and its kind-specific params as
// raw JSON; the server decodes Params into the matching internal/gitops
// Params struct once Kind is known (see decodeParams).
type CreateTaskRequest struct {
	Kind     string
	Params   json.RawMessage
	Override *StrategyOverrideWire
}

type CreateTaskResponse struct {
	TaskID string
}

type CancelTaskRequest struct {
	TaskID string
}

type CancelTaskResponse struct {
	Found bool
}

type GetTaskRequest struct {
	TaskID string
}

type GetTaskResponse struct {
	Found    bool
	Snapshot TaskSnapshotWire
}

type ListTasksRequest struct{}

type ListTasksResponse struct {
	Tasks []TaskSnapshotWire
}

// StreamEventsRequest has no filter fields yet: every StreamEvents call
// receives the full event stream (spec.md §4.5 has no per-client
// subscription filtering).
type StreamEventsRequest struct{}

// EventEnvelope is the wire shape of one bus event: Family names which of
// the four event families (spec.md §4.5) Payload holds, and Payload is the
// concrete event struct serialized as JSON so this package never needs a
// oneof-style wire type per event.
type EventEnvelope struct {
	Family  string
	Payload json.RawMessage
}

// TaskSnapshotWire mirrors tasks.Snapshot for the wire, flattening the
// optional FailureReason.
type TaskSnapshotWire struct {
	ID        string
	Kind      string
	State     string
	CreatedAt int64
	Failure   *FailureReasonWire
}

type FailureReasonWire struct {
	Category     string
	Code         string
	Message      string
	RetriedTimes uint32
}

// StrategyOverrideWire mirrors retry.StrategyOverride for the wire.
type StrategyOverrideWire struct {
	Http  *HttpOverrideWire
	Tls   *TlsOverrideWire
	Retry *RetryOverrideWire
}

type HttpOverrideWire struct {
	FollowRedirects *bool
	MaxRedirects    *uint8
}

type TlsOverrideWire struct {
	InsecureSkipVerify *bool
	SkipSanWhitelist   *bool
}

type RetryOverrideWire struct {
	Max    *uint32
	BaseMs *uint64
	Factor *float64
	Jitter *bool
}

// toStrategyOverride converts the wire shape into retry.StrategyOverride. A
// nil w returns a nil override, matching "no override specified".
func (w *StrategyOverrideWire) toStrategyOverride() *retry.StrategyOverride {
	if w == nil {
		return nil
	}
	out := &retry.StrategyOverride{}
	if w.Http != nil {
		out.Http = &retry.HttpOverride{FollowRedirects: w.Http.FollowRedirects, MaxRedirects: w.Http.MaxRedirects}
	}
	if w.Tls != nil {
		out.Tls = &retry.TlsOverride{InsecureSkipVerify: w.Tls.InsecureSkipVerify, SkipSanWhitelist: w.Tls.SkipSanWhitelist}
	}
	if w.Retry != nil {
		out.Retry = &retry.RetryOverride{Max: w.Retry.Max, BaseMs: w.Retry.BaseMs, Factor: w.Retry.Factor, Jitter: w.Retry.Jitter}
	}
	return out
}
