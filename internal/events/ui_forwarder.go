package events

// UIChannel identifies one of the desktop host's IPC channels
// (spec.md §4.5: "task://state", "task://progress", "task://error").
type UIChannel string

const (
	ChannelTaskState    UIChannel = "task://state"
	ChannelTaskProgress UIChannel = "task://progress"
	ChannelTaskError    UIChannel = "task://error"
)

// UIEmitter is the contract the desktop host exposes for delivering a
// payload on a named channel. The host (out of scope per spec.md §1) is
// responsible for the actual IPC framing.
type UIEmitter interface {
	Emit(channel UIChannel, payload any)
}

// UIForwarder re-emits bus events to the desktop host's IPC channels.
type UIForwarder struct {
	emit UIEmitter
}

func NewUIForwarder(emit UIEmitter) *UIForwarder {
	return &UIForwarder{emit: emit}
}

func (f *UIForwarder) Publish(ev Event) {
	switch e := ev.(type) {
	case TaskStarted, TaskCompleted, TaskCanceled:
		f.emit.Emit(ChannelTaskState, e)
	case TaskProgress:
		f.emit.Emit(ChannelTaskProgress, e)
	case TaskFailed:
		f.emit.Emit(ChannelTaskError, e)
	default:
		// Strategy/Policy/Transport events are not forwarded to the UI
		// directly; they feed the metrics bridge and tests only.
	}
}
