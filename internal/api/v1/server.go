package v1

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/tasks"
)

// Server implements TaskServiceServer over an in-process tasks.Registry and
// events.Bus: it is the thin translation layer between the wire messages
// of this package and the registry's Go-native API (spec.md §4.3's
// create/spawn/cancel/list/snapshot contract, §4.5's event stream).
type Server struct {
	registry *tasks.Registry
	bus      *events.Bus
}

func NewServer(registry *tasks.Registry, bus *events.Bus) *Server {
	return &Server{registry: registry, bus: bus}
}

// NewGRPCServer builds a *grpc.Server with the JSON codec forced (see
// codec.go) and srv registered as the TaskService implementation.
func NewGRPCServer(srv TaskServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	s := grpc.NewServer(opts...)
	RegisterTaskServiceServer(s, srv)
	return s
}

func (s *Server) CreateTask(ctx context.Context, req *CreateTaskRequest) (*CreateTaskResponse, error) {
	kind := tasks.Kind(req.Kind)
	params, err := decodeParams(kind, req.Params)
	if err != nil {
		return nil, err
	}

	taskID, _ := s.registry.Create(kind, params, req.Override.toStrategyOverride())
	s.registry.Spawn(taskID)

	return &CreateTaskResponse{TaskID: taskID}, nil
}

func (s *Server) CancelTask(ctx context.Context, req *CancelTaskRequest) (*CancelTaskResponse, error) {
	return &CancelTaskResponse{Found: s.registry.Cancel(req.TaskID)}, nil
}

func (s *Server) GetTask(ctx context.Context, req *GetTaskRequest) (*GetTaskResponse, error) {
	snap, ok := s.registry.Snapshot(req.TaskID)
	if !ok {
		return &GetTaskResponse{Found: false}, nil
	}
	return &GetTaskResponse{Found: true, Snapshot: toWireSnapshot(snap)}, nil
}

func (s *Server) ListTasks(ctx context.Context, req *ListTasksRequest) (*ListTasksResponse, error) {
	snaps := s.registry.List()
	out := make([]TaskSnapshotWire, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toWireSnapshot(snap))
	}
	return &ListTasksResponse{Tasks: out}, nil
}

// StreamEvents subscribes stream's lifetime to the bus and forwards every
// published event as an EventEnvelope, until the client disconnects or the
// stream's context is canceled (spec.md §4.5: the bus has no backlog, so a
// client only sees events published after it subscribes).
func (s *Server) StreamEvents(req *StreamEventsRequest, stream TaskService_StreamEventsServer) error {
	errc := make(chan error, 1)
	sub := &streamSubscriber{stream: stream, errc: errc}

	unsubscribe := s.bus.Subscribe("grpc-stream-events", sub)
	defer unsubscribe()

	select {
	case err := <-errc:
		return err
	case <-stream.Context().Done():
		return stream.Context().Err()
	}
}

// streamSubscriber adapts the bus's synchronous Publish into one
// best-effort Send per event; a send failure (client gone) is reported once
// via errc and further events are dropped for this subscriber (the bus
// panic-recovers each Publish call independently, so a panic here would
// only affect this one delivery).
type streamSubscriber struct {
	stream TaskService_StreamEventsServer
	errc   chan error
}

func (s *streamSubscriber) Publish(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.stream.Send(&EventEnvelope{Family: ev.Family(), Payload: payload}); err != nil {
		select {
		case s.errc <- err:
		default:
		}
	}
}

func toWireSnapshot(snap tasks.Snapshot) TaskSnapshotWire {
	w := TaskSnapshotWire{
		ID:        snap.ID,
		Kind:      string(snap.Kind),
		State:     snap.State.String(),
		CreatedAt: snap.CreatedAt,
	}
	if snap.Failure != nil {
		w.Failure = &FailureReasonWire{
			Category:     string(snap.Failure.Category),
			Code:         snap.Failure.Code,
			Message:      snap.Failure.Message,
			RetriedTimes: snap.Failure.RetriedTimes,
		}
	}
	return w
}

var _ TaskServiceServer = (*Server)(nil)
