package v1

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/gitops"
	"github.com/gitmesh/gitmesh/internal/retry"
	"github.com/gitmesh/gitmesh/internal/tasks"
)

// fakeGit always succeeds immediately, for exercising the API layer without
// touching the filesystem or network.
type fakeGit struct{}

func (fakeGit) Clone(ctx context.Context, params any, progress tasks.ProgressFunc) error {
	progress("receiving", 100, nil, nil, nil)
	return nil
}
func (fakeGit) Fetch(ctx context.Context, params any, progress tasks.ProgressFunc) error        { return nil }
func (fakeGit) Push(ctx context.Context, params any, progress tasks.ProgressFunc) error         { return nil }
func (fakeGit) Init(ctx context.Context, params any, progress tasks.ProgressFunc) error         { return nil }
func (fakeGit) Add(ctx context.Context, params any, progress tasks.ProgressFunc) error          { return nil }
func (fakeGit) Commit(ctx context.Context, params any, progress tasks.ProgressFunc) error       { return nil }
func (fakeGit) Branch(ctx context.Context, params any, progress tasks.ProgressFunc) error       { return nil }
func (fakeGit) Checkout(ctx context.Context, params any, progress tasks.ProgressFunc) error     { return nil }
func (fakeGit) Tag(ctx context.Context, params any, progress tasks.ProgressFunc) error          { return nil }
func (fakeGit) RemoteAdd(ctx context.Context, params any, progress tasks.ProgressFunc) error    { return nil }
func (fakeGit) RemoteSet(ctx context.Context, params any, progress tasks.ProgressFunc) error    { return nil }
func (fakeGit) RemoteRemove(ctx context.Context, params any, progress tasks.ProgressFunc) error { return nil }

func newTestEnv(t *testing.T) (TaskServiceServer, func()) {
	t.Helper()
	logger := logtest.Scoped(t)
	bus := events.NewBus(logger)
	registry := tasks.NewRegistry(logger, bus, fakeGit{}, retry.Plan{Max: 1}, 4)
	srv := NewServer(registry, bus)
	return srv, func() { _ = registry.Wait() }
}

func dialServer(t *testing.T, impl TaskServiceServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)

	grpcServer := NewGRPCServer(impl)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_CreateGetListCancel(t *testing.T) {
	impl, stop := newTestEnv(t)
	defer stop()
	conn := dialServer(t, impl)

	ctx := context.Background()

	params, err := json.Marshal(gitops.InitParams{Path: "/tmp/repo"})
	require.NoError(t, err)

	var createResp CreateTaskResponse
	require.NoError(t, conn.Invoke(ctx, "/gitmesh.api.v1.TaskService/CreateTask",
		&CreateTaskRequest{Kind: "GitInit", Params: params}, &createResp))
	require.NotEmpty(t, createResp.TaskID)

	require.Eventually(t, func() bool {
		var getResp GetTaskResponse
		require.NoError(t, conn.Invoke(ctx, "/gitmesh.api.v1.TaskService/GetTask",
			&GetTaskRequest{TaskID: createResp.TaskID}, &getResp))
		return getResp.Found && getResp.Snapshot.State == "Completed"
	}, time.Second, 10*time.Millisecond)

	var listResp ListTasksResponse
	require.NoError(t, conn.Invoke(ctx, "/gitmesh.api.v1.TaskService/ListTasks", &ListTasksRequest{}, &listResp))
	require.Len(t, listResp.Tasks, 1)

	var cancelResp CancelTaskResponse
	require.NoError(t, conn.Invoke(ctx, "/gitmesh.api.v1.TaskService/CancelTask",
		&CancelTaskRequest{TaskID: "does-not-exist"}, &cancelResp))
	require.False(t, cancelResp.Found)
}

func TestServer_CreateTaskRejectsUnknownKind(t *testing.T) {
	impl, stop := newTestEnv(t)
	defer stop()
	conn := dialServer(t, impl)

	var resp CreateTaskResponse
	err := conn.Invoke(context.Background(), "/gitmesh.api.v1.TaskService/CreateTask",
		&CreateTaskRequest{Kind: "NotAKind", Params: json.RawMessage("{}")}, &resp)
	require.Error(t, err)
}

func TestServer_StreamEvents(t *testing.T) {
	impl, stop := newTestEnv(t)
	defer stop()
	conn := dialServer(t, impl)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "StreamEvents", ServerStreams: true},
		"/gitmesh.api.v1.TaskService/StreamEvents")
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&StreamEventsRequest{}))
	require.NoError(t, stream.CloseSend())

	params, err := json.Marshal(gitops.InitParams{Path: "/tmp/repo2"})
	require.NoError(t, err)
	var createResp CreateTaskResponse
	require.NoError(t, conn.Invoke(context.Background(), "/gitmesh.api.v1.TaskService/CreateTask",
		&CreateTaskRequest{Kind: "GitInit", Params: params}, &createResp))

	var env EventEnvelope
	require.NoError(t, stream.RecvMsg(&env))
	require.NotEmpty(t, env.Family)
}
