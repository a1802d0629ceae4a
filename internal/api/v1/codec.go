// Package v1 is the daemon's internal gRPC surface (spec.md's task-registry
// operations exposed to an out-of-process UI/CLI client): CreateTask,
// CancelTask, GetTask, ListTasks, and a server-streaming StreamEvents.
//
// A real deployment of this service would use protoc-generated message
// types over the standard "proto" codec; without a working Go toolchain to
// run protoc, this package instead hand-authors the grpc.ServiceDesc (the
// same shape protoc-gen-go-grpc would emit) and registers a plain JSON
// encoding.Codec, so the wire messages are ordinary Go structs tagged with
// "json" instead of protobuf-generated ones. google.golang.org/grpc and
// google.golang.org/protobuf remain the transport; only the payload codec
// differs from a protoc-generated service.
package v1

import "encoding/json"

// jsonCodec implements encoding.Codec (google.golang.org/grpc/encoding)
// using encoding/json, so hand-written request/response structs can ride
// directly over gRPC's framing without generated marshalers.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "json" }
