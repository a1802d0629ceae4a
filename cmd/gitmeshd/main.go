// Command gitmeshd runs the gitmesh collaboration-client core as a
// standalone daemon: IP pool, adaptive transport, task registry, and the
// gRPC task API, fronting a desktop host over loopback.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gitmesh/gitmesh/cmd/gitmeshd/shared"
)

func main() {
	configPath := flag.String("config", "config/app.toml", "path to app.toml")
	addr := flag.String("addr", "127.0.0.1:7420", "gRPC listen address")
	maxWorkers := flag.Int("max-workers", 0, "max concurrent Git workers (0 selects a default)")
	flag.Parse()

	err := shared.Main(context.Background(), shared.Config{
		ConfigPath: *configPath,
		GRPCAddr:   *addr,
		MaxWorkers: *maxWorkers,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "gitmeshd:", err)
		os.Exit(1)
	}
}
