// Command carenest-server runs the HTTP/WebSocket and gRPC messaging server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/carenest/internal/server"
	"github.com/dmitrijs2005/carenest/internal/server/config"
)

// Set with -ldflags "-X main.version=..." at release time.
var version = "dev"

func run(ctx context.Context) error {
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("carenest-server %s: %w", version, err)
	}

	app.Run(ctx)
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
