// Command carenest-client is an interactive terminal chat client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/carenest/internal/client/cli"
	"github.com/dmitrijs2005/carenest/internal/client/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "carenest-client: cannot reach %s: %v\n", cfg.ServerEndpointAddr, err)
		os.Exit(1)
	}

	app.Run(ctx)
}
