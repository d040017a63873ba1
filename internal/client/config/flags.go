package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/carenest/internal/flagx"
)

// parseFlags overlays cfg with -a (server gRPC address), -i (reachability
// check interval, seconds) and -t (per-request timeout, seconds).
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("carenest-client", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "server gRPC address")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval, seconds")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout, seconds")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-a", "-i", "-t"})); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
}
