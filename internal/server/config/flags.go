package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/carenest/internal/flagx"
)

// knownFlags lists every flag name the set defines, in "-name" form, so
// foreign arguments (-c/-config, test flags) can be filtered out first.
func knownFlags(fs *flag.FlagSet) []string {
	var names []string
	fs.VisitAll(func(f *flag.Flag) { names = append(names, "-"+f.Name) })
	return names
}

// parseFlags overlays config with command-line flags. Token validity flags
// are whole minutes and only replace the current value when given.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("carenest-server", flag.ContinueOnError)

	for name, f := range map[string]struct {
		dst   *string
		usage string
	}{
		"a":     {&config.HTTPAddr, "HTTP/WebSocket listen address"},
		"grpc":  {&config.GRPCAddr, "gRPC listen address"},
		"d":     {&config.DatabaseDSN, "PostgreSQL DSN"},
		"s":     {&config.SecretKey, "HMAC secret for locally issued tokens"},
		"u":     {&config.S3RootUser, "S3 access key"},
		"p":     {&config.S3RootPassword, "S3 secret key"},
		"b":     {&config.S3Bucket, "S3 bucket for attachments"},
		"g":     {&config.S3Region, "S3 region"},
		"e":     {&config.S3BaseEndpoint, "S3 endpoint override"},
		"redis": {&config.RedisAddr, "Redis address for mirror and presence relay"},
		"nats":  {&config.NATSURL, "NATS URL for offline notifications"},
		"l":     {&config.LogLevel, "log level: debug, info, warn or error"},
	} {
		fs.StringVar(f.dst, name, *f.dst, f.usage)
	}

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity, minutes")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity, minutes")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags(fs))); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
		}
	})
}
