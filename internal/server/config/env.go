package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const envPrefix = "CARENEST_"

// loadDotenv is swapped in tests to keep a stray .env out of the picture.
var loadDotenv = func() error { return godotenv.Load() }

// parseEnv overlays CARENEST_* variables, reading a .env file first when one
// exists. Variables that are not set leave the field untouched.
func parseEnv(config *Config) {
	_ = loadDotenv()

	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		panic(err)
	}
}
