package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// dotenvFiles are loaded before the environment is parsed. Variables already
// present in the environment win over the file.
var dotenvFiles = []string{".env"}

// parseEnv overlays fields tagged with `env` from the process environment.
// Unset variables leave the current value untouched.
func parseEnv(config *Config) {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}

	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
