package config

import (
	"errors"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Without arguments the default .env in the
// working directory is loaded when present; named files must exist.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Parse populates v from environment variables according to its env tags.
//
// Example:
//
//	type DatabaseConfig struct {
//		Host string `env:"DB_HOST" envDefault:"localhost"`
//		Port int    `env:"DB_PORT" envDefault:"5432"`
//	}
//
//	var db DatabaseConfig
//	if err := config.Parse(&db); err != nil {
//		// Handle error
//	}
func Parse[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// ParseWith is Parse over an explicit environment instead of the process one.
func ParseWith[T any](v *T, environment map[string]string) error {
	if v == nil {
		return ErrNilPointer
	}
	if err := env.ParseWithOptions(v, env.Options{Environment: environment}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}
