package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		fail("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", c.LogLevel)
	}
	switch c.Environment {
	case EnvLocal, EnvStaging, EnvProduction:
	default:
		fail("ENVIRONMENT %q must be one of: LOCAL, STAGING, PRODUCTION", c.Environment)
	}

	if blank(c.Port) {
		fail("PORT must not be empty")
	}
	if c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		fail("timeouts must be positive durations")
	}
	if c.MaxHeaderBytes <= 0 {
		fail("MAX_HEADER_BYTES must be > 0")
	}

	db := c.Database
	switch db.Driver {
	case "sqlite":
		if blank(db.Path) {
			fail("DATABASE_PATH must not be empty")
		}
	case "postgres":
		if blank(db.Host) || blank(db.Name) {
			fail("DATABASE_HOSTNAME and DATABASE_NAME must not be empty")
		}
		if db.Port <= 0 {
			fail("DATABASE_PORT must be > 0")
		}
	default:
		fail("DATABASE_DRIVER %q must be one of: sqlite, postgres", db.Driver)
	}

	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		fail("ALGORITHMS_JWT %q must be one of: HS256, HS384, HS512", c.JWT.Algorithm)
	}
	if c.JWT.VerifySignature && c.JWT.Secret == "" {
		fail("JWT_SECRET is required when JWT_VERIFY_SIGNATURE is enabled")
	}

	if c.RateRPS < 0 {
		fail("RATE_RPS must be >= 0")
	}
	if c.RateBurst < 1 {
		fail("RATE_BURST must be >= 1")
	}
	if c.Security.HSTSMaxAge < 0 {
		fail("HSTS_MAX_AGE must be >= 0")
	}
	if r := c.OTEL.SampleRatio; r < 0 || r > 1 {
		fail("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return errors.Join(errs...)
}
