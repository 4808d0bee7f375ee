package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"payrecovery/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Retry struct {
		PollInterval time.Duration  `validate:"gt=0"`
		Timezone     string         `validate:"required"`
		Location     *time.Location `validate:"-"`
		OptimalHours []int          `validate:"dive,min=0,max=23"`
	}
	Retention struct {
		Period   time.Duration `validate:"gt=0"`
		Schedule string        `validate:"required"`
	}
	Archive struct {
		Driver string `validate:"required,oneof=none sqlite postgres"`
		Path   string `validate:"required_if=Driver sqlite"`
		DSN    string `validate:"required_if=Driver postgres"`
	}
	Gateway struct {
		SuccessRate   float64 `validate:"min=0,max=1"`
		OutageRate    float64 `validate:"min=0,max=1"`
		RetryAttempts int     `validate:"min=1"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var errs []error
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/payrecovery.log")

	c.Retry.PollInterval = parse("RETRY_POLL_INTERVAL", "60s", time.ParseDuration, &errs)
	c.Retry.Timezone = getenv("RETRY_TIMEZONE", "Local")
	c.Retry.OptimalHours = parse("RETRY_OPTIMAL_HOURS", "10,14,19", parseHours, &errs)

	c.Retention.Period = parse("RETENTION_PERIOD", "720h", time.ParseDuration, &errs)
	c.Retention.Schedule = getenv("RETENTION_SCHEDULE", "@hourly")

	c.Archive.Driver = strings.ToLower(getenv("ARCHIVE_DRIVER", "sqlite"))
	c.Archive.Path = getenv("ARCHIVE_PATH", "data/archive.db")
	c.Archive.DSN = os.Getenv("ARCHIVE_DSN")

	c.Gateway.SuccessRate = parse("GATEWAY_SUCCESS_RATE", "0.3", parseRate, &errs)
	c.Gateway.OutageRate = parse("GATEWAY_OUTAGE_RATE", "0", parseRate, &errs)
	c.Gateway.RetryAttempts = parse("GATEWAY_RETRY_ATTEMPTS", "3", strconv.Atoi, &errs)

	if len(errs) > 0 {
		return Config{}, shared.MarkKind(errors.Join(errs...), shared.KindValidation)
	}

	loc, err := time.LoadLocation(c.Retry.Timezone)
	if err != nil {
		return Config{}, shared.Validationf("RETRY_TIMEZONE: %v", err)
	}
	c.Retry.Location = loc

	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parse reads k (or def) with fn, collecting a keyed error instead of failing fast.
func parse[T any](k, def string, fn func(string) (T, error), errs *[]error) T {
	v, err := fn(getenv(k, def))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
	}
	return v
}

func parseRate(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseHours parses a comma separated list of hours. "none" disables hour adjustment.
func parseHours(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	hours := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid hour %q", p)
		}
		hours = append(hours, h)
	}
	return hours, nil
}
