package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// CheckpointConfig selects where checkpoints are kept.
type CheckpointConfig struct {
	Path     string `validate:"required_without=InMemory"`
	InMemory bool
}

// RelayConfig configures the optional Redis relay of board deltas.
type RelayConfig struct {
	RedisAddr string `validate:"omitempty,hostname_port"`
	Channel   string `validate:"required_with=RedisAddr"`
}

// ClientConfig holds the terminal client's settings.
type ClientConfig struct {
	Server string `validate:"required,url"`
	Level  int    `validate:"gte=0"`
}

// Config holds the application configuration.
type Config struct {
	Addr        string `validate:"required"`
	Module      string `validate:"required,max=64"`
	LogLevel    string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Checkpoints CheckpointConfig
	Relay       RelayConfig
	Client      ClientConfig
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// Level returns the configured logrus level.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
