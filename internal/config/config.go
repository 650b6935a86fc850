// Package config reads the orb configuration file and builds the logger
// it describes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"
)

// DefaultDatabase keeps the store in memory.
const DefaultDatabase = ":memory:"

type Config struct {
	Logger   LoggerConfig `yaml:"logger"`
	Schemas  string       `yaml:"schemas"`
	Database string       `yaml:"database"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logger:   LoggerConfig{Level: "info", Format: "text"},
		Database: DefaultDatabase,
	}
}

// Load reads a YAML configuration file. Keys the file leaves out keep
// their Default values; unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}

	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if _, err := ParseLevel(cfg.Logger.Level); err != nil {
		return Config{}, err
	}
	switch cfg.Logger.Format {
	case "text", "json", "colored-text":
	default:
		return Config{}, fmt.Errorf("invalid log format: %s", cfg.Logger.Format)
	}
	return cfg, nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", name)
	}
}

// NewLogger builds a logger writing to w with the configured level and
// format.
func NewLogger(cfg LoggerConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "colored-text":
		handler = tint.NewHandler(w, &tint.Options{Level: level, NoColor: !isTerminal(w)})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return slog.New(handler), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
