// Package logging builds the zap logger shared by the CLI and the library.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// Config contains logger initialization inputs
type Config struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Encoding is console or json. Empty means console.
	Encoding string
	// Writer receives log lines; nil means stderr
	Writer io.Writer
}

// New creates a structured logger and returns it with a runtime-adjustable level handle
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	level, err := resolveLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	encoder, err := buildEncoder(cfg.Encoding)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core), level, nil
}

func resolveLevel(s string) (zap.AtomicLevel, error) {
	if strings.TrimSpace(s) == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}

	var parsed zapcore.Level
	if err := parsed.Set(s); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return zap.NewAtomicLevelAt(parsed), nil
}

func buildEncoder(encoding string) (zapcore.Encoder, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(cfg), nil
	case EncodingJSON:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("invalid log encoding %q (must be console or json)", encoding)
	}
}
