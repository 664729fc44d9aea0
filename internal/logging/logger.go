package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every log entry emitted by the API.
const ServiceName = "storefront-api"

// ParseLevel maps a configured level name to a zap level. An empty name is info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch normalized := strings.ToLower(strings.TrimSpace(level)); normalized {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		parsed, err := zapcore.ParseLevel(normalized)
		if err != nil {
			return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
		}
		return parsed, nil
	}
}

// NewLogger returns a zap logger configured for structured production logging.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.InitialFields = map[string]any{"service": ServiceName}
	return cfg.Build()
}
