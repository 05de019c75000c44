package observability

import (
	"go.uber.org/zap"

	"libris-backend/internal/config"
)

// NewLogger builds the service logger. Production and staging use the JSON
// encoder with sampling so log volume stays bounded under load; development
// uses the console encoder with colored levels.
func NewLogger(environment config.Environment, level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if environment == config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}
