package logger

import (
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/config"
)

// New builds the process logger. Production config gets JSON output,
// anything else gets the human-readable development encoder.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
