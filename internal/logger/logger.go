package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Production gets JSON output, everything
// else gets the human-readable development encoder. The returned cleanup
// flushes buffered entries and is safe to defer.
func New(appEnv string) (*zap.Logger, func()) {
	var log *zap.Logger
	var err error
	if appEnv == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		log = zap.NewNop()
	}
	cleanup := func() {
		_ = log.Sync()
	}
	return log, cleanup
}
