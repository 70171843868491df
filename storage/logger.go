package storage

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/extbind/errors"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the storage package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the storage package's logger.
// This must be called before any instance is created.
func SetLogger(l *zap.Logger) {
	logger = l
}

// fatal logs a contract violation and aborts.
func fatal(err *errors.Error) {
	Logger().Error("instance contract violated",
		zap.String("kind", string(err.Kind)),
		zap.String("class", err.Class),
		zap.String("detail", err.Detail))
	errors.Fatal(err)
}
