package log

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var l = zap.NewNop()

// New builds a JSON logger. Debug enables the debug level.
func New(debug bool) (*zap.Logger, error) {
	c := zap.NewProductionConfig()
	if debug {
		c.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	c.DisableStacktrace = true

	logger, err := c.Build()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return logger, nil
}

// Init replaces the process logger.
func Init(debug bool) error {
	logger, err := New(debug)
	if err != nil {
		return err
	}
	l = logger
	return nil
}

func Get() *zap.Logger {
	return l
}
