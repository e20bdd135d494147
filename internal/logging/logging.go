// Package logging configures the process logger: a zap core exposed
// through the logr API, passed around via context.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds the process logger. debug switches to the development
// encoder with debug-level output.
func New(debug bool) (logr.Logger, func(), error) {
	var (
		zl  *zap.Logger
		err error
	)
	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, nil, err
	}

	flush := func() { _ = zl.Sync() }
	return zapr.NewLogger(zl), flush, nil
}
