package logger

import (
	"github.com/golang/glog"
)

// debugVerbosity is the glog -v level at which Debugf output is emitted.
const debugVerbosity glog.Level = 2

// GlogLogger implements the Logger interface on top of glog with a configurable call depth,
// so the reported file:line is the caller's and not this wrapper's.
type GlogLogger struct {
	depth int
}

// Debugf logs through glog's verbose channel at level 2.
func (logger *GlogLogger) Debugf(msg string, args ...any) {
	if glog.V(debugVerbosity) {
		glog.InfoDepthf(logger.depth, msg, args...)
	}
}

func (logger *GlogLogger) Infof(msg string, args ...any) {
	glog.InfoDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Warnf(msg string, args ...any) {
	glog.WarningDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Errorf(msg string, args ...any) {
	glog.ErrorDepthf(logger.depth, msg, args...)
}

func (logger *GlogLogger) Fatalf(msg string, args ...any) {
	glog.FatalDepthf(logger.depth, msg, args...)
}

// NewGlogLogger returns a Logger for direct use by callers.
func NewGlogLogger() Logger {
	return &GlogLogger{depth: 1}
}
