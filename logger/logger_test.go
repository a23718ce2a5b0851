package logger

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Debugf(msg string, args ...any) { l.lines = append(l.lines, "D:"+msg) }
func (l *recordingLogger) Infof(msg string, args ...any)  { l.lines = append(l.lines, "I:"+msg) }
func (l *recordingLogger) Warnf(msg string, args ...any)  { l.lines = append(l.lines, "W:"+msg) }
func (l *recordingLogger) Errorf(msg string, args ...any) { l.lines = append(l.lines, "E:"+msg) }
func (l *recordingLogger) Fatalf(msg string, args ...any) { l.lines = append(l.lines, "F:"+msg) }

func TestNewGlogLogger(t *testing.T) {
	l := NewGlogLogger()

	glogLogger, ok := l.(*GlogLogger)
	if assert.True(t, ok, "Logger should be of type *GlogLogger") {
		assert.Equal(t, 1, glogLogger.depth)
	}
}

func TestGlogLoggerDoesNotPanic(t *testing.T) {
	flag.Set("logtostderr", "true")
	flag.Set("v", "2")

	l := NewGlogLogger()
	assert.NotPanics(t, func() {
		l.Debugf("debug message with args: %s, %d", "test", 123)
		l.Infof("info message")
		l.Warnf("warn message: %v", assert.AnError)
		l.Errorf("error message")
	})
}

func TestPackageHelpersUseDefaultLogger(t *testing.T) {
	original := logger
	defer func() { logger = original }()

	recorder := &recordingLogger{}
	logger = recorder

	Debugf("d")
	Infof("i")
	Warnf("w")
	Errorf("e")
	Fatalf("f")

	assert.Equal(t, []string{"D:d", "I:i", "W:w", "E:e", "F:f"}, recorder.lines)
}

func TestDefaultLoggerDepthSkipsHelperFrame(t *testing.T) {
	glogLogger, ok := logger.(*GlogLogger)
	if assert.True(t, ok) {
		assert.Equal(t, 2, glogLogger.depth)
	}
}
