package transport

import (
	"fmt"

	"github.com/pion/logging"

	applog "github.com/dalbodeule/sip-dtls-transport/internal/logging"
)

// loggerFactory bridges pion/dtls's logging.LoggerFactory to our own
// structured applog.Logger, so handshake-engine diagnostics flow through
// the same JSON sink as the rest of the session (spec.md's ambient
// logging stack, carried per SPEC_FULL.md §10).
type loggerFactory struct {
	base applog.Logger
}

func newLoggerFactory(base applog.Logger) logging.LoggerFactory {
	return &loggerFactory{base: base}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: f.base.With(applog.Fields{"pion_scope": scope})}
}

// leveledLogger adapts applog.Logger's four fixed levels onto pion's
// logging.LeveledLogger interface, which additionally distinguishes
// Trace from Debug; pion's Trace collapses onto our Debug.
type leveledLogger struct {
	l applog.Logger
}

func (l *leveledLogger) Trace(msg string)                 { l.l.Debug(msg, nil) }
func (l *leveledLogger) Tracef(format string, args ...any) { l.l.Debug(fmt.Sprintf(format, args...), nil) }
func (l *leveledLogger) Debug(msg string)                 { l.l.Debug(msg, nil) }
func (l *leveledLogger) Debugf(format string, args ...any) { l.l.Debug(fmt.Sprintf(format, args...), nil) }
func (l *leveledLogger) Info(msg string)                  { l.l.Info(msg, nil) }
func (l *leveledLogger) Infof(format string, args ...any)  { l.l.Info(fmt.Sprintf(format, args...), nil) }
func (l *leveledLogger) Warn(msg string)                  { l.l.Warn(msg, nil) }
func (l *leveledLogger) Warnf(format string, args ...any)  { l.l.Warn(fmt.Sprintf(format, args...), nil) }
func (l *leveledLogger) Error(msg string)                 { l.l.Error(msg, nil) }
func (l *leveledLogger) Errorf(format string, args ...any) { l.l.Error(fmt.Sprintf(format, args...), nil) }
