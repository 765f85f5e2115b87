package alarik

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel mirrors the coarse severity levels gofakes3 itself used, kept
// separate from logrus.Level so callers of Logger never need to import
// logrus directly.
type LogLevel string

const (
	LogErr  LogLevel = "ERR"
	LogWarn LogLevel = "WARN"
	LogInfo LogLevel = "INFO"
)

// Logger is the narrow logging interface every component talks to. Gateway
// defaults to DiscardLog(); production callers wire up LogrusLog.
type Logger interface {
	Print(level LogLevel, v ...interface{})
}

type discardLog struct{}

func (discardLog) Print(LogLevel, ...interface{}) {}

// DiscardLog returns a Logger that drops everything, the default when no
// logger is configured.
func DiscardLog() Logger { return discardLog{} }

type logrusLog struct {
	l *logrus.Logger
}

// LogrusLog adapts a *logrus.Logger (nil selects logrus's standard logger)
// to the Logger interface.
func LogrusLog(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLog{l: l}
}

func (lg *logrusLog) Print(level LogLevel, v ...interface{}) {
	entry := lg.l.WithField("component", "alarik")
	msg := fmt.Sprint(v...)
	switch level {
	case LogErr:
		entry.Error(msg)
	case LogWarn:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}
