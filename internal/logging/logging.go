// Package logging provides the structured logger shared by the orchestrator
// packages. It keeps a familiar bracketed-tag call-site style
// (log.Printf("[INFO] ...")) while routing through zap so fields stay
// structured for anything downstream that scrapes logs.
package logging

import (
	"go.uber.org/zap"
)

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than crash a netplay session
		// over a broken log sink.
		return zap.NewNop()
	}
	return l
}

// Logger wraps a zap.SugaredLogger scoped to one subsystem, e.g. "round" or
// "negotiation", so every line carries a component tag.
type Logger struct {
	s *zap.SugaredLogger
}

func New(component string) *Logger {
	return &Logger{s: base.Sugar().Named(component)}
}

func (l *Logger) Info(msg string, args ...any)  { l.s.Infof(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warnf(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Errorf(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.s.Debugf(msg, args...) }

// Sync flushes buffered log entries; call on shutdown.
func (l *Logger) Sync() {
	_ = l.s.Sync()
}
