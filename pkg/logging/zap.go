package logging

import "go.uber.org/zap"

// Zap adapts a *zap.SugaredLogger to the Logger interface.
type Zap struct {
	s *zap.SugaredLogger
}

// NewZap wraps s as a Logger.
func NewZap(s *zap.SugaredLogger) *Zap {
	return &Zap{s: s}
}

func (z *Zap) Debugw(msg string, keysAndValues ...interface{}) {
	z.s.Debugw(msg, keysAndValues...)
}

func (z *Zap) Infow(msg string, keysAndValues ...interface{}) {
	z.s.Infow(msg, keysAndValues...)
}

func (z *Zap) Warnw(msg string, keysAndValues ...interface{}) {
	z.s.Warnw(msg, keysAndValues...)
}

func (z *Zap) Errorw(msg string, keysAndValues ...interface{}) {
	z.s.Errorw(msg, keysAndValues...)
}

func (z *Zap) Named(name string) Logger {
	return &Zap{s: z.s.Named(name)}
}
