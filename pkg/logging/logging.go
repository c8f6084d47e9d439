// Package logging defines the narrow logging interface the core packages
// (pkg/bridge, pkg/agent) depend on, so they never reach for a
// global logger directly. Binaries wire a concrete implementation at
// startup; tests use Nop.
package logging

// Logger is a structured, leveled logger using zap's SugaredLogger calling
// convention (alternating key/value pairs after the message).
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	// Named returns a child logger that prefixes its name to every
	// message, mirroring zap's SugaredLogger.Named.
	Named(name string) Logger
}

// Nop is a Logger that discards everything, used as a safe default in
// tests and for callers that don't care about log output.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...interface{}) {}
func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Errorw(string, ...interface{}) {}
func (n nopLogger) Named(string) Logger         { return n }
