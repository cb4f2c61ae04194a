package core

// Logger is the structured logging surface the engine needs. It is a subset
// of zap's SugaredLogger, so `zap.NewProduction().Sugar()` satisfies it
// directly.
type Logger interface {
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Infow(string, ...any)  {}
func (nopLogger) Warnw(string, ...any)  {}
func (nopLogger) Errorw(string, ...any) {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
