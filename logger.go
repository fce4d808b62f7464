package blockcache

// Fields carries structured context for one log line. Keys used by the
// engine: block_id, type, region, context, page_id, key, scope, err.
type Fields map[string]any

// Logger is the leveled sink the engine reports through. Adapters for zap,
// logrus and slog live under log/. A nil Options.Logger disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
