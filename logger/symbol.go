package logger

import "go.uber.org/zap"

// Component symbols, attached as a structured field so logs stay
// queryable by subsystem without stuffing the message string.
const (
	SymbolIngest = "→" // publish/verify HTTP path
	SymbolFanout = "⇉" // websocket hub and delivery loops
	SymbolTrust  = "⚷" // trust store and reload
	SymbolDB     = "⊔" // storage layer
)

// IngestInfow logs an info message tagged with the ingest symbol.
func IngestInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, append([]interface{}{FieldSymbol, SymbolIngest}, keysAndValues...)...)
	}
}

// FanoutInfow logs an info message tagged with the fan-out symbol.
func FanoutInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, append([]interface{}{FieldSymbol, SymbolFanout}, keysAndValues...)...)
	}
}

// FanoutWarnw logs a warning tagged with the fan-out symbol.
func FanoutWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, append([]interface{}{FieldSymbol, SymbolFanout}, keysAndValues...)...)
	}
}

// TrustInfow logs an info message tagged with the trust symbol.
func TrustInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, append([]interface{}{FieldSymbol, SymbolTrust}, keysAndValues...)...)
	}
}

// DBInfow logs an info message tagged with the storage symbol.
func DBInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, append([]interface{}{FieldSymbol, SymbolDB}, keysAndValues...)...)
	}
}

// DBDebugw logs a debug message tagged with the storage symbol.
func DBDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, append([]interface{}{FieldSymbol, SymbolDB}, keysAndValues...)...)
	}
}

// WithSymbol returns a logger with the given symbol attached as a field,
// for ad-hoc tagging not covered by the helpers above.
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// AddDBSymbol returns log with the storage symbol attached.
func AddDBSymbol(log *zap.SugaredLogger) *zap.SugaredLogger {
	return log.With(FieldSymbol, SymbolDB)
}
