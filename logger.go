package lazystore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with store-specific operation helpers so that
// every store logs with the same field names.
type Logger struct {
	*zap.Logger
}

// NewLogger builds a JSON logger writing to stderr at the given level
// ("debug", "info", "warn", "error").
func NewLogger(level string) (*Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	zl, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// WrapLogger adapts an existing zap logger.
func WrapLogger(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{Logger: zl}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zap.InfoLevel, nil
	case "debug":
		return zap.DebugLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
}

// LogIndexBuilt logs an index build or rebuild.
func (l *Logger) LogIndexBuilt(component string, enc IndexEncoding, records uint64) {
	l.Debug("index built",
		zap.String("component", component),
		zap.Stringer("encoding", enc),
		zap.Uint64("records", records),
	)
}

// LogIndexDropped logs an index removal.
func (l *Logger) LogIndexDropped(component string) {
	l.Debug("index dropped", zap.String("component", component))
}

// LogRetain logs a bulk conditional removal.
func (l *Logger) LogRetain(scanned, removed int) {
	l.Debug("retain completed",
		zap.Int("scanned", scanned),
		zap.Int("removed", removed),
	)
}

// LogResync logs a re-derivation of index bits from live presence.
func (l *Logger) LogResync(records int, corrected int) {
	if corrected > 0 {
		l.Warn("resync corrected stale index bits",
			zap.Int("records", records),
			zap.Int("corrected", corrected),
		)
		return
	}
	l.Debug("resync completed", zap.Int("records", records))
}

// LogStaleMatches logs index matches skipped by a defensive traversal.
func (l *Logger) LogStaleMatches(components []string, skipped int) {
	l.Warn("traversal skipped stale index matches",
		zap.Strings("components", components),
		zap.Int("skipped", skipped),
	)
}

// LogConsistencyViolation logs a fatal index/pool disagreement.
func (l *Logger) LogConsistencyViolation(components []string, err *ConsistencyError) {
	l.Error("index consistency violation",
		zap.Strings("components", components),
		zap.Uint32("position", err.Position),
	)
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(op string, id uuid.UUID, records int, err error) {
	if err != nil {
		l.Error("snapshot failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return
	}
	l.Info("snapshot completed",
		zap.String("op", op),
		zap.Stringer("snapshot", id),
		zap.Int("records", records),
	)
}
