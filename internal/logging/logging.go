// Package logging provides categorized, zap-backed logging for the
// reasoner. It is a small router in front of a shared *zap.Logger,
// narrowed to a handful of reasoner categories (parse, schema, cycle,
// fuzzy, explain, plus retract and chat, which are declared but not
// currently emitted) rather than a general-purpose application logging
// facility.
package logging

import (
	"go.uber.org/zap"
)

// Category identifies which subsystem emitted a log record.
type Category string

const (
	CategoryParse   Category = "parse"
	CategorySchema  Category = "schema"
	CategoryCycle   Category = "cycle"
	CategoryFuzzy   Category = "fuzzy"
	CategoryRetract Category = "retract"
	CategoryChat    Category = "chat"
	CategoryExplain Category = "explain"
)

// Logger routes category-tagged records through a shared zap logger.
type Logger struct {
	z *zap.Logger
}

// New wraps an existing zap logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewDevelopment builds a Logger backed by zap's development config
// (human-readable console output), the configuration the interactive CLI
// uses by default.
func NewDevelopment() (*Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// Warn logs a warning attributed to category.
func (l *Logger) Warn(cat Category, msg string, fields ...zap.Field) {
	l.z.Warn(msg, append([]zap.Field{zap.String("category", string(cat))}, fields...)...)
}

// Info logs an informational record attributed to category.
func (l *Logger) Info(cat Category, msg string, fields ...zap.Field) {
	l.z.Info(msg, append([]zap.Field{zap.String("category", string(cat))}, fields...)...)
}

// Error logs an error attributed to category.
func (l *Logger) Error(cat Category, msg string, fields ...zap.Field) {
	l.z.Error(msg, append([]zap.Field{zap.String("category", string(cat))}, fields...)...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
