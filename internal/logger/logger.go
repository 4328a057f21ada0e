package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used in logging
type ContextKey string

const (
	// LeadIDKey is the context key for lead_id
	LeadIDKey ContextKey = "lead_id"
	// CorrelationIDKey is the context key for correlation_id
	CorrelationIDKey ContextKey = "correlation_id"
	// RecipientIDKey is the context key for recipient_id on status callbacks
	RecipientIDKey ContextKey = "recipient_id"
)

// slowOperationThreshold is the duration above which LogSlowOperation warns
const slowOperationThreshold = time.Second

var base = newBaseLogger(os.Stdout)

func newBaseLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return l
}

// Init initializes the global structured logger with JSON output at info level
func Init() {
	Configure("info", "json")
}

// Configure sets the level ("debug", "info", "warn", "error") and format
// ("json" or "text") of the global logger. Unknown levels fall back to info.
func Configure(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
}

// SetOutput redirects the global logger, returning the previous writer
func SetOutput(w io.Writer) io.Writer {
	prev := base.Out
	base.SetOutput(w)
	return prev
}

// WithContext returns an entry carrying the lead_id, correlation_id and
// recipient_id found on ctx
func WithContext(ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(base)
	if ctx == nil {
		return entry
	}

	fields := logrus.Fields{}
	if leadID, ok := ctx.Value(LeadIDKey).(int64); ok {
		fields["lead_id"] = leadID
	}
	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		fields["correlation_id"] = correlationID
	}
	if recipientID, ok := ctx.Value(RecipientIDKey).(string); ok {
		fields["recipient_id"] = recipientID
	}
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// toFields converts alternating key/value args into logrus fields. A
// trailing key without a value is recorded under "!BADKEY".
func toFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

// Info logs an info message with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(toFields(args)).Info(msg)
}

// Error logs an error message with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(toFields(args)).Error(msg)
}

// Warn logs a warning message with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(toFields(args)).Warn(msg)
}

// Debug logs a debug message with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).WithFields(toFields(args)).Debug(msg)
}

// LogStatusTransition logs a lead status transition
func LogStatusTransition(ctx context.Context, leadID int64, oldStatus, newStatus string) {
	WithContext(ctx).WithFields(logrus.Fields{
		"lead_id":    leadID,
		"old_status": oldStatus,
		"new_status": newStatus,
		"timestamp":  time.Now().UTC(),
	}).Info("Lead status transition")
}

// LogRecipientStatus logs the outcome of reconciling a message status callback
func LogRecipientStatus(ctx context.Context, recipientID, previous, current string, replaced bool) {
	WithContext(ctx).WithFields(logrus.Fields{
		"recipient_id":    recipientID,
		"previous_status": previous,
		"current_status":  current,
		"replaced":        replaced,
	}).Info("Recipient status reconciled")
}

// LogSlowOperation logs operations that exceed the threshold
func LogSlowOperation(ctx context.Context, operation string, duration time.Duration) {
	if duration <= slowOperationThreshold {
		return
	}
	WithContext(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}).Warn("Slow operation detected")
}

// LogError logs an error along with any extra key/value pairs
func LogError(ctx context.Context, msg string, err error, args ...any) {
	entry := WithContext(ctx).WithFields(toFields(args))
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.Error(msg)
}
