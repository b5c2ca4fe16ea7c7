package audit

import (
	"context"
	"log/slog"
)

// Appender is the storage seam the Logger writes through.
type Appender interface {
	Append(ctx context.Context, rec *Record) error
}

// Logger wraps the store and emits structured logs alongside DB writes.
// Record params are already redacted by the pipeline, so logging them whole
// is safe.
type Logger struct {
	store Appender
	log   *slog.Logger
}

// NewLogger creates an audit logger backed by the given store.
func NewLogger(store Appender, log *slog.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// Record persists and logs the audit entry.
func (l *Logger) Record(ctx context.Context, rec *Record) error {
	if err := l.store.Append(ctx, rec); err != nil {
		l.log.ErrorContext(ctx, "audit append failed",
			"record_id", rec.ID,
			"tenant_id", rec.TenantID,
			"error", err,
		)
		return err
	}

	l.log.InfoContext(ctx, "action audited",
		"record_id", rec.ID,
		"tenant_id", rec.TenantID,
		"agent_id", rec.AgentID,
		"tool", rec.Tool,
		"op", rec.Op,
		"status", rec.Status,
		"error_kind", string(rec.ErrorKind),
		"latency_ms", rec.LatencyMS,
		"hash", rec.Hash,
	)
	return nil
}
