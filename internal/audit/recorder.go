package audit

import (
	"context"
	"log/slog"
)

// Recorder writes RequestAuditEntry rows. A nil *Recorder is valid and
// silently drops entries, so callers on the hot serving path never need
// a nil check before recording.
type Recorder struct {
	db     *DB
	logger *slog.Logger
}

func NewRecorder(db *DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// Record persists a lifecycle event. Failures are logged, not
// returned: the audit trail never gates a request's outcome.
func (r *Recorder) Record(ctx context.Context, kind EntryKind, sessionID, detail string) {
	if r == nil || r.db == nil {
		return
	}

	entry := &RequestAuditEntry{
		SessionID: sessionID,
		Kind:      kind,
		Detail:    detail,
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Warn("failed to record audit entry",
			slog.String("kind", string(kind)),
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}
