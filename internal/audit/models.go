package audit

// EntryKind labels a session lifecycle transition.
type EntryKind string

const (
	KindManifestCreated EntryKind = "manifest_created"
	KindManifestFailed  EntryKind = "manifest_failed"
	KindSegmentServed   EntryKind = "segment_served"
	KindSessionExpired  EntryKind = "session_expired"
)

// RequestAuditEntry is a persisted record of a manifest request or
// session lifecycle event. It never gates a read path; the registry
// remains the single source of truth for live sessions.
type RequestAuditEntry struct {
	BaseModel
	SessionID string    `gorm:"index;size:64" json:"session_id"`
	Kind      EntryKind `gorm:"size:32;index" json:"kind"`
	Detail    string    `gorm:"size:512" json:"detail"`
}

func (RequestAuditEntry) TableName() string {
	return "request_audit_entries"
}
