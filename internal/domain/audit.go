package domain

import "time"

// AuditEventType identifies the kind of lifecycle transition an AuditRecord captures.
type AuditEventType string

const (
	AuditCreated          AuditEventType = "created"
	AuditTriggered        AuditEventType = "triggered"
	AuditProgressUpdate   AuditEventType = "progress_update"
	AuditClosed           AuditEventType = "closed"
	AuditUserOverride     AuditEventType = "user_override"
	AuditStatusCorrection AuditEventType = "status_correction"
)

// AuditRecord is one append-only entry in a trade's transition log. Records are
// immutable once written; the full history of a trade can be reconstructed by
// reading its records in timestamp order.
type AuditRecord struct {
	ID        int64          // Assigned by the sink
	TradeID   string         // Trade this record belongs to
	EventType AuditEventType // What happened
	Timestamp time.Time      // When it happened
	Payload   string         // Free-form JSON snapshot of the trade at this point
}
