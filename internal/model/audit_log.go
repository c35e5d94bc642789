// internal/model/audit_log.go
package model

import (
	"encoding/json"
	"time"
)

const (
	AuditCallCompleted       = "CALL_COMPLETED"
	AuditCampaignStarted     = "CAMPAIGN_STARTED"
	AuditCampaignStartFailed = "CAMPAIGN_START_FAILED"
	AuditCampaignPaused      = "CAMPAIGN_PAUSED"
	AuditCampaignReset       = "CAMPAIGN_RESET"
	AuditCallResolved        = "CALL_RESOLVED"
	AuditDncAdded            = "DNC_ADDED"
)

// AuditLog rows are append-only.
type AuditLog struct {
	ID            int64           `db:"id" json:"id"`
	OrgID         int64           `db:"org_id" json:"org_id"`
	Action        string          `db:"action" json:"action"`
	EntityType    string          `db:"entity_type" json:"entity_type"`
	EntityID      *int64          `db:"entity_id" json:"entity_id,omitempty"`
	Before        json.RawMessage `db:"before_json" json:"before,omitempty"`
	After         json.RawMessage `db:"after_json" json:"after,omitempty"`
	CorrelationID string          `db:"correlation_id" json:"correlation_id"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
