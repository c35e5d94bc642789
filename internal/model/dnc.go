// internal/model/dnc.go
package model

import "time"

type DncSource string

const (
	DncSourceAICall DncSource = "AI_CALL"
	DncSourceManual DncSource = "MANUAL"
)

type DncEntry struct {
	ID        int64      `db:"id" json:"id"`
	OrgID     int64      `db:"org_id" json:"org_id"`
	PhoneE164 string     `db:"phone_e164" json:"phone_e164"`
	Reason    string     `db:"reason" json:"reason"`
	Source    DncSource  `db:"source" json:"source"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the entry still blocks calls at t.
func (e *DncEntry) Active(t time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}
