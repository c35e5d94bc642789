package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/filestore"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/phone"
)

type DncService struct {
	*Stores
	DefaultRegion string
	Log           *zap.Logger
	Now           Clock
}

type AddDncInput struct {
	OrgID     int64      `json:"org_id" validate:"required,gt=0"`
	Phone     string     `json:"phone" validate:"required"`
	Reason    string     `json:"reason" validate:"max=500"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Add blocks a phone number for an org. It reports false when an active
// entry already existed.
func (s *DncService) Add(ctx context.Context, in AddDncInput) (*model.DncEntry, bool, error) {
	e164, err := phone.Normalize(in.Phone, s.DefaultRegion)
	if err != nil {
		return nil, false, err
	}
	entry := &model.DncEntry{
		OrgID:     in.OrgID,
		PhoneE164: e164,
		Reason:    in.Reason,
		Source:    model.DncSourceManual,
		ExpiresAt: in.ExpiresAt,
	}

	var created bool
	err = s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if created, err = s.Dnc.Insert(ctx, entry); err != nil || !created {
			return err
		}
		return s.audit(ctx, auditEntry{
			OrgID:      entry.OrgID,
			Action:     model.AuditDncAdded,
			EntityType: "dnc_entry",
			EntityID:   entry.ID,
			After:      map[string]any{"phone_e164": e164, "source": entry.Source, "expires_at": entry.ExpiresAt},
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to add DNC entry: %w", err)
	}
	if created {
		s.Log.Info("DNC entry added", zap.Int64("org_id", in.OrgID), zap.Int64("entry_id", entry.ID))
	}
	return entry, created, nil
}

func (s *DncService) List(ctx context.Context, orgID int64, page, pageSize int) ([]*model.DncEntry, map[string]int, error) {
	page, pageSize, offset := pageBounds(page, pageSize)
	entries, total, err := s.Dnc.ListByOrg(ctx, orgID, offset, pageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list DNC entries: %w", err)
	}
	return entries, pagination(page, pageSize, total), nil
}

func (s *DncService) IsBlocked(ctx context.Context, orgID int64, rawPhone string) (bool, error) {
	e164, err := phone.Normalize(rawPhone, s.DefaultRegion)
	if err != nil {
		return false, err
	}
	return s.Dnc.IsBlocked(ctx, orgID, e164, s.Now.now())
}

type dncSnapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Count       int               `json:"count"`
	Entries     []*model.DncEntry `json:"entries"`
}

// ExportSnapshot atomically rewrites path with every active entry.
func (s *DncService) ExportSnapshot(ctx context.Context, path string) (int, error) {
	now := s.Now.now()
	entries, err := s.Dnc.ListActive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list active DNC entries: %w", err)
	}
	if entries == nil {
		entries = []*model.DncEntry{}
	}
	snap := dncSnapshot{GeneratedAt: now, Count: len(entries), Entries: entries}
	if err := filestore.AtomicWriteJSON(path, snap); err != nil {
		return 0, fmt.Errorf("failed to write DNC snapshot: %w", err)
	}
	return len(entries), nil
}
