package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/repository"
)

// Stores bundles the repositories every service reads and writes, plus the
// handle transactions are opened on.
type Stores struct {
	DB           *sql.DB
	Campaigns    repository.CampaignRepositoryInterface
	Targets      repository.TargetRepositoryInterface
	Customers    repository.CustomerRepositoryInterface
	Calls        repository.CallRepositoryInterface
	Dnc          repository.DncRepositoryInterface
	Appointments repository.AppointmentRepositoryInterface
	AuditLogs    repository.AuditLogRepositoryInterface
	Webhooks     repository.WebhookRepositoryInterface
}

func NewStores(db *sql.DB) *Stores {
	return &Stores{
		DB:           db,
		Campaigns:    &repository.CampaignRepository{DB: db},
		Targets:      &repository.TargetRepository{DB: db},
		Customers:    &repository.CustomerRepository{DB: db},
		Calls:        &repository.CallRepository{DB: db},
		Dnc:          &repository.DncRepository{DB: db},
		Appointments: &repository.AppointmentRepository{DB: db},
		AuditLogs:    &repository.AuditLogRepository{DB: db},
		Webhooks:     &repository.WebhookRepository{DB: db},
	}
}

func (s *Stores) inTx(ctx context.Context, fn func(context.Context) error) error {
	return repository.WithTransaction(ctx, s.DB, fn)
}

// Clock returns the current time. A nil Clock is the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

type auditEntry struct {
	OrgID         int64
	Action        string
	EntityType    string
	EntityID      int64
	Before        any
	After         any
	CorrelationID string
}

func (s *Stores) audit(ctx context.Context, e auditEntry) error {
	a := &model.AuditLog{
		OrgID:         e.OrgID,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      &e.EntityID,
		CorrelationID: e.CorrelationID,
	}
	if a.CorrelationID == "" {
		a.CorrelationID = uuid.NewString()
	}
	var err error
	if e.Before != nil {
		if a.Before, err = json.Marshal(e.Before); err != nil {
			return fmt.Errorf("failed to encode audit before: %w", err)
		}
	}
	if e.After != nil {
		if a.After, err = json.Marshal(e.After); err != nil {
			return fmt.Errorf("failed to encode audit after: %w", err)
		}
	}
	if err := s.AuditLogs.Insert(ctx, a); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds clamps page and pageSize and returns the row offset.
func pageBounds(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	totalPages := (total + pageSize - 1) / pageSize
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
}
