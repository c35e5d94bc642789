// internal/repository/call_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

type CallRepositoryInterface interface {
	Insert(ctx context.Context, c *model.Call) error
	GetByID(ctx context.Context, id int64) (*model.Call, error)
	GetByConversationID(ctx context.Context, conversationID string) (*model.Call, error)
	FindQueuedForTarget(ctx context.Context, targetID int64) (*model.Call, error)
	ApplyReconciliation(ctx context.Context, c *model.Call) error
	UpdateResolution(ctx context.Context, c *model.Call) error
	SetEnrichment(ctx context.Context, id int64, summary string, e *model.Enrichment) (bool, error)
	ListReviewQueue(ctx context.Context, offset, limit int) ([]*model.Call, int, error)
	ListViews(ctx context.Context, campaignID *int64, limit int) ([]*model.CallView, error)
}

type CallRepository struct {
	DB *sql.DB
}

const callColumns = `c.id, c.org_id, c.campaign_id, c.target_id, c.customer_id, c.vehicle_id,
	c.external_conversation_id, c.external_call_id, c.external_batch_id, c.status, c.outcome,
	c.started_at, c.ended_at, c.duration_sec, c.transcript, c.summary, c.extracted_json, c.enrichment_json,
	c.sentiment_label, c.sentiment_score, c.recording_url, c.requires_human_review,
	c.assigned_to, c.resolution_notes, c.resolved_at, c.resolved_by, c.reconciled_at,
	c.created_at, c.updated_at`

// callFields holds the nullable scan targets for one calls row.
type callFields struct {
	campaignID, targetID, vehicleID                       sql.NullInt64
	conversationID, callID, batchID, outcome              sql.NullString
	startedAt, endedAt                                    sql.NullTime
	duration                                              sql.NullInt64
	transcript, summary                                   sql.NullString
	extracted, enrichment                                 []byte
	sentimentLabel                                        sql.NullString
	sentimentScore                                        sql.NullFloat64
	recordingURL, assignedTo, resolutionNotes, resolvedBy sql.NullString
	resolvedAt, reconciledAt, updatedAt                   sql.NullTime
}

func (f *callFields) dest(c *model.Call) []any {
	return []any{
		&c.ID, &c.OrgID, &f.campaignID, &f.targetID, &c.CustomerID, &f.vehicleID,
		&f.conversationID, &f.callID, &f.batchID, &c.Status, &f.outcome,
		&f.startedAt, &f.endedAt, &f.duration, &f.transcript, &f.summary, &f.extracted, &f.enrichment,
		&f.sentimentLabel, &f.sentimentScore, &f.recordingURL, &c.RequiresHumanReview,
		&f.assignedTo, &f.resolutionNotes, &f.resolvedAt, &f.resolvedBy, &f.reconciledAt,
		&c.CreatedAt, &f.updatedAt,
	}
}

func (f *callFields) apply(c *model.Call) error {
	c.CampaignID = int64Ptr(f.campaignID)
	c.TargetID = int64Ptr(f.targetID)
	c.VehicleID = int64Ptr(f.vehicleID)
	c.ExternalConversationID = stringPtr(f.conversationID)
	c.ExternalCallID = stringPtr(f.callID)
	c.ExternalBatchID = stringPtr(f.batchID)
	if f.outcome.Valid {
		o := model.Outcome(f.outcome.String)
		c.Outcome = &o
	}
	c.StartedAt = timePtr(f.startedAt)
	c.EndedAt = timePtr(f.endedAt)
	if f.duration.Valid {
		d := int(f.duration.Int64)
		c.DurationSec = &d
	}
	c.Transcript = stringPtr(f.transcript)
	c.Summary = stringPtr(f.summary)
	if len(f.extracted) > 0 {
		if err := json.Unmarshal(f.extracted, &c.Extracted); err != nil {
			return err
		}
	}
	if len(f.enrichment) > 0 {
		c.Enrichment = &model.Enrichment{}
		if err := json.Unmarshal(f.enrichment, c.Enrichment); err != nil {
			return err
		}
	}
	if f.sentimentLabel.Valid {
		l := model.SentimentLabel(f.sentimentLabel.String)
		c.SentimentLabel = &l
	}
	if f.sentimentScore.Valid {
		s := f.sentimentScore.Float64
		c.SentimentScore = &s
	}
	c.RecordingURL = stringPtr(f.recordingURL)
	c.AssignedTo = stringPtr(f.assignedTo)
	c.ResolutionNotes = stringPtr(f.resolutionNotes)
	c.ResolvedAt = timePtr(f.resolvedAt)
	c.ResolvedBy = stringPtr(f.resolvedBy)
	c.ReconciledAt = timePtr(f.reconciledAt)
	c.UpdatedAt = timePtr(f.updatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return nil
}

func scanCall(row rowScanner) (*model.Call, error) {
	var (
		c model.Call
		f callFields
	)
	if err := row.Scan(f.dest(&c)...); err != nil {
		return nil, err
	}
	if err := f.apply(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CallRepository) queryOne(ctx context.Context, where string, args ...any) (*model.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls c WHERE ` + where
	c, err := scanCall(getDB(ctx, r.DB).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *CallRepository) Insert(ctx context.Context, c *model.Call) error {
	c.CreatedAt = time.Now().UTC()
	extracted, err := json.Marshal(c.Extracted)
	if err != nil {
		return err
	}
	var outcome, label, score, duration any
	if c.Outcome != nil {
		outcome = string(*c.Outcome)
	}
	if c.SentimentLabel != nil {
		label = string(*c.SentimentLabel)
	}
	if c.SentimentScore != nil {
		score = *c.SentimentScore
	}
	if c.DurationSec != nil {
		duration = *c.DurationSec
	}

	query := `
		INSERT INTO calls (org_id, campaign_id, target_id, customer_id, vehicle_id,
			external_conversation_id, external_call_id, external_batch_id, status, outcome,
			started_at, ended_at, duration_sec, transcript, summary, extracted_json,
			sentiment_label, sentiment_score, recording_url, requires_human_review,
			reconciled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22)
		RETURNING id
	`
	err = getDB(ctx, r.DB).QueryRowContext(ctx, query,
		c.OrgID, nullInt64(c.CampaignID), nullInt64(c.TargetID), c.CustomerID, nullInt64(c.VehicleID),
		nullString(c.ExternalConversationID), nullString(c.ExternalCallID), nullString(c.ExternalBatchID), c.Status, outcome,
		nullTime(c.StartedAt), nullTime(c.EndedAt), duration, nullString(c.Transcript), nullString(c.Summary), string(extracted),
		label, score, nullString(c.RecordingURL), c.RequiresHumanReview,
		nullTime(c.ReconciledAt), c.CreatedAt,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		// another delivery inserted the same conversation first
		return appErrors.ErrConcurrentUpdate
	}
	return err
}

func (r *CallRepository) GetByID(ctx context.Context, id int64) (*model.Call, error) {
	c, err := r.queryOne(ctx, `c.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, appErrors.NewCallNotFound(id)
	}
	return c, nil
}

func (r *CallRepository) GetByConversationID(ctx context.Context, conversationID string) (*model.Call, error) {
	return r.queryOne(ctx, `c.external_conversation_id = $1`, conversationID)
}

// FindQueuedForTarget returns the newest call placed for the target that
// no webhook has claimed yet.
func (r *CallRepository) FindQueuedForTarget(ctx context.Context, targetID int64) (*model.Call, error) {
	return r.queryOne(ctx,
		`c.target_id = $1 AND c.status = 'QUEUED' AND c.external_conversation_id IS NULL ORDER BY c.id DESC LIMIT 1`,
		targetID)
}

// ApplyReconciliation writes the webhook-derived fields of c. Transcript
// and summary keep any earlier value. A call that was already reconciled
// is left alone and ErrConcurrentUpdate is returned.
func (r *CallRepository) ApplyReconciliation(ctx context.Context, c *model.Call) error {
	extracted, err := json.Marshal(c.Extracted)
	if err != nil {
		return err
	}
	var outcome, label, score, duration any
	if c.Outcome != nil {
		outcome = string(*c.Outcome)
	}
	if c.SentimentLabel != nil {
		label = string(*c.SentimentLabel)
	}
	if c.SentimentScore != nil {
		score = *c.SentimentScore
	}
	if c.DurationSec != nil {
		duration = *c.DurationSec
	}
	now := time.Now().UTC()
	if c.ReconciledAt == nil {
		c.ReconciledAt = &now
	}

	query := `
		UPDATE calls SET
			external_conversation_id = $1,
			external_call_id = COALESCE($2, external_call_id),
			external_batch_id = COALESCE($3, external_batch_id),
			status = $4,
			outcome = $5,
			started_at = COALESCE($6, started_at),
			ended_at = COALESCE($7, ended_at),
			duration_sec = COALESCE($8, duration_sec),
			transcript = COALESCE(transcript, $9),
			summary = COALESCE(summary, $10),
			extracted_json = $11,
			sentiment_label = $12,
			sentiment_score = $13,
			recording_url = COALESCE($14, recording_url),
			requires_human_review = $15,
			reconciled_at = $16,
			updated_at = $17
		WHERE id = $18 AND reconciled_at IS NULL
	`
	return expectOneRow(getDB(ctx, r.DB).ExecContext(ctx, query,
		nullString(c.ExternalConversationID), nullString(c.ExternalCallID), nullString(c.ExternalBatchID),
		c.Status, outcome,
		nullTime(c.StartedAt), nullTime(c.EndedAt), duration,
		nullString(c.Transcript), nullString(c.Summary), string(extracted),
		label, score, nullString(c.RecordingURL), c.RequiresHumanReview,
		c.ReconciledAt.UTC(), now, c.ID,
	))
}

func (r *CallRepository) UpdateResolution(ctx context.Context, c *model.Call) error {
	query := `
		UPDATE calls SET requires_human_review = $1, assigned_to = $2, resolution_notes = $3,
			resolved_at = $4, resolved_by = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := getDB(ctx, r.DB).ExecContext(ctx, query,
		c.RequiresHumanReview, nullString(c.AssignedTo), nullString(c.ResolutionNotes),
		nullTime(c.ResolvedAt), nullString(c.ResolvedBy), time.Now().UTC(), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCallNotFound(c.ID)
	}
	return nil
}

// SetEnrichment stores the summarizer output unless the call already has a
// summary. It reports whether anything was written.
func (r *CallRepository) SetEnrichment(ctx context.Context, id int64, summary string, e *model.Enrichment) (bool, error) {
	var enrichment any
	if e != nil {
		b, err := json.Marshal(e)
		if err != nil {
			return false, err
		}
		enrichment = string(b)
	}
	query := `
		UPDATE calls SET summary = $1, enrichment_json = $2, updated_at = $3
		WHERE id = $4 AND summary IS NULL
	`
	res, err := getDB(ctx, r.DB).ExecContext(ctx, query, summary, enrichment, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CallRepository) ListReviewQueue(ctx context.Context, offset, limit int) ([]*model.Call, int, error) {
	const where = ` WHERE c.requires_human_review = $1 AND c.resolved_at IS NULL`

	var total int
	if err := getDB(ctx, r.DB).QueryRowContext(ctx, `SELECT COUNT(*) FROM calls c`+where, true).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + callColumns + ` FROM calls c` + where + ` ORDER BY c.id DESC LIMIT $2 OFFSET $3`
	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, true, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	calls := []*model.Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, c)
	}
	return calls, total, rows.Err()
}

// ListViews returns reconciled calls, newest first, optionally for one campaign.
func (r *CallRepository) ListViews(ctx context.Context, campaignID *int64, limit int) ([]*model.CallView, error) {
	query := `
		SELECT ` + callColumns + `, COALESCE(t.attempts_count, 0), cu.full_name, cu.phone_e164
		FROM calls c
		JOIN customers cu ON cu.id = c.customer_id
		LEFT JOIN campaign_targets t ON t.id = c.target_id
		WHERE c.reconciled_at IS NOT NULL`
	args := []any{}
	if campaignID != nil {
		query += ` AND c.campaign_id = $1 ORDER BY c.id DESC LIMIT $2`
		args = append(args, *campaignID, limit)
	} else {
		query += ` ORDER BY c.id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := getDB(ctx, r.DB).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*model.CallView
	for rows.Next() {
		var (
			v model.CallView
			f callFields
		)
		dest := append(f.dest(&v.Call), &v.AttemptsCount, &v.CustomerName, &v.Phone)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := f.apply(&v.Call); err != nil {
			return nil, err
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}
