package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

// CallService serves call lookups and the human review queue.
type CallService struct {
	*Stores
	Log *zap.Logger
	Now Clock
}

type ResolveInput struct {
	Action     model.ResolveAction `json:"action" validate:"required,oneof=assign_human add_note mark_resolved"`
	AssignTo   string              `json:"assign_to,omitempty"`
	Notes      string              `json:"notes,omitempty"`
	ResolvedBy string              `json:"resolved_by,omitempty"`
}

func (s *CallService) GetCall(ctx context.Context, id int64) (*model.Call, error) {
	return s.Calls.GetByID(ctx, id)
}

// ReviewQueue lists calls flagged for review that nobody has resolved.
func (s *CallService) ReviewQueue(ctx context.Context, page, pageSize int) ([]*model.Call, map[string]int, error) {
	page, pageSize, offset := pageBounds(page, pageSize)
	calls, total, err := s.Calls.ListReviewQueue(ctx, offset, pageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list review queue: %w", err)
	}
	return calls, pagination(page, pageSize, total), nil
}

// Resolve applies one operator action to a call and records it in the
// audit log.
func (s *CallService) Resolve(ctx context.Context, id int64, in ResolveInput) (*model.Call, error) {
	assignee := strings.TrimSpace(in.AssignTo)
	notes := strings.TrimSpace(in.Notes)
	switch in.Action {
	case model.ResolveAssignHuman:
		if assignee == "" {
			return nil, appErrors.ErrAssigneeRequired
		}
	case model.ResolveAddNote:
		if notes == "" {
			return nil, appErrors.ErrNotesRequired
		}
	case model.ResolveMarkResolved:
	default:
		return nil, appErrors.ErrUnknownResolveAction
	}

	var call *model.Call
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if call, err = s.Calls.GetByID(ctx, id); err != nil {
			return err
		}
		before := map[string]any{
			"requires_human_review": call.RequiresHumanReview,
			"assigned_to":           call.AssignedTo,
		}

		switch in.Action {
		case model.ResolveAssignHuman:
			call.AssignedTo = &assignee
		case model.ResolveAddNote:
			if call.ResolutionNotes != nil && *call.ResolutionNotes != "" {
				notes = *call.ResolutionNotes + "\n" + notes
			}
			call.ResolutionNotes = &notes
		case model.ResolveMarkResolved:
			now := s.Now.now()
			by := strings.TrimSpace(in.ResolvedBy)
			if by == "" {
				by = "operator"
			}
			call.RequiresHumanReview = false
			call.ResolvedAt = &now
			call.ResolvedBy = &by
			if notes != "" {
				call.ResolutionNotes = &notes
			}
		}
		if err := s.Calls.UpdateResolution(ctx, call); err != nil {
			return err
		}
		return s.audit(ctx, auditEntry{
			OrgID:      call.OrgID,
			Action:     model.AuditCallResolved,
			EntityType: "call",
			EntityID:   call.ID,
			Before:     before,
			After: map[string]any{
				"action":                in.Action,
				"requires_human_review": call.RequiresHumanReview,
				"assigned_to":           call.AssignedTo,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("call resolved", zap.Int64("call_id", id), zap.String("action", string(in.Action)))
	return call, nil
}
