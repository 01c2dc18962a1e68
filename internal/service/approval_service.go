package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalResponse is the API shape of an approval task.
type ApprovalResponse struct {
	ID           string  `json:"id"`
	RequestID    string  `json:"request_id"`
	ApproverID   string  `json:"approver_id"`
	ApproverName string  `json:"approver_name,omitempty"`
	Kind         string  `json:"kind"`
	Decision     string  `json:"decision"`
	Comments     string  `json:"comments,omitempty"`
	DecidedAt    *string `json:"decided_at"`
	CreatedAt    string  `json:"created_at"`

	// Request summary for pending-approval listings.
	Destination string `json:"destination,omitempty"`
	Requester   string `json:"requester,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ApprovalChain creates, tracks and resolves approval tasks against a trip
// request. Open and Decide run inside the workflow's transaction; the
// workflow service owns the resulting request transition.
type ApprovalChain interface {
	Open(ctx context.Context, tx *gorm.DB, request *model.TripRequest, approverID uuid.UUID, kind string) (*model.Approval, error)
	Decide(ctx context.Context, tx *gorm.DB, approvalID string, approved bool, comments string) (*model.Approval, error)
	PickAdministrator(ctx context.Context, tx *gorm.DB) (*model.User, error)
	ListPending(ctx context.Context, approverID string) ([]ApprovalResponse, error)
}

type approvalChain struct {
	db *gorm.DB
}

// NewApprovalChain returns a new ApprovalChain instance
func NewApprovalChain(db *gorm.DB) ApprovalChain {
	return &approvalChain{db: db}
}

// Open creates a PENDING approval of the given kind. The first stage
// (eligibility) also moves the request to UNDER_REVIEW; the final stage
// leaves the request in ELIGIBLE.
func (s *approvalChain) Open(ctx context.Context, tx *gorm.DB, request *model.TripRequest, approverID uuid.UUID, kind string) (*model.Approval, error) {
	var pending int64
	if err := tx.Model(&model.Approval{}).
		Where("request_id = ? AND kind = ? AND decision = ?", request.ID, kind, model.DecisionPending).
		Count(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to check pending approvals: %w", err)
	}
	if pending > 0 {
		return nil, apperror.Conflict("request %s already has a pending %s approval", request.ID, kind)
	}

	approval := model.Approval{
		RequestID:  request.ID,
		ApproverID: approverID,
		Kind:       kind,
		Decision:   model.DecisionPending,
	}
	if err := tx.Create(&approval).Error; err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	if kind == model.ApprovalKindEligibility && request.Status == model.RequestSubmitted {
		request.Status = model.RequestUnderReview
		request.Stalled = false
		if err := tx.Save(request).Error; err != nil {
			return nil, fmt.Errorf("failed to move request under review: %w", err)
		}
	}

	return &approval, nil
}

// Decide stamps the decision on a PENDING approval and returns it for the
// workflow service to act on. Rejections require comments.
func (s *approvalChain) Decide(ctx context.Context, tx *gorm.DB, approvalID string, approved bool, comments string) (*model.Approval, error) {
	var approval model.Approval
	if err := tx.First(&approval, "id = ?", approvalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("approval %s", approvalID)
		}
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}

	if approval.Decision != model.DecisionPending {
		return nil, apperror.InvalidState("approval %s is already %s", approvalID, approval.Decision)
	}
	if !approved && comments == "" {
		return nil, apperror.MissingReason("rejecting approval %s requires comments", approvalID)
	}

	now := time.Now()
	if approved {
		approval.Decision = model.DecisionApproved
	} else {
		approval.Decision = model.DecisionRejected
	}
	approval.Comments = comments
	approval.DecidedAt = &now

	if err := tx.Save(&approval).Error; err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}

	return &approval, nil
}

// PickAdministrator selects the administrator with the fewest PENDING
// approvals, breaking ties by id, so final approvals spread across admins
// deterministically. Reads go through the caller's transaction so the pick
// sees the chain state being built up around it.
func (s *approvalChain) PickAdministrator(ctx context.Context, tx *gorm.DB) (*model.User, error) {
	var admins []model.User
	if err := tx.Where("role = ?", model.RoleAdmin).Order("created_at ASC").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	if len(admins) == 0 {
		return nil, apperror.NotFound("no administrator available")
	}

	type load struct {
		ApproverID uuid.UUID
		Count      int64
	}
	var loads []load
	if err := tx.Model(&model.Approval{}).
		Select("approver_id, COUNT(*) as count").
		Where("decision = ?", model.DecisionPending).
		Group("approver_id").
		Scan(&loads).Error; err != nil {
		return nil, fmt.Errorf("failed to compute approver load: %w", err)
	}

	pending := make(map[uuid.UUID]int64, len(loads))
	for _, l := range loads {
		pending[l.ApproverID] = l.Count
	}

	best := &admins[0]
	for i := 1; i < len(admins); i++ {
		a := &admins[i]
		if pending[a.ID] < pending[best.ID] ||
			(pending[a.ID] == pending[best.ID] && a.ID.String() < best.ID.String()) {
			best = a
		}
	}
	return best, nil
}

// ListPending returns the PENDING approvals waiting on one approver, with
// request summaries preloaded.
func (s *approvalChain) ListPending(ctx context.Context, approverID string) ([]ApprovalResponse, error) {
	var approvals []model.Approval
	if err := s.db.WithContext(ctx).
		Preload("Request").
		Preload("Request.Requester").
		Where("approver_id = ? AND decision = ?", approverID, model.DecisionPending).
		Order("created_at ASC").
		Find(&approvals).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	result := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		result = append(result, toApprovalResponse(a))
	}
	return result, nil
}

func toApprovalResponse(a model.Approval) ApprovalResponse {
	resp := ApprovalResponse{
		ID:         a.ID.String(),
		RequestID:  a.RequestID.String(),
		ApproverID: a.ApproverID.String(),
		Kind:       a.Kind,
		Decision:   a.Decision,
		Comments:   a.Comments,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
	if a.Approver != nil {
		resp.ApproverName = a.Approver.Username
	}
	if a.DecidedAt != nil {
		s := a.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &s
	}
	if a.Request != nil {
		resp.Destination = a.Request.Destination
		resp.Status = a.Request.Status
		if a.Request.Requester != nil {
			resp.Requester = a.Request.Requester.Username
		}
	}
	return resp
}
