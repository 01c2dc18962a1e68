package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"
	"backend/pkg/kmutex"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- DTOs ---

type SubmitTripRequestDTO struct {
	Destination    string    `json:"destination" binding:"required"`
	Purpose        string    `json:"purpose"`
	DepartureTime  time.Time `json:"departure_time" binding:"required"`
	ReturnTime     time.Time `json:"return_time" binding:"required"`
	PassengerCount int       `json:"passenger_count" binding:"required,min=1"`
	Priority       string    `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

type AssignResourcesDTO struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
	DriverID  string `json:"driver_id" binding:"required"`
}

type CompleteTripDTO struct {
	DistanceKM decimal.Decimal `json:"distance_km" binding:"required"`
	Notes      string          `json:"notes"`
}

type CancelRequestDTO struct {
	Reason string `json:"reason"`
}

type DecisionDTO struct {
	Comments string `json:"comments"`
}

type RequestFilter struct {
	Status      string
	Priority    string
	RequesterID string
	Stalled     bool
	Page        int
	Limit       int
}

type TripRequestResponse struct {
	ID              string             `json:"id"`
	RequesterID     string             `json:"requester_id"`
	RequesterName   string             `json:"requester_name,omitempty"`
	Destination     string             `json:"destination"`
	Purpose         string             `json:"purpose"`
	DepartureTime   string             `json:"departure_time"`
	ReturnTime      string             `json:"return_time"`
	PassengerCount  int                `json:"passenger_count"`
	Priority        string             `json:"priority"`
	Status          string             `json:"status"`
	Stalled         bool               `json:"stalled"`
	VehiclePlate    string             `json:"vehicle_plate,omitempty"`
	DriverName      string             `json:"driver_name,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	ActualDeparture *string            `json:"actual_departure"`
	ActualReturn    *string            `json:"actual_return"`
	DistanceKM      string             `json:"distance_km"`
	CompletionNotes string             `json:"completion_notes,omitempty"`
	Approvals       []ApprovalResponse `json:"approvals,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

// WorkflowService owns the trip request status field and every legal
// transition. It orchestrates the approval chain and the resource pool
// inside one transaction per transition and fans notifications out after
// the transaction commits; dispatch failures never fail a transition.
type WorkflowService interface {
	Submit(ctx context.Context, requesterID string, req SubmitTripRequestDTO) (*TripRequestResponse, error)
	RecordApprovalDecision(ctx context.Context, approvalID string, approved bool, comments string) (*TripRequestResponse, error)
	AssignResources(ctx context.Context, actorID, requestID string, req AssignResourcesDTO) (*TripRequestResponse, error)
	StartTrip(ctx context.Context, actorID, requestID string) (*TripRequestResponse, error)
	CompleteTrip(ctx context.Context, actorID, requestID string, req CompleteTripDTO) (*TripRequestResponse, error)
	Cancel(ctx context.Context, actorID, requestID string, reason string) (*TripRequestResponse, error)
	RetryStalled(ctx context.Context, requestID string) (*TripRequestResponse, error)

	GetRequest(ctx context.Context, id string) (*TripRequestResponse, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]TripRequestResponse, int64, error)
	ListByRequester(ctx context.Context, requesterID string, page, limit int) ([]TripRequestResponse, int64, error)
	ListPendingApprovals(ctx context.Context, approverID string) ([]ApprovalResponse, error)
	OverdueRequests(ctx context.Context) ([]TripRequestResponse, error)
}

type workflowService struct {
	db        *gorm.DB
	chain     ApprovalChain
	resources ResourcePool
	notifier  Notifier
	users     repository.UserRepository
	locks     *kmutex.KeyedMutex
	log       *logrus.Entry
}

// NewWorkflowService wires the engine to its collaborators.
func NewWorkflowService(db *gorm.DB, chain ApprovalChain, resources ResourcePool, notifier Notifier, users repository.UserRepository) WorkflowService {
	return &workflowService{
		db:        db,
		chain:     chain,
		resources: resources,
		notifier:  notifier,
		users:     users,
		locks:     kmutex.New(),
		log:       logrus.WithField("component", "workflow"),
	}
}

// Submit creates a SUBMITTED request and, when the requester has a
// designated approver, immediately opens the eligibility check, which moves
// the request to UNDER_REVIEW. A requester without an approver leaves the
// request SUBMITTED and stalled so operators can see it.
func (s *workflowService) Submit(ctx context.Context, requesterID string, req SubmitTripRequestDTO) (*TripRequestResponse, error) {
	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	var approver *model.User
	if requester.ApproverID != nil {
		approver, err = s.users.GetByID(ctx, requester.ApproverID.String())
		if err != nil {
			return nil, err
		}
	}

	if !req.ReturnTime.After(req.DepartureTime) {
		return nil, apperror.InvalidState("return time must be after departure time")
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	request := model.TripRequest{
		RequesterID:    requester.ID,
		Destination:    req.Destination,
		Purpose:        req.Purpose,
		DepartureTime:  req.DepartureTime,
		ReturnTime:     req.ReturnTime,
		PassengerCount: req.PassengerCount,
		Priority:       priority,
		Status:         model.RequestSubmitted,
	}

	var events []Event
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if createErr := tx.Create(&request).Error; createErr != nil {
			return fmt.Errorf("failed to create trip request: %w", createErr)
		}
		if auditErr := writeAudit(tx, &requester.ID, model.ActionSubmitRequest, request.ID.String(), req.Destination, map[string]interface{}{
			"destination": req.Destination,
			"priority":    priority,
			"passengers":  req.PassengerCount,
		}); auditErr != nil {
			return auditErr
		}

		if requester.ApproverID == nil {
			request.Stalled = true
			if saveErr := tx.Save(&request).Error; saveErr != nil {
				return fmt.Errorf("failed to mark request stalled: %w", saveErr)
			}
			if auditErr := writeAudit(tx, nil, model.ActionRequestStalled, request.ID.String(), req.Destination, map[string]interface{}{
				"stage": model.ApprovalKindEligibility,
			}); auditErr != nil {
				return auditErr
			}
			events = append(events, Event{
				Type:     EventRequestStalled,
				Message:  fmt.Sprintf("Trip request to %s has no eligibility approver", req.Destination),
				Audience: ToRole(model.RoleAdmin),
				Data:     RequestStalledData{RequestID: request.ID.String(), Stage: model.ApprovalKindEligibility},
			})
			return nil
		}

		approval, openErr := s.chain.Open(ctx, tx, &request, *requester.ApproverID, model.ApprovalKindEligibility)
		if openErr != nil {
			return openErr
		}
		if auditErr := writeAudit(tx, &requester.ID, model.ActionOpenApproval, approval.ID.String(), model.ApprovalKindEligibility, map[string]interface{}{
			"request_id":  request.ID.String(),
			"approver_id": requester.ApproverID.String(),
		}); auditErr != nil {
			return auditErr
		}

		data := NewRequestData{
			RequestID:   request.ID.String(),
			Requester:   requester.Username,
			Destination: req.Destination,
			Departure:   req.DepartureTime.Format(time.RFC3339),
			Priority:    priority,
		}
		msg := fmt.Sprintf("%s requested a trip to %s", requester.Username, req.Destination)
		events = append(events,
			Event{Type: EventApprovalAssigned, Message: msg, Audience: ToUser(requester.ApproverID.String()),
				Data: ApprovalAssignedData{RequestID: request.ID.String(), ApprovalID: approval.ID.String(), Kind: model.ApprovalKindEligibility}},
			Event{Type: EventNewRequest, Message: msg, Audience: ToRole(approver.Role), Data: data},
			Event{Type: EventNewRequest, Message: "Your trip request was submitted", Audience: ToUser(requester.ID.String()), Data: data},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, request.ID.String())
}

// RecordApprovalDecision resolves a pending approval and performs the
// request transition it implies. An eligibility approval opens the final
// stage against the least-loaded administrator; when none exists the
// failure is logged and swallowed, leaving the request ELIGIBLE but marked
// stalled.
func (s *workflowService) RecordApprovalDecision(ctx context.Context, approvalID string, approved bool, comments string) (*TripRequestResponse, error) {
	var stub model.Approval
	if err := s.db.WithContext(ctx).First(&stub, "id = ?", approvalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("approval %s", approvalID)
		}
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}
	requestID := stub.RequestID.String()

	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	var events []Event
	var request model.TripRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		approval, decideErr := s.chain.Decide(ctx, tx, approvalID, approved, comments)
		if decideErr != nil {
			return decideErr
		}

		if findErr := tx.First(&request, "id = ?", approval.RequestID).Error; findErr != nil {
			return fmt.Errorf("failed to load request: %w", findErr)
		}
		prev := request.Status

		switch approval.Kind {
		case model.ApprovalKindEligibility:
			if approved {
				request.Status = model.RequestEligible
				stalledEvents, openErr := s.openFinalApproval(ctx, tx, &request)
				if openErr != nil {
					return openErr
				}
				events = append(events, stalledEvents...)
			} else {
				request.Status = model.RequestIneligible
				request.RejectionReason = comments
			}
		case model.ApprovalKindFinal:
			if approved {
				request.Status = model.RequestApproved
			} else {
				request.Status = model.RequestRejected
				request.RejectionReason = comments
			}
		default:
			return fmt.Errorf("unknown approval kind: %s", approval.Kind)
		}

		if saveErr := tx.Save(&request).Error; saveErr != nil {
			return fmt.Errorf("failed to update request: %w", saveErr)
		}

		action := model.ActionApproveRequest
		if !approved {
			action = model.ActionRejectRequest
		}
		if auditErr := writeAudit(tx, &approval.ApproverID, action, request.ID.String(), request.Destination, map[string]interface{}{
			"approval_id": approval.ID.String(),
			"kind":        approval.Kind,
			"status":      request.Status,
		}); auditErr != nil {
			return auditErr
		}

		decisionData := ApprovalDecisionData{
			RequestID:  request.ID.String(),
			ApprovalID: approval.ID.String(),
			Kind:       approval.Kind,
			Decision:   approval.Decision,
			Comments:   comments,
		}
		events = append(events,
			Event{Type: EventApprovalDecision,
				Message:  fmt.Sprintf("Your trip request to %s is now %s", request.Destination, request.Status),
				Audience: ToUser(request.RequesterID.String()), Data: decisionData},
			Event{Type: EventStatusChange,
				Message:  fmt.Sprintf("Request status changed to %s", request.Status),
				Audience: ToRequest(request.ID.String()),
				Data:     StatusChangeData{RequestID: request.ID.String(), From: prev, Status: request.Status, Reason: request.RejectionReason}},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, requestID)
}

// openFinalApproval picks an administrator and opens the FINAL_APPROVAL
// stage. A missing administrator is deliberately swallowed: the request is
// marked stalled and a warning event is queued instead of failing the
// eligibility decision that triggered it.
func (s *workflowService) openFinalApproval(ctx context.Context, tx *gorm.DB, request *model.TripRequest) ([]Event, error) {
	admin, pickErr := s.chain.PickAdministrator(ctx, tx)
	if pickErr != nil {
		s.log.WithError(pickErr).WithField("request_id", request.ID).Warn("final approval not opened")
		request.Stalled = true
		if auditErr := writeAudit(tx, nil, model.ActionRequestStalled, request.ID.String(), request.Destination, map[string]interface{}{
			"stage": model.ApprovalKindFinal,
		}); auditErr != nil {
			return nil, auditErr
		}
		return []Event{{
			Type:     EventRequestStalled,
			Message:  fmt.Sprintf("No administrator available for final approval of trip to %s", request.Destination),
			Audience: ToRole(model.RoleAdmin),
			Data:     RequestStalledData{RequestID: request.ID.String(), Stage: model.ApprovalKindFinal},
		}}, nil
	}

	approval, openErr := s.chain.Open(ctx, tx, request, admin.ID, model.ApprovalKindFinal)
	if openErr != nil {
		return nil, openErr
	}
	request.Stalled = false

	if auditErr := writeAudit(tx, nil, model.ActionOpenApproval, approval.ID.String(), model.ApprovalKindFinal, map[string]interface{}{
		"request_id":  request.ID.String(),
		"approver_id": admin.ID.String(),
	}); auditErr != nil {
		return nil, auditErr
	}

	return []Event{{
		Type:     EventApprovalAssigned,
		Message:  fmt.Sprintf("Trip request to %s awaits your final approval", request.Destination),
		Audience: ToUser(admin.ID.String()),
		Data:     ApprovalAssignedData{RequestID: request.ID.String(), ApprovalID: approval.ID.String(), Kind: model.ApprovalKindFinal},
	}}, nil
}

// AssignResources books a vehicle/driver pair for an APPROVED request and
// moves it to CAR_ASSIGNED. Both references are set together; the pool
// refuses resources that are not AVAILABLE.
func (s *workflowService) AssignResources(ctx context.Context, actorID, requestID string, req AssignResourcesDTO) (*TripRequestResponse, error) {
	vehicleID, err := uuid.Parse(req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("invalid vehicle id: %w", err)
	}
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return nil, fmt.Errorf("invalid driver id: %w", err)
	}

	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	var events []Event
	var request model.TripRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&request, "id = ?", requestID).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("request %s", requestID)
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}
		if request.Status != model.RequestApproved {
			return apperror.InvalidState("cannot assign resources to a %s request", request.Status)
		}

		vehicle, driver, assignErr := s.resources.Assign(ctx, tx, vehicleID, driverID, request.ID)
		if assignErr != nil {
			return assignErr
		}

		request.AssignedVehicleID = &vehicle.ID
		request.AssignedDriverID = &driver.ID
		request.Status = model.RequestCarAssigned
		if saveErr := tx.Save(&request).Error; saveErr != nil {
			return fmt.Errorf("failed to update request: %w", saveErr)
		}

		actor := parseActor(actorID)
		if auditErr := writeAudit(tx, actor, model.ActionAssignResources, request.ID.String(), request.Destination, map[string]interface{}{
			"vehicle_plate": vehicle.PlateNumber,
			"driver_name":   driver.Name,
		}); auditErr != nil {
			return auditErr
		}

		data := CarAssignedData{
			RequestID:    request.ID.String(),
			VehiclePlate: vehicle.PlateNumber,
			DriverName:   driver.Name,
		}
		msg := fmt.Sprintf("Vehicle %s with driver %s assigned to your trip", vehicle.PlateNumber, driver.Name)
		events = append(events,
			Event{Type: EventCarAssigned, Message: msg, Audience: ToUser(request.RequesterID.String()), Data: data},
			Event{Type: EventCarAssigned, Message: msg, Audience: ToRequest(request.ID.String()), Data: data},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, requestID)
}

// StartTrip records the actual departure and moves the request to
// IN_PROGRESS.
func (s *workflowService) StartTrip(ctx context.Context, actorID, requestID string) (*TripRequestResponse, error) {
	return s.transition(ctx, actorID, requestID, model.RequestCarAssigned, model.ActionStartTrip, func(tx *gorm.DB, request *model.TripRequest) error {
		now := time.Now()
		request.ActualDeparture = &now
		request.Status = model.RequestInProgress
		return nil
	})
}

// CompleteTrip records the return time, distance and notes, moves the
// request to COMPLETED and releases the resources: the vehicle goes back to
// AVAILABLE while the driver stays ASSIGNED (idle) until a dispatcher moves
// them, which is the long-standing fleet-office convention here.
func (s *workflowService) CompleteTrip(ctx context.Context, actorID, requestID string, req CompleteTripDTO) (*TripRequestResponse, error) {
	return s.transition(ctx, actorID, requestID, model.RequestInProgress, model.ActionCompleteTrip, func(tx *gorm.DB, request *model.TripRequest) error {
		now := time.Now()
		request.ActualReturn = &now
		request.DistanceKM = req.DistanceKM
		request.CompletionNotes = req.Notes
		request.Status = model.RequestCompleted

		return s.resources.Release(ctx, tx, *request.AssignedVehicleID, *request.AssignedDriverID,
			model.VehicleAvailable, model.DriverAssigned)
	})
}

// Cancel moves any non-terminal request to CANCELLED and, if resources were
// held, releases both vehicle and driver to AVAILABLE. A reason is
// mandatory.
func (s *workflowService) Cancel(ctx context.Context, actorID, requestID string, reason string) (*TripRequestResponse, error) {
	if reason == "" {
		return nil, apperror.MissingReason("cancelling a request requires a reason")
	}

	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	var events []Event
	var request model.TripRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&request, "id = ?", requestID).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("request %s", requestID)
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}
		if request.IsTerminal() {
			return apperror.InvalidState("cannot cancel a %s request", request.Status)
		}
		prev := request.Status

		if request.HasResources() {
			if relErr := s.resources.Release(ctx, tx, *request.AssignedVehicleID, *request.AssignedDriverID,
				model.VehicleAvailable, model.DriverAvailable); relErr != nil {
				return relErr
			}
		}

		// Any still-pending approval is closed out so no orphaned decision
		// task survives the cancellation.
		now := time.Now()
		if closeErr := tx.Model(&model.Approval{}).
			Where("request_id = ? AND decision = ?", request.ID, model.DecisionPending).
			Updates(map[string]interface{}{
				"decision":   model.DecisionRejected,
				"comments":   "request cancelled",
				"decided_at": now,
			}).Error; closeErr != nil {
			return fmt.Errorf("failed to close pending approvals: %w", closeErr)
		}

		request.Status = model.RequestCancelled
		request.RejectionReason = reason
		request.Stalled = false
		if saveErr := tx.Save(&request).Error; saveErr != nil {
			return fmt.Errorf("failed to cancel request: %w", saveErr)
		}

		actor := parseActor(actorID)
		if auditErr := writeAudit(tx, actor, model.ActionCancelRequest, request.ID.String(), request.Destination, map[string]interface{}{
			"reason": reason,
			"from":   prev,
		}); auditErr != nil {
			return auditErr
		}

		data := StatusChangeData{RequestID: request.ID.String(), From: prev, Status: model.RequestCancelled, Reason: reason}
		msg := fmt.Sprintf("Trip request to %s was cancelled: %s", request.Destination, reason)
		events = append(events,
			Event{Type: EventStatusChange, Message: msg, Audience: ToUser(request.RequesterID.String()), Data: data},
			Event{Type: EventStatusChange, Message: msg, Audience: ToRequest(request.ID.String()), Data: data},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, requestID)
}

// RetryStalled re-attempts the approval stage a stalled request is missing:
// the eligibility check for SUBMITTED requests whose requester has since
// been given an approver, or the final approval for ELIGIBLE requests once
// an administrator exists.
func (s *workflowService) RetryStalled(ctx context.Context, requestID string) (*TripRequestResponse, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	var events []Event
	var request model.TripRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&request, "id = ?", requestID).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("request %s", requestID)
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}
		if !request.Stalled {
			return apperror.InvalidState("request %s is not stalled", requestID)
		}

		switch request.Status {
		case model.RequestSubmitted:
			requester, userErr := s.users.GetByID(ctx, request.RequesterID.String())
			if userErr != nil {
				return userErr
			}
			if requester.ApproverID == nil {
				return apperror.InvalidState("requester %s still has no approver", requester.Username)
			}
			approval, openErr := s.chain.Open(ctx, tx, &request, *requester.ApproverID, model.ApprovalKindEligibility)
			if openErr != nil {
				return openErr
			}
			events = append(events, Event{
				Type:     EventApprovalAssigned,
				Message:  fmt.Sprintf("%s requested a trip to %s", requester.Username, request.Destination),
				Audience: ToUser(requester.ApproverID.String()),
				Data:     ApprovalAssignedData{RequestID: request.ID.String(), ApprovalID: approval.ID.String(), Kind: model.ApprovalKindEligibility},
			})
		case model.RequestEligible:
			stalledEvents, openErr := s.openFinalApproval(ctx, tx, &request)
			if openErr != nil {
				return openErr
			}
			events = append(events, stalledEvents...)
			if saveErr := tx.Save(&request).Error; saveErr != nil {
				return fmt.Errorf("failed to update request: %w", saveErr)
			}
		default:
			return apperror.InvalidState("stalled request %s has unexpected status %s", requestID, request.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, requestID)
}

// transition is the shared single-status-precondition transition body used
// by StartTrip and CompleteTrip.
func (s *workflowService) transition(ctx context.Context, actorID, requestID, requiredStatus, action string, mutate func(tx *gorm.DB, request *model.TripRequest) error) (*TripRequestResponse, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	var events []Event
	var request model.TripRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&request, "id = ?", requestID).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("request %s", requestID)
			}
			return fmt.Errorf("failed to load request: %w", findErr)
		}
		if request.Status != requiredStatus {
			return apperror.InvalidState("operation requires a %s request, got %s", requiredStatus, request.Status)
		}
		prev := request.Status

		if mutErr := mutate(tx, &request); mutErr != nil {
			return mutErr
		}
		if saveErr := tx.Save(&request).Error; saveErr != nil {
			return fmt.Errorf("failed to update request: %w", saveErr)
		}

		actor := parseActor(actorID)
		if auditErr := writeAudit(tx, actor, action, request.ID.String(), request.Destination, map[string]interface{}{
			"from": prev,
			"to":   request.Status,
		}); auditErr != nil {
			return auditErr
		}

		data := StatusChangeData{RequestID: request.ID.String(), From: prev, Status: request.Status}
		msg := fmt.Sprintf("Trip to %s is now %s", request.Destination, request.Status)
		events = append(events,
			Event{Type: EventStatusChange, Message: msg, Audience: ToUser(request.RequesterID.String()), Data: data},
			Event{Type: EventStatusChange, Message: msg, Audience: ToRequest(request.ID.String()), Data: data},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(events)
	return s.GetRequest(ctx, requestID)
}

// --- Queries ---

func (s *workflowService) GetRequest(ctx context.Context, id string) (*TripRequestResponse, error) {
	var request model.TripRequest
	if err := s.db.WithContext(ctx).
		Preload("Requester").
		Preload("AssignedVehicle").
		Preload("AssignedDriver").
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("approvals.created_at ASC") }).
		Preload("Approvals.Approver").
		First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("request %s", id)
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	resp := toTripResponse(request)
	return &resp, nil
}

func (s *workflowService) ListRequests(ctx context.Context, filter RequestFilter) ([]TripRequestResponse, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.TripRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.RequesterID != "" {
		query = query.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Stalled {
		query = query.Where("stalled = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var requests []model.TripRequest
	fetch := s.db.WithContext(ctx).
		Preload("Requester").
		Preload("AssignedVehicle").
		Preload("AssignedDriver")
	if filter.Status != "" {
		fetch = fetch.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		fetch = fetch.Where("priority = ?", filter.Priority)
	}
	if filter.RequesterID != "" {
		fetch = fetch.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Stalled {
		fetch = fetch.Where("stalled = ?", true)
	}
	if err := fetch.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch requests: %w", err)
	}

	result := make([]TripRequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toTripResponse(r))
	}
	return result, total, nil
}

func (s *workflowService) ListByRequester(ctx context.Context, requesterID string, page, limit int) ([]TripRequestResponse, int64, error) {
	return s.ListRequests(ctx, RequestFilter{RequesterID: requesterID, Page: page, Limit: limit})
}

func (s *workflowService) ListPendingApprovals(ctx context.Context, approverID string) ([]ApprovalResponse, error) {
	return s.chain.ListPending(ctx, approverID)
}

// OverdueRequests returns requests that have been sitting in SUBMITTED for
// longer than the overdue window. Advisory only: nothing escalates or
// transitions on its own.
func (s *workflowService) OverdueRequests(ctx context.Context) ([]TripRequestResponse, error) {
	cutoff := time.Now().Add(-model.OverdueAfter)
	var requests []model.TripRequest
	if err := s.db.WithContext(ctx).
		Preload("Requester").
		Where("status = ? AND created_at < ?", model.RequestSubmitted, cutoff).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to list overdue requests: %w", err)
	}

	result := make([]TripRequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toTripResponse(r))
	}
	return result, nil
}

// --- Helpers ---

func (s *workflowService) dispatch(events []Event) {
	for _, ev := range events {
		s.notifier.Notify(ev)
	}
}

func parseActor(actorID string) *uuid.UUID {
	if actorID == "" {
		return nil
	}
	id, err := uuid.Parse(actorID)
	if err != nil {
		return nil
	}
	return &id
}

func toTripResponse(r model.TripRequest) TripRequestResponse {
	resp := TripRequestResponse{
		ID:              r.ID.String(),
		RequesterID:     r.RequesterID.String(),
		Destination:     r.Destination,
		Purpose:         r.Purpose,
		DepartureTime:   r.DepartureTime.Format(time.RFC3339),
		ReturnTime:      r.ReturnTime.Format(time.RFC3339),
		PassengerCount:  r.PassengerCount,
		Priority:        r.Priority,
		Status:          r.Status,
		Stalled:         r.Stalled,
		RejectionReason: r.RejectionReason,
		DistanceKM:      r.DistanceKM.StringFixed(2),
		CompletionNotes: r.CompletionNotes,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Requester != nil {
		resp.RequesterName = r.Requester.Username
	}
	if r.AssignedVehicle != nil {
		resp.VehiclePlate = r.AssignedVehicle.PlateNumber
	}
	if r.AssignedDriver != nil {
		resp.DriverName = r.AssignedDriver.Name
	}
	if r.ActualDeparture != nil {
		s := r.ActualDeparture.Format(time.RFC3339)
		resp.ActualDeparture = &s
	}
	if r.ActualReturn != nil {
		s := r.ActualReturn.Format(time.RFC3339)
		resp.ActualReturn = &s
	}
	for _, a := range r.Approvals {
		resp.Approvals = append(resp.Approvals, toApprovalResponse(a))
	}
	return resp
}
