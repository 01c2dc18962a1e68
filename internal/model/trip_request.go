package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TripRequest status enum constants. Terminal states: INELIGIBLE, REJECTED,
// COMPLETED, CANCELLED.
const (
	RequestSubmitted   = "SUBMITTED"
	RequestUnderReview = "UNDER_REVIEW"
	RequestEligible    = "ELIGIBLE"
	RequestIneligible  = "INELIGIBLE"
	RequestApproved    = "APPROVED"
	RequestRejected    = "REJECTED"
	RequestCarAssigned = "CAR_ASSIGNED"
	RequestInProgress  = "IN_PROGRESS"
	RequestCompleted   = "COMPLETED"
	RequestCancelled   = "CANCELLED"
)

// Trip priority enum constants
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// OverdueAfter is how long a request may sit in SUBMITTED before the
// query surface reports it overdue. Advisory only, nothing transitions
// automatically.
const OverdueAfter = 24 * time.Hour

// TripRequest represents a trip request moving through the approval
// workflow. Status is owned exclusively by the workflow service; the
// Approvals slice is ordered by creation time, which is also chain order.
type TripRequest struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequesterID    uuid.UUID `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester      *User     `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Destination    string    `gorm:"type:varchar(255);not null" json:"destination"`
	Purpose        string    `gorm:"type:text" json:"purpose"`
	DepartureTime  time.Time `gorm:"not null" json:"departure_time"`
	ReturnTime     time.Time `gorm:"not null" json:"return_time"`
	PassengerCount int       `gorm:"not null;default:1" json:"passenger_count"`
	Priority       string    `gorm:"type:varchar(20);not null;default:'NORMAL';index" json:"priority"`
	Status         string    `gorm:"type:varchar(20);not null;default:'SUBMITTED';index" json:"status"`

	// AssignedVehicleID and AssignedDriverID are set together by resource
	// assignment and never one without the other.
	AssignedVehicleID *uuid.UUID `gorm:"type:uuid" json:"assigned_vehicle_id"`
	AssignedVehicle   *Vehicle   `gorm:"foreignKey:AssignedVehicleID" json:"assigned_vehicle,omitempty"`
	AssignedDriverID  *uuid.UUID `gorm:"type:uuid" json:"assigned_driver_id"`
	AssignedDriver    *Driver    `gorm:"foreignKey:AssignedDriverID" json:"assigned_driver,omitempty"`

	// RejectionReason is non-empty only for INELIGIBLE, REJECTED and
	// CANCELLED requests.
	RejectionReason string `gorm:"type:text" json:"rejection_reason"`

	// Stalled marks a request that cannot progress because no approver or
	// administrator could be found for the next approval stage. Operators
	// watch this flag; the request itself stays in a valid state.
	Stalled bool `gorm:"not null;default:false;index" json:"stalled"`

	ActualDeparture *time.Time      `json:"actual_departure"`
	ActualReturn    *time.Time      `json:"actual_return"`
	DistanceKM      decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"distance_km"`
	CompletionNotes string          `gorm:"type:text" json:"completion_notes"`

	Approvals []Approval `gorm:"foreignKey:RequestID" json:"approvals,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *TripRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether status permits no further transitions.
func (r *TripRequest) IsTerminal() bool {
	switch r.Status {
	case RequestIneligible, RequestRejected, RequestCompleted, RequestCancelled:
		return true
	}
	return false
}

// HasResources reports whether a vehicle/driver pair is currently held.
func (r *TripRequest) HasResources() bool {
	return r.AssignedVehicleID != nil && r.AssignedDriverID != nil
}

// IsOverdue reports whether the request has been waiting in SUBMITTED for
// longer than OverdueAfter as of now.
func (r *TripRequest) IsOverdue(now time.Time) bool {
	return r.Status == RequestSubmitted && now.After(r.CreatedAt.Add(OverdueAfter))
}
