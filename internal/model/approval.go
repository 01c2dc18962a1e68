package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval kind enum constants — the two fixed stages of the chain.
const (
	ApprovalKindEligibility = "ELIGIBILITY_CHECK"
	ApprovalKindFinal       = "FINAL_APPROVAL"
)

// Approval decision enum constants
const (
	DecisionPending  = "PENDING"
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Approval represents one stage's decision task attached to a TripRequest.
// A FINAL_APPROVAL row exists only after the request's ELIGIBILITY_CHECK
// was approved, and a request never has two PENDING approvals of the same
// kind.
type Approval struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"request_id"`
	Request    *TripRequest `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	ApproverID uuid.UUID    `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver   *User        `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Kind       string       `gorm:"type:varchar(30);not null;index" json:"kind"`
	Decision   string       `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"decision"`
	Comments   string       `gorm:"type:text" json:"comments"`
	DecidedAt  *time.Time   `json:"decided_at"`
	CreatedAt  time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
