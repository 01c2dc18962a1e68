package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionSubmitRequest   = "SUBMIT_REQUEST"
	ActionOpenApproval    = "OPEN_APPROVAL"
	ActionApproveRequest  = "APPROVE_REQUEST"
	ActionRejectRequest   = "REJECT_REQUEST"
	ActionAssignResources = "ASSIGN_RESOURCES"
	ActionStartTrip       = "START_TRIP"
	ActionCompleteTrip    = "COMPLETE_TRIP"
	ActionCancelRequest   = "CANCEL_REQUEST"
	ActionCreateVehicle   = "CREATE_VEHICLE"
	ActionUpdateVehicle   = "UPDATE_VEHICLE"
	ActionDeleteVehicle   = "DELETE_VEHICLE"
	ActionCreateDriver    = "CREATE_DRIVER"
	ActionUpdateDriver    = "UPDATE_DRIVER"
	ActionDeleteDriver    = "DELETE_DRIVER"
	ActionRequestStalled  = "REQUEST_STALLED"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
