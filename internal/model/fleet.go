package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vehicle status enum constants
const (
	VehicleAvailable    = "AVAILABLE"
	VehicleInUse        = "IN_USE"
	VehicleMaintenance  = "MAINTENANCE"
	VehicleOutOfService = "OUT_OF_SERVICE"
)

// Driver status enum constants. ASSIGNED covers both "on a trip" and the
// post-trip idle state until a dispatcher moves the driver back.
const (
	DriverAvailable = "AVAILABLE"
	DriverAssigned  = "ASSIGNED"
	DriverOffDuty   = "OFF_DUTY"
	DriverOnLeave   = "ON_LEAVE"
)

// Vehicle is a pool vehicle. CurrentRequestID back-references the trip
// request currently using it; status changes go through the resource
// service only.
type Vehicle struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlateNumber      string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"plate_number"`
	ModelName        string         `gorm:"type:varchar(100)" json:"model_name"`
	Capacity         int            `gorm:"not null;default:4" json:"capacity"`
	Status           string         `gorm:"type:varchar(20);not null;default:'AVAILABLE';index" json:"status"`
	CurrentRequestID *uuid.UUID     `gorm:"type:uuid" json:"current_request_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Driver is a pool driver, tracked the same way as vehicles.
type Driver struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Phone            string         `gorm:"type:varchar(20)" json:"phone"`
	LicenseNumber    string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"license_number"`
	Status           string         `gorm:"type:varchar(20);not null;default:'AVAILABLE';index" json:"status"`
	CurrentRequestID *uuid.UUID     `gorm:"type:uuid" json:"current_request_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (d *Driver) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
