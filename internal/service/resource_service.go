package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- DTOs ---

type CreateVehicleDTO struct {
	PlateNumber string `json:"plate_number" binding:"required"`
	ModelName   string `json:"model_name"`
	Capacity    int    `json:"capacity" binding:"required,min=1"`
}

type UpdateVehicleDTO struct {
	ModelName string `json:"model_name"`
	Capacity  int    `json:"capacity" binding:"omitempty,min=1"`
	Status    string `json:"status" binding:"omitempty,oneof=AVAILABLE MAINTENANCE OUT_OF_SERVICE"`
}

type CreateDriverDTO struct {
	Name          string `json:"name" binding:"required"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number" binding:"required"`
}

type UpdateDriverDTO struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status" binding:"omitempty,oneof=AVAILABLE OFF_DUTY ON_LEAVE"`
}

// ResourcePool tracks vehicle and driver availability. Assign and Release
// run inside the workflow's transaction so resource state and request state
// move as one logical operation; the CRUD operations manage the fleet.
type ResourcePool interface {
	Assign(ctx context.Context, tx *gorm.DB, vehicleID, driverID, requestID uuid.UUID) (*model.Vehicle, *model.Driver, error)
	Release(ctx context.Context, tx *gorm.DB, vehicleID, driverID uuid.UUID, toVehicleStatus, toDriverStatus string) error

	CreateVehicle(ctx context.Context, actorID *uuid.UUID, req CreateVehicleDTO) (*model.Vehicle, error)
	UpdateVehicle(ctx context.Context, actorID *uuid.UUID, id string, req UpdateVehicleDTO) (*model.Vehicle, error)
	DeleteVehicle(ctx context.Context, actorID *uuid.UUID, id string) error
	GetVehicle(ctx context.Context, id string) (*model.Vehicle, error)
	ListVehicles(ctx context.Context, status string, page, limit int) ([]model.Vehicle, int64, error)

	CreateDriver(ctx context.Context, actorID *uuid.UUID, req CreateDriverDTO) (*model.Driver, error)
	UpdateDriver(ctx context.Context, actorID *uuid.UUID, id string, req UpdateDriverDTO) (*model.Driver, error)
	DeleteDriver(ctx context.Context, actorID *uuid.UUID, id string) error
	GetDriver(ctx context.Context, id string) (*model.Driver, error)
	ListDrivers(ctx context.Context, status string, page, limit int) ([]model.Driver, int64, error)
}

type resourcePool struct {
	db *gorm.DB
}

// NewResourcePool returns a new ResourcePool instance
func NewResourcePool(db *gorm.DB) ResourcePool {
	return &resourcePool{db: db}
}

// Assign row-locks both resources, verifies availability and marks them as
// held by the request. The availability check and the status writes share
// one critical section per vehicle/driver pair, which is the guard against
// double-booking.
func (s *resourcePool) Assign(ctx context.Context, tx *gorm.DB, vehicleID, driverID, requestID uuid.UUID) (*model.Vehicle, *model.Driver, error) {
	var vehicle model.Vehicle
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&vehicle, "id = ?", vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperror.NotFound("vehicle %s", vehicleID)
		}
		return nil, nil, fmt.Errorf("failed to load vehicle: %w", err)
	}

	var driver model.Driver
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&driver, "id = ?", driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperror.NotFound("driver %s", driverID)
		}
		return nil, nil, fmt.Errorf("failed to load driver: %w", err)
	}

	if vehicle.Status != model.VehicleAvailable {
		return nil, nil, apperror.Conflict("vehicle %s is %s", vehicle.PlateNumber, vehicle.Status)
	}
	if driver.Status != model.DriverAvailable {
		return nil, nil, apperror.Conflict("driver %s is %s", driver.Name, driver.Status)
	}

	vehicle.Status = model.VehicleInUse
	vehicle.CurrentRequestID = &requestID
	if err := tx.Save(&vehicle).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update vehicle: %w", err)
	}

	driver.Status = model.DriverAssigned
	driver.CurrentRequestID = &requestID
	if err := tx.Save(&driver).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update driver: %w", err)
	}

	return &vehicle, &driver, nil
}

// Release resets both resources to the given target statuses and clears
// their request back-references. Cancellation releases both to AVAILABLE;
// normal completion returns the vehicle to AVAILABLE and leaves the driver
// ASSIGNED until a dispatcher moves them back.
func (s *resourcePool) Release(ctx context.Context, tx *gorm.DB, vehicleID, driverID uuid.UUID, toVehicleStatus, toDriverStatus string) error {
	if err := tx.Model(&model.Vehicle{}).Where("id = ?", vehicleID).
		Updates(map[string]interface{}{
			"status":             toVehicleStatus,
			"current_request_id": nil,
		}).Error; err != nil {
		return fmt.Errorf("failed to release vehicle: %w", err)
	}

	if err := tx.Model(&model.Driver{}).Where("id = ?", driverID).
		Updates(map[string]interface{}{
			"status":             toDriverStatus,
			"current_request_id": nil,
		}).Error; err != nil {
		return fmt.Errorf("failed to release driver: %w", err)
	}

	return nil
}

// --- Fleet CRUD ---

func (s *resourcePool) CreateVehicle(ctx context.Context, actorID *uuid.UUID, req CreateVehicleDTO) (*model.Vehicle, error) {
	vehicle := model.Vehicle{
		PlateNumber: req.PlateNumber,
		ModelName:   req.ModelName,
		Capacity:    req.Capacity,
		Status:      model.VehicleAvailable,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if createErr := tx.Create(&vehicle).Error; createErr != nil {
			return fmt.Errorf("failed to create vehicle: %w", createErr)
		}
		return writeAudit(tx, actorID, model.ActionCreateVehicle, vehicle.ID.String(), vehicle.PlateNumber, map[string]interface{}{
			"plate_number": vehicle.PlateNumber,
			"capacity":     vehicle.Capacity,
		})
	})
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (s *resourcePool) UpdateVehicle(ctx context.Context, actorID *uuid.UUID, id string, req UpdateVehicleDTO) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&vehicle, "id = ?", id).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("vehicle %s", id)
			}
			return fmt.Errorf("failed to load vehicle: %w", findErr)
		}

		// A vehicle on a trip cannot be pulled for maintenance here; the
		// trip has to complete or be cancelled first.
		if req.Status != "" && vehicle.Status == model.VehicleInUse {
			return apperror.InvalidState("vehicle %s is in use", vehicle.PlateNumber)
		}

		if req.ModelName != "" {
			vehicle.ModelName = req.ModelName
		}
		if req.Capacity > 0 {
			vehicle.Capacity = req.Capacity
		}
		if req.Status != "" {
			vehicle.Status = req.Status
		}

		if saveErr := tx.Save(&vehicle).Error; saveErr != nil {
			return fmt.Errorf("failed to update vehicle: %w", saveErr)
		}
		return writeAudit(tx, actorID, model.ActionUpdateVehicle, vehicle.ID.String(), vehicle.PlateNumber, map[string]interface{}{
			"status": vehicle.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (s *resourcePool) DeleteVehicle(ctx context.Context, actorID *uuid.UUID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vehicle model.Vehicle
		if findErr := tx.First(&vehicle, "id = ?", id).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("vehicle %s", id)
			}
			return fmt.Errorf("failed to load vehicle: %w", findErr)
		}
		if vehicle.Status == model.VehicleInUse {
			return apperror.InvalidState("vehicle %s is in use", vehicle.PlateNumber)
		}
		if delErr := tx.Delete(&vehicle).Error; delErr != nil {
			return fmt.Errorf("failed to delete vehicle: %w", delErr)
		}
		return writeAudit(tx, actorID, model.ActionDeleteVehicle, vehicle.ID.String(), vehicle.PlateNumber, nil)
	})
}

func (s *resourcePool) GetVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := s.db.WithContext(ctx).First(&vehicle, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("vehicle %s", id)
		}
		return nil, err
	}
	return &vehicle, nil
}

func (s *resourcePool) ListVehicles(ctx context.Context, status string, page, limit int) ([]model.Vehicle, int64, error) {
	return listFleet[model.Vehicle](ctx, s.db, status, page, limit)
}

func (s *resourcePool) CreateDriver(ctx context.Context, actorID *uuid.UUID, req CreateDriverDTO) (*model.Driver, error) {
	driver := model.Driver{
		Name:          req.Name,
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
		Status:        model.DriverAvailable,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if createErr := tx.Create(&driver).Error; createErr != nil {
			return fmt.Errorf("failed to create driver: %w", createErr)
		}
		return writeAudit(tx, actorID, model.ActionCreateDriver, driver.ID.String(), driver.Name, map[string]interface{}{
			"license_number": driver.LicenseNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

func (s *resourcePool) UpdateDriver(ctx context.Context, actorID *uuid.UUID, id string, req UpdateDriverDTO) (*model.Driver, error) {
	var driver model.Driver
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if findErr := tx.First(&driver, "id = ?", id).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("driver %s", id)
			}
			return fmt.Errorf("failed to load driver: %w", findErr)
		}

		// ASSIGNED drivers are released through trip completion or
		// cancellation, or moved back to AVAILABLE here once idle.
		if req.Status != "" && driver.CurrentRequestID != nil {
			return apperror.InvalidState("driver %s is on a trip", driver.Name)
		}

		if req.Name != "" {
			driver.Name = req.Name
		}
		if req.Phone != "" {
			driver.Phone = req.Phone
		}
		if req.Status != "" {
			driver.Status = req.Status
		}

		if saveErr := tx.Save(&driver).Error; saveErr != nil {
			return fmt.Errorf("failed to update driver: %w", saveErr)
		}
		return writeAudit(tx, actorID, model.ActionUpdateDriver, driver.ID.String(), driver.Name, map[string]interface{}{
			"status": driver.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

func (s *resourcePool) DeleteDriver(ctx context.Context, actorID *uuid.UUID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var driver model.Driver
		if findErr := tx.First(&driver, "id = ?", id).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFound("driver %s", id)
			}
			return fmt.Errorf("failed to load driver: %w", findErr)
		}
		if driver.CurrentRequestID != nil {
			return apperror.InvalidState("driver %s is on a trip", driver.Name)
		}
		if delErr := tx.Delete(&driver).Error; delErr != nil {
			return fmt.Errorf("failed to delete driver: %w", delErr)
		}
		return writeAudit(tx, actorID, model.ActionDeleteDriver, driver.ID.String(), driver.Name, nil)
	})
}

func (s *resourcePool) GetDriver(ctx context.Context, id string) (*model.Driver, error) {
	var driver model.Driver
	if err := s.db.WithContext(ctx).First(&driver, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("driver %s", id)
		}
		return nil, err
	}
	return &driver, nil
}

func (s *resourcePool) ListDrivers(ctx context.Context, status string, page, limit int) ([]model.Driver, int64, error) {
	return listFleet[model.Driver](ctx, s.db, status, page, limit)
}

// listFleet is the shared status-filtered pagination query for vehicles and
// drivers.
func listFleet[T any](ctx context.Context, db *gorm.DB, status string, page, limit int) ([]T, int64, error) {
	var total int64
	query := db.WithContext(ctx).Model(new(T))
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var items []T
	fetch := db.WithContext(ctx).Model(new(T))
	if status != "" {
		fetch = fetch.Where("status = ?", status)
	}
	if err := fetch.Order("created_at ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// writeAudit appends a who/what/when row inside the caller's transaction.
func writeAudit(tx *gorm.DB, actorID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload := ""
	if details != nil {
		b, _ := json.Marshal(details)
		payload = string(b)
	}
	audit := model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
