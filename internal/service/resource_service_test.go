package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignAndRelease(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	vehicle := seedVehicle(t, db, "51A-00001")
	driver := seedDriver(t, db, "An")
	requestID := uuid.New()

	gotVehicle, gotDriver, err := pool.Assign(ctx, db, vehicle.ID, driver.ID, requestID)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleInUse, gotVehicle.Status)
	assert.Equal(t, model.DriverAssigned, gotDriver.Status)
	require.NotNil(t, gotVehicle.CurrentRequestID)
	assert.Equal(t, requestID, *gotVehicle.CurrentRequestID)
	require.NotNil(t, gotDriver.CurrentRequestID)
	assert.Equal(t, requestID, *gotDriver.CurrentRequestID)

	err = pool.Release(ctx, db, vehicle.ID, driver.ID, model.VehicleAvailable, model.DriverAssigned)
	require.NoError(t, err)

	released := reloadVehicle(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleAvailable, released.Status)
	assert.Nil(t, released.CurrentRequestID)

	idle := reloadDriver(t, db, driver.ID)
	assert.Equal(t, model.DriverAssigned, idle.Status)
	assert.Nil(t, idle.CurrentRequestID)
}

func TestAssignUnavailableResourcesConflict(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	vehicle := seedVehicle(t, db, "51B-00002")
	driver := seedDriver(t, db, "Binh")

	require.NoError(t, db.Model(&model.Vehicle{}).
		Where("id = ?", vehicle.ID).
		Update("status", model.VehicleMaintenance).Error)

	_, _, err := pool.Assign(ctx, db, vehicle.ID, driver.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// The driver must not be half-booked by the failed assignment.
	assert.Equal(t, model.DriverAvailable, reloadDriver(t, db, driver.ID).Status)

	_, _, err = pool.Assign(ctx, db, uuid.New(), driver.ID, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateVehicleInUseBlocked(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	vehicle := seedVehicle(t, db, "51C-00003")
	driver := seedDriver(t, db, "Cuong")
	_, _, err := pool.Assign(ctx, db, vehicle.ID, driver.ID, uuid.New())
	require.NoError(t, err)

	_, err = pool.UpdateVehicle(ctx, nil, vehicle.ID.String(), UpdateVehicleDTO{Status: model.VehicleMaintenance})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	// Non-status edits still go through.
	updated, err := pool.UpdateVehicle(ctx, nil, vehicle.ID.String(), UpdateVehicleDTO{ModelName: "Sprinter"})
	require.NoError(t, err)
	assert.Equal(t, "Sprinter", updated.ModelName)
	assert.Equal(t, model.VehicleInUse, updated.Status)
}

func TestDriverOnTripCannotBeEditedOrDeleted(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	vehicle := seedVehicle(t, db, "51D-00004")
	driver := seedDriver(t, db, "Dung")
	_, _, err := pool.Assign(ctx, db, vehicle.ID, driver.ID, uuid.New())
	require.NoError(t, err)

	_, err = pool.UpdateDriver(ctx, nil, driver.ID.String(), UpdateDriverDTO{Status: model.DriverOffDuty})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	err = pool.DeleteDriver(ctx, nil, driver.ID.String())
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestFleetCRUDWritesAudit(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	operator := seedUser(t, db, "operator", model.RoleOperator, nil)

	vehicle, err := pool.CreateVehicle(ctx, &operator.ID, CreateVehicleDTO{PlateNumber: "51E-00005", Capacity: 16})
	require.NoError(t, err)
	assert.Equal(t, model.VehicleAvailable, vehicle.Status)

	driver, err := pool.CreateDriver(ctx, &operator.ID, CreateDriverDTO{Name: "Em", LicenseNumber: "LIC-9"})
	require.NoError(t, err)
	assert.Equal(t, model.DriverAvailable, driver.Status)

	var logs []model.AuditLog
	require.NoError(t, db.Where("user_id = ?", operator.ID).Order("created_at ASC").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionCreateVehicle, logs[0].Action)
	assert.Equal(t, model.ActionCreateDriver, logs[1].Action)
	assert.Equal(t, vehicle.ID.String(), logs[0].EntityID)
}

func TestListVehiclesFiltersByStatus(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	seedVehicle(t, db, "51F-00006")
	parked := seedVehicle(t, db, "51F-00007")
	require.NoError(t, db.Model(&model.Vehicle{}).
		Where("id = ?", parked.ID).
		Update("status", model.VehicleOutOfService).Error)

	all, total, err := pool.ListVehicles(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	available, total, err := pool.ListVehicles(ctx, model.VehicleAvailable, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, available, 1)
	assert.Equal(t, "51F-00006", available[0].PlateNumber)
}

func TestDeleteVehicle(t *testing.T) {
	db := openTestDB(t)
	pool := NewResourcePool(db)
	ctx := context.Background()

	vehicle := seedVehicle(t, db, "51G-00008")
	require.NoError(t, pool.DeleteVehicle(ctx, nil, vehicle.ID.String()))

	_, err := pool.GetVehicle(ctx, vehicle.ID.String())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
