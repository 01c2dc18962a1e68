package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedRequestWith(t *testing.T, db *gorm.DB, requesterID string, status, priority string, stalled bool, createdAt time.Time) {
	t.Helper()
	var requester model.User
	require.NoError(t, db.First(&requester, "id = ?", requesterID).Error)
	request := model.TripRequest{
		RequesterID:    requester.ID,
		Destination:    "Somewhere",
		DepartureTime:  time.Now().Add(time.Hour),
		ReturnTime:     time.Now().Add(2 * time.Hour),
		PassengerCount: 1,
		Priority:       priority,
		Status:         status,
		Stalled:        stalled,
		CreatedAt:      createdAt,
	}
	require.NoError(t, db.Create(&request).Error)
}

func TestGetStatistics(t *testing.T) {
	db := openTestDB(t)
	svc := NewStatisticsService(db)

	requester := seedUser(t, db, "alice", model.RoleRequester, nil)
	now := time.Now()

	seedRequestWith(t, db, requester.ID.String(), model.RequestSubmitted, model.PriorityNormal, true, now)
	seedRequestWith(t, db, requester.ID.String(), model.RequestSubmitted, model.PriorityHigh, false, now.Add(-30*time.Hour))
	seedRequestWith(t, db, requester.ID.String(), model.RequestApproved, model.PriorityNormal, false, now)
	seedRequestWith(t, db, requester.ID.String(), model.RequestCompleted, model.PriorityUrgent, false, now)

	seedVehicle(t, db, "51A-11111")
	busy := seedVehicle(t, db, "51A-22222")
	require.NoError(t, db.Model(&model.Vehicle{}).
		Where("id = ?", busy.ID).
		Update("status", model.VehicleInUse).Error)
	seedDriver(t, db, "An")

	stats, err := svc.GetStatistics(context.Background())
	require.NoError(t, err)

	byStatus := make(map[string]int64)
	for _, s := range stats.ByStatus {
		byStatus[s.Status] = s.Count
	}
	assert.EqualValues(t, 2, byStatus[model.RequestSubmitted])
	assert.EqualValues(t, 1, byStatus[model.RequestApproved])
	assert.EqualValues(t, 1, byStatus[model.RequestCompleted])

	byPriority := make(map[string]int64)
	for _, p := range stats.ByPriority {
		byPriority[p.Priority] = p.Count
	}
	assert.EqualValues(t, 2, byPriority[model.PriorityNormal])
	assert.EqualValues(t, 1, byPriority[model.PriorityHigh])
	assert.EqualValues(t, 1, byPriority[model.PriorityUrgent])

	assert.EqualValues(t, 1, stats.Stalled)
	assert.EqualValues(t, 1, stats.Overdue)

	vehicles := make(map[string]int64)
	for _, v := range stats.Fleet.Vehicles {
		vehicles[v.Status] = v.Count
	}
	assert.EqualValues(t, 1, vehicles[model.VehicleAvailable])
	assert.EqualValues(t, 1, vehicles[model.VehicleInUse])

	drivers := make(map[string]int64)
	for _, d := range stats.Fleet.Drivers {
		drivers[d.Status] = d.Count
	}
	assert.EqualValues(t, 1, drivers[model.DriverAvailable])
}

func TestGetStatisticsEmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	svc := NewStatisticsService(db)

	stats, err := svc.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats.ByStatus)
	assert.Zero(t, stats.Stalled)
	assert.Zero(t, stats.Overdue)
}
