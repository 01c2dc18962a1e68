package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// openTestDB opens an isolated shared-cache in-memory database. The shared
// cache matters: gorm opens extra connections for transactions and a plain
// :memory: DSN would give each of them an empty database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// recordingNotifier captures dispatched events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) byType(kind EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

func newTestWorkflow(t *testing.T, db *gorm.DB) (WorkflowService, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	wf := NewWorkflowService(db, NewApprovalChain(db), NewResourcePool(db), notifier, repository.NewUserRepository(db))
	return wf, notifier
}

func seedUser(t *testing.T, db *gorm.DB, username, role string, approverID *uuid.UUID) *model.User {
	t.Helper()
	user := &model.User{
		Username:   username,
		Email:      username + "@example.com",
		Phone:      "555-0000",
		Password:   "not-a-real-hash",
		Role:       role,
		ApproverID: approverID,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedVehicle(t *testing.T, db *gorm.DB, plate string) *model.Vehicle {
	t.Helper()
	vehicle := &model.Vehicle{PlateNumber: plate, ModelName: "Transit", Capacity: 7, Status: model.VehicleAvailable}
	require.NoError(t, db.Create(vehicle).Error)
	return vehicle
}

func seedDriver(t *testing.T, db *gorm.DB, name string) *model.Driver {
	t.Helper()
	driver := &model.Driver{Name: name, LicenseNumber: "LIC-" + name, Status: model.DriverAvailable}
	require.NoError(t, db.Create(driver).Error)
	return driver
}

func submitDTO(destination string) SubmitTripRequestDTO {
	departure := time.Now().Add(24 * time.Hour)
	return SubmitTripRequestDTO{
		Destination:    destination,
		Purpose:        "site visit",
		DepartureTime:  departure,
		ReturnTime:     departure.Add(4 * time.Hour),
		PassengerCount: 2,
	}
}

// pendingApprovalID returns the single PENDING approval of the given kind
// on the request, failing the test if there is not exactly one.
func pendingApprovalID(t *testing.T, db *gorm.DB, requestID, kind string) string {
	t.Helper()
	var approvals []model.Approval
	require.NoError(t, db.Where("request_id = ? AND kind = ? AND decision = ?",
		requestID, kind, model.DecisionPending).Find(&approvals).Error)
	require.Len(t, approvals, 1)
	return approvals[0].ID.String()
}

func reloadRequest(t *testing.T, db *gorm.DB, id string) model.TripRequest {
	t.Helper()
	var request model.TripRequest
	require.NoError(t, db.First(&request, "id = ?", id).Error)
	return request
}

func reloadVehicle(t *testing.T, db *gorm.DB, id uuid.UUID) model.Vehicle {
	t.Helper()
	var vehicle model.Vehicle
	require.NoError(t, db.First(&vehicle, "id = ?", id).Error)
	return vehicle
}

func reloadDriver(t *testing.T, db *gorm.DB, id uuid.UUID) model.Driver {
	t.Helper()
	var driver model.Driver
	require.NoError(t, db.First(&driver, "id = ?", id).Error)
	return driver
}
