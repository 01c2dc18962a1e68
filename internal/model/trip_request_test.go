package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	terminal := []string{RequestIneligible, RequestRejected, RequestCompleted, RequestCancelled}
	for _, status := range terminal {
		r := TripRequest{Status: status}
		assert.True(t, r.IsTerminal(), status)
	}

	active := []string{RequestSubmitted, RequestUnderReview, RequestEligible, RequestApproved, RequestCarAssigned, RequestInProgress}
	for _, status := range active {
		r := TripRequest{Status: status}
		assert.False(t, r.IsTerminal(), status)
	}
}

func TestHasResources(t *testing.T) {
	var r TripRequest
	assert.False(t, r.HasResources())

	vehicleID := uuid.New()
	r.AssignedVehicleID = &vehicleID
	assert.False(t, r.HasResources(), "vehicle without driver")

	driverID := uuid.New()
	r.AssignedDriverID = &driverID
	assert.True(t, r.HasResources())
}

func TestIsOverdue(t *testing.T) {
	now := time.Now()

	r := TripRequest{Status: RequestSubmitted, CreatedAt: now.Add(-OverdueAfter - time.Minute)}
	assert.True(t, r.IsOverdue(now))

	r.CreatedAt = now.Add(-time.Hour)
	assert.False(t, r.IsOverdue(now))

	// Only waiting submissions count, not requests already moving.
	r = TripRequest{Status: RequestUnderReview, CreatedAt: now.Add(-48 * time.Hour)}
	assert.False(t, r.IsOverdue(now))
}
