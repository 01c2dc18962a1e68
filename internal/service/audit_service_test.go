package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAuditLogs(t *testing.T) {
	db := openTestDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	operator := seedUser(t, db, "operator", model.RoleOperator, nil)

	require.NoError(t, db.Create(&model.AuditLog{
		UserID: &operator.ID, Action: model.ActionCreateVehicle, EntityID: "v1", EntityName: "51A-00001",
	}).Error)
	require.NoError(t, db.Create(&model.AuditLog{
		Action: model.ActionRequestStalled, EntityID: "r1", EntityName: "Downtown",
	}).Error)

	logs, total, err := svc.GetAuditLogs(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)

	byAction := make(map[string]AuditLogResponse)
	for _, l := range logs {
		byAction[l.Action] = l
	}
	assert.Equal(t, "operator", byAction[model.ActionCreateVehicle].Username)
	// System-initiated entries carry no user.
	assert.Equal(t, "System", byAction[model.ActionRequestStalled].Username)
	assert.Empty(t, byAction[model.ActionRequestStalled].UserID)
}

func TestGetAuditLogsFilterAndPagination(t *testing.T) {
	db := openTestDB(t)
	svc := NewAuditService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&model.AuditLog{Action: model.ActionStartTrip, EntityID: "r1"}).Error)
	}
	require.NoError(t, db.Create(&model.AuditLog{Action: model.ActionCancelRequest, EntityID: "r2"}).Error)

	logs, total, err := svc.GetAuditLogs(ctx, model.ActionStartTrip, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 2)

	logs, _, err = svc.GetAuditLogs(ctx, model.ActionStartTrip, 2, 2)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
