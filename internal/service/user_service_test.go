package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newUserService(db *gorm.DB) UserService {
	return NewUserService(repository.NewUserRepository(db))
}

func TestCreateUserHashesPassword(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)

	resp, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Phone:    "555-0100",
		Password: "secret123",
		Role:     model.RoleRequester,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)

	var stored model.User
	require.NoError(t, db.First(&stored, "username = ?", "alice").Error)
	assert.NotEqual(t, "secret123", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("secret123")))
}

func TestCreateUserDuplicateConflicts(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)
	ctx := context.Background()

	req := CreateUserRequest{
		Username: "bob", Email: "bob@example.com", Phone: "555-0101",
		Password: "secret123", Role: model.RoleRequester,
	}
	_, err := svc.CreateUser(ctx, req)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	req.Username = "bob2"
	_, err = svc.CreateUser(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrConflict) // email still taken
}

func TestUpdateUserSelfApprovalBlocked(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)

	user := seedUser(t, db, "carol", model.RoleRequester, nil)

	_, err := svc.UpdateUser(context.Background(), user.ID.String(), UpdateUserRequest{
		ApproverID: user.ID.String(),
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestLoginAndRefreshRotation(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "dave", Email: "dave@example.com", Phone: "555-0102",
		Password: "secret123", Role: model.RoleOperator,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "dave@example.com", Password: "wrong"})
	assert.Error(t, err)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "dave@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.Token)
	assert.NotEmpty(t, tokens.RefreshToken)

	rotated, err := svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.Token)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The consumed token is gone.
	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Error(t, err)
}

func TestRefreshTokenExpired(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)
	ctx := context.Background()

	user := seedUser(t, db, "erin", model.RoleRequester, nil)
	require.NoError(t, db.Create(&model.RefreshToken{
		UserID:    user.ID,
		Token:     "stale-token",
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)

	_, err := svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: "stale-token"})
	assert.Error(t, err)

	// Expired tokens are purged on use.
	var count int64
	require.NoError(t, db.Model(&model.RefreshToken{}).Where("token = ?", "stale-token").Count(&count).Error)
	assert.Zero(t, count)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Username: "frank", Email: "frank@example.com", Phone: "555-0103",
		Password: "secret123", Role: model.RoleRequester,
	})
	require.NoError(t, err)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "frank@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))

	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	assert.Error(t, err)
}

func TestListByRole(t *testing.T) {
	db := openTestDB(t)
	svc := newUserService(db)

	seedUser(t, db, "m1", model.RoleManager, nil)
	seedUser(t, db, "m2", model.RoleManager, nil)
	seedUser(t, db, "r1", model.RoleRequester, nil)

	managers, err := svc.ListByRole(context.Background(), model.RoleManager)
	require.NoError(t, err)
	assert.Len(t, managers, 2)
}
