package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role constants for workflow participants
const (
	RoleAdmin     = "admin"
	RoleManager   = "manager"
	RoleOperator  = "operator"
	RoleRequester = "requester"
)

// User represents the central user entity for logic and database structure
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username   string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone      string    `gorm:"type:varchar(20);not null" json:"phone"`
	Password   string    `gorm:"type:varchar(255);not null" json:"-"` // Omit password from JSON requests/responses
	Role       string    `gorm:"type:varchar(50);not null;index" json:"role"`
	Department string    `gorm:"type:varchar(100)" json:"department"`
	// ApproverID points at the user who performs the eligibility check for
	// this user's trip requests (usually their manager). A user without one
	// cannot progress past submission.
	ApproverID *uuid.UUID `gorm:"type:uuid;index" json:"approver_id"`
	Approver   *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	// LarkOpenID links the user to the out-of-band chat channel. Empty means
	// the user never linked one and external delivery is skipped.
	LarkOpenID string         `gorm:"type:varchar(64)" json:"lark_open_id"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
