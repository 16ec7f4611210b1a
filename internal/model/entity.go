package model

import (
	"time"
)

// Board permission levels. Owners are tracked on the board row itself.
const (
	PermissionEditor = "editor"
	PermissionViewer = "viewer"
)

// Public access modes for link sharing.
const (
	PublicAccessNone = "none"
	PublicAccessView = "view"
	PublicAccessEdit = "edit"
)

// User is an authenticated account. Guests never get a row here; they exist
// only as ephemeral socket identities.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName  string    `gorm:"type:varchar(100);not null" json:"full_name"`
	AvatarURL *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Permissions []BoardPermission `gorm:"foreignKey:UserID" json:"permissions,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Board is one shared canvas. CanvasData is the serialized scene document,
// written last-write-wins by the debounced persistence path; the real-time
// relay never touches it.
type Board struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID      int64      `gorm:"not null;index" json:"owner_id"`
	Title        string     `gorm:"type:varchar(200);not null" json:"title"`
	CanvasData   *string    `gorm:"type:jsonb" json:"canvas_data,omitempty"`
	ThumbnailURL *string    `gorm:"type:text" json:"thumbnail_url,omitempty"`
	PublicAccess string     `gorm:"type:varchar(10);default:'none'" json:"public_access"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Owner       User              `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Permissions []BoardPermission `gorm:"foreignKey:BoardID" json:"permissions,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardPermission grants a user editor or viewer access to a board.
type BoardPermission struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_board_user" json:"board_id"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_board_user" json:"user_id"`
	Permission string    `gorm:"type:varchar(10);not null" json:"permission"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Board Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (BoardPermission) TableName() string {
	return "board_permissions"
}
