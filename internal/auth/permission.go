package auth

import (
	"errors"

	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

var ErrForbidden = errors.New("no permission for this board")

// Role is a user's effective access level on a board.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = ""
)

// CanEdit reports whether the role may mutate durable board state.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanView reports whether the role may read the board at all.
func (r Role) CanView() bool {
	return r != RoleNone
}

// ResolveRole computes the effective role from already-loaded rows: owner
// first, then an explicit permission grant, then the board's public access
// mode. Pure so it tests without a database. Guests (accountID 0) only ever
// qualify through public access.
func ResolveRole(board *model.Board, perms []model.BoardPermission, accountID int64) Role {
	if accountID != 0 && board.OwnerID == accountID {
		return RoleOwner
	}

	if accountID != 0 {
		for _, p := range perms {
			if p.UserID == accountID {
				switch p.Permission {
				case model.PermissionEditor:
					return RoleEditor
				case model.PermissionViewer:
					return RoleViewer
				}
			}
		}
	}

	switch board.PublicAccess {
	case model.PublicAccessEdit:
		return RoleEditor
	case model.PublicAccessView:
		return RoleViewer
	}

	return RoleNone
}

// BoardRole loads the board's permission rows and resolves the caller's role.
// Unknown boards and no-access callers both come back as ErrForbidden so the
// relay and the persistence boundary reject them the same way.
func BoardRole(db *gorm.DB, boardID string, accountID int64) (Role, error) {
	var board model.Board
	if err := db.Select("id", "owner_id", "public_access").Where("id = ?", boardID).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleNone, ErrForbidden
		}
		return RoleNone, err
	}

	var perms []model.BoardPermission
	if accountID != 0 {
		if err := db.Where("board_id = ? AND user_id = ?", boardID, accountID).Find(&perms).Error; err != nil {
			return RoleNone, err
		}
	}

	role := ResolveRole(&board, perms, accountID)
	if role == RoleNone {
		return RoleNone, ErrForbidden
	}
	return role, nil
}
