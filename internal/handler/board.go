package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/storage"
)

// CanvasStore is what the handler needs from the persistence layer.
type CanvasStore interface {
	LoadCanvas(ctx context.Context, boardID string) ([]byte, error)
	SaveCanvas(ctx context.Context, boardID string, canvasData []byte, thumbnailDataURL string) error
}

// BoardHandler is the HTTP persistence boundary. The real-time relay never
// persists anything: clients load the last saved document here once, then
// ride element deltas, and their debounced saves land back here. Permission
// is enforced at this boundary, so a viewer's edits still reach peers over
// the relay but are rejected on save.
type BoardHandler struct {
	db      *gorm.DB
	store   CanvasStore
	roleFor func(db *gorm.DB, boardID string, accountID int64) (auth.Role, error)
}

// NewBoardHandler creates the handler.
func NewBoardHandler(db *gorm.DB, store CanvasStore) *BoardHandler {
	return &BoardHandler{db: db, store: store, roleFor: auth.BoardRole}
}

// SaveCanvasRequest is the debounced persistence write payload.
type SaveCanvasRequest struct {
	CanvasData any    `json:"canvasData"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

// GetCanvas returns the last persisted scene document for initial page load.
func (h *BoardHandler) GetCanvas(c *fiber.Ctx) error {
	boardID := c.Params("id")
	if boardID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "board id is required"})
	}

	role, err := h.roleFor(h.db, boardID, h.accountID(c))
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you do not have permission to access this board"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve board access"})
	}

	data, err := h.store.LoadCanvas(c.Context(), boardID)
	if err != nil {
		if errors.Is(err, storage.ErrBoardNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
		}
		log.Printf("[Board] Load failed for board %s: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load canvas"})
	}

	c.Set("Content-Type", "application/json")
	return c.JSON(fiber.Map{
		"success":    true,
		"role":       role,
		"canvasData": json.RawMessage(data),
	})
}

// SaveCanvas is the debounced write path. Owner or editor only; last write
// wins, no merge.
func (h *BoardHandler) SaveCanvas(c *fiber.Ctx) error {
	boardID := c.Params("id")
	if boardID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "board id is required"})
	}

	role, err := h.roleFor(h.db, boardID, h.accountID(c))
	if err != nil && !errors.Is(err, auth.ErrForbidden) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve board access"})
	}
	if !role.CanEdit() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you do not have permission to edit this board"})
	}

	var req SaveCanvasRequest
	if err := c.BodyParser(&req); err != nil || req.CanvasData == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	canvasJSON, err := json.Marshal(req.CanvasData)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid canvas data"})
	}

	if err := h.store.SaveCanvas(c.Context(), boardID, canvasJSON, req.Thumbnail); err != nil {
		if errors.Is(err, storage.ErrBoardNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "board not found"})
		}
		log.Printf("[Board] Save failed for board %s: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save canvas"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// SaveCanvasBeacon is the unload-time path. Browsers fire it via
// navigator.sendBeacon, which cannot set headers and ignores the response,
// so the token rides a query parameter, the body is raw JSON, and the
// handler answers 204 no matter what the client will never read.
func (h *BoardHandler) SaveCanvasBeacon(jwtManager *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		boardID := c.Params("id")
		token := c.Query("token")
		if boardID == "" || token == "" {
			return c.SendStatus(fiber.StatusNoContent)
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusNoContent)
		}

		role, err := h.roleFor(h.db, boardID, claims.UserID)
		if err != nil || !role.CanEdit() {
			return c.SendStatus(fiber.StatusNoContent)
		}

		body := c.Body()
		if len(body) == 0 {
			return c.SendStatus(fiber.StatusNoContent)
		}

		if err := h.store.SaveCanvas(c.Context(), boardID, body, ""); err != nil {
			log.Printf("[Board] Beacon save failed for board %s: %v", boardID, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (h *BoardHandler) accountID(c *fiber.Ctx) int64 {
	if val := c.Locals("userID"); val != nil {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}
