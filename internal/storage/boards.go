// Package storage is the durability backstop for scene documents: the slow,
// debounced persistence path that runs independently of the real-time relay.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"gorm.io/gorm"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/model"
)

var ErrBoardNotFound = errors.New("board not found")

// BoardStore reads and writes board canvas blobs. Concurrent saves are
// last-write-wins at the row level; no merge is attempted.
type BoardStore struct {
	db    *gorm.DB
	cache *cache.RedisClient // optional
	s3    *S3Service         // optional
}

// NewBoardStore wires the store. cache and s3 may be nil.
func NewBoardStore(db *gorm.DB, redis *cache.RedisClient, s3 *S3Service) *BoardStore {
	return &BoardStore{db: db, cache: redis, s3: s3}
}

// LoadCanvas returns the last persisted scene document for initial page
// load; the real-time layer only carries deltas after this point. Boards
// that were never saved return an empty document.
func (s *BoardStore) LoadCanvas(ctx context.Context, boardID string) ([]byte, error) {
	if s.cache != nil {
		if data, err := s.cache.GetCanvas(ctx, boardID); err == nil && data != nil {
			return data, nil
		}
	}

	var board model.Board
	if err := s.db.WithContext(ctx).Select("id", "canvas_data").Where("id = ?", boardID).First(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoardNotFound
		}
		return nil, err
	}

	if board.CanvasData == nil || *board.CanvasData == "" {
		return []byte(`{"version":"1.0","objects":[]}`), nil
	}
	data := []byte(*board.CanvasData)

	if s.cache != nil {
		// best-effort warm; a failed cache write never fails the load
		_ = s.cache.SetCanvas(ctx, boardID, data)
	}
	return data, nil
}

// SaveCanvas persists the full document and an optional preview. The canvas
// JSON is validated just enough to keep garbage out of the jsonb column;
// element contents stay opaque.
func (s *BoardStore) SaveCanvas(ctx context.Context, boardID string, canvasData []byte, thumbnailDataURL string) error {
	if !json.Valid(canvasData) {
		return errors.New("canvas data is not valid JSON")
	}

	updates := map[string]any{
		"canvas_data": string(canvasData),
	}

	if thumbnailDataURL != "" {
		if s.s3 != nil {
			url, err := s.s3.UploadThumbnail(ctx, boardID, thumbnailDataURL)
			if err == nil {
				updates["thumbnail_url"] = url
			}
			// upload failure drops the preview, never the canvas save
		} else {
			updates["thumbnail_url"] = thumbnailDataURL
		}
	}

	res := s.db.WithContext(ctx).Model(&model.Board{}).Where("id = ?", boardID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBoardNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetCanvas(ctx, boardID, canvasData); err != nil {
			// drop the stale entry so the next load reads the fresh row
			log.Printf("[BoardStore] Cache write-through failed for board %s: %v", boardID, err)
			if err := s.cache.InvalidateCanvas(ctx, boardID); err != nil {
				log.Printf("[BoardStore] Cache invalidation failed for board %s: %v", boardID, err)
			}
		}
	}
	return nil
}
