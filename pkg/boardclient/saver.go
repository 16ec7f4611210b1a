package boardclient

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// SaveStatus is the persistence indicator surfaced to the UI.
type SaveStatus string

const (
	StatusSaving  SaveStatus = "saving"
	StatusSaved   SaveStatus = "saved"
	StatusOffline SaveStatus = "offline"
)

// SaveFunc persists one full scene document.
type SaveFunc func(ctx context.Context, data []byte) error

// Saver is the debounced persistence writer. Every scheduled snapshot
// replaces the pending one, so a burst of mutations collapses into a single
// write of the latest state. A failed write surfaces as offline and is not
// retried; the next mutation carries the full document anyway.
type Saver struct {
	mu      sync.Mutex
	pending []byte

	debounced func(func())
	save      SaveFunc
	onStatus  func(SaveStatus)
	timeout   time.Duration
}

// NewSaver creates a saver that fires after quiet-time d. onStatus may be nil.
func NewSaver(d time.Duration, save SaveFunc, onStatus func(SaveStatus)) *Saver {
	if d <= 0 {
		d = time.Second
	}
	return &Saver{
		debounced: debounce.New(d),
		save:      save,
		onStatus:  onStatus,
		timeout:   10 * time.Second,
	}
}

// Schedule queues a snapshot for the next debounced write.
func (s *Saver) Schedule(data []byte) {
	s.mu.Lock()
	s.pending = data
	s.mu.Unlock()

	s.notify(StatusSaving)
	s.debounced(s.flush)
}

// Flush writes any pending snapshot immediately, best-effort. Used on
// teardown alongside the HTTP beacon path.
func (s *Saver) Flush() {
	s.flush()
}

// Cancel drops pending work, e.g. when switching boards.
func (s *Saver) Cancel() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (s *Saver) flush() {
	s.mu.Lock()
	data := s.pending
	s.pending = nil
	s.mu.Unlock()

	if data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.save(ctx, data); err != nil {
		log.Printf("[BoardClient] Save failed: %v", err)
		s.notify(StatusOffline)
		return
	}
	s.notify(StatusSaved)
}

func (s *Saver) notify(status SaveStatus) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
