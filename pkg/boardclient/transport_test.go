package boardclient

import (
	"encoding/json"
	"sync"
	"testing"

	"whiteboard-backend/pkg/protocol"
)

// fakeTransport records emits and lets tests inject server events.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	emits    []protocol.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]Handler)}
}

func (f *fakeTransport) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.emits = append(f.emits, protocol.Envelope{Event: event, Data: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) On(event string, h Handler) {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], h)
	f.mu.Unlock()
}

// inject delivers a server event to all registered handlers.
func (f *fakeTransport) inject(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	hs := append([]Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (f *fakeTransport) sent(event string) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range f.emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) count(event string) int {
	return len(f.sent(event))
}
