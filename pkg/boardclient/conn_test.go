package boardclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard-backend/pkg/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnDialEmitAndDispatch(t *testing.T) {
	gotToken := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		// echo every envelope back with a server-side event name
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			reply, _ := protocol.Encode("echo", env)
			ws.WriteMessage(websocket.TextMessage, reply)
		}
	}))
	defer srv.Close()

	echoes := make(chan protocol.Envelope, 1)
	c := NewConn(Options{URL: wsURL(srv), Token: "tok-123"})
	c.On("echo", func(data json.RawMessage) {
		var env protocol.Envelope
		if json.Unmarshal(data, &env) == nil {
			echoes <- env
		}
	})

	if err := c.Dial(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case tok := <-gotToken:
		if tok != "tok-123" {
			t.Fatalf("handshake token = %q", tok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}

	if err := c.Emit(protocol.EventJoinBoard, protocol.JoinBoard{BoardID: "b1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case env := <-echoes:
		if env.Event != protocol.EventJoinBoard {
			t.Fatalf("echoed event = %q", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}
}

func TestConnGuestHandshake(t *testing.T) {
	params := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params <- [2]string{r.URL.Query().Get("guestId"), r.URL.Query().Get("guestName")}
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	defer srv.Close()

	c := NewConn(Options{URL: wsURL(srv), GuestID: "g-1", GuestName: "Drifter"})
	if err := c.Dial(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case p := <-params:
		if p[0] != "g-1" || p[1] != "Drifter" {
			t.Fatalf("guest params = %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}
}

func TestConnReconnectsAndReplaysJoin(t *testing.T) {
	var connections int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&connections, 1)
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// kill the first connection to force a reconnect
			ws.Close()
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	reconnected := make(chan struct{}, 1)
	c := NewConn(Options{URL: wsURL(srv), Token: "tok"})
	c.OnReconnect(func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})

	if err := c.Dial(); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect callback never fired")
	}

	if atomic.LoadInt32(&connections) < 2 {
		t.Fatal("expected a second connection")
	}
	if err := c.Emit(protocol.EventJoinBoard, protocol.JoinBoard{BoardID: "b1"}); err != nil {
		t.Fatalf("emit after reconnect failed: %v", err)
	}
}

func TestEmitWithoutDialFails(t *testing.T) {
	c := NewConn(Options{URL: "ws://localhost:0"})
	if err := c.Emit("x", nil); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
