package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"whiteboard-backend/pkg/protocol"
)

// Config assembles a full board client.
type Config struct {
	Options

	// BaseURL is the HTTP API base, e.g. http://localhost:8080. Used for the
	// initial canvas load and the debounced saves.
	BaseURL string
	BoardID string

	// UserID is the identity the gateway stamps on this session's
	// rebroadcasts: the numeric account id as a string, or the guest id.
	UserID      string
	DisplayName string
	AvatarURL   string

	SaveDebounce     time.Duration
	FullSyncDebounce time.Duration
	CursorInterval   time.Duration
	HistoryLimit     int

	HTTPClient   *http.Client
	OnSaveStatus func(SaveStatus)
	OnRoster     func([]protocol.PresenceEntry)
	OnCursor     func(protocol.CursorUpdated)
}

// Client bundles the sync stack for one board session: connection,
// reconciler, history, saver, cursors, and presence.
type Client struct {
	cfg  Config
	conn *Conn
	http *http.Client

	Reconciler *Reconciler
	History    *History
	Saver      *Saver
	Cursor     *CursorEmitter
	Cursors    *CursorTracker
	Presence   *PresenceWatcher

	joinAcks chan protocol.JoinAck
}

// New wires a client. Connect must be called before any traffic flows.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.BaseURL == "" {
		return nil, errors.New("boardclient: URL and BaseURL are required")
	}
	if cfg.BoardID == "" {
		return nil, errors.New("boardclient: BoardID is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("boardclient: UserID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	c := &Client{
		cfg:      cfg,
		conn:     NewConn(cfg.Options),
		http:     httpClient,
		joinAcks: make(chan protocol.JoinAck, 4),
	}

	c.History = NewHistory(cfg.HistoryLimit)
	c.Saver = NewSaver(cfg.SaveDebounce, c.saveCanvas, cfg.OnSaveStatus)
	c.Reconciler = NewReconciler(c.conn, cfg.BoardID, cfg.UserID, c.History, c.Saver, cfg.FullSyncDebounce)
	c.Cursor = NewCursorEmitter(c.conn, cfg.BoardID, cfg.CursorInterval)
	c.Cursors = NewCursorTracker(c.conn, cfg.UserID, cfg.OnCursor)
	c.Presence = NewPresenceWatcher(c.conn, cfg.OnRoster, func(self protocol.PresenceEntry) {
		c.Cursor.SetIdentity(self.FullName, self.Color)
	})

	c.conn.On(protocol.EventJoinAck, func(data json.RawMessage) {
		var ack protocol.JoinAck
		if err := json.Unmarshal(data, &ack); err != nil {
			return
		}
		select {
		case c.joinAcks <- ack:
		default:
		}
	})

	// The server forgets everything on disconnect, so a reconnect replays
	// the join handshake from scratch.
	c.conn.OnReconnect(func() {
		if err := c.joinBoard(context.Background()); err != nil {
			log.Printf("[BoardClient] Re-join after reconnect failed: %v", err)
			return
		}
		c.Presence.Join(c.cfg.BoardID, protocol.PresenceUser{
			FullName:  c.cfg.DisplayName,
			AvatarURL: c.cfg.AvatarURL,
		})
	})

	return c, nil
}

// Connect dials the gateway, joins the board room and presence, and loads
// the last persisted canvas. A failed initial load falls back to an empty
// document; the periodic full sync from peers converges us afterwards.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.conn.Dial(); err != nil {
		return err
	}

	if err := c.joinBoard(ctx); err != nil {
		c.conn.Close()
		return err
	}

	if err := c.Presence.Join(c.cfg.BoardID, protocol.PresenceUser{
		FullName:  c.cfg.DisplayName,
		AvatarURL: c.cfg.AvatarURL,
	}); err != nil {
		c.conn.Close()
		return err
	}

	data, err := c.loadCanvas(ctx)
	if err != nil {
		log.Printf("[BoardClient] Initial canvas load failed: %v", err)
		return nil
	}
	if err := c.Reconciler.Bootstrap(data); err != nil {
		log.Printf("[BoardClient] Initial canvas decode failed: %v", err)
	}
	return nil
}

func (c *Client) joinBoard(ctx context.Context) error {
	if err := c.conn.Emit(protocol.EventJoinBoard, protocol.JoinBoard{BoardID: c.cfg.BoardID}); err != nil {
		return err
	}

	timer := time.NewTimer(10 * time.Second)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.joinAcks:
			if ack.BoardID != "" && ack.BoardID != c.cfg.BoardID {
				continue
			}
			if !ack.Success {
				return fmt.Errorf("boardclient: join rejected: %s", ack.Error)
			}
			return nil
		case <-timer.C:
			return errors.New("boardclient: join timed out")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close flushes pending work and tears the session down. The server prunes
// room and presence state on its own when the socket drops.
func (c *Client) Close() error {
	c.Saver.Flush()
	c.conn.Emit(protocol.EventLeaveBoard, protocol.JoinBoard{BoardID: c.cfg.BoardID})
	return c.conn.Close()
}

func (c *Client) loadCanvas(ctx context.Context) ([]byte, error) {
	url := fmt.Sprintf("%s/api/boards/%s/canvas", c.cfg.BaseURL, c.cfg.BoardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("boardclient: canvas load returned %d", resp.StatusCode)
	}

	var body struct {
		CanvasData json.RawMessage `json:"canvasData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.CanvasData, nil
}

// saveCanvas is the SaveFunc behind the debounced writer. Guests have no
// token; their saves come back 403 and surface as offline, matching the
// view-only persistence rule.
func (c *Client) saveCanvas(ctx context.Context, data []byte) error {
	payload, err := json.Marshal(map[string]json.RawMessage{
		"canvasData": data,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/boards/%s/canvas", c.cfg.BaseURL, c.cfg.BoardID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("boardclient: save returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}
