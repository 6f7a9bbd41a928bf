package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "socsync/internal/errors"
)

const (
	wsMaxMessageSize = 1 << 20
	wsCloseWait      = time.Second
)

// WebsocketConfig configures the websocket transport.
type WebsocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	// PingInterval controls keepalive pings. Zero disables them.
	PingInterval time.Duration
	Header       http.Header
}

// WebsocketTransport dials the push endpoint over websocket.
type WebsocketTransport struct {
	cfg    WebsocketConfig
	dialer websocket.Dialer
}

// NewWebsocketTransport validates cfg and builds the transport.
func NewWebsocketTransport(cfg WebsocketConfig) (*WebsocketTransport, error) {
	if cfg.URL == "" {
		return nil, apperrors.Validation("websocket", "push url is required")
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &WebsocketTransport{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}, nil
}

// Dial opens a connection. The token travels as a bearer header; 401 and
// 403 upgrade responses are reported as authentication failures.
func (t *WebsocketTransport) Dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	for k, v := range t.cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, apperrors.New(apperrors.KindAuthentication, "dial", "AUTHENTICATION_FAILED",
				fmt.Sprintf("push endpoint refused upgrade: %s", resp.Status))
		}
		return nil, apperrors.Wrap(apperrors.KindTransport, "dial", err)
	}

	conn.SetReadLimit(wsMaxMessageSize)
	wc := &wsConn{conn: conn, done: make(chan struct{})}
	conn.SetPongHandler(func(string) error {
		wc.activity()
		return nil
	})
	if t.cfg.PingInterval > 0 {
		go wc.pingLoop(t.cfg.PingInterval)
	}
	return wc, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	actMu      sync.RWMutex
	onActivity func()

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.KindTransport, "read", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "write", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWait))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) SetActivityHandler(fn func()) {
	c.actMu.Lock()
	c.onActivity = fn
	c.actMu.Unlock()
}

func (c *wsConn) activity() {
	c.actMu.RLock()
	fn := c.onActivity
	c.actMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				return
			}
		}
	}
}
