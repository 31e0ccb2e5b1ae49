// Package signaling holds the WebSocket message types of the P2P, Ayame
// and Sora signaling protocols and a JSON connection wrapper shared by the
// stub media client and the mock servers.
package signaling

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Upgrader accepts any origin; the servers only run on test hosts.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Conn is a WebSocket carrying JSON text messages. Writes are serialized;
// reads must come from a single goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial connects to url. insecure disables TLS certificate verification.
func Dial(ctx context.Context, url string, insecure bool) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Accept upgrades an HTTP request.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{ws: ws}, nil
}

// Send writes v as a JSON text message.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Receive reads the next text message and returns its "type" and raw body.
func (c *Conn) Receive() (string, []byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return "", nil, fmt.Errorf("decode message: %w", err)
		}
		return head.Type, data, nil
	}
}

// SetReadDeadline bounds the next Receive.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// Close sends a normal closure frame and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// IsClosed reports whether err is an ordinary end of the connection.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
