package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Role fixes what kind of peer a connection represents. It is assigned when
// the connection is accepted and never changes.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleController Role = "controller"
)

// Conn wraps a single WebSocket peer. Writes are serialized through a mutex
// because envelope sends come from both the owning read loop and other
// connections routing commands. Close is idempotent; the cleanup path behind
// it runs exactly once no matter who initiates the close.
type Conn struct {
	ID          string
	Role        Role
	RemoteAddr  string
	ConnectedAt time.Time

	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an upgraded WebSocket connection for the given role.
func NewConn(ws *websocket.Conn, role Role, remoteAddr string) *Conn {
	id, _ := gonanoid.New()
	return &Conn{
		ID:          id,
		Role:        role,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		ws:          ws,
	}
}

// ReadMessage blocks until the next message arrives or the connection closes.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteEnvelope sends one envelope to the peer.
func (c *Conn) WriteEnvelope(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// Close tears the connection down. Safe to call from any goroutine and any
// number of times; only the first call reaches the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// CloseWithCode sends a close frame carrying the given status code before
// closing the underlying socket.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(time.Second)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
