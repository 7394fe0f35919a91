package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/slideremote/relay/pkg/relay"
)

const (
	// DefaultHeartbeatInterval keeps the hub-side TTL (10 minutes by
	// default) satisfied with a wide margin.
	DefaultHeartbeatInterval = 15 * time.Second

	// Version is reported to the hub at registration.
	Version = "0.1.0"
)

// CommandHandler receives each command forwarded by the hub. Turning the
// command into a key press is the caller's concern.
type CommandHandler func(command string)

// Config holds agent client configuration
type Config struct {
	// URL is the hub's agent endpoint, e.g. ws://host:8080/ws/agent.
	URL string

	// AgentID identifies this machine to the hub. Defaults to a generated
	// pc-<id> identity.
	AgentID string

	// Secret is the shared secret, if the hub requires one.
	Secret string

	// HeartbeatInterval between liveness signals.
	HeartbeatInterval time.Duration

	// Handler is invoked for every recognized command.
	Handler CommandHandler

	// OnAssigned is invoked once with the session code the hub assigned.
	OnAssigned func(sessionID string)

	Logger zerolog.Logger
}

// Client is the desktop-agent side of the relay: it registers with the hub,
// keeps the session alive with heartbeats, and dispatches forwarded
// commands to the handler.
type Client struct {
	url               string
	agentID           string
	secret            string
	heartbeatInterval time.Duration
	handler           CommandHandler
	onAssigned        func(string)
	logger            zerolog.Logger
}

// New creates a new agent client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("hub url is required")
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("hub url must use ws:// or wss:// scheme")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("command handler is required")
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = "pc-" + uuid.New().String()[:8]
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	return &Client{
		url:               cfg.URL,
		agentID:           agentID,
		secret:            cfg.Secret,
		heartbeatInterval: interval,
		handler:           cfg.Handler,
		onAssigned:        cfg.OnAssigned,
		logger:            cfg.Logger,
	}, nil
}

// AgentID returns the identity this client registers under.
func (c *Client) AgentID() string {
	return c.agentID
}

// Run connects to the hub, registers, and processes forwarded commands until
// the connection closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info().
		Str("url", c.url).
		Str("agent_id", c.agentID).
		Msg("Connecting to relay hub")

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to hub: %w", err)
	}
	defer ws.Close()

	// Cancellation unblocks the read loop by closing the socket.
	stop := context.AfterFunc(ctx, func() {
		_ = ws.Close()
	})
	defer stop()

	register := relay.Envelope{
		Type:    relay.MessageAgentRegister,
		AgentID: c.agentID,
		Version: Version,
		Secret:  c.secret,
	}
	if err := ws.WriteJSON(register); err != nil {
		return fmt.Errorf("failed to send registration: %w", err)
	}

	sessionID, err := c.awaitAssignment(ws)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("session_id", sessionID).
		Msg("Registered with hub")

	if c.onAssigned != nil {
		c.onAssigned(sessionID)
	}

	heartbeatCtx, cancelHeartbeats := context.WithCancel(ctx)
	defer cancelHeartbeats()
	go c.sendHeartbeats(heartbeatCtx, ws)

	return c.readCommands(ctx, ws)
}

func (c *Client) awaitAssignment(ws *websocket.Conn) (string, error) {
	var env relay.Envelope
	if err := ws.ReadJSON(&env); err != nil {
		return "", fmt.Errorf("failed to read registration reply: %w", err)
	}

	switch env.Type {
	case relay.MessageSessionAssigned:
		if env.SessionID == "" {
			return "", fmt.Errorf("hub assigned empty session id")
		}
		return env.SessionID, nil
	case relay.MessageError:
		return "", fmt.Errorf("hub rejected registration: %s", env.Error)
	default:
		return "", fmt.Errorf("unexpected first message from hub: %s", env.Type)
	}
}

func (c *Client) sendHeartbeats(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := relay.Envelope{
				Type:    relay.MessageAgentHeartbeat,
				AgentID: c.agentID,
			}
			if err := ws.WriteJSON(hb); err != nil {
				// Connection likely closed; the read loop reports it.
				c.logger.Debug().Err(err).Msg("Heartbeat send failed")
				return
			}
			c.logger.Debug().Msg("Heartbeat sent")
		}
	}
}

func (c *Client) readCommands(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("hub connection closed: %w", err)
		}

		var env relay.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Msg("Received invalid JSON from hub, ignoring")
			continue
		}

		if env.Type != relay.MessageCommand {
			// Other message types are fine to ignore.
			continue
		}

		if !relay.IsKnownCommand(env.Command) {
			c.logger.Warn().Str("command", env.Command).Msg("Unknown command, ignoring")
			continue
		}

		c.logger.Info().
			Str("session_id", env.SessionID).
			Str("command", env.Command).
			Str("controller_id", env.ControllerID).
			Msg("Command received")

		c.handler(env.Command)
	}
}
