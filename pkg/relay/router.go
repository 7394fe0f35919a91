package relay

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/slideremote/relay/internal/observability"
	"github.com/slideremote/relay/internal/tracing"
)

// Router drives the per-connection protocol state machines and dispatches
// validated envelopes into the registry. One Router serves every connection;
// it holds no per-connection state of its own.
type Router struct {
	registry     *Registry
	sharedSecret string
	logger       zerolog.Logger
}

// NewRouter creates a router over the given registry. An empty sharedSecret
// disables agent authentication.
func NewRouter(registry *Registry, sharedSecret string, logger zerolog.Logger) *Router {
	return &Router{
		registry:     registry,
		sharedSecret: sharedSecret,
		logger:       logger,
	}
}

// HandleAgent runs the agent connection state machine until the connection
// closes: one agent_register, then heartbeats. The session is torn down when
// this returns, whatever the reason; a disconnect is an implicit unregister.
func (rt *Router) HandleAgent(ctx context.Context, conn *Conn) {
	logger := tracing.LoggerFromContext(ctx, rt.logger)
	defer conn.Close()

	data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug().Err(err).Msg("Agent disconnected before registering")
		return
	}

	env, perr := ParseEnvelope(data)
	if perr == nil && env.Type == MessageAgentRegister {
		perr = env.Validate()
	} else if perr == nil {
		perr = fmt.Errorf("expected agent_register, got %q", env.Type)
	}
	if perr != nil {
		observability.RecordRejected(ErrorProtocol)
		logger.Warn().Err(perr).Msg("Closing agent connection on bad first message")
		_ = conn.CloseWithCode(CloseBadAgentHello, "expected agent_register")
		return
	}

	// The shared-secret check happens exactly once, at registration.
	if rt.sharedSecret != "" {
		if subtle.ConstantTimeCompare([]byte(env.Secret), []byte(rt.sharedSecret)) != 1 {
			observability.RecordRejected(ErrorUnauthorized)
			logger.Warn().Str("agent_id", env.AgentID).Msg("Unauthorized agent registration")
			_ = conn.WriteEnvelope(ErrorEnvelope(ErrorUnauthorized))
			_ = conn.CloseWithCode(CloseUnauthorized, ErrorUnauthorized)
			return
		}
	}

	ctx = tracing.WithAgentID(ctx, env.AgentID)
	code, err := rt.registry.RegisterAgent(ctx, env.AgentID, env.Version, conn)
	if err != nil {
		logger.Error().Err(err).Str("agent_id", env.AgentID).Msg("Failed to register agent")
		return
	}
	defer rt.registry.RemoveSession(code)

	ctx = tracing.WithSessionID(ctx, code)
	logger = tracing.LoggerFromContext(ctx, rt.logger)

	if err := conn.WriteEnvelope(SessionAssigned(code)); err != nil {
		logger.Warn().Err(err).Msg("Failed to send session assignment")
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logger.Info().Msg("Agent disconnected")
			return
		}

		env, perr := ParseEnvelope(data)
		if perr != nil {
			rt.rejectProtocol(conn, logger, perr)
			continue
		}

		switch env.Type {
		case MessageAgentHeartbeat:
			if err := env.Validate(); err != nil {
				rt.rejectProtocol(conn, logger, err)
				continue
			}
			if err := rt.registry.TouchHeartbeat(env.AgentID); err != nil {
				logger.Warn().Err(err).Str("agent_id", env.AgentID).Msg("Heartbeat for unknown agent")
				continue
			}
			logger.Debug().Str("agent_id", env.AgentID).Msg("Heartbeat received")
		default:
			rt.rejectProtocol(conn, logger, fmt.Errorf("unexpected message type %q from agent", env.Type))
		}
	}
}

// HandleController runs the controller connection state machine: join by
// code, then commands. An unknown code reports session_not_found and leaves
// the connection open so the controller can retry with a corrected code; a
// typo should not force a reconnect.
func (rt *Router) HandleController(ctx context.Context, conn *Conn) {
	logger := tracing.LoggerFromContext(ctx, rt.logger)
	defer conn.Close()

	var sessionID string
	for sessionID == "" {
		data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("Controller disconnected before joining")
			return
		}

		env, perr := ParseEnvelope(data)
		if perr == nil && env.Type == MessageJoinSession {
			perr = env.Validate()
		} else if perr == nil {
			perr = fmt.Errorf("expected join_session, got %q", env.Type)
		}
		if perr != nil {
			observability.RecordRejected(ErrorProtocol)
			logger.Warn().Err(perr).Msg("Closing controller connection on bad first message")
			_ = conn.CloseWithCode(CloseBadControllerHello, "expected join_session")
			return
		}

		joinCtx := tracing.WithSessionID(ctx, env.SessionID)
		if err := rt.registry.JoinSession(joinCtx, env.SessionID, conn); err != nil {
			logger.Info().Str("session_id", env.SessionID).Msg("Join rejected, unknown session")
			if werr := conn.WriteEnvelope(ErrorEnvelope(ErrorSessionNotFound)); werr != nil {
				return
			}
			continue
		}

		sessionID = env.SessionID
		ctx = tracing.WithSessionID(ctx, sessionID)
		logger = tracing.LoggerFromContext(ctx, rt.logger)

		if err := conn.WriteEnvelope(SessionJoined(sessionID)); err != nil {
			logger.Warn().Err(err).Msg("Failed to send join confirmation")
		}
	}
	defer rt.registry.LeaveSession(sessionID, conn.ID)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logger.Info().Msg("Controller disconnected")
			return
		}

		env, perr := ParseEnvelope(data)
		if perr != nil {
			rt.rejectProtocol(conn, logger, perr)
			continue
		}

		switch env.Type {
		case MessageCommand:
			if err := env.Validate(); err != nil {
				rt.rejectProtocol(conn, logger, err)
				continue
			}
			rt.routeCommand(ctx, conn, logger, env)
		default:
			rt.rejectProtocol(conn, logger, fmt.Errorf("unexpected message type %q from controller", env.Type))
		}
	}
}

func (rt *Router) routeCommand(ctx context.Context, conn *Conn, logger zerolog.Logger, env Envelope) {
	err := rt.registry.RouteCommand(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCommand):
		_ = conn.WriteEnvelope(ErrorEnvelope(ErrorInvalidCommand))
	case errors.Is(err, ErrSessionNotFound):
		_ = conn.WriteEnvelope(ErrorEnvelope(ErrorSessionNotFound))
	default:
		// Delivery failure means the agent connection died mid-write; the
		// agent's own read loop tears the session down.
		logger.Warn().Err(err).Str("session_id", env.SessionID).Msg("Failed to deliver command")
	}
}

func (rt *Router) rejectProtocol(conn *Conn, logger zerolog.Logger, cause error) {
	observability.RecordRejected(ErrorProtocol)
	logger.Warn().Err(cause).Msg("Rejected message")
	_ = conn.WriteEnvelope(ErrorEnvelope(ErrorProtocol))
}
