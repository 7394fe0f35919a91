package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/slideremote/relay/internal/observability"
	"github.com/slideremote/relay/internal/tracing"
)

const (
	// CodeLength is the length of a session code. Six characters over a
	// 32-symbol alphabet is comfortably large for the handful of live
	// sessions a hub holds, and short enough to type on a phone.
	CodeLength = 6

	codeGenAttempts = 5
)

// codeAlphabet skips 0/O and 1/I so codes survive being read off a screen.
var codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	// ErrSessionNotFound reports a lookup against a code with no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidCommand reports a command value outside the recognized set.
	ErrInvalidCommand = errors.New("invalid command")
)

// Registry owns every live session and the code and agent-identity indexes
// over them. All mutation goes through the registry's lock; sessions guard
// their own fields. Nothing here touches the network while holding a lock
// except the final forward to an agent connection, which is a buffered
// in-memory write per peer.
type Registry struct {
	mu                sync.RWMutex
	sessionsByCode    map[string]*Session
	sessionsByAgentID map[string]*Session

	now    func() time.Time
	logger zerolog.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	observability.EnsureRegistered()

	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Registry{
		sessionsByCode:    make(map[string]*Session),
		sessionsByAgentID: make(map[string]*Session),
		now:               nowFn,
		logger:            opts.Logger,
	}
}

// RegisterAgent allocates a fresh session for the agent connection and
// returns its code. If the same agent identity is already registered, the
// old session is replaced and its connections are closed; the agent gets a
// new code. Codes are unique among live sessions; generation retries on
// collision.
func (r *Registry) RegisterAgent(ctx context.Context, agentID, version string, conn *Conn) (string, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.mu.Lock()

	var replaced *Session
	if old, ok := r.sessionsByAgentID[agentID]; ok {
		delete(r.sessionsByCode, old.Code)
		delete(r.sessionsByAgentID, agentID)
		replaced = old
	}

	code, err := r.generateCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	sess := newSession(code, agentID, version, conn, r.now())
	r.sessionsByCode[code] = sess
	r.sessionsByAgentID[agentID] = sess
	count := len(r.sessionsByCode)
	r.mu.Unlock()

	if replaced != nil {
		replaced.teardown()
		logger.Warn().
			Str("agent_id", agentID).
			Str("old_session_id", replaced.Code).
			Msg("Replaced existing registration for agent")
	}

	observability.RecordRegistration()
	observability.SetActiveSessions(count)

	logger.Info().
		Str("agent_id", agentID).
		Str("session_id", code).
		Str("version", version).
		Msg("Agent registered")

	return code, nil
}

// JoinSession attaches a controller connection to the session with the given
// code. Fails with ErrSessionNotFound for unknown codes so the caller can
// relay the error without tearing the connection down.
func (r *Registry) JoinSession(ctx context.Context, code string, conn *Conn) error {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.mu.RLock()
	sess, ok := r.sessionsByCode[code]
	r.mu.RUnlock()

	if !ok || !sess.AddController(conn) {
		return ErrSessionNotFound
	}

	observability.RecordJoin()

	logger.Info().
		Str("session_id", code).
		Int("controllers", sess.ControllerCount()).
		Msg("Controller joined session")

	return nil
}

// LeaveSession drops a controller membership. Missing sessions or members
// are ignored; the controller is gone either way.
func (r *Registry) LeaveSession(code, connID string) {
	r.mu.RLock()
	sess, ok := r.sessionsByCode[code]
	r.mu.RUnlock()

	if ok {
		sess.RemoveController(connID)
	}
}

// RouteCommand validates the command value and forwards the envelope to the
// agent of the addressed session. Controllers never receive commands; only
// the agent side of the session does.
func (r *Registry) RouteCommand(ctx context.Context, env Envelope) error {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if !IsKnownCommand(env.Command) {
		observability.RecordRejected(ErrorInvalidCommand)
		logger.Warn().
			Str("session_id", env.SessionID).
			Str("command", env.Command).
			Msg("Dropping unrecognized command")
		return ErrInvalidCommand
	}

	r.mu.RLock()
	sess, ok := r.sessionsByCode[env.SessionID]
	r.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}

	forward := Envelope{
		Type:         MessageCommand,
		SessionID:    env.SessionID,
		Command:      env.Command,
		ControllerID: env.ControllerID,
	}
	if err := sess.ForwardToAgent(forward); err != nil {
		return err
	}

	observability.RecordCommandForwarded(env.Command)

	logger.Debug().
		Str("session_id", env.SessionID).
		Str("command", env.Command).
		Str("controller_id", env.ControllerID).
		Msg("Command forwarded to agent")

	return nil
}

// TouchHeartbeat updates the last-seen timestamp for the agent's session.
func (r *Registry) TouchHeartbeat(agentID string) error {
	r.mu.RLock()
	sess, ok := r.sessionsByAgentID[agentID]
	r.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.Touch(r.now())
	observability.RecordHeartbeat()
	return nil
}

// RemoveSession tears down the session with the given code: it is removed
// from the indexes first, then the agent and all controller connections are
// closed. Idempotent, and safe against concurrent lookups; once removal
// begins no lookup observes the session half-gone.
func (r *Registry) RemoveSession(code string) {
	r.mu.Lock()
	sess, ok := r.sessionsByCode[code]
	if ok {
		delete(r.sessionsByCode, code)
		delete(r.sessionsByAgentID, sess.AgentID)
	}
	count := len(r.sessionsByCode)
	r.mu.Unlock()

	if !ok {
		return
	}

	sess.teardown()
	observability.SetActiveSessions(count)

	r.logger.Info().
		Str("session_id", code).
		Str("agent_id", sess.AgentID).
		Msg("Session removed")
}

// SweepExpired removes every session whose agent has been silent longer than
// ttl, and returns the removed codes in sorted order.
func (r *Registry) SweepExpired(now time.Time, ttl time.Duration) []string {
	cutoff := now.Add(-ttl)

	r.mu.Lock()
	var expired []*Session
	for _, sess := range r.sessionsByCode {
		if sess.LastSeen().Before(cutoff) {
			expired = append(expired, sess)
		}
	}
	for _, sess := range expired {
		delete(r.sessionsByCode, sess.Code)
		delete(r.sessionsByAgentID, sess.AgentID)
	}
	count := len(r.sessionsByCode)
	r.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	codes := make([]string, 0, len(expired))
	for _, sess := range expired {
		sess.teardown()
		codes = append(codes, sess.Code)

		r.logger.Info().
			Str("session_id", sess.Code).
			Str("agent_id", sess.AgentID).
			Time("last_seen", sess.LastSeen()).
			Msg("Session expired")
	}
	sort.Strings(codes)

	observability.RecordExpiredSessions(len(codes))
	observability.SetActiveSessions(count)

	return codes
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessionsByCode)
}

// Get returns the live session for a code, if any.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessionsByCode[code]
	return sess, ok
}

// teardownAll removes every session; used on server shutdown.
func (r *Registry) teardownAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessionsByCode))
	for _, sess := range r.sessionsByCode {
		sessions = append(sessions, sess)
	}
	r.sessionsByCode = make(map[string]*Session)
	r.sessionsByAgentID = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.teardown()
	}
	observability.SetActiveSessions(0)
}

func (r *Registry) generateCodeLocked() (string, error) {
	for i := 0; i < codeGenAttempts; i++ {
		code, err := gonanoid.Generate(codeAlphabet, CodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate session code: %w", err)
		}
		if _, exists := r.sessionsByCode[code]; !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique session code")
}
