package relay

import (
	"sync"
	"time"
)

// Session binds one registered agent to the controllers that joined its code.
// The agent connection is owned by the session; controller membership is a
// weak reference keyed by connection ID, so a controller's own close path
// stays responsible for its teardown.
type Session struct {
	Code    string
	AgentID string
	Version string

	mu          sync.Mutex
	agent       *Conn
	controllers map[string]*Conn
	lastSeen    time.Time
	removed     bool
}

func newSession(code, agentID, version string, agent *Conn, now time.Time) *Session {
	return &Session{
		Code:        code,
		AgentID:     agentID,
		Version:     version,
		agent:       agent,
		controllers: make(map[string]*Conn),
		lastSeen:    now,
	}
}

// Touch updates the liveness timestamp. Called on registration and on every
// heartbeat.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

// LastSeen returns the time of the last registration or heartbeat.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AddController joins a controller connection to the session. It reports
// false if the session has already been removed, so a join racing a removal
// cannot leave a dangling membership.
func (s *Session) AddController(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.controllers[conn.ID] = conn
	return true
}

// RemoveController drops a controller membership by connection ID.
func (s *Session) RemoveController(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controllers, connID)
}

// ControllerCount returns the number of joined controllers.
func (s *Session) ControllerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}

// ForwardToAgent delivers one envelope to the agent connection. It fails
// with ErrSessionNotFound once the session has been removed, which keeps
// routing atomic with respect to teardown.
func (s *Session) ForwardToAgent(env Envelope) error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	agent := s.agent
	s.mu.Unlock()

	return agent.WriteEnvelope(env)
}

// teardown marks the session removed and closes the agent plus every joined
// controller. Idempotent; only the first call closes anything.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.removed = true
	conns := make([]*Conn, 0, len(s.controllers)+1)
	conns = append(conns, s.agent)
	for _, c := range s.controllers {
		conns = append(conns, c)
	}
	s.controllers = make(map[string]*Conn)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
