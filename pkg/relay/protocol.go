package relay

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the shape of a wire envelope.
type MessageType string

const (
	MessageAgentRegister   MessageType = "agent_register"
	MessageAgentHeartbeat  MessageType = "agent_heartbeat"
	MessageSessionAssigned MessageType = "session_assigned"
	MessageJoinSession     MessageType = "join_session"
	MessageSessionJoined   MessageType = "session_joined"
	MessageCommand         MessageType = "command"
	MessageError           MessageType = "error"
)

// Commands accepted from controllers. Anything else is rejected and never
// forwarded to the agent.
const (
	CommandNext = "next"
	CommandPrev = "prev"
)

// Error reason strings sent in error envelopes.
const (
	ErrorUnauthorized    = "unauthorized"
	ErrorSessionNotFound = "session_not_found"
	ErrorInvalidCommand  = "invalid_command"
	ErrorProtocol        = "protocol_error"
)

// WebSocket close codes used by the hub.
const (
	CloseBadAgentHello      = 4000
	CloseBadControllerHello = 4001
	CloseUnauthorized       = 4401
)

// Envelope is the single flat JSON envelope used for every message on the
// wire, agent and controller side alike. Which fields are required depends
// on Type.
type Envelope struct {
	Type         MessageType `json:"type"`
	AgentID      string      `json:"agent_id,omitempty"`
	Version      string      `json:"version,omitempty"`
	Secret       string      `json:"secret,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	Command      string      `json:"command,omitempty"`
	ControllerID string      `json:"controller_id,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// ParseEnvelope decodes a raw wire message.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type field")
	}
	return env, nil
}

// Validate checks that the envelope carries the required fields for its
// declared type. It does not check command values; the registry owns that.
func (e Envelope) Validate() error {
	switch e.Type {
	case MessageAgentRegister:
		if e.AgentID == "" {
			return fmt.Errorf("agent_register missing agent_id")
		}
		if e.Version == "" {
			return fmt.Errorf("agent_register missing version")
		}
	case MessageAgentHeartbeat:
		if e.AgentID == "" {
			return fmt.Errorf("agent_heartbeat missing agent_id")
		}
	case MessageJoinSession:
		if e.SessionID == "" {
			return fmt.Errorf("join_session missing session_id")
		}
		if e.ControllerID == "" {
			return fmt.Errorf("join_session missing controller_id")
		}
	case MessageCommand:
		if e.SessionID == "" {
			return fmt.Errorf("command missing session_id")
		}
		if e.Command == "" {
			return fmt.Errorf("command missing command")
		}
		if e.ControllerID == "" {
			return fmt.Errorf("command missing controller_id")
		}
	case MessageSessionAssigned, MessageSessionJoined:
		if e.SessionID == "" {
			return fmt.Errorf("%s missing session_id", e.Type)
		}
	case MessageError:
		if e.Error == "" {
			return fmt.Errorf("error envelope missing error")
		}
	default:
		return fmt.Errorf("unknown message type: %s", e.Type)
	}
	return nil
}

// SessionAssigned builds the registration reply carrying the session code.
func SessionAssigned(sessionID string) Envelope {
	return Envelope{Type: MessageSessionAssigned, SessionID: sessionID}
}

// SessionJoined builds the successful join reply.
func SessionJoined(sessionID string) Envelope {
	return Envelope{Type: MessageSessionJoined, SessionID: sessionID}
}

// ErrorEnvelope builds an error reply with the given reason string.
func ErrorEnvelope(reason string) Envelope {
	return Envelope{Type: MessageError, Error: reason}
}

// IsKnownCommand reports whether the command value is one the hub forwards.
func IsKnownCommand(command string) bool {
	return command == CommandNext || command == CommandPrev
}
