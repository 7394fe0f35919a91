package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("valid envelope", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"agent_register","agent_id":"pc-1","version":"0.1.0"}`))
		require.NoError(t, err)
		assert.Equal(t, MessageAgentRegister, env.Type)
		assert.Equal(t, "pc-1", env.AgentID)
		assert.Equal(t, "0.1.0", env.Version)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"agent_id":"pc-1"}`))
		assert.Error(t, err)
	})
}

func TestEnvelopeValidate(t *testing.T) {
	t.Run("agent_register requires agent_id and version", func(t *testing.T) {
		env := Envelope{Type: MessageAgentRegister, AgentID: "pc-1", Version: "0.1.0"}
		assert.NoError(t, env.Validate())

		assert.Error(t, Envelope{Type: MessageAgentRegister, Version: "0.1.0"}.Validate())
		assert.Error(t, Envelope{Type: MessageAgentRegister, AgentID: "pc-1"}.Validate())
	})

	t.Run("agent_heartbeat requires agent_id", func(t *testing.T) {
		assert.NoError(t, Envelope{Type: MessageAgentHeartbeat, AgentID: "pc-1"}.Validate())
		assert.Error(t, Envelope{Type: MessageAgentHeartbeat}.Validate())
	})

	t.Run("join_session requires session_id and controller_id", func(t *testing.T) {
		env := Envelope{Type: MessageJoinSession, SessionID: "ABC234", ControllerID: "ctl-1"}
		assert.NoError(t, env.Validate())

		assert.Error(t, Envelope{Type: MessageJoinSession, ControllerID: "ctl-1"}.Validate())
		assert.Error(t, Envelope{Type: MessageJoinSession, SessionID: "ABC234"}.Validate())
	})

	t.Run("command requires session, command and controller", func(t *testing.T) {
		env := Envelope{Type: MessageCommand, SessionID: "ABC234", Command: CommandNext, ControllerID: "ctl-1"}
		assert.NoError(t, env.Validate())

		assert.Error(t, Envelope{Type: MessageCommand, Command: CommandNext, ControllerID: "ctl-1"}.Validate())
		assert.Error(t, Envelope{Type: MessageCommand, SessionID: "ABC234", ControllerID: "ctl-1"}.Validate())
		assert.Error(t, Envelope{Type: MessageCommand, SessionID: "ABC234", Command: CommandNext}.Validate())
	})

	t.Run("error requires reason", func(t *testing.T) {
		assert.NoError(t, Envelope{Type: MessageError, Error: ErrorUnauthorized}.Validate())
		assert.Error(t, Envelope{Type: MessageError}.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		assert.Error(t, Envelope{Type: "bogus"}.Validate())
	})
}

func TestEnvelopeOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(SessionAssigned("ABC234"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "session_assigned", raw["type"])
	assert.Equal(t, "ABC234", raw["session_id"])
	assert.NotContains(t, raw, "agent_id")
	assert.NotContains(t, raw, "secret")
	assert.NotContains(t, raw, "error")
}

func TestIsKnownCommand(t *testing.T) {
	assert.True(t, IsKnownCommand(CommandNext))
	assert.True(t, IsKnownCommand(CommandPrev))
	assert.False(t, IsKnownCommand("jump"))
	assert.False(t, IsKnownCommand(""))
	assert.False(t, IsKnownCommand("NEXT"))
}

func TestErrorEnvelope(t *testing.T) {
	env := ErrorEnvelope(ErrorSessionNotFound)
	assert.Equal(t, MessageError, env.Type)
	assert.Equal(t, "session_not_found", env.Error)
}
