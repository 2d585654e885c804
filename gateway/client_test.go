package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    EventKind
		wantErr bool
	}{
		{"ready game", `{"type":"ready","payload":{"gameId":"g1"}}`, EventReady, false},
		{"ready tournament", `{"type":"ready","payload":{"tournamentId":"t1","playerId":"alice"}}`, EventReady, false},
		{"ready without target", `{"type":"ready","payload":{}}`, 0, true},
		{"paddle", `{"type":"paddle_move","payload":{"gameId":"g1","deltaY":4}}`, EventPaddleMove, false},
		{"paddle without game", `{"type":"paddle_move","payload":{"deltaY":4}}`, 0, true},
		{"paddle wrong type", `{"type":"paddle_move","payload":{"gameId":"g1","deltaY":"up"}}`, 0, true},
		{"foreign identity", `{"type":"paddle_move","payload":{"gameId":"g1","playerId":"bob","deltaY":4}}`, 0, true},
		{"no payload", `{"type":"ready"}`, 0, true},
		{"unknown type", `{"type":"chat","payload":{"text":"hi"}}`, 0, true},
		{"double encoded", `"{\"type\":\"ready\"}"`, 0, true},
		{"garbage", `]]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseEvent("alice", []byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, "alice", ev.PlayerID)
		})
	}
}

func TestParseEventFillsIdentity(t *testing.T) {
	ev, err := parseEvent("alice", []byte(`{"type":"paddle_move","payload":{"gameId":"g1","deltaY":-3}}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.PaddleMove.PlayerID)
	assert.Equal(t, -3.0, ev.PaddleMove.DeltaY)
}
