package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("parses a time request with all fields", func(t *testing.T) {
		payload := []byte(`{"action":"TIME_REQ","requester":"alice","requester_delay":500,"main_observer_delay":1000}`)

		msg, ok := Decode(payload)

		require.True(t, ok)
		assert.Equal(t, ActionTimeRequest, msg.Action)
		assert.Equal(t, "alice", msg.Requester)
		assert.Equal(t, 500, msg.RequesterDelay)
		assert.Equal(t, 1000, msg.MainObserverDelay)
	})

	t.Run("parses a sync response value", func(t *testing.T) {
		msg, ok := Decode([]byte(`{"action":"SYNC_RESPONSE","value":119.5}`))

		require.True(t, ok)
		assert.Equal(t, 119.5, msg.Value)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, ok := Decode([]byte(`{"action":`))
		assert.False(t, ok)
	})

	t.Run("rejects valid JSON without an action", func(t *testing.T) {
		_, ok := Decode([]byte(`{"value":1}`))
		assert.False(t, ok)
	})

	t.Run("rejects an unrecognized action", func(t *testing.T) {
		_, ok := Decode([]byte(`{"action":"PING"}`))
		assert.False(t, ok)
	})

	t.Run("rejects non-object payloads", func(t *testing.T) {
		_, ok := Decode([]byte(`"JOIN"`))
		assert.False(t, ok)
	})
}

func TestEncode(t *testing.T) {
	t.Run("join carries only the action tag", func(t *testing.T) {
		payload, err := Encode(Join())

		require.NoError(t, err)
		assert.JSONEq(t, `{"action":"JOIN"}`, string(payload))
	})

	t.Run("time request keeps zero delays on the wire", func(t *testing.T) {
		payload, err := Encode(TimeRequest("bob", 0, 0))

		require.NoError(t, err)
		assert.JSONEq(t, `{"action":"TIME_REQ","requester":"bob","requester_delay":0,"main_observer_delay":0}`, string(payload))
	})

	t.Run("sync response carries the offset in seconds", func(t *testing.T) {
		payload, err := Encode(SyncResponse(119.5))

		require.NoError(t, err)
		assert.JSONEq(t, `{"action":"SYNC_RESPONSE","value":119.5}`, string(payload))
	})

	t.Run("assign carries time_ms", func(t *testing.T) {
		payload, err := Encode(Assign(1500))

		require.NoError(t, err)
		assert.JSONEq(t, `{"action":"ASSIGN","time_ms":1500}`, string(payload))
	})

	t.Run("encoded messages decode back", func(t *testing.T) {
		payload, err := Encode(TimeRequest("alice", 500, 1000))
		require.NoError(t, err)

		msg, ok := Decode(payload)
		require.True(t, ok)
		assert.Equal(t, TimeRequest("alice", 500, 1000), msg)
	})

	t.Run("wire form is a JSON object", func(t *testing.T) {
		payload, err := Encode(SyncRequest())
		require.NoError(t, err)

		var obj map[string]any
		require.NoError(t, json.Unmarshal(payload, &obj))
		assert.Equal(t, "SYNC_REQ", obj["action"])
	})
}
