package clocksync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoslabs/chronos/internal/protocol"
	"github.com/chronoslabs/chronos/internal/roster"
)

type fakeSource struct {
	ms  int64
	err error
}

func (s fakeSource) CurrentTimeMillis(context.Context) (int64, error) { return s.ms, s.err }

type fakeSink struct {
	applied []float64
	err     error
}

func (s *fakeSink) ApplyOffset(_ context.Context, seconds float64) error {
	s.applied = append(s.applied, seconds)
	return s.err
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 119.5, Offset(120000, 500, 1000))
	assert.Equal(t, 120.0, Offset(120000, 1000, 1000))
	assert.Equal(t, 0.001, Offset(1, 0, 0), "division must not truncate")
	assert.Equal(t, -0.5, Offset(0, 0, 500))
}

func TestBuildTimeRequest(t *testing.T) {
	t.Run("uses declared delays of both ends", func(t *testing.T) {
		reg := roster.NewRegistry("ABCDE", nil)
		reg.Join("alice")
		reg.Join("bob")
		reg.SetDelay("alice", 500)
		reg.SelectMainObserver("bob")

		out, ok := BuildTimeRequest(reg, "alice")

		require.True(t, ok)
		assert.Equal(t, "ABCDE/bob", out.Topic)
		assert.Equal(t, protocol.TimeRequest("alice", 500, 1000), out.Message)
	})

	t.Run("falls back to the default delay for unknown requesters", func(t *testing.T) {
		reg := roster.NewRegistry("ABCDE", nil)
		reg.Join("bob")
		reg.SetDelay("bob", 200)
		reg.SelectMainObserver("bob")

		out, ok := BuildTimeRequest(reg, "stranger")

		require.True(t, ok)
		assert.Equal(t, protocol.TimeRequest("stranger", roster.DefaultDelayMs, 200), out.Message)
	})

	t.Run("drops the request when no main observer is selected", func(t *testing.T) {
		reg := roster.NewRegistry("ABCDE", nil)
		reg.Join("alice")

		_, ok := BuildTimeRequest(reg, "alice")

		assert.False(t, ok)
	})
}

func TestResponder_HandleTimeRequest(t *testing.T) {
	t.Run("answers the requester with the computed offset", func(t *testing.T) {
		r := NewResponder(fakeSource{ms: 120000}, &fakeSink{})

		out, ok := r.HandleTimeRequest(context.Background(), "ABCDE", protocol.TimeRequest("alice", 500, 1000))

		require.True(t, ok)
		assert.Equal(t, "ABCDE/alice", out.Topic)
		assert.Equal(t, protocol.SyncResponse(119.5), out.Message)
	})

	t.Run("drops the response when the time source fails", func(t *testing.T) {
		r := NewResponder(fakeSource{err: errors.New("replay API unavailable")}, &fakeSink{})

		_, ok := r.HandleTimeRequest(context.Background(), "ABCDE", protocol.TimeRequest("alice", 500, 1000))

		assert.False(t, ok)
	})
}

func TestResponder_HandleSyncResponse(t *testing.T) {
	t.Run("hands the offset to the sink", func(t *testing.T) {
		sink := &fakeSink{}
		r := NewResponder(fakeSource{}, sink)

		r.HandleSyncResponse(context.Background(), protocol.SyncResponse(119.5))

		assert.Equal(t, []float64{119.5}, sink.applied)
	})

	t.Run("sink failures are swallowed", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("seek failed")}
		r := NewResponder(fakeSource{}, sink)

		r.HandleSyncResponse(context.Background(), protocol.SyncResponse(1))

		assert.Equal(t, []float64{1}, sink.applied)
	})
}
