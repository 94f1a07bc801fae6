package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomID(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := GenerateRoomID()
		assert.Regexp(t, `^[A-Z0-9]{5}$`, id)
	}
}

func TestRegistry_Join(t *testing.T) {
	t.Run("inserts entry with default delay", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)

		assert.True(t, r.Join("alice"))

		e, ok := r.Get("alice")
		require.True(t, ok)
		assert.Equal(t, DefaultDelayMs, e.DeclaredDelayMs)
		assert.False(t, e.IsMainObserver)
	})

	t.Run("repeated join is a no-op", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		r.Join("alice")
		r.SetDelay("alice", 250)

		assert.False(t, r.Join("alice"))
		assert.Equal(t, 1, r.Size())
		assert.Equal(t, 250, r.Delay("alice"))
	})
}

func TestRegistry_Leave(t *testing.T) {
	t.Run("removes entry", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		r.Join("alice")

		assert.True(t, r.Leave("alice"))
		assert.Equal(t, 0, r.Size())
	})

	t.Run("absent username is a no-op", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		r.Join("alice")

		assert.False(t, r.Leave("ghost"))
		assert.Equal(t, 1, r.Size())
	})
}

func TestRegistry_SelectMainObserver(t *testing.T) {
	mainObservers := func(r *Registry) []string {
		var out []string
		for _, e := range r.Snapshot() {
			if e.IsMainObserver {
				out = append(out, e.Username)
			}
		}
		return out
	}

	t.Run("at most one entry holds the flag", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		r.Join("alice")
		r.Join("bob")
		r.Join("carol")

		assert.True(t, r.SelectMainObserver("alice"))
		assert.Equal(t, []string{"alice"}, mainObservers(r))

		assert.True(t, r.SelectMainObserver("bob"))
		assert.Equal(t, []string{"bob"}, mainObservers(r))

		// The invariant survives removals and re-selections.
		r.Leave("bob")
		assert.Empty(t, mainObservers(r))
		assert.True(t, r.SelectMainObserver("carol"))
		assert.Equal(t, []string{"carol"}, mainObservers(r))
	})

	t.Run("unknown username is a no-op", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		r.Join("alice")
		r.SelectMainObserver("alice")

		assert.False(t, r.SelectMainObserver("ghost"))
		assert.Equal(t, []string{"alice"}, mainObservers(r))
	})

	t.Run("MainObserver reports the holder", func(t *testing.T) {
		r := NewRegistry("ABCDE", nil)
		_, ok := r.MainObserver()
		assert.False(t, ok)

		r.Join("bob")
		r.SelectMainObserver("bob")
		e, ok := r.MainObserver()
		require.True(t, ok)
		assert.Equal(t, "bob", e.Username)
	})
}

func TestRegistry_SetDelay(t *testing.T) {
	r := NewRegistry("ABCDE", nil)
	r.Join("alice")

	assert.True(t, r.SetDelay("alice", 500))
	assert.Equal(t, 500, r.Delay("alice"))

	assert.False(t, r.SetDelay("alice", -1), "negative delays are rejected")
	assert.Equal(t, 500, r.Delay("alice"))

	assert.False(t, r.SetDelay("ghost", 100))
	assert.Equal(t, DefaultDelayMs, r.Delay("ghost"), "unknown users fall back to the default delay")
}

type recordingListener struct {
	added   []string
	removed []string
	main    []string
}

func (l *recordingListener) OnEntryAdded(e Entry)              { l.added = append(l.added, e.Username) }
func (l *recordingListener) OnEntryRemoved(username string)    { l.removed = append(l.removed, username) }
func (l *recordingListener) OnMainObserverChanged(name string) { l.main = append(l.main, name) }

func TestRegistry_Notifications(t *testing.T) {
	l := &recordingListener{}
	r := NewRegistry("ABCDE", l)

	r.Join("alice")
	r.Join("alice") // duplicate, no notification
	r.Join("bob")
	r.SelectMainObserver("bob")
	r.Leave("bob")
	r.Leave("ghost") // absent, no notification

	assert.Equal(t, []string{"alice", "bob"}, l.added)
	assert.Equal(t, []string{"bob"}, l.removed)
	assert.Equal(t, []string{"bob", ""}, l.main, "removing the main observer reports an empty selection")
}
