package roster

import (
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
)

// DefaultDelayMs is the declared delay assigned to a user that has not been
// given one by the operator.
const DefaultDelayMs = 1000

const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomIDLength   = 5
)

// Entry is one participant in a room's roster.
type Entry struct {
	Username        string `json:"username"`
	DeclaredDelayMs int    `json:"declared_delay_ms"`
	IsMainObserver  bool   `json:"is_main_observer"`
}

// Listener receives roster change notifications for rendering. All calls
// happen on the producer relay's goroutine.
type Listener interface {
	OnEntryAdded(e Entry)
	OnEntryRemoved(username string)
	// OnMainObserverChanged reports the new holder; empty means nobody is
	// selected.
	OnMainObserverChanged(username string)
}

// NopListener discards all roster notifications.
type NopListener struct{}

func (NopListener) OnEntryAdded(Entry)           {}
func (NopListener) OnEntryRemoved(string)        {}
func (NopListener) OnMainObserverChanged(string) {}

// GenerateRoomID returns a 5-character room code drawn uniformly from
// upper-case letters and digits. Collisions across independent producers
// are not detected.
func GenerateRoomID() string {
	id := make([]byte, roomIDLength)
	for i := range id {
		id[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(id)
}

// Registry owns a room's identity and roster. It is not safe for concurrent
// use; the producer relay serializes every access through its command loop.
type Registry struct {
	roomID   string
	entries  map[string]*Entry
	listener Listener
}

// NewRegistry creates an empty roster for the given room.
func NewRegistry(roomID string, listener Listener) *Registry {
	if listener == nil {
		listener = NopListener{}
	}
	return &Registry{
		roomID:   roomID,
		entries:  make(map[string]*Entry),
		listener: listener,
	}
}

// RoomID returns the room this registry serves.
func (r *Registry) RoomID() string {
	return r.roomID
}

// Join inserts a roster entry with the default delay. Repeated joins for
// the same username are no-ops, which absorbs duplicated or reordered
// deliveries.
func (r *Registry) Join(username string) bool {
	if _, ok := r.entries[username]; ok {
		return false
	}
	e := &Entry{Username: username, DeclaredDelayMs: DefaultDelayMs}
	r.entries[username] = e
	r.listener.OnEntryAdded(*e)
	return true
}

// Leave removes a roster entry. Absent usernames are a no-op.
func (r *Registry) Leave(username string) bool {
	e, ok := r.entries[username]
	if !ok {
		return false
	}
	delete(r.entries, username)
	r.listener.OnEntryRemoved(username)
	if e.IsMainObserver {
		r.listener.OnMainObserverChanged("")
	}
	return true
}

// SelectMainObserver elects username as the room's time reference,
// atomically clearing the previous holder. Unknown usernames are a no-op,
// so at most one entry ever has the flag set.
func (r *Registry) SelectMainObserver(username string) bool {
	e, ok := r.entries[username]
	if !ok {
		log.Warn().Str("user", username).Msg("cannot select unknown user as main observer")
		return false
	}
	if e.IsMainObserver {
		return true
	}
	for _, other := range r.entries {
		other.IsMainObserver = false
	}
	e.IsMainObserver = true
	r.listener.OnMainObserverChanged(username)
	return true
}

// MainObserver returns the elected entry, if any.
func (r *Registry) MainObserver() (Entry, bool) {
	for _, e := range r.entries {
		if e.IsMainObserver {
			return *e, true
		}
	}
	return Entry{}, false
}

// SetDelay updates a user's declared delay. Negative delays and unknown
// usernames are rejected.
func (r *Registry) SetDelay(username string, ms int) bool {
	e, ok := r.entries[username]
	if !ok || ms < 0 {
		return false
	}
	e.DeclaredDelayMs = ms
	return true
}

// Delay returns a user's declared delay, falling back to the default when
// the user is not a roster member.
func (r *Registry) Delay(username string) int {
	if e, ok := r.entries[username]; ok {
		return e.DeclaredDelayMs
	}
	return DefaultDelayMs
}

// Get returns a copy of a user's entry.
func (r *Registry) Get(username string) (Entry, bool) {
	if e, ok := r.entries[username]; ok {
		return *e, true
	}
	return Entry{}, false
}

// Size returns the number of roster entries.
func (r *Registry) Size() int {
	return len(r.entries)
}

// Snapshot returns the roster sorted by username, for rendering.
func (r *Registry) Snapshot() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
