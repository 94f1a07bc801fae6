// Package session holds the observer's joined-room identity as an explicit
// value with a single owner, the observer relay loop.
package session

import "github.com/chronoslabs/chronos/internal/protocol"

// Session is the observer's per-room identity. It is set optimistically
// when a JOIN is sent, not gated on any acknowledgment, and cleared on
// leave or transport disconnect.
type Session struct {
	RoomID   string
	Username string
	Joined   bool
}

// Join validates and normalizes both identifiers and marks the session
// joined. Validation failures leave the session untouched and cause no
// network action.
func (s *Session) Join(roomID, username string) error {
	id, err := protocol.NormalizeRoomID(roomID)
	if err != nil {
		return err
	}
	name, err := protocol.NormalizeUsername(username)
	if err != nil {
		return err
	}
	s.RoomID = id
	s.Username = name
	s.Joined = true
	return nil
}

// Clear resets the session to the not-joined state.
func (s *Session) Clear() {
	*s = Session{}
}

// Topic is the observer's own directed topic.
func (s *Session) Topic() string {
	return protocol.Topic(s.RoomID, s.Username)
}
