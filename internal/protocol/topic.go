package protocol

import (
	"errors"
	"regexp"
	"strings"
)

var (
	roomIDPattern   = regexp.MustCompile(`^[A-Z0-9]{5}$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9-]{3,20}$`)
)

var (
	ErrInvalidRoomID   = errors.New("room id must be exactly 5 alphanumeric characters")
	ErrInvalidUsername = errors.New("username must be 3-20 characters of letters, digits and hyphens")
)

// Topic is the address for directed delivery to one user of a room.
func Topic(roomID, username string) string {
	return roomID + "/" + username
}

// RoomWildcard matches every topic under a room. Only the producer
// subscribes to it.
func RoomWildcard(roomID string) string {
	return roomID + "/#"
}

// UserFromTopic extracts the trailing path segment of a directed topic.
func UserFromTopic(topic string) (string, bool) {
	idx := strings.LastIndexByte(topic, '/')
	if idx < 0 || idx == len(topic)-1 {
		return "", false
	}
	return topic[idx+1:], true
}

// NormalizeRoomID trims and upper-cases a room id, rejecting anything that
// is not exactly 5 alphanumeric characters.
func NormalizeRoomID(roomID string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(roomID))
	if !roomIDPattern.MatchString(id) {
		return "", ErrInvalidRoomID
	}
	return id, nil
}

// NormalizeUsername trims a username and validates its character set and
// length.
func NormalizeUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if !usernamePattern.MatchString(name) {
		return "", ErrInvalidUsername
	}
	return name, nil
}
