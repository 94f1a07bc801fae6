// Package relay wires inbound transport deliveries and operator commands
// to the room registry, clock sync engine and observer session. Each role
// runs one owner goroutine consuming a single ordered command queue, so
// roster and session state need no locks.
package relay

import "time"

const commandBuffer = 64

// Direction of a logged protocol message.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Listener receives session status and message-log notifications for
// rendering. Calls happen on the relay's goroutine and must not block.
type Listener interface {
	OnStatus(status string)
	OnMessage(dir Direction, topic string, payload []byte, at time.Time)
}

// NopListener discards all notifications.
type NopListener struct{}

func (NopListener) OnStatus(string)                                {}
func (NopListener) OnMessage(Direction, string, []byte, time.Time) {}
