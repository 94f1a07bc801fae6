// Package transport abstracts the pub/sub client the protocol runs on.
// Delivery is fire-and-forget: no correlation IDs, no ordering guarantees,
// no acknowledgments. Two implementations exist, MQTT (the broker the
// reference deployment uses) and NATS.
package transport

import (
	"errors"
	"fmt"
	"strings"
)

// MessageHandler receives one inbound delivery. Implementations invoke it
// from the transport's own goroutines; handlers must hop onto their own
// serialization discipline.
type MessageHandler func(topic string, payload []byte)

// ConnectionHandler is notified of connection-state changes.
type ConnectionHandler func(connected bool)

// Config is the broker connection configuration shared by all transports.
type Config struct {
	Host             string
	Port             int
	KeepaliveSeconds int
}

// Validate rejects unusable configurations before any network action.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("broker host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("broker port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Transport is the only communication channel between producer and
// observers. Topic patterns follow the protocol scheme: {room}/{user} for
// directed delivery, {room}/# for the producer's room-wide subscription.
type Transport interface {
	Connect() error
	Subscribe(topicPattern string) error
	Publish(topic string, payload []byte) error
	Close()
}
