package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATS adapts the protocol's topic scheme onto NATS subjects: path
// separators become subject tokens and the producer's trailing # wildcard
// becomes the NATS multi-level wildcard.
type NATS struct {
	cfg          Config
	onMessage    MessageHandler
	onConnection ConnectionHandler
	conn         *nats.Conn
}

// NewNATS builds a NATS transport with the same handler contract as MQTT.
func NewNATS(cfg Config, onMessage MessageHandler, onConnection ConnectionHandler) *NATS {
	return &NATS{cfg: cfg, onMessage: onMessage, onConnection: onConnection}
}

// Connect dials the NATS server with unbounded reconnects.
func (t *NATS) Connect() error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.PingInterval(time.Duration(t.cfg.KeepaliveSeconds) * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			if t.onConnection != nil {
				t.onConnection(false)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			if t.onConnection != nil {
				t.onConnection(true)
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(fmt.Sprintf("nats://%s:%d", t.cfg.Host, t.cfg.Port), opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	t.conn = nc
	log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connected")
	if t.onConnection != nil {
		t.onConnection(true)
	}
	return nil
}

// Subscribe registers a topic pattern, translated to a NATS subject.
func (t *NATS) Subscribe(topicPattern string) error {
	subject := toSubject(topicPattern)
	_, err := t.conn.Subscribe(subject, func(m *nats.Msg) {
		if t.onMessage != nil {
			t.onMessage(fromSubject(m.Subject), m.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	log.Debug().Str("subject", subject).Msg("subscribed")
	return nil
}

// Publish sends one fire-and-forget message.
func (t *NATS) Publish(topic string, payload []byte) error {
	if err := t.conn.Publish(toSubject(topic), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close drops the connection.
func (t *NATS) Close() {
	if t.conn != nil {
		t.conn.Close()
	}
}

// toSubject maps a protocol topic to a NATS subject. {room}/{user} becomes
// {room}.{user}; the room wildcard {room}/# becomes {room}.>.
func toSubject(topic string) string {
	if room, ok := strings.CutSuffix(topic, "/#"); ok {
		return strings.ReplaceAll(room, "/", ".") + ".>"
	}
	return strings.ReplaceAll(topic, "/", ".")
}

// fromSubject maps a delivered NATS subject back to the protocol topic.
func fromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
