package transport

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const disconnectQuiesceMs = 250

// MQTT is the primary transport. Subscriptions use the broker's native
// topic scheme, so protocol topics pass through unchanged.
type MQTT struct {
	cfg    Config
	client mqtt.Client
}

// NewMQTT builds an MQTT transport. Inbound deliveries for every
// subscription are routed through onMessage; onConnection fires on connect
// and on connection loss.
func NewMQTT(cfg Config, onMessage MessageHandler, onConnection ConnectionHandler) *MQTT {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("chronos-" + uuid.New().String()[:8]).
		SetKeepAlive(time.Duration(cfg.KeepaliveSeconds) * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("MQTT connected")
			if onConnection != nil {
				onConnection(true)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Error().Err(err).Msg("MQTT connection lost")
			if onConnection != nil {
				onConnection(false)
			}
		}).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			if onMessage != nil {
				onMessage(m.Topic(), m.Payload())
			}
		})

	return &MQTT{cfg: cfg, client: mqtt.NewClient(opts)}
}

// Connect dials the broker and waits for the connection to settle.
func (t *MQTT) Connect() error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	tok := t.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker: %w", err)
	}
	return nil
}

// Subscribe registers a topic pattern at QoS 0. Deliveries arrive at the
// default publish handler.
func (t *MQTT) Subscribe(topicPattern string) error {
	tok := t.client.Subscribe(topicPattern, 0, nil)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topicPattern, err)
	}
	log.Debug().Str("pattern", topicPattern).Msg("subscribed")
	return nil
}

// Publish sends one fire-and-forget message at QoS 0.
func (t *MQTT) Publish(topic string, payload []byte) error {
	tok := t.client.Publish(topic, 0, false, payload)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects after letting in-flight work quiesce briefly.
func (t *MQTT) Close() {
	t.client.Disconnect(disconnectQuiesceMs)
}
