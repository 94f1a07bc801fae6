package relay

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/chronoslabs/chronos/internal/clocksync"
	"github.com/chronoslabs/chronos/internal/protocol"
	"github.com/chronoslabs/chronos/internal/roster"
	"github.com/chronoslabs/chronos/internal/transport"
)

// Producer hosts a room: it tracks the roster, relays sync requests to the
// elected main observer and serves operator commands. Every mutation runs
// on the Run goroutine.
type Producer struct {
	transport      transport.Transport
	rosterListener roster.Listener
	listener       Listener
	clock          clockwork.Clock

	registry *roster.Registry
	cmdCh    chan func()
}

// NewProducer builds a producer relay. Both listeners may be nil.
func NewProducer(t transport.Transport, rosterListener roster.Listener, listener Listener, clock clockwork.Clock) *Producer {
	if rosterListener == nil {
		rosterListener = roster.NopListener{}
	}
	if listener == nil {
		listener = NopListener{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Producer{
		transport:      t,
		rosterListener: rosterListener,
		listener:       listener,
		clock:          clock,
		cmdCh:          make(chan func(), commandBuffer),
	}
}

// Run processes inbound deliveries and operator commands until ctx is done.
func (p *Producer) Run(ctx context.Context) {
	log.Info().Msg("producer relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("producer relay shutting down")
			return
		case cmd := <-p.cmdCh:
			cmd()
		}
	}
}

func (p *Producer) enqueue(fn func()) {
	p.cmdCh <- fn
}

// EnterRole generates the room, subscribes to all of its traffic and
// creates the roster. The room lives only in this process; it is gone when
// the producer leaves the role or disconnects.
func (p *Producer) EnterRole() (string, error) {
	type result struct {
		roomID string
		err    error
	}
	ch := make(chan result, 1)
	p.enqueue(func() {
		roomID := roster.GenerateRoomID()
		if err := p.transport.Subscribe(protocol.RoomWildcard(roomID)); err != nil {
			ch <- result{err: fmt.Errorf("subscribe to room topic: %w", err)}
			return
		}
		p.registry = roster.NewRegistry(roomID, p.rosterListener)
		log.Info().Str("room_id", roomID).Msg("entered producer role")
		p.listener.OnStatus("hosting room " + roomID)
		ch <- result{roomID: roomID}
	})
	r := <-ch
	return r.roomID, r.err
}

// HandleInbound is the transport delivery callback. It hops onto the relay
// loop so roster access stays single-threaded.
func (p *Producer) HandleInbound(topic string, payload []byte) {
	p.enqueue(func() { p.dispatch(topic, payload) })
}

// HandleConnection is the transport connection-state callback.
func (p *Producer) HandleConnection(connected bool) {
	p.enqueue(func() {
		if connected {
			p.listener.OnStatus("connected")
		} else {
			p.listener.OnStatus("disconnected")
		}
	})
}

func (p *Producer) dispatch(topic string, payload []byte) {
	p.listener.OnMessage(DirectionReceived, topic, payload, p.clock.Now())

	if p.registry == nil {
		return
	}
	msg, ok := protocol.Decode(payload)
	if !ok {
		log.Debug().Str("topic", topic).Msg("dropping undecodable payload")
		return
	}
	user, ok := protocol.UserFromTopic(topic)
	if !ok {
		log.Debug().Str("topic", topic).Msg("dropping delivery with no user segment")
		return
	}

	switch msg.Action {
	case protocol.ActionJoin:
		if p.registry.Join(user) {
			log.Info().Str("user", user).Str("room_id", p.registry.RoomID()).Msg("user joined")
		}
	case protocol.ActionLeave:
		if p.registry.Leave(user) {
			log.Info().Str("user", user).Str("room_id", p.registry.RoomID()).Msg("user left")
		}
	case protocol.ActionSyncRequest:
		p.relaySync(user)
	default:
		// TIME_REQ, ASSIGN and SYNC_RESPONSE are observer-directed; the
		// room-wide subscription sees them too and ignores them.
		log.Debug().Str("action", string(msg.Action)).Str("user", user).Msg("ignoring inbound action")
	}
}

func (p *Producer) relaySync(requester string) {
	out, ok := clocksync.BuildTimeRequest(p.registry, requester)
	if !ok {
		log.Warn().Str("requester", requester).Msg("sync request dropped: no main observer selected")
		return
	}
	p.publish(out.Topic, out.Message)
}

func (p *Producer) publish(topic string, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to encode message")
		return
	}
	if err := p.transport.Publish(topic, payload); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("publish failed")
		return
	}
	p.listener.OnMessage(DirectionSent, topic, payload, p.clock.Now())
}

// SelectMainObserver elects the room's time reference.
func (p *Producer) SelectMainObserver(username string) {
	p.enqueue(func() {
		if p.registry == nil {
			return
		}
		p.registry.SelectMainObserver(username)
	})
}

// SetDelay updates a user's declared delay in the roster.
func (p *Producer) SetDelay(username string, ms int) {
	p.enqueue(func() {
		if p.registry == nil {
			return
		}
		if !p.registry.SetDelay(username, ms) {
			log.Warn().Str("user", username).Int("delay_ms", ms).Msg("delay update rejected")
		}
	})
}

// AssignDelay publishes an ASSIGN notification carrying the delay the
// producer currently holds for the user. Informational only; the registry
// already uses its own value when relaying.
func (p *Producer) AssignDelay(username string) {
	p.enqueue(func() {
		if p.registry == nil {
			return
		}
		e, ok := p.registry.Get(username)
		if !ok {
			return
		}
		p.publish(protocol.Topic(p.registry.RoomID(), username), protocol.Assign(int64(e.DeclaredDelayMs)))
	})
}

// RemoveUser publishes a best-effort LEAVE to the user's topic, then
// deletes the roster entry regardless of the publish outcome.
func (p *Producer) RemoveUser(username string) {
	p.enqueue(func() {
		if p.registry == nil {
			return
		}
		p.publish(protocol.Topic(p.registry.RoomID(), username), protocol.Leave())
		p.registry.Leave(username)
	})
}

// Roster returns a snapshot of the room's entries, taken on the relay loop.
func (p *Producer) Roster() []roster.Entry {
	ch := make(chan []roster.Entry, 1)
	p.enqueue(func() {
		if p.registry == nil {
			ch <- nil
			return
		}
		ch <- p.registry.Snapshot()
	})
	return <-ch
}
