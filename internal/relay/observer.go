package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/chronoslabs/chronos/internal/clocksync"
	"github.com/chronoslabs/chronos/internal/protocol"
	"github.com/chronoslabs/chronos/internal/session"
	"github.com/chronoslabs/chronos/internal/transport"
)

// ErrNotJoined is returned when a sync is requested without an active
// session.
var ErrNotJoined = errors.New("not joined to a room")

// Observer joins a room, requests clock offsets and answers TIME_REQs when
// elected main observer. Session state has a single owner, the Run
// goroutine.
type Observer struct {
	transport transport.Transport
	responder *clocksync.Responder
	listener  Listener
	clock     clockwork.Clock

	session session.Session
	cmdCh   chan func()
	ctx     context.Context
}

// NewObserver builds an observer relay. The listener may be nil.
func NewObserver(t transport.Transport, responder *clocksync.Responder, listener Listener, clock clockwork.Clock) *Observer {
	if listener == nil {
		listener = NopListener{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Observer{
		transport: t,
		responder: responder,
		listener:  listener,
		clock:     clock,
		cmdCh:     make(chan func(), commandBuffer),
		ctx:       context.Background(),
	}
}

// Run processes inbound deliveries and user commands until ctx is done.
func (o *Observer) Run(ctx context.Context) {
	o.ctx = ctx
	log.Info().Msg("observer relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("observer relay shutting down")
			return
		case cmd := <-o.cmdCh:
			cmd()
		}
	}
}

func (o *Observer) enqueue(fn func()) {
	o.cmdCh <- fn
}

// Join validates the identifiers, subscribes to the observer's own topic
// and announces the join. The session is set optimistically as soon as the
// JOIN is sent; no acknowledgment is awaited. Validation failures are
// returned before any network action.
func (o *Observer) Join(roomID, username string) error {
	errCh := make(chan error, 1)
	o.enqueue(func() { errCh <- o.join(roomID, username) })
	return <-errCh
}

func (o *Observer) join(roomID, username string) error {
	if err := o.session.Join(roomID, username); err != nil {
		return err
	}
	topic := o.session.Topic()
	if err := o.transport.Subscribe(topic); err != nil {
		o.session.Clear()
		return err
	}
	if err := o.publish(topic, protocol.Join()); err != nil {
		return err
	}
	log.Info().Str("room_id", o.session.RoomID).Str("user", o.session.Username).Msg("joined room")
	o.listener.OnStatus(fmt.Sprintf("joined room %s as %s", o.session.RoomID, o.session.Username))
	return nil
}

// RequestSync publishes a SYNC_REQ on the observer's own topic. No local
// state changes, no retry, no timeout: if the chain stalls the observer
// waits until the user requests again.
func (o *Observer) RequestSync() error {
	errCh := make(chan error, 1)
	o.enqueue(func() { errCh <- o.requestSync() })
	return <-errCh
}

func (o *Observer) requestSync() error {
	if !o.session.Joined {
		return ErrNotJoined
	}
	return o.publish(o.session.Topic(), protocol.SyncRequest())
}

// Leave publishes a best-effort LEAVE and clears the session. Publish
// failures are logged, not surfaced.
func (o *Observer) Leave() {
	done := make(chan struct{})
	o.enqueue(func() { o.leave(); close(done) })
	<-done
}

func (o *Observer) leave() {
	if !o.session.Joined {
		return
	}
	if err := o.publish(o.session.Topic(), protocol.Leave()); err != nil {
		log.Warn().Err(err).Msg("failed to publish LEAVE, clearing session anyway")
	}
	o.session.Clear()
	o.listener.OnStatus("left room")
}

// HandleInbound is the transport delivery callback.
func (o *Observer) HandleInbound(topic string, payload []byte) {
	o.enqueue(func() { o.dispatch(topic, payload) })
}

// HandleConnection is the transport connection-state callback. A
// disconnect tears the session down; the room forgets us via our LEAVE or
// the operator's removal.
func (o *Observer) HandleConnection(connected bool) {
	o.enqueue(func() {
		if connected {
			o.listener.OnStatus("connected")
			return
		}
		o.listener.OnStatus("disconnected")
		if o.session.Joined {
			o.session.Clear()
			log.Warn().Msg("transport disconnected, session cleared")
		}
	})
}

func (o *Observer) dispatch(topic string, payload []byte) {
	o.listener.OnMessage(DirectionReceived, topic, payload, o.clock.Now())

	msg, ok := protocol.Decode(payload)
	if !ok {
		log.Debug().Str("topic", topic).Msg("dropping undecodable payload")
		return
	}

	switch msg.Action {
	case protocol.ActionTimeRequest:
		o.answerTimeRequest(msg)
	case protocol.ActionSyncResponse:
		o.responder.HandleSyncResponse(o.ctx, msg)
		o.listener.OnStatus(fmt.Sprintf("applied offset %.3fs", msg.Value))
	case protocol.ActionAssign:
		// Informational only: the producer relays with its own locally
		// held delay whether or not this ever arrived.
		log.Info().Int64("time_ms", msg.TimeMillis).Msg("received delay assignment")
	default:
		log.Debug().Str("action", string(msg.Action)).Msg("ignoring inbound action")
	}
}

func (o *Observer) answerTimeRequest(msg protocol.Message) {
	if o.session.RoomID == "" {
		log.Debug().Msg("TIME_REQ with no session, dropping")
		return
	}
	out, ok := o.responder.HandleTimeRequest(o.ctx, o.session.RoomID, msg)
	if !ok {
		return
	}
	if err := o.publish(out.Topic, out.Message); err != nil {
		log.Error().Err(err).Str("topic", out.Topic).Msg("failed to publish SYNC_RESPONSE")
	}
}

func (o *Observer) publish(topic string, msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := o.transport.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	o.listener.OnMessage(DirectionSent, topic, payload, o.clock.Now())
	return nil
}

// Session returns a copy of the current session, read on the relay loop.
func (o *Observer) Session() session.Session {
	ch := make(chan session.Session, 1)
	o.enqueue(func() { ch <- o.session })
	return <-ch
}
