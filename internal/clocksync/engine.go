// Package clocksync implements the two-hop timing exchange: the producer
// relays a SYNC_REQ into a TIME_REQ for the main observer, the main
// observer answers with a SYNC_RESPONSE, and the requester applies the
// offset to its local playback clock.
package clocksync

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/chronoslabs/chronos/internal/protocol"
	"github.com/chronoslabs/chronos/internal/roster"
)

// Outbound is a message ready for publication.
type Outbound struct {
	Topic   string
	Message protocol.Message
}

// TimeSource yields the authoritative playback time in milliseconds. Only
// the main observer queries it.
type TimeSource interface {
	CurrentTimeMillis(ctx context.Context) (int64, error)
}

// Sink applies a computed offset, in seconds, to the local playback clock.
type Sink interface {
	ApplyOffset(ctx context.Context, seconds float64) error
}

// Offset computes the correction a requester should apply, in seconds,
// from the main observer's actual time and both declared delays. The
// division is real, not truncating.
func Offset(actualMs int64, requesterDelayMs, mainObserverDelayMs int) float64 {
	return float64(actualMs+int64(requesterDelayMs)-int64(mainObserverDelayMs)) / 1000
}

// BuildTimeRequest performs the producer-side relay step for a SYNC_REQ
// from requester. When no main observer is selected the request is dropped
// and the requester is left waiting; recovery is a manual re-request.
func BuildTimeRequest(reg *roster.Registry, requester string) (Outbound, bool) {
	main, ok := reg.MainObserver()
	if !ok {
		return Outbound{}, false
	}
	return Outbound{
		Topic:   protocol.Topic(reg.RoomID(), main.Username),
		Message: protocol.TimeRequest(requester, reg.Delay(requester), main.DeclaredDelayMs),
	}, true
}

// Responder implements the observer-side response and application steps.
// It does not verify that this process is the room's currently elected
// main observer; the producer's addressing is trusted at send time.
type Responder struct {
	source TimeSource
	sink   Sink
}

// NewResponder wires a responder to its time source and sink.
func NewResponder(source TimeSource, sink Sink) *Responder {
	return &Responder{source: source, sink: sink}
}

// HandleTimeRequest queries the time source and builds the SYNC_RESPONSE
// addressed to the requester. A time source failure drops the pending
// response; the engine never crashes on it.
func (r *Responder) HandleTimeRequest(ctx context.Context, roomID string, msg protocol.Message) (Outbound, bool) {
	actualMs, err := r.source.CurrentTimeMillis(ctx)
	if err != nil {
		log.Error().Err(err).Str("requester", msg.Requester).Msg("time source query failed, dropping TIME_REQ")
		return Outbound{}, false
	}
	value := Offset(actualMs, msg.RequesterDelay, msg.MainObserverDelay)
	return Outbound{
		Topic:   protocol.Topic(roomID, msg.Requester),
		Message: protocol.SyncResponse(value),
	}, true
}

// HandleSyncResponse hands the received offset to the local sink. Sink
// failures are logged, never surfaced back into protocol state.
func (r *Responder) HandleSyncResponse(ctx context.Context, msg protocol.Message) {
	if err := r.sink.ApplyOffset(ctx, msg.Value); err != nil {
		log.Error().Err(err).Float64("offset_s", msg.Value).Msg("failed to apply offset")
	}
}
