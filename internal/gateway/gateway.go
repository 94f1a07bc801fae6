// Package gateway pushes protocol notifications to rendering clients over
// WebSocket: roster changes, session status and the sent/received message
// log. The visual interface itself lives outside this process.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/chronoslabs/chronos/internal/relay"
	"github.com/chronoslabs/chronos/internal/roster"
)

// Event types pushed to rendering clients.
const (
	EventRosterAdded         = "roster_added"
	EventRosterRemoved       = "roster_removed"
	EventMainObserverChanged = "main_observer_changed"
	EventStatus              = "status"
	EventMessage             = "message"
)

const (
	writeTimeout    = 10 * time.Second
	broadcastBuffer = 256
)

// Event is one rendering notification.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Feed broadcasts events to connected WebSocket clients. It implements
// roster.Listener and relay.Listener; relay goroutines only enqueue, the
// Run goroutine writes to sockets.
type Feed struct {
	clock       clockwork.Clock
	upgrader    websocket.Upgrader
	broadcastCh chan Event

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewFeed creates an event feed. A nil clock selects the real clock.
func NewFeed(clock clockwork.Clock) *Feed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Feed{
		clock: clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		broadcastCh: make(chan Event, broadcastBuffer),
		clients:     make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	log.Info().Msg("event feed started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event feed shutting down")
			f.closeAll()
			return
		case ev := <-f.broadcastCh:
			f.send(ev)
		}
	}
}

// Handler returns the HTTP handler serving /ws and /healthz, wrapped with
// permissive CORS for local rendering clients.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Debug().Err(err).Msg("failed to write health response")
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (f *Feed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade rendering client")
		return
	}
	f.mu.Lock()
	f.clients[conn] = true
	f.mu.Unlock()
	log.Info().Str("remote", r.RemoteAddr).Msg("rendering client connected")

	go f.readLoop(conn)
}

// readLoop discards client input and detects closes.
func (f *Feed) readLoop(conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		conn.Close()
		log.Info().Msg("rendering client disconnected")
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("dropping stalled rendering client")
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.Close()
		delete(f.clients, conn)
	}
}

// publish enqueues an event, dropping it when the feed is saturated; the
// protocol never blocks on rendering.
func (f *Feed) publish(eventType string, payload any) {
	ev := Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		At:      f.clock.Now(),
		Payload: payload,
	}
	select {
	case f.broadcastCh <- ev:
	default:
		log.Warn().Str("type", eventType).Msg("event feed full, dropping event")
	}
}

// roster.Listener

func (f *Feed) OnEntryAdded(e roster.Entry) {
	f.publish(EventRosterAdded, e)
}

func (f *Feed) OnEntryRemoved(username string) {
	f.publish(EventRosterRemoved, map[string]string{"username": username})
}

func (f *Feed) OnMainObserverChanged(username string) {
	f.publish(EventMainObserverChanged, map[string]string{"username": username})
}

// relay.Listener

func (f *Feed) OnStatus(status string) {
	f.publish(EventStatus, map[string]string{"status": status})
}

func (f *Feed) OnMessage(dir relay.Direction, topic string, payload []byte, at time.Time) {
	f.publish(EventMessage, map[string]any{
		"direction": dir,
		"topic":     topic,
		"payload":   string(payload),
		"at":        at,
	})
}

var (
	_ roster.Listener = (*Feed)(nil)
	_ relay.Listener  = (*Feed)(nil)
)
