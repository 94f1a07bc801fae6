package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronoslabs/chronos/internal/clocksync"
	"github.com/chronoslabs/chronos/internal/gateway"
	"github.com/chronoslabs/chronos/internal/relay"
	"github.com/chronoslabs/chronos/internal/replay"
	"github.com/chronoslabs/chronos/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("CHRONOS_LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var (
		mode       = flag.String("mode", "observer", "role to run: producer or observer")
		room       = flag.String("room", "", "room id to join (observer)")
		user       = flag.String("user", "", "username to join as (observer)")
		syncOnJoin = flag.Bool("sync", false, "request a clock sync right after joining (observer)")
		configPath = flag.String("config", "", "path to YAML config file")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clock := clockwork.NewRealClock()

	feed := gateway.NewFeed(clock)
	go feed.Run(ctx)
	server := &http.Server{
		Addr:         cfg.Gateway.Addr,
		Handler:      feed.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("event gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("event gateway failed")
		}
	}()

	switch *mode {
	case "producer":
		err = runProducer(ctx, cfg, feed, clock)
	case "observer":
		err = runObserver(ctx, cfg, feed, clock, *room, *user, *syncOnJoin)
	default:
		log.Fatal().Str("mode", *mode).Msg("mode must be producer or observer")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("chronos failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("event gateway shutdown failed")
	}
	log.Info().Msg("chronos shutdown complete")
}

func newTransport(cfg Config, onMessage transport.MessageHandler, onConnection transport.ConnectionHandler) (transport.Transport, error) {
	switch cfg.Transport {
	case "mqtt":
		return transport.NewMQTT(cfg.brokerConfig(), onMessage, onConnection), nil
	case "nats":
		return transport.NewNATS(cfg.brokerConfig(), onMessage, onConnection), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func runProducer(ctx context.Context, cfg Config, feed *gateway.Feed, clock clockwork.Clock) error {
	var p *relay.Producer
	t, err := newTransport(cfg,
		func(topic string, payload []byte) { p.HandleInbound(topic, payload) },
		func(connected bool) { p.HandleConnection(connected) },
	)
	if err != nil {
		return err
	}
	p = relay.NewProducer(t, feed, feed, clock)

	// The relay outlives the signal context so queued commands finish
	// before the loop stops.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go p.Run(relayCtx)

	if err := t.Connect(); err != nil {
		return err
	}
	defer t.Close()

	roomID, err := p.EnterRole()
	if err != nil {
		return err
	}
	fmt.Printf("Hosting room %s, observers can join now.\n", roomID)
	fmt.Println("Commands: roster | main <user> | delay <user> <ms> | assign <user> | remove <user> | quit")

	runCommandLoop(ctx, func(fields []string) bool {
		switch fields[0] {
		case "roster":
			for _, e := range p.Roster() {
				marker := " "
				if e.IsMainObserver {
					marker = "*"
				}
				fmt.Printf("%s %-20s %6dms\n", marker, e.Username, e.DeclaredDelayMs)
			}
		case "main":
			if len(fields) == 2 {
				p.SelectMainObserver(fields[1])
			}
		case "delay":
			if len(fields) == 3 {
				ms, err := strconv.Atoi(fields[2])
				if err != nil {
					fmt.Println("delay must be an integer of milliseconds")
					break
				}
				p.SetDelay(fields[1], ms)
			}
		case "assign":
			if len(fields) == 2 {
				p.AssignDelay(fields[1])
			}
		case "remove":
			if len(fields) == 2 {
				p.RemoveUser(fields[1])
			}
		case "quit":
			return false
		default:
			fmt.Println("unknown command")
		}
		return true
	})
	return nil
}

func runObserver(ctx context.Context, cfg Config, feed *gateway.Feed, clock clockwork.Clock, room, user string, syncOnJoin bool) error {
	playback := replay.NewClient(cfg.Replay.BaseURL)
	responder := clocksync.NewResponder(playback, playback)

	var o *relay.Observer
	t, err := newTransport(cfg,
		func(topic string, payload []byte) { o.HandleInbound(topic, payload) },
		func(connected bool) { o.HandleConnection(connected) },
	)
	if err != nil {
		return err
	}
	o = relay.NewObserver(t, responder, feed, clock)

	// The relay outlives the signal context so queued commands finish
	// before the loop stops.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go o.Run(relayCtx)

	if err := t.Connect(); err != nil {
		return err
	}
	defer t.Close()

	if err := o.Join(room, user); err != nil {
		return err
	}

	if syncOnJoin {
		if err := o.RequestSync(); err != nil {
			log.Error().Err(err).Msg("initial sync request failed")
		}
	}

	fmt.Printf("Joined room %s as %s.\n", o.Session().RoomID, o.Session().Username)
	fmt.Println("Commands: sync | leave | quit")

	runCommandLoop(ctx, func(fields []string) bool {
		switch fields[0] {
		case "sync":
			if err := o.RequestSync(); err != nil {
				fmt.Println("sync failed:", err)
			}
		case "leave":
			o.Leave()
		case "quit":
			return false
		default:
			fmt.Println("unknown command")
		}
		return true
	})

	// Best-effort LEAVE on the way out, mirroring an operator-driven exit.
	o.Leave()
	return nil
}

// runCommandLoop feeds stdin lines to handle until EOF, quit or shutdown.
func runCommandLoop(ctx context.Context, handle func(fields []string) bool) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep serving the protocol until a signal.
				<-ctx.Done()
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if !handle(fields) {
				return
			}
		}
	}
}
