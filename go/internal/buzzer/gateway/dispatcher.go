package gateway

import (
	"context"
	"errors"

	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/game"
	"github.com/rs/zerolog/log"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

type command func(g *game.Game)

// Dispatcher serializes every game operation onto one goroutine.
// Read pumps, the state endpoint and signal handlers only submit commands.
type Dispatcher struct {
	game     *game.Game
	commands chan command
	done     chan struct{}
}

func NewDispatcher(g *game.Game, queueSize int) *Dispatcher {
	return &Dispatcher{
		game:     g,
		commands: make(chan command, queueSize),
		done:     make(chan struct{}),
	}
}

// Run processes commands in submission order until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	log.Info().Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dispatcher stopped")
			return
		case cmd := <-d.commands:
			cmd(d.game)
		}
	}
}

func (d *Dispatcher) submit(cmd command) error {
	select {
	case <-d.done:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.commands <- cmd:
		return nil
	case <-d.done:
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) Connected(connectionID string) {
	err := d.submit(func(g *game.Game) {
		if err := g.Connect(connectionID); err != nil {
			log.Error().Err(err).Str("connection_id", connectionID).Msg("failed to create session")
		}
	})
	if err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("dropping connect")
	}
}

// Received decodes on the caller's goroutine and drops malformed frames
func (d *Dispatcher) Received(connectionID string, frame []byte) {
	env, err := events.Decode(frame)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("dropping malformed frame")
		return
	}
	if !env.Type.Inbound() {
		log.Warn().Str("connection_id", connectionID).Str("type", string(env.Type)).Msg("dropping server-only message type")
		return
	}

	if err := d.submit(func(g *game.Game) { g.Handle(connectionID, env) }); err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Str("type", string(env.Type)).Msg("dropping message")
	}
}

func (d *Dispatcher) Disconnected(connectionID string) {
	if err := d.submit(func(g *game.Game) { g.Disconnect(connectionID) }); err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("dropping disconnect")
	}
}

func (d *Dispatcher) OperatorReset() error {
	return d.submit(func(g *game.Game) { g.OperatorReset() })
}

// Snapshot reads the game state from inside the dispatch loop
func (d *Dispatcher) Snapshot(ctx context.Context) (game.Snapshot, error) {
	result := make(chan game.Snapshot, 1)
	if err := d.submit(func(g *game.Game) { result <- g.Snapshot() }); err != nil {
		return game.Snapshot{}, err
	}

	select {
	case snap := <-result:
		return snap, nil
	case <-d.done:
		return game.Snapshot{}, ErrDispatcherStopped
	case <-ctx.Done():
		return game.Snapshot{}, ctx.Err()
	}
}
