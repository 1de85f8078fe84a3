package game

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/identity"
	"github.com/mcdev12/buzzer/go/internal/buzzer/latency"
	"github.com/mcdev12/buzzer/go/internal/buzzer/moderator"
	"github.com/mcdev12/buzzer/go/internal/buzzer/ranking"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/rs/zerolog/log"
)

// ReservedName is forced onto moderator sessions and refused for participants
const ReservedName = "Host"

// Broadcaster delivers outbound events. Delivery is fire-and-forget; the
// result only reports whether the event was queued.
type Broadcaster interface {
	SendTo(sessionID string, event *events.Event) bool
	Broadcast(event *events.Event) bool
}

// Config holds game settings
type Config struct {
	HostCode string
}

// Game handles every inbound message against the session store.
// It is not safe for concurrent use: one dispatch loop must own it.
type Game struct {
	clock     clockwork.Clock
	store     *session.Store
	identity  *identity.Assigner
	estimator *latency.Estimator
	authority *moderator.Authority
	out       Broadcaster

	// set when a buzz_list could not be queued; resent on the next command
	rankingStale bool
}

// Snapshot is a read-only view of the game
type Snapshot struct {
	Sessions      int             `json:"sessions"`
	Identified    int             `json:"identified"`
	Moderators    int             `json:"moderators"`
	PendingProbes int             `json:"pending_probes"`
	Ranking       []ranking.Entry `json:"ranking"`
	Participants  []Participant   `json:"participants"`
}

// Participant is one live session in a Snapshot, in connection order
type Participant struct {
	Name            string        `json:"name"`
	Color           session.Color `json:"color,omitempty"`
	Moderator       bool          `json:"moderator"`
	Armed           bool          `json:"armed"`
	ConnectedAt     time.Time     `json:"connected_at"`
	LastRoundTripMS float64       `json:"last_round_trip_ms"`
}

// New creates a game with an empty session store
func New(cfg Config, clock clockwork.Clock, out Broadcaster) *Game {
	store := session.NewStore(clock)
	return &Game{
		clock:     clock,
		store:     store,
		identity:  identity.NewAssigner(store, ReservedName),
		estimator: latency.NewEstimator(clock),
		authority: moderator.NewAuthority(store, cfg.HostCode, ReservedName),
		out:       out,
	}
}

// Connect creates the session for a new connection
func (g *Game) Connect(id string) error {
	g.resendStaleRanking()
	if _, err := g.store.Create(id); err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}

	log.Info().
		Str("connection_id", id).
		Int("sessions", g.store.Len()).
		Msg("session connected")

	g.broadcastUserCount()
	return nil
}

// Disconnect destroys the session for a closed connection
func (g *Game) Disconnect(id string) {
	g.resendStaleRanking()
	s, ok := g.store.Delete(id)
	if !ok {
		log.Debug().Str("connection_id", id).Msg("disconnect for unknown session")
		return
	}

	log.Info().
		Str("connection_id", id).
		Str("name", s.DisplayName).
		Int("sessions", g.store.Len()).
		Msg("session disconnected")

	g.broadcastUserCount()
	if s.Armed() {
		g.broadcastRanking()
	}
}

// Handle processes one inbound frame from a connection
func (g *Game) Handle(id string, env *events.Envelope) {
	g.resendStaleRanking()
	s, err := g.store.Get(id)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", id).Str("type", string(env.Type)).Msg("message for unknown session")
		return
	}

	switch env.Type {
	case events.TypeName:
		g.handleName(s, env)
	case events.TypeBuzz:
		g.handleBuzz(s)
	case events.TypePong:
		g.handlePong(s)
	case events.TypeCode:
		g.handleCode(s, env)
	case events.TypeReset:
		g.handleReset(s)
	default:
		log.Warn().
			Str("connection_id", s.ID).
			Str("type", string(env.Type)).
			Msg("unknown message type")
	}
}

// OperatorReset clears all timings without a moderator, logging who is connected
func (g *Game) OperatorReset() {
	for _, s := range g.store.All() {
		log.Info().
			Str("connection_id", s.ID).
			Str("name", s.DisplayName).
			Str("color", string(s.Color)).
			Bool("moderator", s.IsModerator).
			Bool("armed", s.Armed()).
			Msg("connected session")
	}

	g.authority.ResetAll()
	log.Info().Int("sessions", g.store.Len()).Msg("operator reset")
	g.broadcastReset()
}

// Snapshot returns the current counts, ranking and participants
func (g *Game) Snapshot() Snapshot {
	all := g.store.All()
	snap := Snapshot{
		Sessions:     len(all),
		Ranking:      ranking.Rank(all),
		Participants: make([]Participant, 0, len(all)),
	}
	for _, s := range all {
		snap.Participants = append(snap.Participants, Participant{
			Name:            s.DisplayName,
			Color:           s.Color,
			Moderator:       s.IsModerator,
			Armed:           s.Armed(),
			ConnectedAt:     s.ConnectedAt,
			LastRoundTripMS: float64(s.LastRoundTrip) / float64(time.Millisecond),
		})
		if s.Identified() {
			snap.Identified++
		}
		if s.IsModerator {
			snap.Moderators++
		}
		if s.ProbeOutstanding() {
			snap.PendingProbes++
		}
	}
	return snap
}

func (g *Game) handleName(s *session.Session, env *events.Envelope) {
	if s.IsModerator {
		log.Warn().Str("connection_id", s.ID).Msg("name claim from moderator session")
		return
	}

	p, err := env.NamePayload()
	if err != nil {
		log.Warn().Err(err).Str("connection_id", s.ID).Msg("dropping name message")
		return
	}

	claim, err := g.identity.Claim(s, p.Name, p.Color)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", s.ID).
			Str("name", p.Name).
			Str("color", p.Color).
			Msg("name claim rejected")
		g.out.SendTo(s.ID, g.event(events.TypeNameError, identity.UserMessage(err)))
		return
	}

	log.Info().
		Str("connection_id", s.ID).
		Str("name", claim.Name).
		Str("color", string(claim.Color)).
		Msg("name claimed")
	g.out.SendTo(s.ID, g.event(events.TypeNameOK, identityPayload(s)))
}

func (g *Game) handleBuzz(s *session.Session) {
	res, err := g.estimator.Buzz(s)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", s.ID).Msg("dropping buzz")
		return
	}

	switch {
	case res.ProbeStarted && !g.out.SendTo(s.ID, g.event(events.TypePing, nil)):
		// The ping never left the server; the session must be able to buzz again
		g.estimator.Abort(s)
		log.Warn().
			Str("connection_id", s.ID).
			Str("name", s.DisplayName).
			Msg("outbound queue full, ping not sent")
	case res.ProbeStarted:
		log.Info().
			Str("connection_id", s.ID).
			Str("name", s.DisplayName).
			Msg("buzz, probe sent")
	default:
		log.Debug().
			Str("connection_id", s.ID).
			Bool("probe_outstanding", s.ProbeOutstanding()).
			Bool("armed", s.Armed()).
			Msg("buzz without new probe")
	}

	g.out.Broadcast(g.event(events.TypeBuzzSingle, identityPayload(s)))
}

func (g *Game) handlePong(s *session.Session) {
	res, err := g.estimator.Pong(s)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", s.ID).Str("name", s.DisplayName).Msg("dropping pong")
		return
	}
	g.resolved(res)
}

// resolved consumes a latency resolution: rank and publish
func (g *Game) resolved(res latency.Resolution) {
	log.Info().
		Str("connection_id", res.SessionID).
		Dur("round_trip", res.RoundTrip).
		Dur("half_latency", res.HalfLatency).
		Msg("press instant resolved")
	g.broadcastRanking()
}

func (g *Game) handleCode(s *session.Session, env *events.Envelope) {
	code, err := env.CodePayload()
	if err != nil {
		log.Warn().Err(err).Str("connection_id", s.ID).Msg("dropping code message")
		return
	}

	if !g.authority.Submit(s, code) {
		log.Warn().Str("connection_id", s.ID).Msg("moderator code rejected")
		return
	}

	log.Info().Str("connection_id", s.ID).Msg("moderator access granted")
	g.out.SendTo(s.ID, g.event(events.TypeCodeOK, nil))
}

func (g *Game) handleReset(s *session.Session) {
	if err := g.authority.Reset(s); err != nil {
		log.Warn().Err(err).Str("connection_id", s.ID).Str("name", s.DisplayName).Msg("dropping reset")
		return
	}

	log.Info().Str("connection_id", s.ID).Msg("moderator reset")
	g.broadcastReset()
}

func (g *Game) broadcastReset() {
	g.out.Broadcast(g.event(events.TypeReset, nil))
	g.broadcastRanking()
}

func (g *Game) broadcastRanking() {
	g.rankingStale = !g.out.Broadcast(g.event(events.TypeBuzzList, ranking.Rank(g.store.All())))
	if g.rankingStale {
		log.Warn().Msg("outbound queue full, ranking will be resent")
	}
}

func (g *Game) resendStaleRanking() {
	if g.rankingStale {
		g.broadcastRanking()
	}
}

func (g *Game) broadcastUserCount() {
	g.out.Broadcast(g.event(events.TypeUserCount, g.store.Len()))
}

// event stamps outbound events with the game clock
func (g *Game) event(t events.Type, data any) *events.Event {
	return events.NewEvent(t, g.clock.Now(), data)
}

func identityPayload(s *session.Session) events.Identity {
	return events.Identity{Name: s.DisplayName, Color: string(s.Color)}
}
