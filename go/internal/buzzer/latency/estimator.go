package latency

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
)

var (
	ErrUnidentified   = errors.New("buzz from session without a color")
	ErrUnexpectedPong = errors.New("pong without an outstanding probe")
)

// BuzzResult describes what a buzz request did
type BuzzResult struct {
	// ProbeStarted is true when a ping must be sent to the buzzing session
	ProbeStarted bool
}

// Resolution is emitted when a probe reply turns a round trip into a
// corrected press instant.
type Resolution struct {
	SessionID   string
	RoundTrip   time.Duration
	HalfLatency time.Duration
	PressedAt   time.Time
}

// Estimator runs the ping/pong exchange that reconstructs press instants
type Estimator struct {
	clock clockwork.Clock
}

// NewEstimator creates an estimator reading time from clock
func NewEstimator(clock clockwork.Clock) *Estimator {
	return &Estimator{clock: clock}
}

// Buzz handles a press attempt. A probe is started only when the session has
// no probe in flight and is not already armed for the current round.
//
// TODO: an outstanding probe never expires, so a session whose pong is lost
// cannot re-arm until it reconnects. Needs a decided timeout and retry policy.
func (e *Estimator) Buzz(s *session.Session) (BuzzResult, error) {
	if !s.Identified() {
		return BuzzResult{}, ErrUnidentified
	}
	if s.ProbeOutstanding() || s.Armed() {
		return BuzzResult{}, nil
	}

	s.PendingPingAt = e.clock.Now()
	return BuzzResult{ProbeStarted: true}, nil
}

// Pong handles the probe reply and resolves the corrected press instant
func (e *Estimator) Pong(s *session.Session) (Resolution, error) {
	if !s.ProbeOutstanding() {
		return Resolution{}, ErrUnexpectedPong
	}

	pressedAt, roundTrip, half := CorrectedInstant(s.PendingPingAt, e.clock.Now())
	s.PressedAt = pressedAt
	s.LastRoundTrip = roundTrip
	s.PendingPingAt = time.Time{}

	return Resolution{
		SessionID:   s.ID,
		RoundTrip:   roundTrip,
		HalfLatency: half,
		PressedAt:   pressedAt,
	}, nil
}

// Abort drops the outstanding probe of a session whose ping was never sent
func (e *Estimator) Abort(s *session.Session) {
	s.PendingPingAt = time.Time{}
}

// CorrectedInstant assumes the press happened one half round trip before the
// probe left the server.
func CorrectedInstant(pingAt, pongAt time.Time) (pressedAt time.Time, roundTrip, half time.Duration) {
	roundTrip = pongAt.Sub(pingAt)
	half = roundTrip / 2
	return pingAt.Add(-half), roundTrip, half
}
