package session

import (
	"time"
)

// Color is the tag a participant claims together with a display name.
// The zero value means no color has been claimed yet.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
)

var colors = []Color{ColorRed, ColorYellow, ColorGreen, ColorBlue, ColorPurple}

// Colors returns the fixed set of claimable colors
func Colors() []Color {
	return append([]Color(nil), colors...)
}

// ParseColor reports whether s names one of the claimable colors
func ParseColor(s string) (Color, bool) {
	for _, c := range colors {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// IsSet reports whether the color has been claimed
func (c Color) IsSet() bool {
	return c != ""
}

// Session is the server-side record of one live connection
type Session struct {
	ID          string
	DisplayName string
	Color       Color
	IsModerator bool
	ConnectedAt time.Time

	// PendingPingAt is when the outstanding latency probe was sent.
	// Zero means no probe is in flight.
	PendingPingAt time.Time

	// PressedAt is the latency-corrected press instant. Zero means the
	// session is not armed in the current round.
	PressedAt time.Time

	// LastRoundTrip is the most recent measured probe round trip
	LastRoundTrip time.Duration
}

// Identified reports whether the session has committed a color
func (s *Session) Identified() bool {
	return s.Color.IsSet()
}

// ProbeOutstanding reports whether a ping was sent and no pong has arrived
func (s *Session) ProbeOutstanding() bool {
	return !s.PendingPingAt.IsZero()
}

// Armed reports whether the session has a resolved press instant
func (s *Session) Armed() bool {
	return !s.PressedAt.IsZero()
}

// ClearTiming drops both the outstanding probe and the resolved press instant
func (s *Session) ClearTiming() {
	s.PendingPingAt = time.Time{}
	s.PressedAt = time.Time{}
}
