package ranking

import (
	"math/rand"
	"testing"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func armed(name string, c session.Color, offset time.Duration) *session.Session {
	return &session.Session{
		ID:          name,
		DisplayName: name,
		Color:       c,
		PressedAt:   base.Add(offset),
	}
}

func TestRank_Empty(t *testing.T) {
	entries := Rank(nil)
	require.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestRank_SkipsUnarmed(t *testing.T) {
	pending := &session.Session{ID: "p", DisplayName: "p", Color: session.ColorGreen, PendingPingAt: base}
	idle := &session.Session{ID: "i", DisplayName: "i"}

	entries := Rank([]*session.Session{pending, armed("Alice", session.ColorRed, 0), idle})
	assert.Equal(t, []Entry{{Name: "Alice", Color: session.ColorRed}}, entries)
}

func TestRank_EarliestFirst(t *testing.T) {
	sessions := []*session.Session{
		armed("Alice", session.ColorRed, 5*time.Millisecond),
		armed("Bob", session.ColorBlue, -2*time.Millisecond),
		armed("Cara", session.ColorGreen, 300*time.Microsecond),
	}

	assert.Equal(t, []Entry{
		{Name: "Bob", Color: session.ColorBlue},
		{Name: "Cara", Color: session.ColorGreen},
		{Name: "Alice", Color: session.ColorRed},
	}, Rank(sessions))
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	sessions := []*session.Session{
		armed("Alice", session.ColorRed, time.Millisecond),
		armed("Bob", session.ColorBlue, 0),
		armed("Cara", session.ColorGreen, time.Millisecond),
		armed("Dan", session.ColorYellow, time.Millisecond),
	}

	first := Rank(sessions)
	assert.Equal(t, []Entry{
		{Name: "Bob", Color: session.ColorBlue},
		{Name: "Alice", Color: session.ColorRed},
		{Name: "Cara", Color: session.ColorGreen},
		{Name: "Dan", Color: session.ColorYellow},
	}, first)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Rank(sessions))
	}
}

func TestRank_SortedAndDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	colors := session.Colors()

	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(20)
		sessions := make([]*session.Session, n)
		byName := make(map[string]*session.Session, n)
		for i := range sessions {
			name := string(rune('a' + i))
			offset := time.Duration(rng.Intn(5)) * time.Millisecond
			s := armed(name, colors[i%len(colors)], offset)
			if rng.Intn(4) == 0 {
				s.PressedAt = time.Time{}
			}
			sessions[i] = s
			byName[name] = s
		}

		entries := Rank(sessions)
		for i := 1; i < len(entries); i++ {
			prev := byName[entries[i-1].Name].PressedAt
			cur := byName[entries[i].Name].PressedAt
			assert.False(t, cur.Before(prev), "ranking out of order at %d", i)
		}
		assert.Equal(t, entries, Rank(sessions))
	}
}

func TestRank_RemovalKeepsRelativeOrder(t *testing.T) {
	sessions := []*session.Session{
		armed("Alice", session.ColorRed, 3*time.Millisecond),
		armed("Bob", session.ColorBlue, time.Millisecond),
		armed("Cara", session.ColorGreen, 2*time.Millisecond),
		armed("Dan", session.ColorYellow, time.Millisecond),
	}
	full := Rank(sessions)

	for drop := range sessions {
		var rest []*session.Session
		rest = append(rest, sessions[:drop]...)
		rest = append(rest, sessions[drop+1:]...)

		var want []Entry
		for _, e := range full {
			if e.Name != sessions[drop].DisplayName {
				want = append(want, e)
			}
		}
		assert.Equal(t, want, Rank(rest))
	}
}
