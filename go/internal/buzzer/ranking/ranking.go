package ranking

import (
	"sort"

	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
)

// Entry is one ranked participant
type Entry struct {
	Name  string        `json:"name"`
	Color session.Color `json:"color"`
}

// Rank orders the armed sessions by corrected press instant, earliest first.
// Sessions with identical instants keep the order they were given in.
// The result is never nil.
func Rank(sessions []*session.Session) []Entry {
	armed := make([]*session.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Armed() {
			armed = append(armed, s)
		}
	}

	sort.SliceStable(armed, func(i, j int) bool {
		return armed[i].PressedAt.Before(armed[j].PressedAt)
	})

	entries := make([]Entry, 0, len(armed))
	for _, s := range armed {
		entries = append(entries, Entry{Name: s.DisplayName, Color: s.Color})
	}
	return entries
}
