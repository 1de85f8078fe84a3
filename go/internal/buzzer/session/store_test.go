package session

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateDefaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := NewStore(clock)

	s, err := st.Create("conn1")
	require.NoError(t, err)

	assert.Equal(t, "conn1", s.DisplayName)
	assert.False(t, s.Identified())
	assert.False(t, s.ProbeOutstanding())
	assert.False(t, s.Armed())
	assert.False(t, s.IsModerator)
	assert.Equal(t, clock.Now(), s.ConnectedAt)
	assert.Equal(t, 1, st.Len())
}

func TestStore_CreateDuplicate(t *testing.T) {
	st := NewStore(clockwork.NewFakeClock())

	_, err := st.Create("conn1")
	require.NoError(t, err)

	_, err = st.Create("conn1")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestStore_GetMissing(t *testing.T) {
	st := NewStore(clockwork.NewFakeClock())

	_, err := st.Get("nonexistent")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_DeleteKeepsOrder(t *testing.T) {
	st := NewStore(clockwork.NewFakeClock())
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := st.Create(id)
		require.NoError(t, err)
	}

	removed, ok := st.Delete("b")
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)

	_, ok = st.Delete("b")
	assert.False(t, ok)

	var ids []string
	for _, s := range st.All() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Equal(t, 3, st.Len())
}

func TestStore_ColorHolder(t *testing.T) {
	st := NewStore(clockwork.NewFakeClock())
	a, _ := st.Create("a")
	_, _ = st.Create("b")

	a.Color = ColorRed

	holder, ok := st.ColorHolder(ColorRed)
	require.True(t, ok)
	assert.Equal(t, "a", holder.ID)

	_, ok = st.ColorHolder(ColorBlue)
	assert.False(t, ok)

	// unset colors are never "held"
	_, ok = st.ColorHolder("")
	assert.False(t, ok)

	st.Delete("a")
	_, ok = st.ColorHolder(ColorRed)
	assert.False(t, ok)
}

func TestStore_ResetTiming(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := NewStore(clock)
	a, _ := st.Create("a")
	b, _ := st.Create("b")

	a.DisplayName = "Alice"
	a.Color = ColorRed
	a.PressedAt = clock.Now()
	b.PendingPingAt = clock.Now().Add(time.Millisecond)
	b.IsModerator = true

	st.ResetTiming()

	assert.False(t, a.Armed())
	assert.False(t, b.ProbeOutstanding())
	assert.Equal(t, "Alice", a.DisplayName)
	assert.Equal(t, ColorRed, a.Color)
	assert.True(t, b.IsModerator)
}

func TestParseColor(t *testing.T) {
	for _, c := range Colors() {
		parsed, ok := ParseColor(string(c))
		assert.True(t, ok, "color %s", c)
		assert.Equal(t, c, parsed)
	}

	for _, bad := range []string{"", "Red", "orange", " red"} {
		_, ok := ParseColor(bad)
		assert.False(t, ok, "color %q", bad)
	}
}
