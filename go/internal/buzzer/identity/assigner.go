package identity

import (
	"errors"
	"strings"

	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
)

// Validation failures, checked in this order
var (
	ErrEmptyName    = errors.New("name is empty")
	ErrReservedName = errors.New("name is reserved")
	ErrInvalidColor = errors.New("color is not valid")
	ErrColorTaken   = errors.New("color is already in use")
)

// Claim is an accepted identity
type Claim struct {
	Name  string
	Color session.Color
}

// Assigner validates and commits participant names and colors
type Assigner struct {
	store        *session.Store
	reservedName string
}

// NewAssigner creates an assigner that refuses reservedName
func NewAssigner(store *session.Store, reservedName string) *Assigner {
	return &Assigner{
		store:        store,
		reservedName: reservedName,
	}
}

// Claim validates a proposed name and color for s and commits both on
// success. On failure s is left untouched.
func (a *Assigner) Claim(s *session.Session, name, color string) (Claim, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Claim{}, ErrEmptyName
	}
	if strings.EqualFold(name, a.reservedName) {
		return Claim{}, ErrReservedName
	}

	c, ok := session.ParseColor(color)
	if !ok {
		return Claim{}, ErrInvalidColor
	}
	if holder, held := a.store.ColorHolder(c); held && holder.ID != s.ID {
		return Claim{}, ErrColorTaken
	}

	s.DisplayName = name
	s.Color = c
	return Claim{Name: name, Color: c}, nil
}

// UserMessage returns the text shown to a participant whose claim failed
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyName):
		return "Please enter a name."
	case errors.Is(err, ErrReservedName):
		return "That name is reserved."
	case errors.Is(err, ErrInvalidColor):
		return "Please pick a valid color."
	case errors.Is(err, ErrColorTaken):
		return "That color is already in use."
	default:
		return "Unable to set your name."
	}
}
