package events

// Payload types shared between the game and gateway packages

// Identity is the payload of name, name_ok and buzz_single
type Identity struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Inbound reports whether clients may send frames of this type
func (t Type) Inbound() bool {
	switch t {
	case TypeName, TypeBuzz, TypePong, TypeCode, TypeReset:
		return true
	default:
		return false
	}
}

// ToAll reports whether frames of this type go to every connection
func (t Type) ToAll() bool {
	switch t {
	case TypeBuzzSingle, TypeBuzzList, TypeReset, TypeUserCount:
		return true
	default:
		return false
	}
}
