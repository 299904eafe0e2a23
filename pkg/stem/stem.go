// ABOUTME: Closed set of stem identifiers shared by every player component
// ABOUTME: Defines the full mix plus the four isolated instrument stems
package stem

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies one track of a song. The set is fixed.
type ID int

const (
	Master ID = iota
	Vocals
	Drums
	Bass
	Other

	// Count is the number of known stems, usable as an array length
	Count = int(Other) + 1
)

var names = [Count]string{"master", "vocals", "drums", "bass", "other"}

// ErrUnknown is returned when a stem name is not part of the set
var ErrUnknown = errors.New("unknown stem")

// All returns every stem in registry order, master first
func All() []ID {
	return []ID{Master, Vocals, Drums, Bass, Other}
}

// Valid reports whether id is one of the known stems
func (id ID) Valid() bool {
	return id >= Master && id <= Other
}

// IsMaster reports whether id is the full mix
func (id ID) IsMaster() bool {
	return id == Master
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("stem(%d)", int(id))
	}
	return names[id]
}

// Parse converts a stem name ("vocals", "Drums", ...) to its ID.
// "mix" and "full" are accepted as aliases for the master track.
func Parse(s string) (ID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "mix", "full", "full_mix":
		return Master, nil
	}
	for i, n := range names {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknown, s)
}

// MarshalText implements encoding.TextMarshaler
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, int(id))
	}
	return []byte(names[id]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
