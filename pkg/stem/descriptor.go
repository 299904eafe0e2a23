// ABOUTME: Track descriptors handed to the player by the analysis service
// ABOUTME: Validates that a descriptor set forms one coherent timeline
package stem

import (
	"errors"
	"fmt"
)

// Descriptor points one stem at the URL of its encoded audio
type Descriptor struct {
	Key ID     `yaml:"key" json:"key"`
	URL string `yaml:"url" json:"url"`
}

var (
	// ErrNoMaster is returned when a descriptor set lacks the full mix
	ErrNoMaster = errors.New("track set has no master track")

	// ErrDuplicate is returned when a stem appears twice in one set
	ErrDuplicate = errors.New("duplicate stem in track set")
)

// ValidateSet checks that descriptors name each stem at most once,
// include the master track and carry a URL for every entry.
func ValidateSet(descs []Descriptor) error {
	var seen [Count]bool
	for _, d := range descs {
		if !d.Key.Valid() {
			return fmt.Errorf("%w: %d", ErrUnknown, int(d.Key))
		}
		if seen[d.Key] {
			return fmt.Errorf("%w: %s", ErrDuplicate, d.Key)
		}
		if d.URL == "" {
			return fmt.Errorf("stem %s has no url", d.Key)
		}
		seen[d.Key] = true
	}
	if !seen[Master] {
		return ErrNoMaster
	}
	return nil
}

// Keys returns the stems named by descs in registry order
func Keys(descs []Descriptor) []ID {
	var seen [Count]bool
	for _, d := range descs {
		if d.Key.Valid() {
			seen[d.Key] = true
		}
	}
	keys := make([]ID, 0, len(descs))
	for _, id := range All() {
		if seen[id] {
			keys = append(keys, id)
		}
	}
	return keys
}
