// ABOUTME: YAML session files describing one song and its stems
// ABOUTME: Track descriptors plus optional loop, rate and volume
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stemdeck/stemdeck-go/pkg/asset"
	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"gopkg.in/yaml.v3"
)

// Session is a song to practise with
type Session struct {
	Title    string            `yaml:"title,omitempty"`
	Duration float64           `yaml:"duration,omitempty"`
	Tracks   []stem.Descriptor `yaml:"tracks"`
	Loop     *clock.Region     `yaml:"loop,omitempty"`
	Rate     float64           `yaml:"rate,omitempty"`
	Volume   *float64          `yaml:"volume,omitempty"`
}

// LoadSession reads and validates a session file. Relative local track
// paths are resolved against the file's directory.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, t := range s.Tracks {
		if asset.IsLocal(t.URL) && !strings.HasPrefix(t.URL, "file:") && !filepath.IsAbs(t.URL) {
			s.Tracks[i].URL = filepath.Join(base, t.URL)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks tracks, loop and rate
func (s *Session) Validate() error {
	if err := stem.ValidateSet(s.Tracks); err != nil {
		return err
	}
	if s.Duration < 0 {
		return fmt.Errorf("negative duration %v", s.Duration)
	}
	if s.Loop != nil {
		if err := s.Loop.Validate(); err != nil {
			return err
		}
	}
	if s.Rate < 0 {
		return fmt.Errorf("negative rate %v", s.Rate)
	}
	if s.Volume != nil && (*s.Volume < 0 || *s.Volume > 1) {
		return fmt.Errorf("volume %v outside [0, 1]", *s.Volume)
	}
	return nil
}

// Save writes the session as YAML
func (s *Session) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LocalPaths returns the local files referenced by the session
func (s *Session) LocalPaths() []string {
	var paths []string
	for _, t := range s.Tracks {
		if !asset.IsLocal(t.URL) {
			continue
		}
		if p, err := asset.LocalPath(t.URL); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}
