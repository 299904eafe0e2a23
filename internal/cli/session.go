// ABOUTME: Builds a playback session from a session file or track flags
// ABOUTME: Flag values override the settings stored in the session file
package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stemdeck/stemdeck-go/internal/config"
	"github.com/stemdeck/stemdeck-go/pkg/asset"
	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
)

// trackFlags holds one URL flag per stem
type trackFlags [stem.Count]string

func (f *trackFlags) descriptors() []stem.Descriptor {
	var descs []stem.Descriptor
	for _, id := range stem.All() {
		if f[id] != "" {
			descs = append(descs, stem.Descriptor{Key: id, URL: f[id]})
		}
	}
	return descs
}

// parseLoop reads a loop region written as "start:end" in seconds
func parseLoop(s string) (*clock.Region, error) {
	before, after, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("loop %q must be start:end", s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(before), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid loop start %q: %w", before, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(after), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid loop end %q: %w", after, err)
	}
	region, err := clock.NewRegion(start, end)
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// buildSession loads path when given, then layers the track flags on
// top. A stem given both ways takes the flag's URL.
func buildSession(path string, tracks *trackFlags) (*config.Session, error) {
	s := &config.Session{}
	if path != "" {
		loaded, err := config.LoadSession(path)
		if err != nil {
			return nil, err
		}
		s = loaded
	}

	for _, d := range tracks.descriptors() {
		replaced := false
		for i := range s.Tracks {
			if s.Tracks[i].Key == d.Key {
				s.Tracks[i].URL = d.URL
				replaced = true
			}
		}
		if !replaced {
			s.Tracks = append(s.Tracks, d)
		}
	}

	if len(s.Tracks) == 0 {
		return nil, fmt.Errorf("no tracks: pass a session file or --master")
	}
	if s.Title == "" {
		s.Title = titleFrom(path, s.Tracks)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func titleFrom(path string, tracks []stem.Descriptor) string {
	if path != "" {
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, t := range tracks {
		if t.Key.IsMaster() {
			base := t.URL
			if p, err := asset.LocalPath(t.URL); err == nil && asset.IsLocal(t.URL) {
				base = p
			}
			return strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
		}
	}
	return ""
}

// urlsByPath maps absolute local file paths back to the descriptor URLs
// that reference them
func urlsByPath(tracks []stem.Descriptor) map[string]string {
	out := make(map[string]string)
	for _, t := range tracks {
		if !asset.IsLocal(t.URL) {
			continue
		}
		p, err := asset.LocalPath(t.URL)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			out[abs] = t.URL
		}
	}
	return out
}
