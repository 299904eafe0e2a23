// ABOUTME: Tests for the song clock model
// ABOUTME: Tests loop normalization, continuity and region validation
package clock

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestNormalize(t *testing.T) {
	m := Model{}.WithLoop(&Region{Start: 10, End: 20})

	tests := []struct {
		raw  float64
		want float64
	}{
		{raw: 25, want: 15},
		{raw: 5, want: 10},
		{raw: 10, want: 10},
		{raw: 19.5, want: 19.5},
		{raw: 20, want: 10},
		{raw: 45, want: 15},
	}

	for _, tt := range tests {
		if got := m.Normalize(tt.raw); !approx(got, tt.want) {
			t.Errorf("Normalize(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeWithoutLoop(t *testing.T) {
	m := Model{}
	for _, raw := range []float64{0, 5, 123.4} {
		if got := m.Normalize(raw); got != raw {
			t.Errorf("Normalize(%v) = %v, want identity", raw, got)
		}
	}
}

func TestSongTimeAt(t *testing.T) {
	m := New(100, 1).Reanchor(100, 3, 2)

	if got := m.SongTimeAt(100); !approx(got, 3) {
		t.Errorf("at anchor: got %v, want 3", got)
	}
	if got := m.SongTimeAt(102); !approx(got, 7) {
		t.Errorf("after 2s at 2x: got %v, want 7", got)
	}
}

func TestSongTimeAtIsRepeatable(t *testing.T) {
	m := New(0, 1).Reanchor(5, 1, 1.5)
	first := m.SongTimeAt(9)
	second := m.SongTimeAt(9)
	if first != second {
		t.Errorf("repeated reads differ: %v vs %v", first, second)
	}
}

func TestContinuityAcrossRateChange(t *testing.T) {
	rates := []float64{0.5, 0.75, 1, 1.25, 2, 3}
	m := New(0, 1)
	hw := 0.0

	for i, r := range rates {
		hw += 0.37 * float64(i+1)
		before := m.SongTimeAt(hw)
		m = m.WithRate(hw, r)
		after := m.SongTimeAt(hw)
		if !approx(before, after) {
			t.Fatalf("jump at rate change to %v: %v -> %v", r, before, after)
		}
		if m.Anchor.Rate != r {
			t.Errorf("expected rate %v, got %v", r, m.Anchor.Rate)
		}
	}
}

func TestContinuityWithLoop(t *testing.T) {
	m := New(0, 1).WithLoop(&Region{Start: 2, End: 4})
	m = m.Reanchor(0, 2, 1)

	hw := 3.5
	before := m.SongTimeAt(hw)
	m = m.WithRate(hw, 2)
	if after := m.SongTimeAt(hw); !approx(before, after) {
		t.Errorf("jump at rate change inside loop: %v -> %v", before, after)
	}
}

func TestLoopNeverExceedsEnd(t *testing.T) {
	m := New(0, 1).WithLoop(&Region{Start: 2, End: 4}).Reanchor(0, 2, 1.7)
	for hw := 0.0; hw < 20; hw += 0.01 {
		got := m.SongTimeAt(hw)
		if got < 2 || got > 4 {
			t.Fatalf("song time %v outside loop at hw %v", got, hw)
		}
	}
}

func TestWrapped(t *testing.T) {
	m := New(0, 1).WithLoop(&Region{Start: 2, End: 4}).Reanchor(0, 2, 1)
	if m.Wrapped(1.9) {
		t.Error("should not have wrapped before the end")
	}
	if !m.Wrapped(2) {
		t.Error("should have wrapped at the end")
	}
	if (Model{}).Wrapped(100) {
		t.Error("no loop means no wrap")
	}
}

func TestWithLoopCopiesRegion(t *testing.T) {
	r := &Region{Start: 1, End: 2}
	m := Model{}.WithLoop(r)
	r.End = 50

	if m.Loop.End != 2 {
		t.Errorf("model region aliased caller's region: end %v", m.Loop.End)
	}
	if !m.Looping() {
		t.Error("expected looping")
	}
	if m.WithLoop(nil).Looping() {
		t.Error("nil region should disable looping")
	}
}

func TestNewRegion(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		wantErr    bool
	}{
		{name: "valid", start: 2, end: 4},
		{name: "zero start", start: 0, end: 0.5},
		{name: "equal", start: 3, end: 3, wantErr: true},
		{name: "reversed", start: 4, end: 2, wantErr: true},
		{name: "negative", start: -1, end: 2, wantErr: true},
		{name: "nan", start: math.NaN(), end: 2, wantErr: true},
		{name: "inf", start: 0, end: math.Inf(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegion(tt.start, tt.end)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRegion) {
					t.Errorf("expected ErrInvalidRegion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Length() != tt.end-tt.start {
				t.Errorf("length = %v", r.Length())
			}
		})
	}
}

func TestRegionContains(t *testing.T) {
	r := Region{Start: 2, End: 4}
	if !r.Contains(2) || !r.Contains(3.99) {
		t.Error("expected inside")
	}
	if r.Contains(4) || r.Contains(1.99) {
		t.Error("expected outside")
	}
}
