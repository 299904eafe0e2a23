// ABOUTME: Tests for the transport controller
// ABOUTME: Drives simulated hardware time through the software mixer
package transport

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"github.com/stemdeck/stemdeck-go/pkg/audio/output"
	"github.com/stemdeck/stemdeck-go/pkg/clock"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
)

const (
	sampleRate = 1000
	tolerance  = 1e-3
)

// manualScheduler runs periodic tasks only when fire is called
type manualScheduler struct {
	tasks map[int]func()
	next  int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[int]func())}
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	id := s.next
	s.next++
	s.tasks[id] = fn
	return func() { delete(s.tasks, id) }
}

func (s *manualScheduler) fire() {
	for _, fn := range s.tasks {
		fn()
	}
}

func (s *manualScheduler) active() int {
	return len(s.tasks)
}

type rig struct {
	t      *testing.T
	mixer  *output.Mixer
	sched  *manualScheduler
	ctrl   *Controller
	times  []float64
	states []bool
	errs   []error
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		t:     t,
		mixer: output.NewMixer(sampleRate, 1),
		sched: newManualScheduler(),
	}
	r.ctrl = NewController(Config{
		Host:      r.mixer,
		Scheduler: r.sched,
		Callbacks: Callbacks{
			OnTimeUpdate:      func(v float64) { r.times = append(r.times, v) },
			OnPlayStateChange: func(p bool) { r.states = append(r.states, p) },
			OnError:           func(err error) { r.errs = append(r.errs, err) },
		},
	})
	return r
}

func buffer(seconds float64) *audio.Buffer {
	samples := make([]int32, int(seconds*sampleRate))
	for i := range samples {
		samples[i] = int32(i)
	}
	return &audio.Buffer{
		Format:  audio.Format{SampleRate: sampleRate, Channels: 1, BitDepth: 24},
		Samples: samples,
	}
}

func trackSet(t *testing.T, seconds float64, keys ...stem.ID) *TrackSet {
	t.Helper()
	tracks := make([]Track, len(keys))
	for i, k := range keys {
		tracks[i] = Track{Key: k, URL: k.String() + ".wav", Buffer: buffer(seconds)}
	}
	ts, err := NewTrackSet(seconds, tracks...)
	if err != nil {
		t.Fatalf("failed to build track set: %v", err)
	}
	return ts
}

func (r *rig) load(seconds float64, keys ...stem.ID) {
	r.t.Helper()
	if err := r.ctrl.Load(trackSet(r.t, seconds, keys...)); err != nil {
		r.t.Fatalf("load failed: %v", err)
	}
}

// advance renders seconds of audio then runs one tick
func (r *rig) advance(seconds float64) {
	frames := int(math.Round(seconds * sampleRate))
	r.mixer.Render(make([]float32, frames))
	r.sched.fire()
}

func (r *rig) expectTime(want float64) {
	r.t.Helper()
	if got := r.ctrl.SongTime(); math.Abs(got-want) > tolerance {
		r.t.Fatalf("song time = %.4f, want %.4f", got, want)
	}
}

// expectPhaseLock checks every live source sits at the reported song time
func (r *rig) expectPhaseLock() {
	r.t.Helper()
	song := r.ctrl.SongTime()
	for key, src := range r.ctrl.sources {
		if src == nil {
			continue
		}
		pos := src.(interface{ Position() float64 }).Position()
		if math.Abs(pos-song) > tolerance {
			r.t.Fatalf("%s at %.4f, song time %.4f", stem.ID(key), pos, song)
		}
	}
}

func TestEndToEnd(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	if err := r.ctrl.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	r.advance(3)
	r.expectTime(3.0)

	if err := r.ctrl.SetRate(2.0); err != nil {
		t.Fatal(err)
	}
	r.advance(2)
	r.expectTime(7.0)
	r.expectPhaseLock()

	if err := r.ctrl.Seek(1.0); err != nil {
		t.Fatal(err)
	}
	if got := r.ctrl.SongTime(); got != 1.0 {
		t.Fatalf("seek: song time = %v, want exactly 1.0", got)
	}

	region, _ := clock.NewRegion(2, 4)
	if err := r.ctrl.SetLoop(&region); err != nil {
		t.Fatal(err)
	}
	if err := r.ctrl.Play(); err != nil {
		t.Fatal(err)
	}
	r.expectTime(2.0)

	r.times = nil
	for i := 0; i < 60; i++ {
		r.advance(0.05)
	}

	wrapped := false
	for i, v := range r.times {
		if v < 2 || v > 4 {
			t.Fatalf("reported %v outside loop", v)
		}
		if i > 0 && v < r.times[i-1] {
			wrapped = true
		}
	}
	if !wrapped {
		t.Error("song time never wrapped")
	}
	r.expectPhaseLock()
}

func TestPlayFromPausedSeekIntoLoop(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	r.ctrl.Seek(1.0)
	region := clock.Region{Start: 2, End: 4}
	r.ctrl.SetLoop(&region)
	r.ctrl.Play()

	r.expectTime(2.0)
	r.advance(1.5)
	r.expectTime(3.5)
	r.advance(1.0)
	r.expectTime(2.5)
	r.expectPhaseLock()
}

func TestPauseResume(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master, stem.Vocals, stem.Drums)

	r.ctrl.Play()
	r.advance(2.5)
	if err := r.ctrl.Pause(); err != nil {
		t.Fatal(err)
	}
	if r.ctrl.State() != Paused {
		t.Fatalf("expected paused, got %s", r.ctrl.State())
	}
	if r.sched.active() != 0 {
		t.Error("pause must cancel the tick")
	}
	if r.mixer.Active() != 0 {
		t.Errorf("expected no live sources, got %d", r.mixer.Active())
	}

	r.advance(5)
	r.expectTime(2.5)

	r.ctrl.Play()
	r.expectTime(2.5)
	r.advance(0.5)
	r.expectTime(3.0)
	r.expectPhaseLock()

	if len(r.states) != 3 || !r.states[0] || r.states[1] || !r.states[2] {
		t.Errorf("unexpected play state events %v", r.states)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	if err := r.ctrl.Pause(); err != nil {
		t.Fatal(err)
	}
	if r.ctrl.State() != Stopped {
		t.Errorf("pause while stopped changed state to %s", r.ctrl.State())
	}
	r.ctrl.Play()
	r.ctrl.Pause()
	r.ctrl.Pause()
	if len(r.states) != 2 {
		t.Errorf("expected 2 state events, got %v", r.states)
	}
}

func TestPlayWhilePlayingIsNoop(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	r.ctrl.Play()
	r.advance(1)
	r.ctrl.Play()
	r.expectTime(1)
	if r.sched.active() != 1 {
		t.Errorf("expected one tick task, got %d", r.sched.active())
	}
}

func TestPhaseLockAcrossTracks(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master, stem.Vocals, stem.Drums, stem.Bass, stem.Other)

	r.ctrl.Play()
	r.advance(1.234)
	r.expectPhaseLock()

	r.ctrl.SetRate(1.5)
	r.advance(0.777)
	r.expectPhaseLock()

	r.ctrl.Seek(4.2)
	r.advance(0.3)
	r.expectPhaseLock()

	r.ctrl.SetRate(0.5)
	r.advance(1)
	r.expectPhaseLock()
	r.expectTime(4.2 + 0.3*1.5 + 0.5)
}

func TestRateContinuity(t *testing.T) {
	r := newRig(t)
	r.load(30, stem.Master)
	r.ctrl.Play()

	for _, rate := range []float64{1.25, 0.5, 2, 0.75} {
		r.advance(0.4)
		before := r.ctrl.SongTime()
		r.ctrl.SetRate(rate)
		after := r.ctrl.SongTime()
		if math.Abs(before-after) > 1e-9 {
			t.Fatalf("jump at rate %v: %v -> %v", rate, before, after)
		}
	}
}

func TestSetRateWhilePaused(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	r.ctrl.Seek(2)
	r.ctrl.SetRate(2)
	r.expectTime(2)

	r.ctrl.Play()
	r.advance(1)
	r.expectTime(4)
}

func TestInvalidRate(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := r.ctrl.SetRate(rate); !errors.Is(err, ErrInvalidRate) {
			t.Errorf("SetRate(%v): expected ErrInvalidRate, got %v", rate, err)
		}
	}
	if r.ctrl.Status().Rate != 1 {
		t.Error("rate changed after rejected update")
	}
}

func TestEndOfTrack(t *testing.T) {
	r := newRig(t)
	r.load(1, stem.Master, stem.Bass)

	r.ctrl.Play()
	r.advance(0.5)
	r.advance(0.6)

	if r.ctrl.State() != Stopped {
		t.Fatalf("expected stopped, got %s", r.ctrl.State())
	}
	if r.ctrl.SongTime() != 0 {
		t.Errorf("expected song time 0, got %v", r.ctrl.SongTime())
	}
	if last := r.times[len(r.times)-1]; last != 0 {
		t.Errorf("expected final time update 0, got %v", last)
	}
	if last := r.states[len(r.states)-1]; last {
		t.Error("expected play state false")
	}
	if r.sched.active() != 0 {
		t.Error("tick should be cancelled at end of track")
	}
}

func TestPauseAfterEndBeforeTick(t *testing.T) {
	r := newRig(t)
	r.load(2, stem.Master)

	r.ctrl.Play()
	r.mixer.Render(make([]float32, 3*sampleRate))

	if err := r.ctrl.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if r.ctrl.State() != Stopped {
		t.Fatalf("expected stopped, got %s", r.ctrl.State())
	}
	r.expectTime(0)
	for _, v := range r.times {
		if v > 2 {
			t.Errorf("time update %v past the end", v)
		}
	}
	if last := r.states[len(r.states)-1]; last {
		t.Error("expected play state false")
	}
	if r.sched.active() != 0 {
		t.Error("tick should be cancelled")
	}
}

func TestLoopPreventsEnd(t *testing.T) {
	r := newRig(t)
	r.load(2, stem.Master)
	region := clock.Region{Start: 1, End: 2}
	r.ctrl.SetLoop(&region)

	r.ctrl.Seek(1.5)
	r.ctrl.Play()
	for i := 0; i < 30; i++ {
		r.advance(0.1)
	}
	if r.ctrl.State() != Playing {
		t.Fatalf("looping track stopped: %s", r.ctrl.State())
	}
	r.expectPhaseLock()
}

func TestInvalidLoopKeepsPrevious(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	good := clock.Region{Start: 2, End: 4}
	if err := r.ctrl.SetLoop(&good); err != nil {
		t.Fatal(err)
	}

	for _, bad := range []clock.Region{{Start: 4, End: 2}, {Start: 3, End: 3}, {Start: 5, End: 12}} {
		if err := r.ctrl.SetLoop(&bad); !errors.Is(err, clock.ErrInvalidRegion) {
			t.Errorf("SetLoop(%v): expected ErrInvalidRegion, got %v", bad, err)
		}
	}

	loop := r.ctrl.Status().Loop
	if loop == nil || *loop != good {
		t.Errorf("expected previous region kept, got %v", loop)
	}
}

func TestClearLoopWhilePlaying(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	region := clock.Region{Start: 2, End: 4}
	r.ctrl.SetLoop(&region)
	r.ctrl.Play()

	r.advance(2.5)
	r.expectTime(2.5)
	if err := r.ctrl.SetLoop(nil); err != nil {
		t.Fatal(err)
	}
	r.advance(2)
	r.expectTime(4.5)
	r.expectPhaseLock()
}

func TestLoopInsideRegionKeepsPlaying(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	r.ctrl.Play()
	r.advance(3)

	region := clock.Region{Start: 2, End: 5}
	r.ctrl.SetLoop(&region)
	r.expectTime(3)
	r.advance(2.5)
	r.expectTime(2.5)
	r.expectPhaseLock()
}

func TestSeekEdges(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	r.ctrl.Seek(-3)
	r.expectTime(0)

	r.ctrl.Seek(12)
	r.expectTime(0)

	r.ctrl.Seek(9.5)
	r.expectTime(9.5)
	if len(r.times) != 3 {
		t.Errorf("expected a time update per seek, got %d", len(r.times))
	}
}

func TestNotReady(t *testing.T) {
	r := newRig(t)

	ops := map[string]func() error{
		"play":  r.ctrl.Play,
		"pause": r.ctrl.Pause,
		"seek":  func() error { return r.ctrl.Seek(1) },
		"rate":  func() error { return r.ctrl.SetRate(2) },
		"loop":  func() error { return r.ctrl.SetLoop(&clock.Region{Start: 1, End: 2}) },
		"mute":  func() error { return r.ctrl.MuteTrack(stem.Drums, true) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrNotReady) {
			t.Errorf("%s: expected ErrNotReady, got %v", name, err)
		}
	}

	s := r.ctrl.Status()
	if !s.NotReady || s.Ready {
		t.Errorf("expected not-ready flag, got %+v", s)
	}
	if s.State != Stopped || len(r.states) != 0 {
		t.Error("unready operations must not change state")
	}

	r.load(5, stem.Master)
	if r.ctrl.Status().NotReady {
		t.Error("load should clear the not-ready flag")
	}
}

func TestMuteIsolation(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master, stem.Vocals, stem.Drums)
	r.ctrl.Play()
	r.advance(1)

	if err := r.ctrl.MuteTrack(stem.Drums, true); err != nil {
		t.Fatal(err)
	}
	if r.ctrl.graph.EffectiveGain(stem.Drums) != 0 {
		t.Error("drums should be silent")
	}
	if r.ctrl.graph.EffectiveGain(stem.Vocals) != 1 {
		t.Error("vocals should be unaffected")
	}
	if r.ctrl.State() != Playing {
		t.Error("mute changed transport state")
	}
	r.expectTime(1)

	if err := r.ctrl.MuteTrack(stem.Bass, true); !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("expected ErrUnknownTrack, got %v", err)
	}
}

func TestVolumeSurvivesReload(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetVolume(0.4)
	r.load(10, stem.Master)
	if r.ctrl.graph.MasterGain() != 0.4 {
		t.Errorf("expected volume 0.4, got %v", r.ctrl.graph.MasterGain())
	}
}

func TestReloadKeepsGraphForSameKeys(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	first := r.ctrl.graph

	r.load(10, stem.Master)
	if r.ctrl.graph != first {
		t.Error("graph rebuilt for an unchanged stem set")
	}

	r.load(10, stem.Master, stem.Vocals)
	if r.ctrl.graph == first {
		t.Error("graph should be rebuilt when stems become available")
	}
}

func TestLoadWhilePlayingKeepsPosition(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)
	r.ctrl.Play()
	r.advance(2)

	r.load(10, stem.Master, stem.Vocals, stem.Drums, stem.Bass, stem.Other)
	if r.ctrl.State() != Playing {
		t.Fatal("expected to keep playing")
	}
	r.expectTime(2)
	r.advance(1)
	r.expectTime(3)
	r.expectPhaseLock()
	if r.mixer.Active() != 5 {
		t.Errorf("expected 5 live sources, got %d", r.mixer.Active())
	}
}

func TestFailedLoadKeepsTracks(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master)

	loadErr := errors.New("decode failed")
	r.ctrl.FailLoad(loadErr)

	s := r.ctrl.Status()
	if !errors.Is(s.LoadError, loadErr) {
		t.Errorf("expected load error, got %v", s.LoadError)
	}
	if !s.Ready || len(s.Tracks) != 1 {
		t.Error("previous track set should be intact")
	}
	if len(r.errs) != 1 {
		t.Errorf("expected OnError once, got %d", len(r.errs))
	}
	if err := r.ctrl.Play(); err != nil {
		t.Errorf("play after failed load: %v", err)
	}
}

func TestClose(t *testing.T) {
	r := newRig(t)
	r.load(10, stem.Master, stem.Drums)
	r.ctrl.Play()
	r.advance(0.5)
	r.ctrl.Close()

	if r.sched.active() != 0 {
		t.Error("close must cancel the tick")
	}
	if r.mixer.Active() != 0 {
		t.Error("close must stop every source")
	}
	if err := r.ctrl.Play(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := r.ctrl.Load(trackSet(t, 1, stem.Master)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewTrackSet(t *testing.T) {
	if _, err := NewTrackSet(0, Track{Key: stem.Vocals, Buffer: buffer(1)}); !errors.Is(err, stem.ErrNoMaster) {
		t.Errorf("expected ErrNoMaster, got %v", err)
	}
	if _, err := NewTrackSet(0, Track{Key: stem.Master}); !errors.Is(err, ErrNoBuffer) {
		t.Errorf("expected ErrNoBuffer, got %v", err)
	}
	_, err := NewTrackSet(0,
		Track{Key: stem.Master, Buffer: buffer(1)},
		Track{Key: stem.Master, Buffer: buffer(1)})
	if !errors.Is(err, stem.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	ts, err := NewTrackSet(0, Track{Key: stem.Master, Buffer: buffer(2.5)})
	if err != nil {
		t.Fatal(err)
	}
	if ts.Duration() != 2.5 {
		t.Errorf("expected duration from master buffer, got %v", ts.Duration())
	}

	for _, d := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		ts, err := NewTrackSet(d, Track{Key: stem.Master, Buffer: buffer(2)})
		if err != nil {
			t.Fatalf("duration %v: %v", d, err)
		}
		if ts.Duration() != 2 {
			t.Errorf("duration %v: expected master buffer duration 2, got %v", d, ts.Duration())
		}
	}
}

func TestInfiniteDurationStillEnds(t *testing.T) {
	r := newRig(t)
	ts, err := NewTrackSet(math.Inf(1), Track{Key: stem.Master, Buffer: buffer(2)})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.ctrl.Load(ts); err != nil {
		t.Fatal(err)
	}

	r.ctrl.Play()
	r.advance(3)

	if r.ctrl.State() != Stopped {
		t.Fatalf("expected stopped, got %s", r.ctrl.State())
	}
	r.expectTime(0)
}
