// ABOUTME: Software render graph acting as the host audio primitive
// ABOUTME: Hardware clock, sample-accurate buffer sources and gain nodes
package output

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/stemdeck/stemdeck-go/pkg/audio"
	"github.com/stemdeck/stemdeck-go/pkg/graph"
)

var (
	// ErrAlreadyStarted is returned when a source is started twice
	ErrAlreadyStarted = errors.New("source already started")

	// ErrForeignNode is returned when connecting nodes of different mixers
	ErrForeignNode = errors.New("node belongs to another mixer")
)

// maxChain bounds gain chain walks so a miswired cycle renders silence
const maxChain = 16

// Mixer renders every started source through its gain chain. The
// hardware clock is the number of frames rendered so far. Node methods
// may be called from any goroutine; rendering happens on the device's.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	frames     int64
	dest       *gainNode
	sources    []*bufferSource
	scratch    []float32
	closed     bool

	// Wall-clock interpolation between device pulls
	interpolate bool
	lastPull    time.Time
	lastChunk   int64
	lastNow     float64
}

// NewMixer creates a mixer rendering at sampleRate with channels outputs
func NewMixer(sampleRate, channels int) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		channels:   channels,
	}
	m.dest = &gainNode{m: m, gain: 1, dest: true}
	return m
}

// SampleRate returns the output sample rate
func (m *Mixer) SampleRate() int { return m.sampleRate }

// Channels returns the output channel count
func (m *Mixer) Channels() int { return m.channels }

// SetInterpolate smooths Now between device pulls using wall time.
// Offline rendering leaves it off so the clock is exactly frames/rate.
func (m *Mixer) SetInterpolate(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interpolate = enabled
}

// Now returns the hardware clock in seconds
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowLocked()
}

func (m *Mixer) nowLocked() float64 {
	rate := float64(m.sampleRate)
	if !m.interpolate || m.lastPull.IsZero() {
		return float64(m.frames) / rate
	}

	chunk := float64(m.lastChunk) / rate
	elapsed := time.Since(m.lastPull).Seconds()
	if elapsed > chunk {
		elapsed = chunk
	}
	now := float64(m.frames-m.lastChunk)/rate + elapsed
	if now < m.lastNow {
		now = m.lastNow
	}
	m.lastNow = now
	return now
}

// Destination returns the output node
func (m *Mixer) Destination() graph.Node { return m.dest }

// NewGain creates an unconnected gain node
func (m *Mixer) NewGain() graph.Gain {
	return &gainNode{m: m, gain: 1}
}

// NewSource creates a source for buf
func (m *Mixer) NewSource(buf *audio.Buffer) graph.Source {
	s := &bufferSource{
		m:    m,
		buf:  buf,
		rate: 1,
	}
	s.step = s.stepFor(1)
	return s
}

// Active returns the number of sources currently rendering
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Render mixes the next len(out)/channels frames into out and advances
// the hardware clock. It returns the number of frames rendered.
func (m *Mixer) Render(out []float32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderLocked(out)
}

// Read implements io.Reader for output devices: interleaved float32
// little-endian frames. It returns io.EOF once the mixer is closed.
func (m *Mixer) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.EOF
	}

	frameBytes := 4 * m.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	need := frames * m.channels
	if cap(m.scratch) < need {
		m.scratch = make([]float32, need)
	}
	out := m.scratch[:need]

	if m.interpolate {
		m.lastNow = m.nowLocked()
	}
	m.renderLocked(out)
	m.lastPull = time.Now()
	m.lastChunk = int64(frames)

	for i, v := range out {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * frameBytes, nil
}

// Close stops every source and makes Read return io.EOF
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		s.stopped = true
	}
	m.sources = nil
	m.closed = true
	return nil
}

func (m *Mixer) renderLocked(out []float32) int {
	frames := len(out) / m.channels
	out = out[:frames*m.channels]
	for i := range out {
		out[i] = 0
	}

	live := m.sources[:0]
	for _, s := range m.sources {
		s.render(out, frames, s.level())
		if !s.ended {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(m.sources); i++ {
		m.sources[i] = nil
	}
	m.sources = live

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}

	m.frames += int64(frames)
	return frames
}

func (m *Mixer) frameAt(when float64) int64 {
	return int64(math.Round(when * float64(m.sampleRate)))
}

func (m *Mixer) remove(s *bufferSource) {
	for i, other := range m.sources {
		if other == s {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}

// gainNode scales its inputs and forwards them to out
type gainNode struct {
	m    *Mixer
	gain float64
	out  *gainNode
	dest bool
}

func (g *gainNode) Connect(dst graph.Node) error {
	d, ok := dst.(*gainNode)
	if !ok || d.m != g.m {
		return ErrForeignNode
	}
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	g.out = d
	return nil
}

func (g *gainNode) Disconnect() {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	g.out = nil
}

func (g *gainNode) SetGain(v float64) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	g.gain = v
}

// level multiplies gains up to the destination. Unrouted chains are silent.
func (g *gainNode) level() float64 {
	lvl := 1.0
	node := g
	for i := 0; i < maxChain && node != nil; i++ {
		if node.dest {
			return lvl
		}
		lvl *= node.gain
		node = node.out
	}
	return 0
}

type rateChange struct {
	frame int64
	rate  float64
}

// bufferSource plays one buffer from an offset with native looping.
// The position is tracked in buffer frames and advanced by step per
// output frame, so rate and sample-rate conversion share one path.
type bufferSource struct {
	m    *Mixer
	buf  *audio.Buffer
	out  *gainNode
	rate float64
	step float64

	pending *rateChange

	loop      bool
	loopStart float64
	loopEnd   float64

	startFrame int64
	beginFrame int64
	offset     float64
	started    bool
	begun      bool
	stopped    bool
	ended      bool
	pos        float64
}

func (s *bufferSource) Connect(dst graph.Node) error {
	d, ok := dst.(*gainNode)
	if !ok || d.m != s.m {
		return ErrForeignNode
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.out = d
	return nil
}

func (s *bufferSource) Disconnect() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.out = nil
}

func (s *bufferSource) Start(when, offset float64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if offset < 0 {
		offset = 0
	}
	s.started = true
	s.startFrame = s.m.frameAt(when)
	s.offset = offset
	if !s.m.closed {
		s.m.sources = append(s.m.sources, s)
	}
	return nil
}

func (s *bufferSource) Stop() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.m.remove(s)
}

func (s *bufferSource) SetRate(rate, when float64) {
	if rate <= 0 || math.IsNaN(rate) {
		return
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	frame := s.m.frameAt(when)
	if s.started && frame > s.m.frames {
		s.pending = &rateChange{frame: frame, rate: rate}
		return
	}

	newStep := s.stepFor(rate)
	if s.begun {
		// The change belongs to a frame that already rendered: move the
		// playhead to where it would be had the rate switched on time.
		from := frame
		if from < s.beginFrame {
			from = s.beginFrame
		}
		if from < s.m.frames {
			inLoop := s.inLoop()
			s.pos += float64(s.m.frames-from) * (newStep - s.step)
			s.wrap()
			if inLoop {
				s.wrapBack()
			}
		}
	}
	s.rate = rate
	s.step = newStep
	s.pending = nil
}

func (s *bufferSource) SetLoop(enabled bool, start, end float64) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.loop = enabled
	s.loopStart = start
	s.loopEnd = end
	if s.begun {
		s.wrap()
	}
}

// Position returns the playhead in buffer seconds
func (s *bufferSource) Position() float64 {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if !s.begun {
		return s.offset
	}
	return s.pos / float64(s.buf.Format.SampleRate)
}

// Playing reports whether the source is started and still rendering
func (s *bufferSource) Playing() bool {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.started && !s.stopped && !s.ended
}

// Rate returns the current playback rate
func (s *bufferSource) Rate() float64 {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.rate
}

func (s *bufferSource) stepFor(rate float64) float64 {
	return rate * float64(s.buf.Format.SampleRate) / float64(s.m.sampleRate)
}

func (s *bufferSource) level() float64 {
	if s.out == nil {
		return 0
	}
	return s.out.level()
}

func (s *bufferSource) loopFrames() (start, end float64, ok bool) {
	if !s.loop || s.loopEnd <= s.loopStart {
		return 0, 0, false
	}
	rate := float64(s.buf.Format.SampleRate)
	start = s.loopStart * rate
	end = s.loopEnd * rate
	if total := float64(s.buf.Frames()); end > total {
		end = total
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func (s *bufferSource) wrap() {
	start, end, ok := s.loopFrames()
	if !ok || s.pos < end {
		return
	}
	s.pos = start + math.Mod(s.pos-start, end-start)
}

func (s *bufferSource) inLoop() bool {
	start, end, ok := s.loopFrames()
	return ok && s.pos >= start && s.pos < end
}

// wrapBack folds a playhead moved back before the loop start into the
// loop, for slow-downs corrected after a wrap
func (s *bufferSource) wrapBack() {
	start, end, ok := s.loopFrames()
	if !ok || s.pos >= start {
		return
	}
	d := math.Mod(start-s.pos, end-start)
	if d == 0 {
		s.pos = start
		return
	}
	s.pos = end - d
}

func (s *bufferSource) render(out []float32, frames int, lvl float64) {
	total := s.buf.Frames()
	inCh := s.buf.Format.Channels
	outCh := s.m.channels
	gain := float32(lvl)

	for i := 0; i < frames; i++ {
		f := s.m.frames + int64(i)

		if s.pending != nil && f >= s.pending.frame {
			s.rate = s.pending.rate
			s.step = s.stepFor(s.rate)
			s.pending = nil
		}
		if f < s.startFrame {
			continue
		}
		if !s.begun {
			s.begun = true
			s.beginFrame = f
			s.pos = s.offset*float64(s.buf.Format.SampleRate) + float64(f-s.startFrame)*s.step
			s.wrap()
		}
		if s.pos >= float64(total) {
			s.ended = true
			return
		}

		idx := int(s.pos)
		frac := float32(s.pos - float64(idx))
		next := idx + 1
		if next >= total {
			next = idx
			if start, _, ok := s.loopFrames(); ok {
				next = int(start)
			}
		}

		if gain != 0 {
			for c := 0; c < outCh; c++ {
				var v float32
				if outCh < inCh && outCh == 1 {
					// Downmix to mono
					for ic := 0; ic < inCh; ic++ {
						v += lerp(s.buf.Sample(idx, ic), s.buf.Sample(next, ic), frac)
					}
					v /= float32(inCh)
				} else {
					ic := c % inCh
					v = lerp(s.buf.Sample(idx, ic), s.buf.Sample(next, ic), frac)
				}
				out[i*outCh+c] += v * gain
			}
		}

		s.pos += s.step
		s.wrap()
	}
}

func lerp(a, b, frac float32) float32 {
	return a + (b-a)*frac
}
