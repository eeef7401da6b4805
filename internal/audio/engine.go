// Package audio implements the Firmware-side audio engine of spec
// §4.3: a single PCM device opened once (16kHz mono s16le), an
// interruptible chunked writer, a RAM cache of beep WAVs, and WAV file
// playback with an external-player fallback for mismatched formats.
//
// Grounded on the teacher's src/audio.go, which opens a single ALSA
// PCM device directly and streams chunks with interrupt checks; this
// package keeps that same shape (one open, chunked interruptible
// writes, explicit drain/prepare transitions) but is built on
// github.com/gordonklaus/portaudio, the Go-native binding the
// teacher's own go.mod already names, rather than raw cgo ALSA calls.
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// Pipeline contract (spec §4.3).
const (
	SampleRate  = 16000
	Channels    = 1
	BufferMs    = 100
	PeriodMs    = 25
	WriteChunkMs = 50
	WriteChunkSamples = SampleRate * WriteChunkMs / 1000 // 800
)

// State mirrors the audio engine's documented state machine.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateDrained
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateDrained:
		return "drained"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Stream is the subset of portaudio's stream operations this engine
// needs, isolated behind an interface so tests can substitute a fake
// instead of opening a real sound card.
type Stream interface {
	Write() error
	Close() error
	// Buffer is the engine's write buffer; portaudio.Stream exposes it
	// as the bound interface{} passed to OpenDefaultStream, but driving
	// writes through a fixed-size []int16 buffer the engine owns keeps
	// this interface simple and fake-able.
	Buffer() []int16
}

// OpenFunc constructs a Stream bound to the given sample buffer. The
// production implementation opens a real PortAudio output stream;
// tests substitute a fake that records writes.
type OpenFunc func(buf []int16) (Stream, error)

// Engine owns the single PCM output device and its state machine.
type Engine struct {
	log  *log.Logger
	open OpenFunc

	mu     sync.Mutex
	stream Stream
	state  State

	interrupted atomic.Bool

	beeps map[BeepKind][]int16

	cachedInfo *DeviceInfo

	volumePercent atomic.Int32
}

// BeepKind identifies one of the three RAM-cached beeps.
type BeepKind int

const (
	BeepKeypress BeepKind = iota
	BeepHold
	BeepError
)

// DeviceInfo answers an "i" AUDIO info query (spec §4.1).
type DeviceInfo struct {
	CardNumber int
	PortPath   string
}

// New builds an Engine. Call Open before any playback.
func New(open OpenFunc, logger *log.Logger) *Engine {
	e := &Engine{
		open:  open,
		log:   logger,
		state: StateIdle,
		beeps: make(map[BeepKind][]int16),
	}
	e.volumePercent.Store(100)
	return e
}

// SetVolume sets the output gain applied to every subsequently written
// sample, clamped to [0,100] (spec §6 audio.volume; pushed down from
// Software's config store over a CONFIG packet — see
// packet.NewConfigSetVolume).
func (e *Engine) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	e.volumePercent.Store(int32(percent))
}

// OpenDefaultPortAudioStream is the production OpenFunc: a real
// PortAudio output stream at the pipeline's fixed rate/format, buffered
// to ~100ms split across four ~25ms periods (spec §4.3).
func OpenDefaultPortAudioStream(buf []int16) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	framesPerBuffer := len(buf)
	stream, err := portaudio.OpenDefaultStream(0, Channels, float64(SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}
	return &portaudioStream{stream: stream, buf: buf}, nil
}

type portaudioStream struct {
	stream *portaudio.Stream
	buf    []int16
}

func (p *portaudioStream) Write() error { return p.stream.Write() }
func (p *portaudioStream) Buffer() []int16 { return p.buf }
func (p *portaudioStream) Close() error {
	_ = p.stream.Stop()
	err := p.stream.Close()
	portaudio.Terminate()
	return err
}

// Open opens the PCM device once for the process lifetime.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return nil
	}
	buf := make([]int16, WriteChunkSamples)
	s, err := e.open(buf)
	if err != nil {
		return err
	}
	e.stream = s
	e.cachedInfo = nil
	return nil
}

// Close releases the PCM device.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return nil
	}
	err := e.stream.Close()
	e.stream = nil
	return err
}

// Interrupt sets the interrupted flag, so every following chunk is
// discarded until ClearInterrupt. It does not drop the hardware
// buffer: Stream has no drop operation, so samples already handed to
// the device still play out. Safe to call concurrently with an
// in-progress write.
func (e *Engine) Interrupt() {
	e.interrupted.Store(true)
	e.mu.Lock()
	e.state = StateInterrupted
	e.mu.Unlock()
}

// ClearInterrupt is called by the start of a new audio operation. It
// clears the interrupted flag and returns the state to idle (from
// interrupted or drained); it performs no operation on the device
// itself.
func (e *Engine) ClearInterrupt() {
	if e.interrupted.CompareAndSwap(true, false) {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	if e.state == StateDrained {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

// writeChunk writes one WriteChunkSamples-sized chunk, discarding it
// silently if the interrupted flag is set (spec §4.3 write path).
func (e *Engine) writeChunk(samples []int16) error {
	if e.interrupted.Load() {
		return nil
	}

	e.mu.Lock()
	if e.state != StatePlaying {
		e.state = StatePlaying
	}
	stream := e.stream
	e.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("audio: device not open")
	}

	buf := stream.Buffer()
	vol := e.volumePercent.Load()
	n := copy(buf, samples)
	if vol != 100 {
		for i := 0; i < n; i++ {
			buf[i] = int16(int32(buf[i]) * vol / 100)
		}
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return stream.Write()
}

// StreamChunk writes one externally-produced chunk of PCM samples
// straight to the device, bypassing PlaySamples' whole-buffer
// drain/state bookkeeping. The TTS bridge uses this: synthesized audio
// arrives as an irregular sequence of chunks, not one fixed buffer
// (spec §4.3/§4.4 integration).
func (e *Engine) StreamChunk(samples []int16) error {
	for off := 0; off < len(samples); off += WriteChunkSamples {
		end := off + WriteChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		if err := e.writeChunk(samples[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// PlaySamples streams samples in WriteChunkSamples chunks, checking
// the interrupt flag before each chunk.
func (e *Engine) PlaySamples(samples []int16) error {
	e.ClearInterrupt()
	for off := 0; off < len(samples); off += WriteChunkSamples {
		end := off + WriteChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		if err := e.writeChunk(samples[off:end]); err != nil {
			return err
		}
		if e.interrupted.Load() {
			break
		}
	}
	e.mu.Lock()
	if e.state == StatePlaying {
		e.state = StateDrained
	}
	e.mu.Unlock()
	return nil
}

// LoadBeep caches kind's PCM samples in RAM (spec §4.3: "Three short
// WAVs... are loaded at init into heap buffers").
func (e *Engine) LoadBeep(kind BeepKind, samples []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beeps[kind] = samples
}

// PlayBeep writes a cached beep straight to the PCM device, then
// calls Drain so a following TTS utterance does not truncate the beep
// (spec §4.3).
func (e *Engine) PlayBeep(kind BeepKind) error {
	e.mu.Lock()
	samples, ok := e.beeps[kind]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("audio: beep %v not loaded", kind)
	}
	if err := e.PlaySamples(samples); err != nil {
		return err
	}
	return e.Drain()
}

// Drain waits one buffer length (BufferMs) and sets the state to idle;
// it performs no operation on the device itself. Portaudio's blocking
// Write already serializes frame delivery, so draining here simply
// settles the state machine back to idle once the last chunk has been
// accepted.
func (e *Engine) Drain() error {
	// Give the final period time to flush through the hardware buffer.
	time.Sleep(BufferMs * time.Millisecond)
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	return nil
}

// State reports the engine's current playback state, for tests and
// diagnostics.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetCachedInfo stores the most recent device-info query reply so
// repeated "i" queries need not round-trip the PCM layer again
// (SPEC_FULL supplemented feature), invalidated by the next Open.
func (e *Engine) SetCachedInfo(info DeviceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cachedInfo = &info
}

// CachedInfo returns the cached device info, if any.
func (e *Engine) CachedInfo() (DeviceInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cachedInfo == nil {
		return DeviceInfo{}, false
	}
	return *e.cachedInfo, true
}
