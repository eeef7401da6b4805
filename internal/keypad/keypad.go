// Package keypad implements spec §4.5: the Firmware-side HAL that
// tracks the currently held key symbol, and the Software-side poller
// that turns a stream of raw polls into press/hold events.
//
// Grounded on the teacher's src/demod.go sample-classification loops
// (a fixed-rate poll turned into a small state machine with debounce
// counters) and src/kissserial.go's read-retry-then-give-up shape for
// the three-consecutive-errors termination rule.
package keypad

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// NoKey is the symbol the HAL reports when nothing is held.
const NoKey byte = '-'

// Software-side poller defaults (spec §4.5).
const (
	DefaultPollInterval     = 50 * time.Millisecond
	DefaultHoldThreshold    = 500 * time.Millisecond
	DefaultReleaseThreshold = 6
)

// EventKind distinguishes a short press from a held key.
type EventKind int

const (
	EventPress EventKind = iota
	EventHold
)

func (k EventKind) String() string {
	if k == EventHold {
		return "hold"
	}
	return "press"
}

// Event is one classified keypad event, ready for dispatch to the
// mode stack.
type Event struct {
	Key  byte
	Kind EventKind
}

// Requester is the software-side seam onto the router/pipe transport:
// it issues one KEYPAD 'r' request and returns the held symbol, or
// ErrTimeout on a read timeout (retried freely per spec §4.5),
// or any other error (counted toward the three-strikes termination).
type Requester interface {
	RequestKey(ctx context.Context) (byte, error)
}

// Config tunes the poller; zero values are replaced by spec defaults.
type Config struct {
	PollInterval     time.Duration
	HoldThreshold    time.Duration
	ReleaseThreshold int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HoldThreshold <= 0 {
		c.HoldThreshold = DefaultHoldThreshold
	}
	if c.ReleaseThreshold <= 0 {
		c.ReleaseThreshold = DefaultReleaseThreshold
	}
}

// ErrTimeout is the sentinel a Requester returns for a retryable read
// timeout. Defined locally so this package does not need to import
// internal/router just for one sentinel; cmd wiring maps
// router.ErrTimeout to this value.
var ErrTimeout = errors.New("keypad: read timeout")

// Poller runs the Software-side algorithm of spec §4.5: it polls a
// Requester at a fixed interval and emits classified Events. The
// caller is responsible for playing the key-beep (if enabled) before
// forwarding an Event onward, matching the spec's "beep before the
// event reaches the application callback" ordering — this package
// stays ignorant of the audio engine to keep the dependency direction
// one-way.
type Poller struct {
	req Requester
	cfg Config
	log *log.Logger

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	lastKey    byte
	pressTime  time.Time
	holdFired  bool
	noKeyCount int
}

// New builds a Poller. Call Start to begin polling.
func New(req Requester, cfg Config, logger *log.Logger) *Poller {
	cfg.setDefaults()
	return &Poller{
		req:     req,
		cfg:     cfg,
		log:     logger,
		events:  make(chan Event, 16),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		lastKey: NoKey,
	}
}

// Events returns the channel of classified key events.
func (p *Poller) Events() <-chan Event { return p.events }

// Start launches the poll loop in a background goroutine.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop requests the poll loop to exit and waits for it to do so.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}

func isPressed(key byte) bool {
	return key != NoKey && key != 0xFF && key != 0x00
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.events)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		key, err := p.req.RequestKey(ctx)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				// Retried freely; does not count toward termination.
				continue
			}
			consecutiveErrors++
			p.log.Error("keypad: read error", "err", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= 3 {
				p.log.Error("keypad: three consecutive errors, stopping poller")
				return
			}
			continue
		}
		consecutiveErrors = 0

		p.step(key, time.Now())
	}
}

// step runs one iteration of the spec §4.5 algorithm against a single
// poll reply. It is split out from run for direct unit testing without
// a ticker or goroutine.
func (p *Poller) step(key byte, now time.Time) {
	pressed := isPressed(key)

	switch {
	case pressed && p.lastKey == NoKey:
		// Step 2: first detection.
		p.lastKey = key
		p.pressTime = now
		p.holdFired = false
		p.noKeyCount = 0

	case pressed && p.lastKey == key:
		// Step 3: continuation; inclusive hold-threshold tie-break.
		p.noKeyCount = 0
		if !p.holdFired && now.Sub(p.pressTime) >= p.cfg.HoldThreshold {
			p.holdFired = true
			p.emit(Event{Key: key, Kind: EventHold})
		}

	case pressed && p.lastKey != key:
		// Step 4: key switch — close out the old key first.
		if !p.holdFired {
			p.emitForElapsed(p.lastKey, now)
		}
		p.lastKey = key
		p.pressTime = now
		p.holdFired = false
		p.noKeyCount = 0

	case !pressed && p.lastKey != NoKey:
		// Step 5: release-debounce.
		p.noKeyCount++
		if p.noKeyCount >= p.cfg.ReleaseThreshold {
			if !p.holdFired {
				p.emitForElapsed(p.lastKey, now)
			}
			p.lastKey = NoKey
			p.holdFired = false
			p.noKeyCount = 0
		}
	}
}

// emitForElapsed emits a press or hold for key depending on how long
// it had been down when the closing transition was observed.
func (p *Poller) emitForElapsed(key byte, now time.Time) {
	kind := EventPress
	if now.Sub(p.pressTime) >= p.cfg.HoldThreshold {
		kind = EventHold
	}
	p.emit(Event{Key: key, Kind: kind})
}

func (p *Poller) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.stop:
	}
}
