package keypad

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

// HAL is the Firmware-side hardware abstraction of spec §4.5: it holds
// the "currently held symbol" last reported by the (out-of-scope, per
// spec §1) USB keypad keycode mapping layer, answering 'r' KEYPAD
// requests with that value.
//
// It also drives a GPIO-wired override input (a physical panic/reset
// button wired to the board's GPIO header) through
// github.com/warthog618/go-gpiocdev, surfaced as a channel so the
// firmware main loop can react to it the same way it reacts to a
// keypad poll — this is a SPEC_FULL supplement, not part of spec.md's
// USB keypad contract.
type HAL struct {
	mu   sync.Mutex
	held byte

	override chan struct{}
	line     *gpiocdev.Line
	log      *log.Logger
}

// NewHAL builds a HAL with no key held.
func NewHAL(logger *log.Logger) *HAL {
	return &HAL{
		held:     NoKey,
		override: make(chan struct{}, 1),
		log:      logger,
	}
}

// SetHeld records the latest keypress symbol, called by the (external,
// out-of-scope) USB keycode mapping layer. Passing NoKey records
// release.
func (h *HAL) SetHeld(key byte) {
	h.mu.Lock()
	h.held = key
	h.mu.Unlock()
}

// Current answers a 'r' KEYPAD request with the currently held symbol.
func (h *HAL) Current() byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.held
}

// Override yields a signal each time the physical override button is
// pressed.
func (h *HAL) Override() <-chan struct{} { return h.override }

// OverrideLineOption configures which GPIO chip/line the override
// button is wired to; both are board-specific and supplied by the
// firmware's configuration, not hardcoded here.
type OverrideLineOption struct {
	Chip string
	Line int
}

// WatchOverride opens opt.Line on opt.Chip as a pulled-up input and
// emits on Override() for each falling edge (a momentary push-button
// wired active-low, the conventional wiring for this kind of panic
// button).
func (h *HAL) WatchOverride(opt OverrideLineOption) error {
	line, err := gpiocdev.RequestLine(opt.Chip, opt.Line,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(h.handleEdge),
	)
	if err != nil {
		return err
	}
	h.line = line
	return nil
}

func (h *HAL) handleEdge(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	select {
	case h.override <- struct{}{}:
	default:
		// A previous override signal is still unconsumed; coalesce.
	}
}

// Close releases the GPIO line, if one was opened.
func (h *HAL) Close() error {
	if h.line == nil {
		return nil
	}
	return h.line.Close()
}
