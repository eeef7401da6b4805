// Package frequency implements Frequency Mode, spec §4.8: entry on
// `#`, VFO selection, digit entry with the amateur-radio
// implicit-decimal shorthand, range-checked commit, and a 10s
// inactivity timeout.
//
// Grounded on the teacher's AX.25 frame-accumulator state machines
// (src/ax25_pad.go): a small enum of states, a byte buffer capped at a
// fixed length, and a parse-then-validate-then-commit pipeline.
package frequency

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/waynepadgett/hampod/internal/config"
	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/radio"
)

// State is one of the three Frequency Mode states.
type State int

const (
	StateIdle State = iota
	StateSelectVfo
	StateEntering
)

// MaxBufferLen bounds the digit-entry accumulator (spec §4.8).
const MaxBufferLen = 12

// Timeout is the inactivity window that returns to Idle (spec §4.8).
const Timeout = 10 * time.Second

// MinFreqMHz and MaxFreqMHz bound a valid commit (spec §4.8).
const (
	MinFreqMHz = 0.1
	MaxFreqMHz = 500.0
)

// RadioController is the subset of *radio.Radio this mode drives.
type RadioController interface {
	SetVFO(v radio.VFO) error
	SetFreqHz(v radio.VFO, hz int64) error
	SuppressNextPollAnnouncement()
}

// Speaker announces text through the speech queue.
type Speaker interface {
	Say(text string) error
}

// BeepSender fires a fire-and-forget error beep, bypassing the speech
// queue the same way the software dispatcher's key beep does
// (spec §4.5); queueing it behind pending speech would delay the
// feedback the error beep exists to give immediately.
type BeepSender interface {
	Send(p packet.Packet) error
}

// Mode is Frequency Mode's state machine.
type Mode struct {
	radio RadioController
	speak Speaker
	beep  BeepSender
	log   *log.Logger

	layout config.KeypadLayout

	state        State
	vfoSel       radio.VFO
	buffer       strings.Builder
	hasDot       bool
	lastEvent    time.Time
	sawLeadZero  bool // phone layout only: true right after a '0' digit was buffered
}

// New builds an idle Frequency Mode. layout controls the SPEC_FULL
// phone-layout `00` disambiguation supplement (spec §9.ii).
func New(r RadioController, speak Speaker, beep BeepSender, layout config.KeypadLayout, logger *log.Logger) *Mode {
	return &Mode{radio: r, speak: speak, beep: beep, layout: layout, log: logger, state: StateIdle}
}

// Active reports whether the mode is anywhere but Idle — the
// Dispatcher (cmd/hampod-software) consults this to decide whether
// Frequency Mode gets first refusal on a key even over Set/Normal's
// own idle checks, matching "no other mode active" from spec §4.8's
// entry condition.
func (m *Mode) Active() bool { return m.state != StateIdle }

// State reports the current state, for tests and diagnostics.
func (m *Mode) State() State { return m.state }

// CheckTimeout returns to Idle with a "Timeout" announcement if more
// than Timeout has elapsed since the last accepted key, while not
// Idle. The caller (cmd main loop) invokes this on a ticker.
func (m *Mode) CheckTimeout(now time.Time) {
	if m.state == StateIdle {
		return
	}
	if now.Sub(m.lastEvent) < Timeout {
		return
	}
	m.announce("Timeout")
	m.reset()
}

// HandleKey processes one key press, returning claimed=true if
// Frequency Mode consumed it (per the spec §4.8/§4.9 dispatch order,
// an unclaimed key falls through to Normal Mode).
func (m *Mode) HandleKey(key byte) (claimed bool) {
	m.lastEvent = time.Now()

	switch m.state {
	case StateIdle:
		if key == '#' {
			m.state = StateSelectVfo
			m.vfoSel = radio.VFOCurrent
			m.announce("Frequency Mode")
			return true
		}
		return false

	case StateSelectVfo:
		return m.handleSelectVfo(key)

	case StateEntering:
		return m.handleEntering(key)
	}
	return false
}

func (m *Mode) handleSelectVfo(key byte) bool {
	switch {
	case key == '#':
		m.vfoSel = nextVFO(m.vfoSel)
		m.announce(vfoName(m.vfoSel))
		return true
	case isDigit(key):
		m.buffer.Reset()
		m.hasDot = false
		m.state = StateEntering
		m.sawLeadZero = key == '0'
		m.buffer.WriteByte(key)
		m.announce(digitName(key))
		return true
	case key == '*' || key == 'D':
		m.reset()
		return true
	}
	return false
}

func (m *Mode) handleEntering(key byte) bool {
	switch {
	case isDigit(key):
		if layoutDisambiguates00(m.layout) && key == '0' && m.sawLeadZero {
			// The phone keypad's combined 0/00 position reports as two
			// rapid '0' presses for its "00" half; collapse the pair
			// into the single zero already buffered instead of a
			// spurious extra digit.
			m.sawLeadZero = false
			return true
		}
		m.sawLeadZero = key == '0'
		if m.buffer.Len() < MaxBufferLen {
			m.buffer.WriteByte(key)
			m.announce(digitName(key))
		}
		return true
	case key == '*':
		if !m.hasDot {
			m.hasDot = true
			m.buffer.WriteByte('.')
			m.announce("point")
		} else {
			m.reset()
		}
		return true
	case key == '#':
		m.commit()
		return true
	case key == 'D':
		m.reset()
		return true
	}
	return false
}

// parseFrequencyMHz implements spec §4.8's parse rules, including the
// implicit-decimal amateur-radio shorthand.
func parseFrequencyMHz(buf string) (float64, error) {
	if !strings.Contains(buf, ".") && (len(buf) == 4 || len(buf) == 5) {
		buf = buf[:len(buf)-3] + "." + buf[len(buf)-3:]
	}
	v, err := strconv.ParseFloat(buf, 64)
	if err != nil {
		return 0, fmt.Errorf("frequency: parse %q: %w", buf, err)
	}
	return v, nil
}

func (m *Mode) commit() {
	defer m.reset()

	buf := m.buffer.String()
	mhz, err := parseFrequencyMHz(buf)
	if err != nil || mhz < MinFreqMHz || mhz > MaxFreqMHz {
		m.errorBeep()
		m.announce("Invalid frequency")
		return
	}
	hz := int64(mhz*1e6 + 0.5)

	if m.vfoSel != radio.VFOCurrent {
		if err := m.radio.SetVFO(m.vfoSel); err != nil {
			m.announce("Failed to select VFO")
			return
		}
	}

	m.radio.SuppressNextPollAnnouncement()
	if err := m.radio.SetFreqHz(m.vfoSel, hz); err != nil {
		m.errorBeep()
		m.announce("Failed to set frequency")
		return
	}
	m.announce(spokenFrequency(hz))
}

func (m *Mode) reset() {
	m.state = StateIdle
	m.buffer.Reset()
	m.hasDot = false
	m.sawLeadZero = false
	m.vfoSel = radio.VFOCurrent
}

func (m *Mode) announce(text string) {
	if err := m.speak.Say(text); err != nil {
		m.log.Error("frequency: announce", "err", err)
	}
}

func (m *Mode) errorBeep() {
	p, err := packet.NewBeepAudio(0, packet.BeepError)
	if err != nil {
		return
	}
	if err := m.beep.Send(p); err != nil {
		m.log.Error("frequency: error beep", "err", err)
	}
}

func isDigit(key byte) bool { return key >= '0' && key <= '9' }

func digitName(key byte) string { return string(key) }

func nextVFO(v radio.VFO) radio.VFO {
	switch v {
	case radio.VFOCurrent:
		return radio.VFOA
	case radio.VFOA:
		return radio.VFOB
	default:
		return radio.VFOCurrent
	}
}

func vfoName(v radio.VFO) string {
	switch v {
	case radio.VFOA:
		return "VFO A"
	case radio.VFOB:
		return "VFO B"
	default:
		return "Current VFO"
	}
}

// spokenFrequency renders hz as "<MHz> point <digit> <digit> ... megahertz",
// the integer MHz portion followed by each of the six sub-MHz decimal
// digits spoken individually (spec §4.8 commit announcement; 6 digits
// gives exact Hz precision for the 1 MHz = 1,000,000 Hz conversion).
func spokenFrequency(hz int64) string {
	whole := hz / 1_000_000
	frac := hz % 1_000_000

	var digits strings.Builder
	fracStr := fmt.Sprintf("%06d", frac)
	for i, r := range fracStr {
		if i > 0 {
			digits.WriteByte(' ')
		}
		digits.WriteRune(r)
	}

	return fmt.Sprintf("%d point %s megahertz", whole, digits.String())
}

// layoutDisambiguates00 is the SPEC_FULL "phone" keypad-layout
// supplement (spec §9.ii): on a phone-style keypad a physical `00` key
// shares a position with `0`, so a layout of config.LayoutPhone treats
// a second immediate `0` digit as a distinct disambiguation symbol
// rather than two literal zero digits, avoiding an accidental extra
// trailing zero when the user means the `00` position.
func layoutDisambiguates00(layout config.KeypadLayout) bool {
	return layout == config.LayoutPhone
}
