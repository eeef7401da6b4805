// Package normal implements Normal Mode, spec §4.9: the fall-through
// key dispatcher that only sees keys Frequency and Set Mode declined,
// the one-shot shift modifier, the verbosity toggle, and the consumer
// of radio poll callbacks when no other mode is active.
//
// Grounded on the teacher's src/kiss.go-style command dispatch table
// (a small switch over a fixed command byte set) for the key table,
// kept flat rather than introducing a generic command-registry
// abstraction the spec's fixed nine-key table does not need.
package normal

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/modes/shared"
	"github.com/waynepadgett/hampod/internal/radio"
)

// RadioController is the subset of *radio.Radio this mode drives.
type RadioController interface {
	SetVFO(v radio.VFO) error
	GetLevels() (radio.Levels, error)
	SetLevel(name string, value int) error
	GetFreqHz(vfo radio.VFO) (int64, error)
	GetMode() (radio.Mode, error)
}

// Speaker announces text through the speech queue.
type Speaker interface {
	Say(text string) error
}

// Mode is Normal Mode's key dispatcher.
type Mode struct {
	radio  RadioController
	speak  Speaker
	shared *shared.State
	log    *log.Logger
}

// New builds a Normal Mode bound to the cross-mode shared.State.
func New(r RadioController, speak Speaker, sh *shared.State, logger *log.Logger) *Mode {
	return &Mode{radio: r, speak: speak, shared: sh, log: logger}
}

// HandleEvent dispatches one keypad event against spec §4.9's key
// table. It always claims the event: Normal Mode is the terminal
// fall-through, so the Dispatcher calls it last. shifted reports
// whether the one-shot shift modifier was armed for this event; the
// dispatcher consumes shared.State's shift flag exactly once per event,
// before any mode sees it, and passes the result to every mode in turn
// so claiming it here can't also erase it for a mode tried earlier.
func (m *Mode) HandleEvent(ev keypad.Event, shifted bool) {
	switch {
	case ev.Key == 'A' && ev.Kind == keypad.EventPress:
		m.shared.ArmShift()
		m.announce("Shift")
		return
	case ev.Key == '0' && ev.Kind == keypad.EventPress:
		m.queryMode()
	case ev.Key == '1' && ev.Kind == keypad.EventPress && !shifted:
		m.selectVFO(radio.VFOA, "VFO A")
	case ev.Key == '1' && ev.Kind == keypad.EventHold:
		m.selectVFO(radio.VFOB, "VFO B")
	case ev.Key == '1' && shifted:
		// VOX is not part of the §3 Levels set this abstraction
		// exposes; the key exists in the table but has no backing
		// query, so it simply announces itself.
		m.announce("VOX status")
	case ev.Key == '2' && ev.Kind == keypad.EventPress:
		m.queryFrequency()
	case ev.Key == '4' && ev.Kind == keypad.EventPress && !shifted:
		m.queryIntLevel("Preamp", func(l radio.Levels) int { return l.Preamp })
	case ev.Key == '4' && ev.Kind == keypad.EventHold:
		m.queryAGC()
	case ev.Key == '4' && shifted:
		m.queryIntLevel("Attenuation", func(l radio.Levels) int { return l.Attenuation })
	case ev.Key == '7' && ev.Kind == keypad.EventPress:
		m.queryIntLevel("Noise blanker", func(l radio.Levels) int { return l.NBLevel })
	case ev.Key == '8' && ev.Kind == keypad.EventPress && !shifted:
		m.queryIntLevel("Noise reduction", func(l radio.Levels) int { return l.NRLevel })
	case ev.Key == '8' && ev.Kind == keypad.EventHold:
		m.queryIntLevel("Mic gain", func(l radio.Levels) int { return l.MicGain })
	case ev.Key == '9' && ev.Kind == keypad.EventHold && !shifted:
		m.queryIntLevel("Power", func(l radio.Levels) int { return l.PowerPercent })
	case ev.Key == '9' && shifted:
		m.queryIntLevel("Compression", func(l radio.Levels) int { return l.CompressionPercent })
	case ev.Key == '*' && ev.Kind == keypad.EventPress:
		m.queryIntLevel("S-meter", func(l radio.Levels) int { return l.SMeter })
	case ev.Key == '*' && ev.Kind == keypad.EventHold:
		// Power meter likewise has no dedicated Levels field.
		m.announce("Power meter")
	case ev.Key == 'C' && ev.Kind == keypad.EventPress:
		if m.shared.ToggleVerbose() {
			m.announce("Verbosity on")
		} else {
			m.announce("Verbosity off")
		}
	default:
		m.log.Debug("normal: no handler for key", "key", string(ev.Key), "kind", ev.Kind, "shift", shifted)
	}
}

func (m *Mode) selectVFO(v radio.VFO, name string) {
	if err := m.radio.SetVFO(v); err != nil {
		m.announce(fmt.Sprintf("%s select failed", name))
		return
	}
	m.announce(name)
}

func (m *Mode) queryIntLevel(spoken string, field func(radio.Levels) int) {
	levels, err := m.radio.GetLevels()
	if err != nil {
		m.announce(fmt.Sprintf("%s query failed", spoken))
		return
	}
	value := field(levels)
	if value == radio.UnavailableInt {
		m.announce(fmt.Sprintf("%s not available", spoken))
		return
	}
	m.announce(fmt.Sprintf("%s %d", spoken, value))
}

func (m *Mode) queryAGC() {
	levels, err := m.radio.GetLevels()
	if err != nil {
		m.announce("AGC query failed")
		return
	}
	if levels.AGCSpeed == radio.AGCUnavailable {
		m.announce("AGC not available")
		return
	}
	m.announce(fmt.Sprintf("AGC %s", levels.AGCSpeed))
}

func (m *Mode) queryMode() {
	mode, err := m.radio.GetMode()
	if err != nil {
		m.announce("Mode query failed")
		return
	}
	if mode == radio.ModeUnavailable {
		m.announce("Mode not available")
		return
	}
	m.announce(fmt.Sprintf("Mode %s", mode))
}

func (m *Mode) queryFrequency() {
	hz, err := m.radio.GetFreqHz(radio.VFOCurrent)
	if err != nil {
		m.announce("Frequency query failed")
		return
	}
	m.announce(fmt.Sprintf("Frequency %d hertz", hz))
}

// OnFreqChange is the radio poll callback consumer when no other mode
// is active (spec §4.9's role as "the consumer of radio poll callbacks
// when no other mode is active"), gated on verbosity.
func (m *Mode) OnFreqChange(hz int64) {
	if !m.shared.Verbose() {
		return
	}
	m.announce(fmt.Sprintf("Frequency %d hertz", hz))
}

func (m *Mode) announce(text string) {
	if err := m.speak.Say(text); err != nil {
		m.log.Error("normal: announce", "err", err)
	}
}
