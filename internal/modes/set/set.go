// Package set implements Set Mode, spec §4.10: the Off/Idle/Editing
// parameter-configuration mode, sharing Normal Mode's hold/shift
// key-to-parameter mapping for selection, numeric clamp-on-commit
// editing, toggle shortcuts for NB/NR/Compression, and direct AGC and
// demodulation-mode cycling.
//
// Grounded the same way as internal/modes/normal: a flat switch over a
// fixed key table, this time gated by an explicit state enum instead
// of Normal's stateless dispatch, mirroring the state-plus-dispatch
// shape of internal/modes/frequency.
package set

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/modes/shared"
	"github.com/waynepadgett/hampod/internal/radio"
)

// State is one of Set Mode's three states.
type State int

const (
	StateOff State = iota
	StateIdle
	StateEditing
)

// Param identifies which radio parameter is being edited.
type Param int

const (
	ParamPower Param = iota
	ParamMicGain
	ParamNB
	ParamNR
	ParamPreamp
	ParamAttenuation
	ParamAGC
	ParamCompression
	ParamMode
)

// MaxBufferLen bounds the numeric-entry accumulator (spec §4.10).
const MaxBufferLen = 8

// RadioController is the subset of *radio.Radio this mode drives.
type RadioController interface {
	GetLevels() (radio.Levels, error)
	SetLevel(name string, value int) error
	SetAGC(speed radio.AGCSpeed) error
	GetMode() (radio.Mode, error)
	SetMode(m radio.Mode) error
}

// Speaker announces text through the speech queue.
type Speaker interface {
	Say(text string) error
}

// Mode is Set Mode's state machine.
type Mode struct {
	radio  RadioController
	speak  Speaker
	shared *shared.State
	log    *log.Logger

	state  State
	param  Param
	buffer strings.Builder
}

// New builds a Set Mode starting Off.
func New(r RadioController, speak Speaker, sh *shared.State, logger *log.Logger) *Mode {
	return &Mode{radio: r, speak: speak, shared: sh, log: logger, state: StateOff}
}

// Active reports whether the mode is anywhere but Off.
func (m *Mode) Active() bool { return m.state != StateOff }

// State reports the current state, for tests and diagnostics.
func (m *Mode) State() State { return m.state }

// HandleEvent processes one keypad event, returning claimed=true if
// Set Mode consumed it. Set Mode is tried before Frequency and Normal
// in the dispatch order (spec §9's mode-peer ordering; Set owns 'B'
// even from Off), except while a Frequency Mode entry is in progress,
// which gets the event first. shifted reports
// whether the one-shot shift modifier was armed for this event; the
// dispatcher consumes shared.State's shift flag exactly once per event
// and passes the result in here, since a mode that declines the event
// (the StateOff branch below) must not also consume the flag a second
// mode still needs to see.
func (m *Mode) HandleEvent(ev keypad.Event, shifted bool) (claimed bool) {
	switch m.state {
	case StateOff:
		if ev.Key == 'B' && ev.Kind == keypad.EventPress && !shifted {
			m.state = StateIdle
			m.announce("Set")
			return true
		}
		return false

	case StateIdle:
		return m.handleIdle(ev, shifted)

	case StateEditing:
		return m.handleEditing(ev, shifted)
	}
	return false
}

func (m *Mode) handleIdle(ev keypad.Event, shifted bool) bool {
	if ev.Key == 'B' && ev.Kind == keypad.EventPress && !shifted {
		m.state = StateOff
		m.announce("Set Off")
		return true
	}
	if ev.Key == 'D' && ev.Kind == keypad.EventPress {
		m.state = StateOff
		return true
	}

	param, ok := selectParam(ev, shifted)
	if !ok {
		return false
	}
	m.param = param
	m.buffer.Reset()
	m.state = StateEditing
	m.announceCurrentValue()
	return true
}

// selectParam mirrors internal/modes/normal's query key table, since
// Set Mode picks the same parameter a Normal Mode query would read.
func selectParam(ev keypad.Event, shifted bool) (Param, bool) {
	switch {
	case ev.Key == '9' && ev.Kind == keypad.EventHold && !shifted:
		return ParamPower, true
	case ev.Key == '9' && shifted:
		return ParamCompression, true
	case ev.Key == '7' && ev.Kind == keypad.EventPress:
		return ParamNB, true
	case ev.Key == '0' && ev.Kind == keypad.EventPress:
		return ParamMode, true
	case ev.Key == '4' && ev.Kind == keypad.EventPress && !shifted:
		return ParamPreamp, true
	case ev.Key == '4' && ev.Kind == keypad.EventHold:
		return ParamAGC, true
	case ev.Key == '4' && shifted:
		return ParamAttenuation, true
	case ev.Key == '8' && ev.Kind == keypad.EventPress && !shifted:
		return ParamNR, true
	case ev.Key == '8' && ev.Kind == keypad.EventHold:
		return ParamMicGain, true
	}
	return 0, false
}

func (m *Mode) handleEditing(ev keypad.Event, shifted bool) bool {
	if ev.Key == 'D' && ev.Kind == keypad.EventPress {
		m.state = StateIdle
		m.buffer.Reset()
		return true
	}

	switch m.param {
	case ParamAGC:
		return m.handleAGC(ev)
	case ParamMode:
		return m.handleModeCycle(ev)
	case ParamNB, ParamNR, ParamCompression:
		if claimed := m.handleToggleShortcut(ev); claimed {
			return true
		}
	}

	return m.handleNumericEntry(ev)
}

func (m *Mode) handleAGC(ev keypad.Event) bool {
	if ev.Kind != keypad.EventHold {
		return false
	}
	var speed radio.AGCSpeed
	switch ev.Key {
	case '1':
		speed = radio.AGCFast
	case '2':
		speed = radio.AGCMedium
	case '3':
		speed = radio.AGCSlow
	default:
		return false
	}
	if err := m.radio.SetAGC(speed); err != nil {
		m.announce("AGC set failed")
		return true
	}
	m.announce(fmt.Sprintf("AGC set to %s", speed))
	return true
}

func (m *Mode) handleModeCycle(ev keypad.Event) bool {
	if ev.Key != '0' || ev.Kind != keypad.EventPress {
		return false
	}
	current, err := m.radio.GetMode()
	if err != nil {
		m.announce("Mode query failed")
		return true
	}
	next := nextSupportedMode(current)
	if err := m.radio.SetMode(next); err != nil {
		m.announce("Mode set failed")
		return true
	}
	m.announce(fmt.Sprintf("Mode %s", next))
	return true
}

// handleToggleShortcut implements the NB/NR/Compression quick on/off
// keys (spec §4.10): 'A' enables (full scale), 'B' disables (zero),
// and — unlike Idle's 'B' — does not exit the mode.
func (m *Mode) handleToggleShortcut(ev keypad.Event) bool {
	if ev.Kind != keypad.EventPress {
		return false
	}
	var value int
	switch ev.Key {
	case 'A':
		value = paramMax(m.param)
	case 'B':
		value = 0
	default:
		return false
	}
	if err := m.radio.SetLevel(paramLevelName(m.param), value); err != nil {
		m.announce("Set failed")
		return true
	}
	m.announce(fmt.Sprintf("%s %s", paramSpokenName(m.param), onOff(value > 0)))
	return true
}

func (m *Mode) handleNumericEntry(ev keypad.Event) bool {
	if ev.Kind != keypad.EventPress {
		return false
	}
	switch {
	case ev.Key >= '0' && ev.Key <= '9':
		if m.buffer.Len() < MaxBufferLen {
			m.buffer.WriteByte(ev.Key)
			m.announce(string(ev.Key))
		}
		return true
	case ev.Key == '*':
		m.buffer.Reset()
		return true
	case ev.Key == '#':
		m.commitNumeric()
		return true
	}
	return false
}

func (m *Mode) commitNumeric() {
	defer m.buffer.Reset()

	raw := m.buffer.String()
	value, err := strconv.Atoi(raw)
	if err != nil {
		m.announce("Invalid value")
		return
	}
	value = clampParam(m.param, value)
	if err := m.radio.SetLevel(paramLevelName(m.param), value); err != nil {
		m.announce(fmt.Sprintf("%s set failed", paramSpokenName(m.param)))
		return
	}
	m.announce(fmt.Sprintf("%s set to %d", paramSpokenName(m.param), value))
}

func (m *Mode) announceCurrentValue() {
	levels, err := m.radio.GetLevels()
	if err != nil {
		m.announce(fmt.Sprintf("%s query failed", paramSpokenName(m.param)))
		return
	}
	value := paramField(m.param, levels)
	if value == radio.UnavailableInt {
		m.announce(fmt.Sprintf("%s not available", paramSpokenName(m.param)))
		return
	}
	m.announce(fmt.Sprintf("%s %d percent", paramSpokenName(m.param), value))
}

func (m *Mode) announce(text string) {
	if err := m.speak.Say(text); err != nil {
		m.log.Error("set: announce", "err", err)
	}
}

func paramField(p Param, l radio.Levels) int {
	switch p {
	case ParamPower:
		return l.PowerPercent
	case ParamMicGain:
		return l.MicGain
	case ParamNB:
		return l.NBLevel
	case ParamNR:
		return l.NRLevel
	case ParamPreamp:
		return l.Preamp
	case ParamAttenuation:
		return l.Attenuation
	case ParamCompression:
		return l.CompressionPercent
	default:
		return radio.UnavailableInt
	}
}

func paramLevelName(p Param) string {
	switch p {
	case ParamPower:
		return "power"
	case ParamMicGain:
		return "mic_gain"
	case ParamNB:
		return "nb"
	case ParamNR:
		return "nr"
	case ParamPreamp:
		return "preamp"
	case ParamAttenuation:
		return "attenuation"
	case ParamCompression:
		return "compression"
	default:
		return ""
	}
}

func paramSpokenName(p Param) string {
	switch p {
	case ParamPower:
		return "Power"
	case ParamMicGain:
		return "Mic gain"
	case ParamNB:
		return "Noise blanker"
	case ParamNR:
		return "Noise reduction"
	case ParamPreamp:
		return "Preamp"
	case ParamAttenuation:
		return "Attenuation"
	case ParamCompression:
		return "Compression"
	case ParamAGC:
		return "AGC"
	case ParamMode:
		return "Mode"
	default:
		return "Parameter"
	}
}

// clampParam applies spec §4.10's per-parameter commit clamps.
func clampParam(p Param, v int) int {
	lo, hi := paramRange(p)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func paramMax(p Param) int {
	_, hi := paramRange(p)
	return hi
}

func paramRange(p Param) (lo, hi int) {
	switch p {
	case ParamPower, ParamMicGain, ParamCompression:
		return 0, 100
	case ParamNB, ParamNR:
		return 0, 10
	case ParamPreamp:
		return 0, 2
	case ParamAttenuation:
		return -1 << 31, 1<<31 - 1 // "any int" per spec §4.10
	default:
		return 0, 0
	}
}

// nextSupportedMode advances through radio.SupportedModes, wrapping
// to the first entry past the end or when current is not recognized.
func nextSupportedMode(current radio.Mode) radio.Mode {
	for i, mode := range radio.SupportedModes {
		if mode == current {
			return radio.SupportedModes[(i+1)%len(radio.SupportedModes)]
		}
	}
	return radio.SupportedModes[0]
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
