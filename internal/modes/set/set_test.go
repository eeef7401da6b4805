package set

import (
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/modes/shared"
	"github.com/waynepadgett/hampod/internal/radio"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

type fakeRadio struct {
	levels     radio.Levels
	levelsErr  error
	mode       radio.Mode
	setLevels  map[string]int
	agc        radio.AGCSpeed
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{setLevels: make(map[string]int), mode: radio.ModeUSB}
}

func (f *fakeRadio) GetLevels() (radio.Levels, error) { return f.levels, f.levelsErr }
func (f *fakeRadio) SetLevel(name string, value int) error {
	f.setLevels[name] = value
	return nil
}
func (f *fakeRadio) SetAGC(speed radio.AGCSpeed) error { f.agc = speed; return nil }
func (f *fakeRadio) GetMode() (radio.Mode, error)      { return f.mode, nil }
func (f *fakeRadio) SetMode(m radio.Mode) error         { f.mode = m; return nil }

type fakeSpeaker struct {
	said []string
}

func (f *fakeSpeaker) Say(text string) error {
	f.said = append(f.said, text)
	return nil
}

func TestEntryAndExitFromOff(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())

	claimed := m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	assert.True(t, claimed)
	assert.Equal(t, StateIdle, m.State())
	assert.Contains(t, s.said, "Set")

	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	assert.Equal(t, StateOff, m.State())
	assert.Contains(t, s.said, "Set Off")
}

func TestPowerSelectionAnnouncesCurrentValue(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	r.levels.PowerPercent = 45
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)

	m.HandleEvent(keypad.Event{Key: '9', Kind: keypad.EventHold}, false)
	assert.Equal(t, StateEditing, m.State())
	assert.Contains(t, s.said, "Power 45 percent")
}

func TestNumericCommitClampsAndSetsLevel(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '9', Kind: keypad.EventHold}, false) // select Power

	for _, k := range []byte("150") {
		m.HandleEvent(keypad.Event{Key: k, Kind: keypad.EventPress}, false)
	}
	m.HandleEvent(keypad.Event{Key: '#', Kind: keypad.EventPress}, false)

	assert.Equal(t, 100, r.setLevels["power"], "150 must clamp to 100")
	assert.Contains(t, s.said, "Power set to 100")
}

func TestAsteriskClearsAccumulator(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '9', Kind: keypad.EventHold}, false)

	m.HandleEvent(keypad.Event{Key: '5', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '*', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '#', Kind: keypad.EventPress}, false)

	// Empty buffer after clear: Atoi fails, commit reports invalid.
	assert.Contains(t, s.said, "Invalid value")
	_, set := r.setLevels["power"]
	assert.False(t, set)
}

func TestDCancelsWithoutApplying(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '9', Kind: keypad.EventHold}, false)
	m.HandleEvent(keypad.Event{Key: '5', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: 'D', Kind: keypad.EventPress}, false)

	assert.Equal(t, StateIdle, m.State())
	_, set := r.setLevels["power"]
	assert.False(t, set)
}

func TestToggleShortcutDoesNotExitEditing(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '7', Kind: keypad.EventPress}, false) // select NB

	m.HandleEvent(keypad.Event{Key: 'A', Kind: keypad.EventPress}, false)
	assert.Equal(t, 10, r.setLevels["nb"])
	assert.Equal(t, StateEditing, m.State())

	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	assert.Equal(t, 0, r.setLevels["nb"])
	assert.Equal(t, StateEditing, m.State(), "B in Editing toggles off, it must not exit like Idle's B does")
}

func TestAGCHoldSetsSpeed(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '4', Kind: keypad.EventHold}, false) // select AGC

	m.HandleEvent(keypad.Event{Key: '3', Kind: keypad.EventHold}, false)
	assert.Equal(t, radio.AGCSlow, r.agc)
	assert.Contains(t, s.said, "AGC set to slow")
}

func TestModeCycleAdvancesThroughSupportedModes(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	r.mode = radio.ModeLSB
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	m.HandleEvent(keypad.Event{Key: 'B', Kind: keypad.EventPress}, false)
	m.HandleEvent(keypad.Event{Key: '0', Kind: keypad.EventPress}, false) // select Mode

	m.HandleEvent(keypad.Event{Key: '0', Kind: keypad.EventPress}, false) // cycle
	require.Equal(t, radio.ModeUSB, r.mode)
}

func TestUnclaimedWhenOff(t *testing.T) {
	sh := shared.New()
	r := newFakeRadio()
	s := &fakeSpeaker{}
	m := New(r, s, sh, testLogger())
	assert.False(t, m.HandleEvent(keypad.Event{Key: '5', Kind: keypad.EventPress}, false))
}
