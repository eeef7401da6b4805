package frequency

import (
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waynepadgett/hampod/internal/config"
	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/radio"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

type fakeRadio struct {
	setVFOErr  error
	setFreqErr error
	gotVFO     radio.VFO
	gotHz      int64
	suppressed bool
}

func (f *fakeRadio) SetVFO(v radio.VFO) error {
	f.gotVFO = v
	return f.setVFOErr
}
func (f *fakeRadio) SetFreqHz(v radio.VFO, hz int64) error {
	f.gotHz = hz
	return f.setFreqErr
}
func (f *fakeRadio) SuppressNextPollAnnouncement() { f.suppressed = true }

type fakeSpeaker struct {
	said []string
}

func (f *fakeSpeaker) Say(text string) error {
	f.said = append(f.said, text)
	return nil
}

type fakeBeeper struct {
	beeps []packet.Packet
}

func (f *fakeBeeper) Send(p packet.Packet) error {
	f.beeps = append(f.beeps, p)
	return nil
}

func newTestMode() (*Mode, *fakeRadio, *fakeSpeaker, *fakeBeeper) {
	r := &fakeRadio{}
	s := &fakeSpeaker{}
	b := &fakeBeeper{}
	m := New(r, s, b, config.LayoutCalculator, testLogger())
	return m, r, s, b
}

func TestEntryAnnouncesFrequencyMode(t *testing.T) {
	m, _, s, _ := newTestMode()
	claimed := m.HandleKey('#')
	assert.True(t, claimed)
	assert.Equal(t, StateSelectVfo, m.State())
	assert.Contains(t, s.said, "Frequency Mode")
}

func TestSelectVfoCyclesThroughCurrentAB(t *testing.T) {
	m, _, s, _ := newTestMode()
	m.HandleKey('#') // enter
	m.HandleKey('#') // cycle to A
	assert.Contains(t, s.said, "VFO A")
	m.HandleKey('#') // cycle to B
	assert.Contains(t, s.said, "VFO B")
	m.HandleKey('#') // cycle back to Current
	assert.Contains(t, s.said, "Current VFO")
}

func TestDigitEntryWithImplicitDecimalShorthand(t *testing.T) {
	m, r, _, _ := newTestMode()
	m.HandleKey('#')
	for _, k := range []byte("14025") {
		m.HandleKey(k)
	}
	m.HandleKey('#')
	assert.Equal(t, int64(14_025_000), r.gotHz)
}

func TestDigitEntryWithExplicitDecimal(t *testing.T) {
	m, r, s, _ := newTestMode()
	m.HandleKey('#')
	for _, k := range []byte("14") {
		m.HandleKey(k)
	}
	m.HandleKey('*')
	assert.Contains(t, s.said, "point")
	for _, k := range []byte("250") {
		m.HandleKey(k)
	}
	m.HandleKey('#')
	assert.Equal(t, int64(14_250_000), r.gotHz)
}

func TestSecondAsteriskCancelsEntry(t *testing.T) {
	m, _, _, _ := newTestMode()
	m.HandleKey('#')
	m.HandleKey('1')
	m.HandleKey('*')
	m.HandleKey('*')
	assert.Equal(t, StateIdle, m.State())
}

func TestInvalidFrequencyBeepsAndReturnsToIdle(t *testing.T) {
	m, _, s, b := newTestMode()
	m.HandleKey('#')
	for _, k := range []byte("600000") {
		m.HandleKey(k)
	}
	m.HandleKey('#')
	assert.Equal(t, StateIdle, m.State())
	assert.Contains(t, s.said, "Invalid frequency")
	require.Len(t, b.beeps, 1)
	_, arg, err := packet.ParseAudio(b.beeps[0].Data)
	require.NoError(t, err)
	assert.Equal(t, string(rune(packet.BeepError)), arg)
}

func TestCommitSuppressesNextPollAnnouncement(t *testing.T) {
	m, r, _, _ := newTestMode()
	m.HandleKey('#')
	for _, k := range []byte("7074") {
		m.HandleKey(k)
	}
	m.HandleKey('#')
	assert.True(t, r.suppressed)
}

func TestSpokenFrequencyFormat(t *testing.T) {
	assert.Equal(t, "14 point 2 5 0 0 0 0 megahertz", spokenFrequency(14_250_000))
}

func TestCancelFromDKeyInEntering(t *testing.T) {
	m, _, _, _ := newTestMode()
	m.HandleKey('#')
	m.HandleKey('1')
	claimed := m.HandleKey('D')
	assert.True(t, claimed)
	assert.Equal(t, StateIdle, m.State())
}

func TestTimeoutReturnsToIdleAndAnnounces(t *testing.T) {
	m, _, s, _ := newTestMode()
	m.HandleKey('#')
	m.lastEvent = time.Now().Add(-Timeout - time.Second)
	m.CheckTimeout(time.Now())
	assert.Equal(t, StateIdle, m.State())
	assert.Contains(t, s.said, "Timeout")
}

func TestUnclaimedKeyFallsThroughWhenIdle(t *testing.T) {
	m, _, _, _ := newTestMode()
	assert.False(t, m.HandleKey('7'))
}

func TestPhoneLayoutCollapsesDoubleZero(t *testing.T) {
	r := &fakeRadio{}
	s := &fakeSpeaker{}
	b := &fakeBeeper{}
	m := New(r, s, b, config.LayoutPhone, testLogger())
	m.HandleKey('#')
	m.HandleKey('1')
	m.HandleKey('0')
	m.HandleKey('0') // collapsed: the "00" combined position
	assert.Equal(t, "10", m.buffer.String())
}
