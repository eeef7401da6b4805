package radio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRig is an in-memory Rig used to drive the concurrency/debounce
// logic without real hardware.
type fakeRig struct {
	mu       sync.Mutex
	freq     int64
	mode     Mode
	vfo      VFO
	levels   Levels
	closed   bool
	failNext int // number of subsequent GetFreqHz calls to fail
}

func newFakeRig() *fakeRig {
	return &fakeRig{freq: 14_250_000, mode: ModeUSB, levels: Levels{PowerPercent: 45}}
}

func (f *fakeRig) Close() error { f.mu.Lock(); defer f.mu.Unlock(); f.closed = true; return nil }

func (f *fakeRig) GetFreqHz(vfo VFO) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return 0, fmt.Errorf("fake: simulated read failure")
	}
	return f.freq, nil
}

func (f *fakeRig) SetFreqHz(vfo VFO, hz int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freq = hz
	return nil
}

func (f *fakeRig) GetMode() (Mode, error) { f.mu.Lock(); defer f.mu.Unlock(); return f.mode, nil }
func (f *fakeRig) SetMode(m Mode) error   { f.mu.Lock(); defer f.mu.Unlock(); f.mode = m; return nil }
func (f *fakeRig) GetVFO() (VFO, error)   { f.mu.Lock(); defer f.mu.Unlock(); return f.vfo, nil }
func (f *fakeRig) SetVFO(v VFO) error     { f.mu.Lock(); defer f.mu.Unlock(); f.vfo = v; return nil }
func (f *fakeRig) GetLevels() (Levels, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels, nil
}
func (f *fakeRig) SetLevel(name string, value int) error { return nil }

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

func newTestRadio(t *testing.T, rig *fakeRig) *Radio {
	t.Helper()
	open := func(model int, devicePath string, baud int) (Rig, error) {
		return rig, nil
	}
	r := New(Config{PollInterval: 5 * time.Millisecond, DebounceTicks: 3}, open, testLogger())
	require.NoError(t, r.Init())
	return r
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	r := New(Config{}, func(int, string, int) (Rig, error) { return newFakeRig(), nil }, testLogger())
	_, err := r.GetFreqHz(VFOCurrent)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSetGetFreq(t *testing.T) {
	rig := newFakeRig()
	r := newTestRadio(t, rig)
	defer r.Shutdown()

	require.NoError(t, r.SetFreqHz(VFOA, 7_074_000))
	hz, err := r.GetFreqHz(VFOA)
	require.NoError(t, err)
	assert.Equal(t, int64(7_074_000), hz)
}

func TestPollDebounceFiresOnceAfterStable(t *testing.T) {
	rig := newFakeRig()
	r := newTestRadio(t, rig)
	defer r.Shutdown()

	var mu sync.Mutex
	var fires []int64
	r.OnFreqChange(func(hz int64) {
		mu.Lock()
		fires = append(fires, hz)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartPolling(ctx)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fires, 1)
	assert.Equal(t, int64(14_250_000), fires[0])
}

func TestSuppressionSwallowsOneAnnouncement(t *testing.T) {
	rig := newFakeRig()
	r := newTestRadio(t, rig)
	defer r.Shutdown()

	var calls int
	var mu sync.Mutex
	r.OnFreqChange(func(hz int64) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	r.SuppressNextPollAnnouncement()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartPolling(ctx)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls, "suppressed announcement should not fire")
}

func TestDisconnectAfterThreeFailures(t *testing.T) {
	rig := newFakeRig()
	rig.failNext = 100
	r := newTestRadio(t, rig)
	defer r.Shutdown()

	disconnected := make(chan struct{}, 1)
	r.OnDisconnect(func() {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartPolling(ctx)

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback never fired")
	}
	assert.False(t, r.Connected())
}
