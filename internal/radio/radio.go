// Package radio implements the radio abstraction layer of spec §4.7:
// connection lifecycle, frequency/mode/VFO/level get+set serialized by
// a single mutex, a polling goroutine with debounce, and an
// auto-reconnect watchdog that can force a USB bus reset.
//
// Grounded on the teacher's src/ptt.go (the only file in the pack that
// talks to radio-adjacent hardware control, including its own
// HAMLIB-support era comments) and built on the rig control binding the
// teacher's go.mod already names, github.com/xylo04/goHamlib, through
// the Rig interface below so the concurrency/debounce/reconnect logic
// is testable against a fake without a physical radio attached.
package radio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Unavailable sentinels (spec §3 Radio state: "All values may be
// unavailable; the abstraction carries a sentinel for each").
const (
	UnavailableInt = -1
)

// Mode is the demodulation mode of the active VFO.
type Mode string

const (
	ModeLSB Mode = "LSB"
	ModeUSB Mode = "USB"
	ModeCW  Mode = "CW"
	ModeFM  Mode = "FM"
	ModeAM  Mode = "AM"
	ModeRTTY Mode = "RTTY"
	ModeUnavailable Mode = ""
)

// SupportedModes lists the demodulation modes Set Mode's mode-cycle
// operation rotates through (spec §4.10, "Editing (Mode)").
var SupportedModes = []Mode{ModeLSB, ModeUSB, ModeCW, ModeFM, ModeAM, ModeRTTY}

// VFO selects which tuning channel an operation targets.
type VFO int

const (
	VFOCurrent VFO = iota
	VFOA
	VFOB
)

// Levels is the set of readings spec §3 names. Integer fields use
// UnavailableInt as their sentinel when the radio has no such
// capability or refuses the query.
type Levels struct {
	PowerPercent int
	MicGain      int
	NBLevel      int
	NRLevel      int
	SMeter       int
	Preamp       int
	Attenuation  int
	CompressionPercent int
	AGCSpeed     AGCSpeed
}

// AGCSpeed is a string-valued level; AGCUnavailable is its sentinel.
type AGCSpeed string

const (
	AGCFast        AGCSpeed = "fast"
	AGCMedium      AGCSpeed = "medium"
	AGCSlow        AGCSpeed = "slow"
	AGCUnavailable AGCSpeed = ""
)

// Rig is the subset of a Hamlib rig binding the radio abstraction
// needs. The production implementation is backed by
// github.com/xylo04/goHamlib (see hamlib_adapter.go); tests substitute
// a fake.
type Rig interface {
	Close() error
	GetFreqHz(vfo VFO) (int64, error)
	SetFreqHz(vfo VFO, hz int64) error
	GetMode() (Mode, error)
	SetMode(m Mode) error
	GetVFO() (VFO, error)
	SetVFO(v VFO) error
	GetLevels() (Levels, error)
	SetLevel(name string, value int) error
}

// OpenFunc constructs a Rig for the given model/device/baud. It is a
// variable so tests can substitute a fake without a serial device.
type OpenFunc func(model int, devicePath string, baud int) (Rig, error)

// ConnectCallback and friends run on the polling or reconnect
// goroutine (spec §4.7: "consumers must treat them as not-on-main").
type ConnectCallback func()
type DisconnectCallback func()
type FreqChangeCallback func(hz int64)

// Config bundles the tunables spec §4.7 names with defaults.
type Config struct {
	Model           int
	DevicePath      string
	Baud            int
	PollInterval    time.Duration // default 100ms
	DebounceTicks   int           // default 10 (~1s)
	ReconnectPeriod time.Duration // default 5s
	USBResetWait    time.Duration // default 2s
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DebounceTicks == 0 {
		c.DebounceTicks = 10
	}
	if c.ReconnectPeriod == 0 {
		c.ReconnectPeriod = 5 * time.Second
	}
	if c.USBResetWait == 0 {
		c.USBResetWait = 2 * time.Second
	}
}

// Radio owns the connection, serializes all operations behind a single
// mutex, and runs the poll/reconnect goroutines.
type Radio struct {
	cfg    Config
	open   OpenFunc
	log    *log.Logger
	resetFn func(devicePath string) error

	mu  sync.Mutex
	rig Rig

	onConnect    ConnectCallback
	onDisconnect DisconnectCallback
	onFreqChange FreqChangeCallback

	// suppressNextPoll is set by Frequency Mode immediately before a
	// commit-triggered SetFreqHz, so the subsequent poll-driven
	// freq_change callback that set inevitably causes is swallowed
	// instead of producing a duplicate spoken announcement (spec §4.8
	// "Radio poll suppression").
	suppressNextPoll bool
	suppressMu       sync.Mutex

	kick   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New builds a Radio in the disconnected state. Call Init to connect.
func New(cfg Config, open OpenFunc, logger *log.Logger) *Radio {
	cfg.setDefaults()
	return &Radio{
		cfg:     cfg,
		open:    open,
		log:     logger,
		resetFn: usbResetByDevicePath,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Kick wakes the reconnect loop immediately instead of waiting for its
// next ReconnectPeriod tick — fed by a udev hotplug notification (see
// WatchDevicePath) so a replugged radio is noticed promptly.
func (r *Radio) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// OnConnect, OnDisconnect, OnFreqChange register the spec §4.7
// callbacks. Call before Init/StartPolling.
func (r *Radio) OnConnect(cb ConnectCallback)       { r.onConnect = cb }
func (r *Radio) OnDisconnect(cb DisconnectCallback) { r.onDisconnect = cb }
func (r *Radio) OnFreqChange(cb FreqChangeCallback) { r.onFreqChange = cb }

// Init opens the serial device at the configured path/baud and binds
// the radio model, caching the handle under the mutex (spec §4.7).
func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig != nil {
		return nil
	}
	rig, err := r.open(r.cfg.Model, r.cfg.DevicePath, r.cfg.Baud)
	if err != nil {
		return fmt.Errorf("radio: init: %w", err)
	}
	r.rig = rig
	return nil
}

// Connected reports whether a rig handle is currently held.
func (r *Radio) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rig != nil
}

// Cleanup tears down the handle (spec §3 Radio state lifecycle:
// "torn down at radio_cleanup").
func (r *Radio) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupLocked()
}

func (r *Radio) cleanupLocked() error {
	if r.rig == nil {
		return nil
	}
	err := r.rig.Close()
	r.rig = nil
	return err
}

// ErrNotConnected is returned by every operation when no rig handle is
// held (spec §4.7: "fail immediately if not connected").
var ErrNotConnected = fmt.Errorf("radio: not connected")

// GetFreqHz returns the current frequency on vfo, or
// (0, ErrNotConnected) if disconnected.
func (r *Radio) GetFreqHz(vfo VFO) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return 0, ErrNotConnected
	}
	return r.rig.GetFreqHz(vfo)
}

// SetFreqHz sets the frequency on vfo. It passes hz to the rig
// unclamped and returns pass/fail; it does not read back (spec §4.7).
func (r *Radio) SetFreqHz(vfo VFO, hz int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return ErrNotConnected
	}
	return r.rig.SetFreqHz(vfo, hz)
}

func (r *Radio) GetMode() (Mode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return ModeUnavailable, ErrNotConnected
	}
	return r.rig.GetMode()
}

func (r *Radio) SetMode(m Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return ErrNotConnected
	}
	return r.rig.SetMode(m)
}

func (r *Radio) GetVFO() (VFO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return VFOCurrent, ErrNotConnected
	}
	return r.rig.GetVFO()
}

func (r *Radio) SetVFO(v VFO) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return ErrNotConnected
	}
	return r.rig.SetVFO(v)
}

func (r *Radio) GetLevels() (Levels, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return Levels{}, ErrNotConnected
	}
	return r.rig.GetLevels()
}

func (r *Radio) SetLevel(name string, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rig == nil {
		return ErrNotConnected
	}
	return r.rig.SetLevel(name, value)
}

// agcCodes maps the string-valued AGCSpeed onto the integer encoding
// the generic Rig.SetLevel("agc", ...) call expects, since Hamlib's
// AGC control is itself an integer-coded level underneath the
// higher-level string Go callers see in Levels.
var agcCodes = map[AGCSpeed]int{
	AGCFast:   0,
	AGCMedium: 1,
	AGCSlow:   2,
}

// SetAGC sets the AGC speed (Set Mode's AGC parameter, spec §4.10).
func (r *Radio) SetAGC(speed AGCSpeed) error {
	code, ok := agcCodes[speed]
	if !ok {
		return fmt.Errorf("radio: unknown agc speed %q", speed)
	}
	return r.SetLevel("agc", code)
}

// SuppressNextPollAnnouncement arms the suppression flag. Frequency
// Mode calls this immediately before committing a SetFreqHz (spec
// §4.8).
func (r *Radio) SuppressNextPollAnnouncement() {
	r.suppressMu.Lock()
	r.suppressNextPoll = true
	r.suppressMu.Unlock()
}

// consumeSuppression reports whether a poll-driven announcement should
// be swallowed, clearing the flag either way. The poll loop calls it
// only when a debounced change is about to fire, so the flag is
// consumed by the next announcement, not by the next poll tick.
func (r *Radio) consumeSuppression() bool {
	r.suppressMu.Lock()
	defer r.suppressMu.Unlock()
	if r.suppressNextPoll {
		r.suppressNextPoll = false
		return true
	}
	return false
}

// StartPolling launches the frequency-polling goroutine (spec §4.7:
// "reads the frequency every 100ms... debounce counter requires the
// value to be stable before firing a freq_change callback").
func (r *Radio) StartPolling(ctx context.Context) {
	r.wg.Add(1)
	go r.pollLoop(ctx)
}

func (r *Radio) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	var lastSeen int64 = -1
	var candidate int64 = -1
	var stableCount int
	var lastAnnounced int64 = -1
	var consecutiveFailures int

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
		}

		hz, err := r.GetFreqHz(VFOCurrent)
		if err != nil {
			if err == ErrNotConnected {
				continue
			}
			consecutiveFailures++
			if consecutiveFailures >= 3 {
				r.log.Error("radio: poll failures, declaring disconnected")
				_ = r.Cleanup()
				if r.onDisconnect != nil {
					r.onDisconnect()
				}
				consecutiveFailures = 0
			}
			continue
		}
		consecutiveFailures = 0

		if hz != lastSeen {
			candidate = hz
			stableCount = 1
			lastSeen = hz
			continue
		}
		lastSeen = hz
		if candidate == hz {
			stableCount++
		} else {
			candidate = hz
			stableCount = 1
		}

		if stableCount >= r.cfg.DebounceTicks && hz != lastAnnounced {
			lastAnnounced = hz
			if r.consumeSuppression() {
				continue
			}
			if r.onFreqChange != nil {
				r.onFreqChange(hz)
			}
		}
	}
}

// StartReconnectWatchdog launches the thread that notices a reappeared
// device path and retries Init, issuing a USB bus reset between
// attempts if the plain retry fails while the path exists (spec
// §4.7).
func (r *Radio) StartReconnectWatchdog(ctx context.Context) {
	r.wg.Add(1)
	go r.reconnectLoop(ctx)
}

func (r *Radio) reconnectLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ReconnectPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-r.kick:
		case <-ticker.C:
		}

		pathExists := devicePathExists(r.cfg.DevicePath)
		connected := r.Connected()

		if connected && !pathExists {
			// The serial library can hang on a dead descriptor; force a
			// disconnect rather than waiting on the next poll failure.
			r.log.Error("radio: device path vanished, forcing disconnect", "path", r.cfg.DevicePath)
			_ = r.Cleanup()
			if r.onDisconnect != nil {
				r.onDisconnect()
			}
			continue
		}

		if connected || !pathExists {
			continue
		}

		if err := r.Init(); err == nil {
			r.log.Info("radio: reconnected", "path", r.cfg.DevicePath)
			if r.onConnect != nil {
				r.onConnect()
			}
			continue
		}

		// Init failed but the path exists: a stale USB enumeration from
		// power-on-after-plug. Reset the bus and retry once.
		if err := r.resetFn(r.cfg.DevicePath); err != nil {
			r.log.Error("radio: usb reset failed", "err", err)
			continue
		}
		time.Sleep(r.cfg.USBResetWait)
		if err := r.Init(); err == nil {
			r.log.Info("radio: reconnected after usb reset", "path", r.cfg.DevicePath)
			if r.onConnect != nil {
				r.onConnect()
			}
		}
	}
}

// Shutdown stops the poll and reconnect goroutines and tears down the
// handle.
func (r *Radio) Shutdown() {
	close(r.stop)
	r.wg.Wait()
	_ = r.Cleanup()
}

func devicePathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
