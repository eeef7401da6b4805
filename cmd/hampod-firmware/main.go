// Command hampod-firmware is the Firmware half of HAMPOD's two-process
// control plane (spec §1/§2): it owns the keypad HAL, the PCM audio
// engine, and the TTS subprocess bridge, and multiplexes requests
// arriving on fw_in to whichever of the three a packet's type names.
package main

import (
	"encoding/binary"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/waynepadgett/hampod/internal/audio"
	"github.com/waynepadgett/hampod/internal/hlog"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/pipes"
	"github.com/waynepadgett/hampod/internal/tts"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		pipeDir      = pflag.String("pipe-dir", "/run/hampod", "directory holding the fw_in/fw_out FIFOs")
		synthCmd     = pflag.String("synth-command", "espeak-ng", "TTS synthesis engine binary")
		beepKeypress = pflag.String("beep-keypress", "/etc/hampod/beeps/keypress.wav", "cached keypress beep WAV")
		beepHold     = pflag.String("beep-hold", "/etc/hampod/beeps/hold.wav", "cached hold beep WAV")
		beepError    = pflag.String("beep-error", "/etc/hampod/beeps/error.wav", "cached error beep WAV")
		cardNumber   = pflag.Int("card-number", 0, "PCM card number reported to an audio info query")
		gpioChip     = pflag.String("override-gpio-chip", "", "GPIO chip for the panic/override button (empty disables it)")
		gpioLine     = pflag.Int("override-gpio-line", -1, "GPIO line for the panic/override button")
		debug        = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	logger := hlog.New(hlog.Firmware, *debug)

	if err := os.MkdirAll(*pipeDir, 0o755); err != nil {
		logger.Error("firmware: create pipe dir", "err", err)
		return 1
	}

	endpoint, err := pipes.ListenFirmware(*pipeDir)
	if err != nil {
		logger.Error("firmware: handshake failed", "err", err)
		return 1
	}
	defer endpoint.Close()

	engine := audio.New(audio.OpenDefaultPortAudioStream, logger)
	if err := engine.Open(); err != nil {
		logger.Error("firmware: open audio device", "err", err)
		return 1
	}
	defer engine.Close()
	engine.SetCachedInfo(audio.DeviceInfo{CardNumber: *cardNumber})
	loadBeeps(engine, logger, map[audio.BeepKind]string{
		audio.BeepKeypress: *beepKeypress,
		audio.BeepHold:     *beepHold,
		audio.BeepError:    *beepError,
	})

	synth := tts.New(*synthCmd, pflag.Args(), logger)
	defer synth.Close()

	hal := keypad.NewHAL(logger)
	defer hal.Close()
	if *gpioChip != "" && *gpioLine >= 0 {
		if err := hal.WatchOverride(keypad.OverrideLineOption{Chip: *gpioChip, Line: *gpioLine}); err != nil {
			logger.Error("firmware: watch override gpio", "err", err)
		}
	}

	writer := newFrameWriter(endpoint)

	ready, err := packet.NewReady(0)
	if err != nil {
		logger.Error("firmware: build ready signal", "err", err)
		return 1
	}
	if err := writer.write(ready); err != nil {
		logger.Error("firmware: send ready signal", "err", err)
		return 1
	}
	logger.Info("firmware: ready")

	jobs := make(chan audioJob, 1)
	go playerLoop(jobs, engine, synth, logger)
	go watchOverride(hal, engine, synth, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("firmware: shutting down")
		endpoint.Close()
	}()

	return dispatchLoop(endpoint, writer, engine, synth, hal, jobs, logger)
}

// loadBeeps reads each cached beep WAV into RAM; a missing or malformed
// file is logged and skipped rather than aborting startup — the
// keypress/hold/error beep is a nicety, not load-bearing.
func loadBeeps(engine *audio.Engine, logger *log.Logger, paths map[audio.BeepKind]string) {
	for kind, path := range paths {
		samples, err := loadWAVSamples(path)
		if err != nil {
			logger.Error("firmware: load beep", "path", path, "err", err)
			continue
		}
		engine.LoadBeep(kind, samples)
	}
}

func loadWAVSamples(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := audio.ParseWAVHeader(f)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, hdr.DataSize/2)
	for i := range samples {
		var b [2]byte
		if _, err := f.Read(b[:]); err != nil {
			break
		}
		samples[i] = int16(binary.LittleEndian.Uint16(b[:]))
	}
	return samples, nil
}

func watchOverride(hal *keypad.HAL, engine *audio.Engine, synth *tts.Synth, logger *log.Logger) {
	for range hal.Override() {
		logger.Warn("firmware: panic/override button pressed, silencing audio")
		engine.Interrupt()
		synth.Interrupt()
	}
}

// dispatchLoop is the single reader of fw_in; KEYPAD and CONFIG
// requests are quick enough to answer inline, AUDIO requests are
// handed to the player goroutine since they may block for the
// duration of playback (spec §2 data-flow: "Firmware's audio thread
// interrupts any current playback...").
func dispatchLoop(endpoint *pipes.Endpoint, w *frameWriter, engine *audio.Engine, synth *tts.Synth, hal *keypad.HAL, jobs chan<- audioJob, logger *log.Logger) int {
	for {
		p, err := packet.Decode(endpoint.In)
		if err != nil {
			logger.Info("firmware: fw_in closed, exiting", "err", err)
			return 0
		}

		switch p.Type {
		case packet.Keypad:
			handleKeypad(w, hal, p, logger)
		case packet.Config:
			handleConfig(engine, synth, p, logger)
		case packet.Audio:
			handleAudio(w, engine, jobs, p, logger)
		default:
			logger.Error("firmware: unknown packet type, protocol violation", "type", p.Type)
			return 1
		}
	}
}

func handleKeypad(w *frameWriter, hal *keypad.HAL, p packet.Packet, logger *log.Logger) {
	reply, err := packet.NewKeypadReply(p.Tag, hal.Current())
	if err != nil {
		logger.Error("firmware: build keypad reply", "err", err)
		return
	}
	if err := w.write(reply); err != nil {
		logger.Error("firmware: write keypad reply", "err", err)
	}
}

func handleConfig(engine *audio.Engine, synth *tts.Synth, p packet.Packet, logger *log.Logger) {
	selector, arg, err := packet.ParseConfig(p.Data)
	if err != nil {
		logger.Error("firmware: parse config packet", "err", err)
		return
	}
	switch selector {
	case packet.ConfigSetVolume:
		pct, err := strconv.Atoi(arg)
		if err != nil {
			logger.Error("firmware: parse volume", "err", err)
			return
		}
		engine.SetVolume(pct)
	case packet.ConfigSetSpeed:
		speed, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			logger.Error("firmware: parse speech speed", "err", err)
			return
		}
		// Applied on the synth's next (re)start; there is no live
		// change-rate-mid-utterance operation (spec §4.4).
		synth.SetSpeed(speed)
	}
}

func handleAudio(w *frameWriter, engine *audio.Engine, jobs chan<- audioJob, p packet.Packet, logger *log.Logger) {
	selector, arg, err := packet.ParseAudio(p.Data)
	if err != nil {
		logger.Error("firmware: parse audio packet", "err", err)
		return
	}
	if selector == packet.AudioInfoQuery {
		info, _ := engine.CachedInfo()
		reply, err := packet.NewAudioInfoReply(p.Tag, info.CardNumber)
		if err != nil {
			logger.Error("firmware: build info reply", "err", err)
			return
		}
		if err := w.write(reply); err != nil {
			logger.Error("firmware: write info reply", "err", err)
		}
		return
	}

	// Any new playback request interrupts whatever is currently
	// sounding (spec §2 data flow), then replaces the single pending
	// job — there is exactly one audio thread.
	engine.Interrupt()
	job := audioJob{selector: selector, arg: arg}
	select {
	case jobs <- job:
	default:
		select {
		case <-jobs:
		default:
		}
		jobs <- job
	}
}
