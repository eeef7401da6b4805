// Command hampod-software is the Software half of HAMPOD's two-process
// control plane (spec §1/§2): it owns the mode stack (Set, Frequency,
// Normal), the radio abstraction, and the configuration store, and
// drives both off a classified stream of keypad events arriving over
// the fw_in/fw_out link to Firmware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/waynepadgett/hampod/internal/config"
	"github.com/waynepadgett/hampod/internal/hlog"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/link"
	"github.com/waynepadgett/hampod/internal/modes/frequency"
	"github.com/waynepadgett/hampod/internal/modes/normal"
	"github.com/waynepadgett/hampod/internal/modes/set"
	"github.com/waynepadgett/hampod/internal/modes/shared"
	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/pipes"
	"github.com/waynepadgett/hampod/internal/radio"
	"github.com/waynepadgett/hampod/internal/router"
	"github.com/waynepadgett/hampod/internal/speech"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		pipeDir    = pflag.String("pipe-dir", "/run/hampod", "directory holding the fw_in/fw_out FIFOs")
		configPath = pflag.String("config", "/etc/hampod/hampod.conf", "configuration file path")
		noRadio    = pflag.Bool("no-radio", false, "skip radio connect/poll (bench testing without a rig attached)")
		dumpConfig = pflag.Bool("dump-config", false, "print the active configuration as YAML and exit")
		debug      = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	logger := hlog.New(hlog.Software, *debug)

	store, err := config.NewStore(*configPath)
	if err != nil {
		logger.Error("software: load config", "err", err)
		return 1
	}

	if *dumpConfig {
		out, err := store.DumpYAML()
		if err != nil {
			logger.Error("software: dump config", "err", err)
			return 1
		}
		fmt.Print(out)
		return 0
	}

	endpoint, err := pipes.DialSoftware(*pipeDir)
	if err != nil {
		logger.Error("software: dial firmware", "err", err)
		return 1
	}
	defer endpoint.Close()

	if err := router.ConsumeReady(endpoint.Out); err != nil {
		logger.Error("software: firmware handshake", "err", err)
		return 1
	}

	rt := router.New(endpoint.Out, logger)
	rt.Start()

	client := link.New(endpoint.In, rt)

	cfg := store.Current()
	pushConfigToFirmware(client, logger, cfg)

	speechQueue := speech.NewQueue(16)
	worker := speech.NewWorker(speechQueue, client, logger)
	worker.Start()

	sharedState := shared.New()

	rig := radio.New(radio.Config{
		Model:      cfg.RadioModel,
		DevicePath: cfg.RadioDevicePath,
		Baud:       cfg.RadioBaud,
	}, radio.OpenHamlibRig, logger)

	normalMode := normal.New(rig, speechQueue, sharedState, logger)
	setMode := set.New(rig, speechQueue, sharedState, logger)
	freqMode := frequency.New(rig, speechQueue, client, cfg.KeypadLayout, logger)

	rig.OnFreqChange(func(hz int64) {
		if !freqMode.Active() && !setMode.Active() {
			normalMode.OnFreqChange(hz)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*noRadio {
		if err := rig.Init(); err != nil {
			logger.Error("software: radio init, continuing disconnected", "err", err)
		}
		rig.StartPolling(ctx)
		rig.StartReconnectWatchdog(ctx)
		go func() {
			for range radio.WatchDevicePath(ctx, cfg.RadioDevicePath, logger) {
				rig.Kick()
			}
		}()
	}
	defer rig.Shutdown()

	poller := keypad.New(&requester{client: client}, keypad.Config{}, logger)
	poller.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	d := &dispatcher{
		client: client,
		store:  store,
		shared: sharedState,
		set:    setMode,
		freq:   freqMode,
		normal: normalMode,
		log:    logger,
	}

	timeoutTicker := time.NewTicker(500 * time.Millisecond)
	defer timeoutTicker.Stop()

	for {
		select {
		case <-sig:
			logger.Info("software: shutting down")
			speechQueue.Shutdown()
			poller.Stop()
			cancel()
			return 0

		case <-rt.Done():
			logger.Error("software: firmware link lost, exiting")
			speechQueue.Shutdown()
			poller.Stop()
			cancel()
			return 1

		case ev, ok := <-poller.Events():
			if !ok {
				logger.Error("software: keypad poller exited, exiting")
				speechQueue.Shutdown()
				cancel()
				return 1
			}
			d.dispatch(ev)

		case <-timeoutTicker.C:
			freqMode.CheckTimeout(time.Now())
		}
	}
}

// requester adapts *link.Client to keypad.Requester, translating a
// router read-timeout into keypad's own retryable sentinel so the
// poller package does not need to import internal/router.
type requester struct {
	client *link.Client
}

func (r *requester) RequestKey(ctx context.Context) (byte, error) {
	key, err := r.client.RequestKey(ctx)
	if err != nil {
		if err == router.ErrTimeout {
			return 0, keypad.ErrTimeout
		}
		return 0, err
	}
	return key, nil
}

// pushConfigToFirmware sends the output-gain and speech-rate settings
// Firmware's audio/TTS subsystems need down the CONFIG channel once at
// startup. key_beep_enabled and the radio/keypad settings never leave
// Software — see packet.ConfigSetVolume's doc comment.
func pushConfigToFirmware(client *link.Client, logger *log.Logger, cfg config.Config) {
	if p, err := packet.NewConfigSetVolume(client.NextTag(), cfg.OutputVolume); err == nil {
		if err := client.Send(p); err != nil {
			logger.Error("software: push volume", "err", err)
		}
	}
	if p, err := packet.NewConfigSetSpeed(client.NextTag(), cfg.SpeechSpeed); err == nil {
		if err := client.Send(p); err != nil {
			logger.Error("software: push speech speed", "err", err)
		}
	}
}
