package main

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/waynepadgett/hampod/internal/audio"
	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/pipes"
	"github.com/waynepadgett/hampod/internal/tts"
)

// frameWriter serializes writes to fw_out. Its callers are run (the
// ready signal) and then the dispatch loop (KEYPAD replies and AUDIO
// info replies); the player goroutine writes nothing. The mutex keeps
// each frame whole, since a FIFO write is not atomic across concurrent
// callers.
type frameWriter struct {
	mu  sync.Mutex
	out *pipes.Endpoint
}

func newFrameWriter(e *pipes.Endpoint) *frameWriter {
	return &frameWriter{out: e}
}

func (w *frameWriter) write(p packet.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return p.Encode(w.out.Out)
}

// audioJob is the single pending playback request the player goroutine
// works through; a new AUDIO request replaces whatever is queued
// (spec §2: "interrupts any current playback").
type audioJob struct {
	selector byte
	arg      string
}

// playerLoop is the sole goroutine that ever calls into the PCM
// engine's PlaySamples/PlayBeep/PlayWAVFile or the TTS bridge's Speak,
// so two playback requests can never race on the same hardware stream.
func playerLoop(jobs <-chan audioJob, engine *audio.Engine, synth *tts.Synth, log *log.Logger) {
	for job := range jobs {
		engine.ClearInterrupt()
		switch job.selector {
		case packet.AudioSpeak:
			speakText(engine, synth, job.arg, log)
		case packet.AudioSpell:
			speakText(engine, synth, spellOut(job.arg), log)
		case packet.AudioPlayWAV:
			if err := engine.PlayWAVFile(job.arg); err != nil {
				log.Error("firmware: play wav", "path", job.arg, "err", err)
			}
		case packet.AudioBeep:
			kind, ok := beepKindFromByte(job.arg)
			if !ok {
				log.Error("firmware: unknown beep kind", "kind", job.arg)
				continue
			}
			if err := engine.PlayBeep(kind); err != nil {
				log.Error("firmware: play beep", "err", err)
			}
		default:
			log.Error("firmware: unknown audio selector", "selector", job.selector)
		}
	}
}

func speakText(engine *audio.Engine, synth *tts.Synth, text string, log *log.Logger) {
	err := synth.Speak(context.Background(), text, func(chunk []byte) {
		if err := engine.StreamChunk(bytesToSamples(chunk)); err != nil {
			log.Error("firmware: stream tts chunk", "err", err)
		}
	})
	if err != nil {
		log.Error("firmware: speak", "text", text, "err", err)
	}
	_ = engine.Drain()
}

// spellOut turns "abc" into "a b c" so the synth reads each character
// individually (spec §6's 's' AUDIO sub-type).
func spellOut(chars string) string {
	return strings.Join(strings.Split(chars, ""), " ")
}

func beepKindFromByte(arg string) (audio.BeepKind, bool) {
	if len(arg) == 0 {
		return 0, false
	}
	switch arg[0] {
	case packet.BeepKeypress:
		return audio.BeepKeypress, true
	case packet.BeepHold:
		return audio.BeepHold, true
	case packet.BeepError:
		return audio.BeepError, true
	default:
		return 0, false
	}
}

func bytesToSamples(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
