package main

import (
	"github.com/charmbracelet/log"

	"github.com/waynepadgett/hampod/internal/config"
	"github.com/waynepadgett/hampod/internal/keypad"
	"github.com/waynepadgett/hampod/internal/link"
	"github.com/waynepadgett/hampod/internal/modes/frequency"
	"github.com/waynepadgett/hampod/internal/modes/normal"
	"github.com/waynepadgett/hampod/internal/modes/set"
	"github.com/waynepadgett/hampod/internal/modes/shared"
	"github.com/waynepadgett/hampod/internal/packet"
)

// dispatcher implements spec §9's mode-peer ordering: Set Mode sees
// every event first (it owns 'B' even from Off), except that a
// Frequency Mode entry already in progress gets first refusal over
// Set's own idle key table, since an in-flight digit-entry sequence
// must not be interrupted by Set Mode claiming one of its keys.
// Normal Mode is the unconditional fall-through.
type dispatcher struct {
	client *link.Client
	store  *config.Store
	shared *shared.State
	set    *set.Mode
	freq   *frequency.Mode
	normal *normal.Mode
	log    *log.Logger
}

func (d *dispatcher) dispatch(ev keypad.Event) {
	d.keyBeep(ev)

	if d.freq.Active() {
		if d.freq.HandleKey(ev.Key) {
			return
		}
	}

	// Consumed exactly once per event, here, and threaded to whichever
	// mode ends up claiming it — a mode that declines the event must
	// not also clear the flag a later mode still needs to see.
	shifted := d.shared.ConsumeShift()

	if d.set.HandleEvent(ev, shifted) {
		return
	}

	if d.freq.HandleKey(ev.Key) {
		return
	}

	d.normal.HandleEvent(ev, shifted)
}

// keyBeep fires the fire-and-forget keypress/hold beep before the
// event reaches the mode stack (spec §4.5's "beep before event"
// ordering), gated on the Software-local key_beep_enabled setting —
// Firmware never needs to know about this flag, it only ever receives
// the resulting AUDIO beep request.
func (d *dispatcher) keyBeep(ev keypad.Event) {
	if !d.store.Current().KeyBeepEnabled {
		return
	}
	kind := byte(packet.BeepKeypress)
	if ev.Kind == keypad.EventHold {
		kind = packet.BeepHold
	}
	p, err := packet.NewBeepAudio(d.client.NextTag(), kind)
	if err != nil {
		return
	}
	if err := d.client.Send(p); err != nil {
		d.log.Error("software: key beep", "err", err)
	}
}
