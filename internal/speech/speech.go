// Package speech implements the bounded producer/consumer speech
// queue of spec §4.6: say_text/spell_text/play_file producers, a
// worker that dequeues and fires non-blocking AUDIO requests, and
// ClearQueue, which drops pending items only. The package has no
// interrupt call of its own: current speech is cut on the Firmware
// side, where every new AUDIO request interrupts playback.
//
// Grounded on the teacher's src/tq.go-style transmit queue (a bounded
// work queue served by one sender goroutine) and on internal/router's
// condition-variable wait discipline, reused here for the producer's
// 100ms timed pushback instead of router's drop-oldest policy — this
// queue blocks producers rather than dropping items, per spec §4.6.
package speech

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/waynepadgett/hampod/internal/packet"
)

// Kind identifies which AUDIO sub-request an Item becomes.
type Kind int

const (
	KindSay Kind = iota
	KindSpell
	KindPlayFile
)

// Item is one queued unit of work.
type Item struct {
	Kind Kind
	Text string // Say, Spell
	Path string // PlayFile
}

// ErrShutdown is returned by a producer call once the queue has been
// shut down.
var ErrShutdown = errors.New("speech: queue shut down")

// PushbackWait is the timed-wait granularity a blocked producer
// re-checks shutdown at (spec §4.6).
const PushbackWait = 100 * time.Millisecond

// Queue is the bounded FIFO of pending Items.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Item
	capacity int
	closed   bool
}

// NewQueue builds a Queue bounded at capacity items.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Say enqueues a say_text request, blocking with a timed pushback wait
// while the queue is full.
func (q *Queue) Say(text string) error {
	return q.push(Item{Kind: KindSay, Text: text})
}

// Spell enqueues a spell_text request.
func (q *Queue) Spell(text string) error {
	return q.push(Item{Kind: KindSpell, Text: text})
}

// PlayFile enqueues a play_file request.
func (q *Queue) PlayFile(path string) error {
	return q.push(Item{Kind: KindPlayFile, Path: path})
}

func (q *Queue) push(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return ErrShutdown
		}
		if len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.cond.Broadcast()
			return nil
		}
		waitOn(q.cond, PushbackWait)
	}
}

// pop blocks until an item is available or the queue is shut down.
func (q *Queue) pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.cond.Broadcast()
			return item, true
		}
		if q.closed {
			return Item{}, false
		}
		waitOn(q.cond, PushbackWait)
	}
}

// ClearQueue drops all pending items without affecting whatever is
// currently playing on the Firmware side (spec §4.6's deliberate
// interrupt/clear_queue split).
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	q.items = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Shutdown closes the queue: blocked producers and the worker's pop
// loop unblock and return ErrShutdown / ok=false respectively.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len reports the number of pending items, for diagnostics and tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// waitOn blocks on cond for at most d, whichever comes first, the same
// timed-wait-on-a-sync.Cond pattern internal/router uses.
func waitOn(cond *sync.Cond, d time.Duration) {
	woke := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
		close(woke)
	})
	cond.Wait()
	timer.Stop()
	select {
	case <-woke:
	default:
	}
}

// Sender fires one AUDIO request without awaiting an acknowledgement;
// the Firmware-side audio engine is the single serializer (spec §4.6).
type Sender interface {
	Send(p packet.Packet) error
}

// Worker dequeues Items and turns each into a non-blocking AUDIO
// request via Sender.
type Worker struct {
	q      *Queue
	sender Sender
	log    *log.Logger
	nextTag uint16

	done chan struct{}
}

// NewWorker builds a Worker bound to q and sender.
func NewWorker(q *Queue, sender Sender, logger *log.Logger) *Worker {
	return &Worker{q: q, sender: sender, log: logger, done: make(chan struct{})}
}

// Start launches the dequeue loop in a background goroutine. The loop
// exits once q is shut down.
func (w *Worker) Start() {
	go w.run()
}

// Done reports when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run() {
	defer close(w.done)
	for {
		item, ok := w.q.pop()
		if !ok {
			return
		}
		p, err := itemToPacket(w.nextTag, item)
		w.nextTag++
		if err != nil {
			w.log.Error("speech: build audio packet", "err", err)
			continue
		}
		if err := w.sender.Send(p); err != nil {
			w.log.Error("speech: send audio request", "err", err)
		}
	}
}

func itemToPacket(tag uint16, item Item) (packet.Packet, error) {
	switch item.Kind {
	case KindSay:
		return packet.NewSpeakAudio(tag, item.Text)
	case KindSpell:
		return packet.NewSpellAudio(tag, item.Text)
	case KindPlayFile:
		return packet.NewPlayWAVAudio(tag, item.Path)
	default:
		return packet.Packet{}, fmt.Errorf("speech: unknown item kind %v", item.Kind)
	}
}
