// Package router implements the single-reader demultiplexer described
// in spec §4.2: one background goroutine reads the Firmware->Software
// pipe and fans each packet into a bounded, per-type queue so that
// concurrent callers (keypad poller, speech worker, info queries) each
// see only the responses meant for them, in wire order.
package router

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/waynepadgett/hampod/internal/packet"
)

// DefaultQueueCapacity is the bound on each per-type response queue.
const DefaultQueueCapacity = 32

// queue is a bounded FIFO of packets guarded by a mutex/condvar pair,
// matching the teacher's convention of one lock per shared resource
// (spec §5: "no lock held across a pipe I/O call").
type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *list.List
	capacity int
	closed   bool
	dropped  int
}

func newQueue(capacity int) *queue {
	q := &queue{items: list.New(), capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues p, dropping the oldest entry first if the queue is
// already full (spec §4.2 overflow policy: drop oldest, keep moving).
func (q *queue) push(p packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() >= q.capacity {
		q.items.Remove(q.items.Front())
		q.dropped++
	}
	q.items.PushBack(p)
	q.cond.Broadcast()
}

// pop waits up to timeout for a packet, or until the queue is closed.
func (q *queue) pop(timeout time.Duration) (packet.Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for q.items.Len() == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return packet.Packet{}, ErrTimeout
		}
		waitOn(q.cond, remaining)
	}
	if q.items.Len() == 0 {
		return packet.Packet{}, ErrClosed
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(packet.Packet), nil
}

func (q *queue) closeAndBroadcast() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// waitOn blocks on cond for at most d by arranging a timer to
// broadcast if no other wakeup arrives first. sync.Cond has no timed
// wait natively; this helper gives every queue a bounded wait without
// a busy poll. Caller holds cond.L.
func waitOn(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}

// ErrTimeout is returned by Recv when no matching packet arrives
// within the requested timeout.
var ErrTimeout = fmt.Errorf("router: timed out waiting for response")

// ErrClosed is returned by Recv once the router has been shut down.
var ErrClosed = fmt.Errorf("router: closed")

// Router reads fw_out and demultiplexes by packet type.
type Router struct {
	log     *log.Logger
	reader  io.Reader
	queues  map[packet.Type]*queue
	done    chan struct{}
}

// New builds a Router over r. It does not start reading until Start is
// called — see the startup-ordering invariant below.
func New(r io.Reader, logger *log.Logger) *Router {
	rt := &Router{
		log:    logger,
		reader: r,
		queues: make(map[packet.Type]*queue),
		done:   make(chan struct{}),
	}
	for _, t := range []packet.Type{packet.Keypad, packet.Audio, packet.Serial, packet.Config} {
		rt.queues[t] = newQueue(DefaultQueueCapacity)
	}
	return rt
}

// ConsumeReady performs the critical startup-ordering step from spec
// §4.2: Software must consume the Firmware's single CONFIG ready
// packet via a direct blocking read *before* the router thread starts.
// Starting the router first would let it race a waiter already parked
// on the CONFIG queue for this exact packet.
func ConsumeReady(r io.Reader) error {
	p, err := packet.Decode(r)
	if err != nil {
		return fmt.Errorf("router: reading ready signal: %w", err)
	}
	if !packet.IsReady(p) {
		return fmt.Errorf("router: expected ready signal, got %s packet", p.Type)
	}
	return nil
}

// Start launches the single reader goroutine. Call only after
// ConsumeReady has returned successfully.
func (rt *Router) Start() {
	go rt.readLoop()
}

// Done returns a channel closed once the reader goroutine has exited,
// for callers (e.g. the software main loop) that want to notice a
// dead link and initiate shutdown.
func (rt *Router) Done() <-chan struct{} {
	return rt.done
}

func (rt *Router) readLoop() {
	defer close(rt.done)
	for {
		p, err := packet.Decode(rt.reader)
		if err != nil {
			rt.log.Error("router read failed, shutting down", "err", err)
			rt.shutdownQueues()
			return
		}
		q, ok := rt.queues[p.Type]
		if !ok {
			rt.log.Error("router: unknown packet type, protocol violation", "type", p.Type)
			rt.shutdownQueues()
			return
		}
		q.push(p)
	}
}

func (rt *Router) shutdownQueues() {
	for _, q := range rt.queues {
		q.closeAndBroadcast()
	}
}

// Recv blocks up to timeout for the next packet of type t. Packets of
// the same type are delivered in wire order; packets of different
// types may interleave freely (spec §4.2 ordering guarantee).
func (rt *Router) Recv(ctx context.Context, t packet.Type, timeout time.Duration) (packet.Packet, error) {
	q, ok := rt.queues[t]
	if !ok {
		return packet.Packet{}, fmt.Errorf("router: no queue for type %s", t)
	}
	type result struct {
		p   packet.Packet
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := q.pop(timeout)
		ch <- result{p, err}
	}()
	select {
	case r := <-ch:
		return r.p, r.err
	case <-ctx.Done():
		return packet.Packet{}, ctx.Err()
	}
}

// Shutdown stops the router: every waiter across all four queues
// wakes with ErrClosed. The reader goroutine itself exits on its next
// failed read or once the pipe is closed by the caller (blocking reads
// have no inherent cancellation — spec §5).
func (rt *Router) Shutdown() {
	rt.shutdownQueues()
}

// Dropped reports how many packets of type t have been dropped due to
// queue overflow, for diagnostics.
func (rt *Router) Dropped(t packet.Type) int {
	q, ok := rt.queues[t]
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
