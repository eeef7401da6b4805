// Package link implements the Software-side half of the pipe protocol:
// a single point that allocates wire tags, writes request packets to
// fw_in, and (for request/response calls) waits for the matching reply
// off the router. It is the one thing the keypad poller, the speech
// worker, and Frequency Mode's beep sender all share — deliberately a
// thin, narrow-interface adapter rather than a back-pointer into any of
// them (spec §9: "avoid back-pointers across modes").
package link

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/router"
)

// DefaultRequestTimeout bounds how long a request/response call waits
// for its matching reply before giving up.
const DefaultRequestTimeout = 2 * time.Second

// Client is the Software-side fw_in writer plus fw_out reader pairing.
// Send is safe for concurrent use by multiple producers (keypad poller,
// speech worker, beep sender); each call writes one complete packet
// under a single mutex so frames from concurrent callers are never
// interleaved on the wire.
type Client struct {
	mu     sync.Mutex
	out    io.Writer
	router *router.Router
	tag    atomic.Uint32
}

// New builds a Client writing requests to out and reading replies via
// rt. rt must already be Start()-ed.
func New(out io.Writer, rt *router.Router) *Client {
	return &Client{out: out, router: rt}
}

// NextTag returns a fresh wire tag. Tags wrap at 16 bits, matching the
// packet header's tag field width; wraparound is harmless since tags
// are only used to correlate a request with its one reply, not as a
// long-lived identifier.
func (c *Client) NextTag() uint16 {
	return uint16(c.tag.Add(1))
}

// Send writes p to fw_in.
func (c *Client) Send(p packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.Encode(c.out)
}

// RequestKey issues the KEYPAD 'r' poll request and waits for the
// matching reply, satisfying internal/keypad.Requester.
func (c *Client) RequestKey(ctx context.Context) (byte, error) {
	tag := c.NextTag()
	req, err := packet.NewKeypadReadRequest(tag)
	if err != nil {
		return 0, err
	}
	if err := c.Send(req); err != nil {
		return 0, fmt.Errorf("link: send keypad request: %w", err)
	}
	resp, err := c.router.Recv(ctx, packet.Keypad, DefaultRequestTimeout)
	if err != nil {
		return 0, err
	}
	return packet.ParseKeypadReply(resp.Data)
}

// QueryAudioInfo issues an AUDIO info query and waits for the reply,
// returning the PCM device's card number.
func (c *Client) QueryAudioInfo(ctx context.Context) (int, error) {
	tag := c.NextTag()
	req, err := packet.NewInfoQueryAudio(tag)
	if err != nil {
		return 0, err
	}
	if err := c.Send(req); err != nil {
		return 0, fmt.Errorf("link: send audio info query: %w", err)
	}
	resp, err := c.router.Recv(ctx, packet.Audio, DefaultRequestTimeout)
	if err != nil {
		return 0, err
	}
	return packet.ParseAudioInfoReply(resp.Data)
}
