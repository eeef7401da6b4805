package link

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waynepadgett/hampod/internal/packet"
	"github.com/waynepadgett/hampod/internal/router"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

// fakeFirmware echoes back one KEYPAD reply for every KEYPAD request it
// reads off requests, onto the router's backing reader via responses.
func fakeFirmware(t *testing.T, requests io.Reader, responses io.Writer) {
	t.Helper()
	p, err := packet.Decode(requests)
	require.NoError(t, err)
	require.Equal(t, packet.Keypad, p.Type)
	reply, err := packet.NewKeypadReply(p.Tag, '5')
	require.NoError(t, err)
	require.NoError(t, reply.Encode(responses))
}

func TestRequestKeyRoundTrip(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	rt := router.New(respR, testLogger())
	rt.Start()

	c := New(reqW, rt)

	done := make(chan struct{})
	go func() {
		fakeFirmware(t, reqR, respW)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key, err := c.RequestKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('5'), key)
	<-done
}

func TestSendSerializesConcurrentWriters(t *testing.T) {
	// Client.Send holds its own mutex around each full packet write, so
	// concurrent callers sharing one bytes.Buffer never interleave
	// partial frames onto it.
	var buf bytes.Buffer
	rt := router.New(bytes.NewReader(nil), testLogger())
	c := New(&buf, rt)

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			p, err := packet.NewKeypadReadRequest(c.NextTag())
			if err != nil {
				errs <- err
				return
			}
			errs <- c.Send(p)
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, n*(packet.HeaderLen+1), buf.Len())
}
