package router

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
)

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

func TestRouterDemuxByType(t *testing.T) {
	keyP, _ := packet.New(packet.Keypad, 1, []byte("7"))
	audP, _ := packet.New(packet.Audio, 2, []byte("ok"))

	var buf bytes.Buffer
	require.NoError(t, keyP.Encode(&buf))
	require.NoError(t, audP.Encode(&buf))

	rt := New(&buf, testLogger())
	rt.Start()

	got, err := rt.Recv(context.Background(), packet.Audio, time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.Audio, got.Type)
	assert.Equal(t, []byte("ok"), got.Data)

	got, err = rt.Recv(context.Background(), packet.Keypad, time.Second)
	require.NoError(t, err)
	assert.Equal(t, packet.Keypad, got.Type)
}

func TestRouterOrderingWithinType(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 5; i++ {
		p, _ := packet.New(packet.Keypad, uint16(i), nil)
		require.NoError(t, p.Encode(&buf))
	}

	rt := New(&buf, testLogger())
	rt.Start()

	for i := 0; i < 5; i++ {
		p, err := rt.Recv(context.Background(), packet.Keypad, time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint16(i), p.Tag)
	}
}

func TestRouterRecvTimeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	rt := New(r, testLogger())
	rt.Start()

	_, err := rt.Recv(context.Background(), packet.Config, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRouterOverflowDropsOldest(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < DefaultQueueCapacity+3; i++ {
		p, _ := packet.New(packet.Keypad, uint16(i), nil)
		require.NoError(t, p.Encode(&buf))
	}

	rt := New(&buf, testLogger())
	rt.Start()

	// Give the reader goroutine a moment to drain the whole buffer into
	// the queue before we start consuming, so overflow actually occurs.
	time.Sleep(100 * time.Millisecond)

	first, err := rt.Recv(context.Background(), packet.Keypad, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), first.Tag, "oldest 3 entries should have been dropped")
	assert.Equal(t, 3, rt.Dropped(packet.Keypad))
}

func TestConsumeReadyThenStart(t *testing.T) {
	ready, _ := packet.NewReady(0)
	keyP, _ := packet.New(packet.Keypad, 9, nil)

	var buf bytes.Buffer
	require.NoError(t, ready.Encode(&buf))
	require.NoError(t, keyP.Encode(&buf))

	require.NoError(t, ConsumeReady(&buf))

	rt := New(&buf, testLogger())
	rt.Start()

	got, err := rt.Recv(context.Background(), packet.Keypad, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), got.Tag)
}

func TestShutdownWakesWaiters(t *testing.T) {
	r, w := io.Pipe()

	rt := New(r, testLogger())
	rt.Start()

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Recv(context.Background(), packet.Config, 5*time.Second)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	rt.Shutdown()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake on shutdown")
	}
	_ = w.Close()
}
