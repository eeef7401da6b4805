package speech

import (
	"os"
	"sync"
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

func TestSayEnqueuesAndPopReturnsInOrder(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Say("one"))
	require.NoError(t, q.Say("two"))

	item, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "one", item.Text)

	item, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "two", item.Text)
}

func TestPushbackBlocksWhenFullThenAdmitsOnSpace(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Say("first"))

	done := make(chan error, 1)
	go func() { done <- q.Say("second") }()

	// Give the producer a moment to actually block on pushback.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second Say should still be blocked while queue is full")
	default:
	}

	_, ok := q.pop() // frees one slot
	require.True(t, ok)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Say did not unblock after pop freed space")
	}
}

func TestShutdownFailsBlockedProducer(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Say("first"))

	done := make(chan error, 1)
	go func() { done <- q.Say("second") }()
	time.Sleep(50 * time.Millisecond)

	q.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("shutdown did not wake blocked producer")
	}

	assert.ErrorIs(t, q.Say("third"), ErrShutdown)
}

func TestClearQueueDropsPendingOnly(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Say("a"))
	require.NoError(t, q.Say("b"))
	q.ClearQueue()
	assert.Equal(t, 0, q.Len())
}

type fakeSender struct {
	mu  sync.Mutex
	got []packet.Packet
}

func (f *fakeSender) Send(p packet.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	return nil
}

func TestWorkerTurnsItemsIntoAudioPackets(t *testing.T) {
	q := NewQueue(4)
	fs := &fakeSender{}
	w := NewWorker(q, fs, testLogger())
	w.Start()

	require.NoError(t, q.Say("hello"))
	require.NoError(t, q.Spell("abc"))
	require.NoError(t, q.PlayFile("/tmp/beep.wav"))

	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.got) == 3
	}, time.Second, 10*time.Millisecond)

	q.Shutdown()
	<-w.Done()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.got, 3)
	assert.Equal(t, packet.Audio, fs.got[0].Type)
	selector, arg, err := packet.ParseAudio(fs.got[0].Data)
	require.NoError(t, err)
	assert.Equal(t, byte(packet.AudioSpeak), selector)
	assert.Equal(t, "hello", arg)

	selector, arg, err = packet.ParseAudio(fs.got[1].Data)
	require.NoError(t, err)
	assert.Equal(t, byte(packet.AudioSpell), selector)
	assert.Equal(t, "abc", arg)

	selector, arg, err = packet.ParseAudio(fs.got[2].Data)
	require.NoError(t, err)
	assert.Equal(t, byte(packet.AudioPlayWAV), selector)
	assert.Equal(t, "/tmp/beep.wav", arg)
}
