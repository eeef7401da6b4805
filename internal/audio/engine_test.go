package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu      sync.Mutex
	buf     []int16
	written [][]int16
	closed  bool
}

func (f *fakeStream) Write() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]int16, len(f.buf))
	copy(cp, f.buf)
	f.written = append(f.written, cp)
	return nil
}
func (f *fakeStream) Buffer() []int16 { return f.buf }
func (f *fakeStream) Close() error    { f.closed = true; return nil }

func testLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{})
}

func newTestEngine(t *testing.T) (*Engine, *fakeStream) {
	t.Helper()
	fs := &fakeStream{}
	open := func(buf []int16) (Stream, error) {
		fs.buf = buf
		return fs, nil
	}
	e := New(open, testLogger())
	require.NoError(t, e.Open())
	return e, fs
}

func TestPlaySamplesWritesChunks(t *testing.T) {
	e, fs := newTestEngine(t)
	samples := make([]int16, WriteChunkSamples*2+100)
	for i := range samples {
		samples[i] = int16(i)
	}
	require.NoError(t, e.PlaySamples(samples))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, 3, len(fs.written))
	assert.Equal(t, StateDrained, e.State())
}

func TestInterruptDiscardsChunk(t *testing.T) {
	e, fs := newTestEngine(t)
	e.Interrupt()

	samples := make([]int16, WriteChunkSamples)
	require.NoError(t, e.writeChunk(samples))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Empty(t, fs.written, "interrupted engine must discard the chunk silently")
}

func TestClearInterruptOnlyReprepareWhenInterrupted(t *testing.T) {
	e, _ := newTestEngine(t)

	// No interrupt occurred yet: ClearInterrupt is a no-op on state.
	e.ClearInterrupt()
	assert.Equal(t, StateIdle, e.State())

	e.Interrupt()
	assert.Equal(t, StateInterrupted, e.State())
	e.ClearInterrupt()
	assert.Equal(t, StateIdle, e.State())
	assert.False(t, e.interrupted.Load())
}

func TestPlayBeepDrainsAfterwards(t *testing.T) {
	e, fs := newTestEngine(t)
	e.LoadBeep(BeepKeypress, []int16{1, 2, 3})

	require.NoError(t, e.PlayBeep(BeepKeypress))
	assert.Equal(t, StateIdle, e.State())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.NotEmpty(t, fs.written)
}

func writeTestWAV(t *testing.T, path string, sampleRate uint32, channels, bits uint16, samples []int16) {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	byteRate := sampleRate * uint32(channels) * uint32(bits) / 8
	binary.Write(&buf, binary.LittleEndian, byteRate)
	blockAlign := channels * bits / 8
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bits)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPlayWAVFileMatchingFormatStreamsDirectly(t *testing.T) {
	e, fs := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "beep.wav")
	writeTestWAV(t, path, SampleRate, Channels, 16, []int16{10, 20, 30})

	require.NoError(t, e.PlayWAVFile(path))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.NotEmpty(t, fs.written)
}

func TestParseWAVHeaderRejectsNonRIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notwav.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all, just junk"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = ParseWAVHeader(f)
	assert.ErrorIs(t, err, ErrNotRIFF)
}
