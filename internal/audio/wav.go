package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// WAVHeader is the subset of a canonical RIFF/WAVE header this engine
// validates before streaming a file directly (spec §4.3: header
// parsing is in scope; full WAV parsing beyond this is delegated to an
// external player per spec §1's explicit Non-goals).
type WAVHeader struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
}

// ErrNotRIFF is returned when a file lacks the RIFF/WAVE magic.
var ErrNotRIFF = fmt.Errorf("audio: not a RIFF/WAVE file")

// ParseWAVHeader reads a minimal canonical WAV header from r, leaving
// r positioned at the start of the data chunk on success.
func ParseWAVHeader(r io.ReadSeeker) (WAVHeader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVHeader{}, fmt.Errorf("audio: read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVHeader{}, ErrNotRIFF
	}

	var h WAVHeader
	for {
		var chunkHdr [8]byte
		if _, err := io.ReadFull(r, chunkHdr[:]); err != nil {
			return WAVHeader{}, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunkHdr[0:4])
		size := binary.LittleEndian.Uint32(chunkHdr[4:8])

		switch id {
		case "fmt ":
			var fmtBody [16]byte
			if _, err := io.ReadFull(r, fmtBody[:]); err != nil {
				return WAVHeader{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			h.Channels = binary.LittleEndian.Uint16(fmtBody[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(fmtBody[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(fmtBody[14:16])
			if extra := int64(size) - 16; extra > 0 {
				if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
					return WAVHeader{}, err
				}
			}
		case "data":
			pos, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return WAVHeader{}, err
			}
			h.DataOffset = pos
			h.DataSize = size
			return h, nil
		default:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return WAVHeader{}, fmt.Errorf("audio: skip chunk %s: %w", id, err)
			}
		}
	}
}

// Matches reports whether h's format matches the pipeline contract
// (16kHz mono s16le) exactly enough to stream directly.
func (h WAVHeader) Matches() bool {
	return h.SampleRate == SampleRate && h.Channels == Channels && h.BitsPerSample == 16
}

// PlayWAVFile streams path through the engine if its format matches
// the pipeline contract; otherwise it falls back to an external player
// (degraded: non-interruptible), per spec §4.3.
func (e *Engine) PlayWAVFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	hdr, err := ParseWAVHeader(f)
	if err != nil {
		return e.playViaExternalPlayer(path)
	}
	if !hdr.Matches() {
		return e.playViaExternalPlayer(path)
	}

	samples := make([]int16, hdr.DataSize/2)
	if err := binary.Read(f, binary.LittleEndian, samples); err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("audio: read wav data: %w", err)
	}
	return e.PlaySamples(samples)
}

// externalPlayerCommand is overridable in tests.
var externalPlayerCommand = "aplay"

func (e *Engine) playViaExternalPlayer(path string) error {
	e.log.Info("audio: format mismatch, falling back to external player", "path", path)
	cmd := exec.Command(externalPlayerCommand, path)
	return cmd.Run()
}
