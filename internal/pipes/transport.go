// Package pipes implements the named-pipe transport linking Firmware
// and Software: two FIFOs and an open order that avoids deadlock.
// Framing of packets over them lives in internal/packet.
//
// Grounded on the teacher's serial_port.go (a thin wrapper hiding a
// blocking character device behind Open/Read/Write/Close) but built on
// golang.org/x/sys/unix for FIFO creation and raw open-mode control,
// since the teacher's pkg/term abstraction does not expose the
// non-blocking retry-then-block transition this transport needs.
package pipes

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Names of the two FIFOs, relative to a configured directory. Legacy
// speaker pipes (Keypad_o, Speaker_i, Speaker_o) from the original
// on-disk layout are not created; nothing in this design uses them.
const (
	FwIn  = "fw_in"  // Software -> Firmware
	FwOut = "fw_out" // Firmware -> Software
)

// EnsureFIFO creates the named pipe at path if it does not already
// exist. Safe to call from either process; whichever runs first wins.
func EnsureFIFO(path string) error {
	err := unix.Mkfifo(path, 0o600)
	if err != nil && !os.IsExist(err) {
		return fmt.Errorf("pipes: mkfifo %s: %w", path, err)
	}
	return nil
}

// OpenRetryWriter opens path for writing, retrying while no reader has
// opened the other end yet (open(2) on a FIFO for writing blocks until
// a reader exists; we poll with O_NONBLOCK so the retry loop can be
// bounded and logged instead of hanging silently).
func OpenRetryWriter(path string, retryEvery time.Duration, giveUpAfter time.Duration) (*os.File, error) {
	deadline := time.Now().Add(giveUpAfter)
	for {
		fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			// Revert to blocking semantics for the life of the descriptor.
			if err := unix.SetNonblock(fd, false); err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("pipes: clear nonblock on %s: %w", path, err)
			}
			return os.NewFile(uintptr(fd), path), nil
		}
		if err != unix.ENXIO {
			return nil, fmt.Errorf("pipes: open %s for write: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("pipes: no reader appeared on %s within %s", path, giveUpAfter)
		}
		time.Sleep(retryEvery)
	}
}

// OpenBlockingReader opens path for reading. This blocks until a
// writer opens the other end, which is exactly the synchronization
// point the Software/Firmware handshake relies on: Software opens
// fw_out for reading first, so it blocks until Firmware has started.
func OpenBlockingReader(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pipes: open %s for read: %w", path, err)
	}
	return f, nil
}

// Endpoint bundles the two FIFO descriptors one side of the link
// needs: a reader for the direction owned by the peer, and a writer
// for the direction it owns.
type Endpoint struct {
	In  *os.File // requests, written by Software / read by Firmware
	Out *os.File // responses, written by Firmware / read by Software
}

// Close releases both descriptors, ignoring errors from either (the
// caller is tearing down regardless).
func (e *Endpoint) Close() {
	if e.In != nil {
		_ = e.In.Close()
	}
	if e.Out != nil {
		_ = e.Out.Close()
	}
}

// DialSoftware implements the Software-side handshake: open fw_out for
// reading first (blocks until Firmware has opened its write end), then
// open fw_in for writing with a retry loop, since Firmware may not yet
// have opened its read end.
func DialSoftware(dir string) (*Endpoint, error) {
	outPath := dir + "/" + FwOut
	inPath := dir + "/" + FwIn

	out, err := OpenBlockingReader(outPath)
	if err != nil {
		return nil, err
	}

	in, err := OpenRetryWriter(inPath, 100*time.Millisecond, 30*time.Second)
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	return &Endpoint{In: in, Out: out}, nil
}

// ListenFirmware implements the Firmware-side handshake: Firmware owns
// the FIFOs, so it creates both before opening either. It must open
// fw_out for writing *before* fw_in for reading: Software's handshake
// (DialSoftware, above) opens fw_out for reading first and only opens
// fw_in for writing once that unblocks, so if Firmware opened its
// blocking fw_in reader first, each side would be parked waiting on
// the other's write end that is never reached — a circular wait.
// Opening fw_out's non-blocking retry-writer first lets it rendezvous
// with Software's blocked fw_out reader without itself blocking, after
// which Firmware's fw_in reader and Software's fw_in retry-writer pair
// up the same way.
func ListenFirmware(dir string) (*Endpoint, error) {
	inPath := dir + "/" + FwIn
	outPath := dir + "/" + FwOut

	if err := EnsureFIFO(inPath); err != nil {
		return nil, err
	}
	if err := EnsureFIFO(outPath); err != nil {
		return nil, err
	}

	out, err := OpenRetryWriter(outPath, 100*time.Millisecond, 30*time.Second)
	if err != nil {
		return nil, err
	}

	in, err := OpenBlockingReader(inPath)
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	return &Endpoint{In: in, Out: out}, nil
}
