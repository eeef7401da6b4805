package pipes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waynepadgett/hampod/internal/packet"
)

// TestHandshakeOrdering exercises the real open-order contract between
// Firmware and Software using actual FIFOs on disk.
func TestHandshakeOrdering(t *testing.T) {
	dir := t.TempDir()

	fwReady := make(chan *Endpoint, 1)
	fwErr := make(chan error, 1)
	go func() {
		ep, err := ListenFirmware(dir)
		if err != nil {
			fwErr <- err
			return
		}
		fwReady <- ep
	}()

	// Give the firmware side a moment to create the FIFOs and start
	// retrying its fw_out writer open before Software dials in.
	time.Sleep(50 * time.Millisecond)

	swEp, err := DialSoftware(dir)
	require.NoError(t, err)
	defer swEp.Close()

	select {
	case ep := <-fwReady:
		defer ep.Close()
	case err := <-fwErr:
		t.Fatalf("firmware listen failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("firmware side never completed handshake")
	}
}

func TestPacketRoundTripOverFIFO(t *testing.T) {
	dir := t.TempDir()

	fwEpCh := make(chan *Endpoint, 1)
	go func() {
		ep, err := ListenFirmware(dir)
		require.NoError(t, err)
		fwEpCh <- ep
	}()

	time.Sleep(50 * time.Millisecond)
	swEp, err := DialSoftware(dir)
	require.NoError(t, err)
	defer swEp.Close()

	fwEp := <-fwEpCh
	defer fwEp.Close()

	ready, err := packet.NewReady(0)
	require.NoError(t, err)
	require.NoError(t, ready.Encode(fwEp.Out))

	got, err := packet.Decode(swEp.Out)
	require.NoError(t, err)
	require.True(t, packet.IsReady(got))
}
