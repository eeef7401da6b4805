package radio

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// WatchDevicePath subscribes to udev "tty" subsystem add/remove events
// and delivers a tick on changed whenever a device matching devicePath
// appears or disappears. This lets the reconnect loop react
// immediately to a hotplug event instead of waiting for its next
// ReconnectPeriod tick — the udev dependency the teacher's go.mod
// already names (github.com/jochenvg/go-udev), with no home elsewhere
// in this design, wired here as the device-presence watchdog named in
// SPEC_FULL's domain-stack table.
func WatchDevicePath(ctx context.Context, devicePath string, logger *log.Logger) <-chan struct{} {
	changed := make(chan struct{}, 1)

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("tty"); err != nil {
		logger.Error("radio: udev subsystem filter failed, falling back to poll-only reconnect", "err", err)
		close(changed)
		return changed
	}

	devCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		logger.Error("radio: udev monitor failed, falling back to poll-only reconnect", "err", err)
		close(changed)
		return changed
	}

	go func() {
		defer close(changed)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				logger.Error("radio: udev monitor error", "err", err)
			case dev, ok := <-devCh:
				if !ok {
					return
				}
				if dev.Devnode() == devicePath {
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	return changed
}
