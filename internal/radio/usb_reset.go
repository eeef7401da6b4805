package radio

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// usbResetIoctl is USBDEVFS_RESET from linux/usbdevice_fs.h: an ioctl
// with no argument struct, identified purely by its request number.
const usbResetIoctl = 21780 // _IO('U', 20)

// usbResetByDevicePath resolves the USB bus/device pair backing a
// tty/serial device path through sysfs and issues a bus reset against
// it (spec §4.7: "recovers from a stale enumeration that happens when
// the radio powers on after the cable is plugged in").
func usbResetByDevicePath(devicePath string) error {
	busDevPath, err := resolveUSBDevFSPath(devicePath)
	if err != nil {
		return err
	}

	fd, err := unix.Open(busDevPath, unix.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("radio: open %s for reset: %w", busDevPath, err)
	}
	defer unix.Close(fd)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), usbResetIoctl, 0); errno != 0 {
		return fmt.Errorf("radio: usb reset ioctl on %s: %w", busDevPath, errno)
	}
	return nil
}

// resolveUSBDevFSPath walks sysfs from a tty device name
// (/dev/ttyUSBn) up to the owning USB device's bus/devnum, returning
// the /dev/bus/usb/BBB/DDD path usbdevfs expects.
func resolveUSBDevFSPath(devicePath string) (string, error) {
	devName := filepath.Base(devicePath)
	ttySysPath := filepath.Join("/sys/class/tty", devName, "device")

	usbDevDir, err := walkUpToUSBDevice(ttySysPath)
	if err != nil {
		return "", err
	}

	busNum, err := readSysfsInt(filepath.Join(usbDevDir, "busnum"))
	if err != nil {
		return "", err
	}
	devNum, err := readSysfsInt(filepath.Join(usbDevDir, "devnum"))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("/dev/bus/usb/%03d/%03d", busNum, devNum), nil
}

// walkUpToUSBDevice follows symlinks and ".." traversal from a tty
// device's sysfs node until it finds a directory that itself contains
// busnum/devnum files — the USB device node, as opposed to the
// interface or endpoint nodes closer to the tty.
func walkUpToUSBDevice(start string) (string, error) {
	resolved, err := filepath.EvalSymlinks(start)
	if err != nil {
		return "", fmt.Errorf("radio: resolve %s: %w", start, err)
	}
	dir := resolved
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(filepath.Join(dir, "busnum")); err == nil {
			if _, err := os.Stat(filepath.Join(dir, "devnum")); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("radio: no usb device node found above %s", start)
}

func readSysfsInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("radio: read %s: %w", path, err)
	}
	var n int
	if _, err := fmt.Sscanf(string(b), "%d", &n); err != nil {
		return 0, fmt.Errorf("radio: parse %s: %w", path, err)
	}
	return n, nil
}
