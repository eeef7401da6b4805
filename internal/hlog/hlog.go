// Package hlog is the ambient logger shared by both HAMPOD binaries.
//
// It wraps charmbracelet/log the way the original Dire Wolf source wraps
// its console output through textcolor.go's text_color_set/dw_printf pair:
// one severity-colored writer, used everywhere, never bypassed with a bare
// fmt.Println.
package hlog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Process identifies which of the two HAMPOD binaries is logging, so a
// combined log stream (e.g. during development, piping both to one
// terminal) can be told apart at a glance.
type Process string

const (
	Firmware Process = "firmware"
	Software Process = "software"
)

// New builds the process-wide logger. Call once from main.
func New(proc Process, debug bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Prefix:          string(proc),
	})
	if debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}
