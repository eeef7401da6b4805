// Package config implements the HAMPOD configuration store: load/save
// of the INI-style file described in spec §6, in-memory clamping of
// out-of-range values, and a 10-deep undo ring of full snapshots.
//
// The line-oriented scan (bufio.Scanner, leading-whitespace trim,
// comment stripping) follows the same shape as the teacher's
// src/config.go reader, generalized from Dire Wolf's many audio/radio
// channel sections down to HAMPOD's three: [radio], [audio] and
// [keypad].
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeypadLayout selects the digit-entry convention Frequency Mode uses.
type KeypadLayout string

const (
	LayoutCalculator KeypadLayout = "calculator"
	LayoutPhone      KeypadLayout = "phone"
)

// Config is the full set of persisted settings (spec §3 Config).
// The yaml struct tags drive DumpYAML's output; the INI loader/saver
// below maps each section/key to its field by hand.
type Config struct {
	RadioModel      int          `yaml:"radio_model"`
	RadioDevicePath string       `yaml:"radio_device_path"`
	RadioBaud       int          `yaml:"radio_baud"`
	OutputVolume    int          `yaml:"output_volume"`
	SpeechSpeed     float64      `yaml:"speech_speed"`
	KeyBeepEnabled  bool         `yaml:"key_beep_enabled"`
	KeypadLayout    KeypadLayout `yaml:"keypad_layout"`
}

// Default returns the built-in defaults used when the config file is
// absent — spec §7 classifies a missing file as Config-absent, not an
// error.
func Default() Config {
	return Config{
		RadioModel:      0,
		RadioDevicePath: "/dev/ttyUSB0",
		RadioBaud:       9600,
		OutputVolume:    70,
		SpeechSpeed:     1.0,
		KeyBeepEnabled:  true,
		KeypadLayout:    LayoutCalculator,
	}
}

// clamp enforces the range invariants from spec §3: volume to
// [0,100], speech_speed to [0.5, 2.0].
func (c *Config) clamp() {
	if c.OutputVolume < 0 {
		c.OutputVolume = 0
	}
	if c.OutputVolume > 100 {
		c.OutputVolume = 100
	}
	if c.SpeechSpeed < 0.5 {
		c.SpeechSpeed = 0.5
	}
	if c.SpeechSpeed > 2.0 {
		c.SpeechSpeed = 2.0
	}
}

// Load reads an INI-style config file. A missing file yields the
// built-in defaults rather than an error (spec §7, Config-absent).
func Load(path string) (Config, error) {
	c := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := parseInto(f, &c); err != nil {
		return c, err
	}
	c.clamp()
	return c, nil
}

func parseInto(r io.Reader, c *Config) error {
	section := ""
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return fmt.Errorf("config: line %d: expected key=value, got %q", lineNo, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		val := strings.TrimSpace(line[eq+1:])
		if err := applyKey(c, section, key, val); err != nil {
			return fmt.Errorf("config: line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func applyKey(c *Config, section, key, val string) error {
	switch section {
	case "radio":
		switch key {
		case "model":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("radio.model: %w", err)
			}
			c.RadioModel = n
		case "device":
			c.RadioDevicePath = val
		case "baud":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("radio.baud: %w", err)
			}
			c.RadioBaud = n
		default:
			return fmt.Errorf("unknown key radio.%s", key)
		}
	case "audio":
		switch key {
		case "volume":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("audio.volume: %w", err)
			}
			c.OutputVolume = n
		case "speech_speed":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("audio.speech_speed: %w", err)
			}
			c.SpeechSpeed = f
		case "key_beep":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("audio.key_beep: %w", err)
			}
			c.KeyBeepEnabled = n != 0
		default:
			return fmt.Errorf("unknown key audio.%s", key)
		}
	case "keypad":
		switch key {
		case "layout":
			switch KeypadLayout(val) {
			case LayoutCalculator, LayoutPhone:
				c.KeypadLayout = KeypadLayout(val)
			default:
				return fmt.Errorf("keypad.layout: unsupported value %q", val)
			}
		default:
			return fmt.Errorf("unknown key keypad.%s", key)
		}
	default:
		return fmt.Errorf("unknown section [%s]", section)
	}
	return nil
}

// Save writes c back to path in the same INI format Load reads.
func Save(path string, c Config) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[radio]\n")
	fmt.Fprintf(&b, "model = %d\n", c.RadioModel)
	fmt.Fprintf(&b, "device = %s\n", c.RadioDevicePath)
	fmt.Fprintf(&b, "baud = %d\n", c.RadioBaud)
	fmt.Fprintf(&b, "\n[audio]\n")
	fmt.Fprintf(&b, "volume = %d\n", c.OutputVolume)
	fmt.Fprintf(&b, "speech_speed = %.2f\n", c.SpeechSpeed)
	if c.KeyBeepEnabled {
		fmt.Fprintf(&b, "key_beep = 1\n")
	} else {
		fmt.Fprintf(&b, "key_beep = 0\n")
	}
	fmt.Fprintf(&b, "\n[keypad]\n")
	fmt.Fprintf(&b, "layout = %s\n", c.KeypadLayout)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// UndoDepth is the maximum number of prior snapshots retained.
const UndoDepth = 10

// Store is the in-memory, mutex-free (single-owner) snapshot of the
// active config plus its undo ring. It is owned by one goroutine (the
// software main loop, whose key-event dispatcher reads it); no mode
// holds a reference to it.
type Store struct {
	path    string
	current Config
	ring    []Config // most-recent last; capped at UndoDepth
}

// NewStore loads path (or defaults, if absent) into a fresh Store.
func NewStore(path string) (*Store, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, current: c}, nil
}

// Current returns a copy of the active configuration.
func (s *Store) Current() Config {
	return s.current
}

// Set replaces the active configuration, clamping out-of-range fields,
// pushes the previous value onto the undo ring (discarding the oldest
// entry once UndoDepth is exceeded), and writes the new value through
// to disk immediately (spec §3: "changes are written through to the
// file immediately").
func (s *Store) Set(next Config) error {
	next.clamp()

	s.ring = append(s.ring, s.current)
	if len(s.ring) > UndoDepth {
		s.ring = s.ring[len(s.ring)-UndoDepth:]
	}

	s.current = next
	return Save(s.path, s.current)
}

// Undo restores the most recent snapshot from the ring, if any. It
// reports false if the ring is empty.
func (s *Store) Undo() (Config, bool, error) {
	if len(s.ring) == 0 {
		return s.current, false, nil
	}
	prev := s.ring[len(s.ring)-1]
	s.ring = s.ring[:len(s.ring)-1]
	s.current = prev
	if err := Save(s.path, s.current); err != nil {
		return s.current, true, err
	}
	return s.current, true, nil
}

// UndoDepthUsed reports how many snapshots are currently retained, for
// tests and diagnostics.
func (s *Store) UndoDepthUsed() int {
	return len(s.ring)
}

// DumpYAML renders the active configuration as YAML, used by the
// --dump-config diagnostic flag (SPEC_FULL §4).
func (s *Store) DumpYAML() (string, error) {
	b, err := yaml.Marshal(s.current)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
