// Package packet implements the HAMPOD wire packet: the binary frame
// exchanged over the Firmware/Software named pipes.
//
// Layout, low-endian native, header-field order type/data_len/tag/data:
//
//	+---------+----------+------+---------------+
//	| type    | data_len | tag  | data          |
//	| (4 B)   | (2 B)    | (2 B)| (data_len B)  |
//	+---------+----------+------+---------------+
package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the four-byte wire discriminator.
type Type uint32

const (
	Keypad Type = 0
	Audio  Type = 1
	Serial Type = 2
	Config Type = 3
)

func (t Type) String() string {
	switch t {
	case Keypad:
		return "KEYPAD"
	case Audio:
		return "AUDIO"
	case Serial:
		return "SERIAL"
	case Config:
		return "CONFIG"
	default:
		return fmt.Sprintf("TYPE(%d)", uint32(t))
	}
}

// MaxData is the largest payload a single packet may carry. A receiver
// that sees a header claiming more than this treats the stream as
// corrupt and fails fatally — see ErrOversize.
const MaxData = 256

// HeaderLen is the number of bytes preceding the payload: 4 (type) + 2
// (data_len) + 2 (tag).
const HeaderLen = 4 + 2 + 2

// ErrOversize is returned when a decoded header claims data_len > MaxData.
var ErrOversize = fmt.Errorf("packet: data_len exceeds %d bytes", MaxData)

// ErrShortRead is returned when fewer bytes than required were read
// before the source signalled EOF or otherwise stopped.
var ErrShortRead = fmt.Errorf("packet: short read")

// Packet is the decoded form of one frame.
type Packet struct {
	Type Type
	Tag  uint16
	Data []byte
}

// New builds a packet, validating that data fits within MaxData.
func New(t Type, tag uint16, data []byte) (Packet, error) {
	if len(data) > MaxData {
		return Packet{}, ErrOversize
	}
	return Packet{Type: t, Tag: tag, Data: data}, nil
}

// Encode writes the packet's wire representation to w.
func (p Packet) Encode(w io.Writer) error {
	if len(p.Data) > MaxData {
		return ErrOversize
	}
	var hdr [HeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(p.Type))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(p.Data)))
	binary.LittleEndian.PutUint16(hdr[6:8], p.Tag)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(p.Data) == 0 {
		return nil
	}
	_, err := w.Write(p.Data)
	return err
}

// Decode reads exactly one packet from r: the fixed header, then
// data_len bytes of payload. A short read anywhere is fatal, per the
// transport contract in spec §4.1.
func Decode(r io.Reader) (Packet, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Packet{}, io.EOF
		}
		return Packet{}, fmt.Errorf("%w: header: %v", ErrShortRead, err)
	}

	t := Type(binary.LittleEndian.Uint32(hdr[0:4]))
	dataLen := binary.LittleEndian.Uint16(hdr[4:6])
	tag := binary.LittleEndian.Uint16(hdr[6:8])

	if dataLen > MaxData {
		return Packet{}, ErrOversize
	}

	data := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return Packet{}, fmt.Errorf("%w: payload: %v", ErrShortRead, err)
		}
	}

	return Packet{Type: t, Tag: tag, Data: data}, nil
}

// nulTerminated appends arg and a trailing NUL to a sub-type selector
// byte, the shape every textual audio sub-command uses.
func nulTerminated(selector byte, arg string) []byte {
	buf := make([]byte, 0, 1+len(arg)+1)
	buf = append(buf, selector)
	buf = append(buf, arg...)
	buf = append(buf, 0)
	return buf
}

// Audio sub-type selectors (first byte of an AUDIO packet's data).
const (
	AudioSpeak     = 'd'
	AudioPlayWAV   = 'p'
	AudioSpell     = 's'
	AudioBeep      = 'b'
	AudioInfoQuery = 'i'
)

// Beep kinds, the argument byte following AudioBeep.
const (
	BeepKeypress = 'k'
	BeepHold     = 'h'
	BeepError    = 'e'
)

// NewSpeakAudio builds an AUDIO packet requesting TTS of text.
func NewSpeakAudio(tag uint16, text string) (Packet, error) {
	return New(Audio, tag, nulTerminated(AudioSpeak, text))
}

// NewPlayWAVAudio builds an AUDIO packet requesting playback of a WAV
// file at path.
func NewPlayWAVAudio(tag uint16, path string) (Packet, error) {
	return New(Audio, tag, nulTerminated(AudioPlayWAV, path))
}

// NewSpellAudio builds an AUDIO packet requesting characters be spelled
// out individually.
func NewSpellAudio(tag uint16, chars string) (Packet, error) {
	return New(Audio, tag, nulTerminated(AudioSpell, chars))
}

// NewBeepAudio builds an AUDIO packet requesting a cached beep. kind
// must be one of BeepKeypress, BeepHold, BeepError.
func NewBeepAudio(tag uint16, kind byte) (Packet, error) {
	return New(Audio, tag, []byte{AudioBeep, kind})
}

// NewInfoQueryAudio builds an AUDIO packet requesting device info.
func NewInfoQueryAudio(tag uint16) (Packet, error) {
	return New(Audio, tag, []byte{AudioInfoQuery})
}

// KeypadRead is the single KEYPAD request selector (spec §4.5: "a 'r'
// KEYPAD request yields the current value in a KEYPAD response
// packet").
const KeypadRead = 'r'

// NewKeypadReadRequest builds the KEYPAD 'r' poll request.
func NewKeypadReadRequest(tag uint16) (Packet, error) {
	return New(Keypad, tag, []byte{KeypadRead})
}

// ParseKeypadReply extracts the held symbol from a KEYPAD response
// packet's payload.
func ParseKeypadReply(data []byte) (byte, error) {
	if len(data) != 1 {
		return 0, fmt.Errorf("packet: keypad reply must carry exactly one byte, got %d", len(data))
	}
	return data[0], nil
}

// NewKeypadReply builds the KEYPAD response packet carrying the
// currently held symbol (Firmware side).
func NewKeypadReply(tag uint16, symbol byte) (Packet, error) {
	return New(Keypad, tag, []byte{symbol})
}

// NewAudioInfoReply builds the AUDIO reply to an AudioInfoQuery request,
// carrying the PCM device's card number.
func NewAudioInfoReply(tag uint16, cardNumber int) (Packet, error) {
	return New(Audio, tag, nulTerminated(AudioInfoQuery, fmt.Sprintf("%d", cardNumber)))
}

// ParseAudioInfoReply extracts the card number from an AudioInfoQuery
// reply payload.
func ParseAudioInfoReply(data []byte) (int, error) {
	selector, arg, err := parseSelectorAndArg(data)
	if err != nil {
		return 0, err
	}
	if selector != AudioInfoQuery {
		return 0, fmt.Errorf("packet: expected info reply, got selector %q", selector)
	}
	var n int
	if _, err := fmt.Sscanf(arg, "%d", &n); err != nil {
		return 0, fmt.Errorf("packet: parse card number %q: %w", arg, err)
	}
	return n, nil
}

func parseSelectorAndArg(data []byte) (selector byte, arg string, err error) {
	if len(data) == 0 {
		return 0, "", fmt.Errorf("packet: empty payload")
	}
	selector = data[0]
	rest := data[1:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return 0, "", fmt.Errorf("packet: argument not NUL-terminated")
	}
	return selector, string(rest[:nul]), nil
}

// Config sub-type selectors pushed from Software to Firmware (first
// byte of a non-ready CONFIG packet's data). These carry the subset of
// the configuration store that actually lives on the Firmware side of
// the process split: output gain and TTS speech rate. key_beep_enabled
// and the radio/keypad-layout settings never leave Software — nothing
// on the Firmware side consults them.
const (
	ConfigSetVolume = 'v'
	ConfigSetSpeed  = 's'
)

// NewConfigSetVolume builds a CONFIG packet pushing a new output volume
// (0-100) to Firmware.
func NewConfigSetVolume(tag uint16, percent int) (Packet, error) {
	return New(Config, tag, nulTerminated(ConfigSetVolume, fmt.Sprintf("%d", percent)))
}

// NewConfigSetSpeed builds a CONFIG packet pushing a new TTS speech
// speed multiplier to Firmware.
func NewConfigSetSpeed(tag uint16, speed float64) (Packet, error) {
	return New(Config, tag, nulTerminated(ConfigSetSpeed, fmt.Sprintf("%.2f", speed)))
}

// ParseConfig splits a non-ready CONFIG packet's payload into its
// sub-type selector and argument.
func ParseConfig(data []byte) (selector byte, arg string, err error) {
	return parseSelectorAndArg(data)
}

// ParseAudio splits an AUDIO packet's payload into its sub-type
// selector and NUL-terminated argument (empty for AudioInfoQuery).
func ParseAudio(data []byte) (selector byte, arg string, err error) {
	if len(data) == 0 {
		return 0, "", fmt.Errorf("packet: empty audio payload")
	}
	selector = data[0]
	rest := data[1:]
	if selector == AudioInfoQuery {
		return selector, "", nil
	}
	if selector == AudioBeep {
		if len(rest) < 1 {
			return 0, "", fmt.Errorf("packet: beep payload missing kind byte")
		}
		return selector, string(rest[0]), nil
	}
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return 0, "", fmt.Errorf("packet: audio argument not NUL-terminated")
	}
	return selector, string(rest[:nul]), nil
}

// Ready is the sentinel CONFIG payload Firmware sends exactly once,
// synchronously, after init completes.
const Ready = "R"

// IsReady reports whether p is the Firmware ready signal.
func IsReady(p Packet) bool {
	return p.Type == Config && string(p.Data) == Ready
}

// NewReady builds the ready-signal CONFIG packet.
func NewReady(tag uint16) (Packet, error) {
	return New(Config, tag, []byte(Ready))
}
