package radio

import (
	"fmt"

	hamlib "github.com/xylo04/goHamlib"
)

// hamlibRig adapts a github.com/xylo04/goHamlib rig handle to the Rig
// interface. This is the one place actual Hamlib bindings are called;
// everything else in this package talks to the Rig interface so it can
// be driven by a fake in tests.
type hamlibRig struct {
	rig *hamlib.Rig
}

// OpenHamlibRig is the production OpenFunc, wired to the running
// Config's model/device/baud.
func OpenHamlibRig(model int, devicePath string, baud int) (Rig, error) {
	rig := hamlib.NewRig(model)
	rig.SetConf("rig_pathname", devicePath)
	if baud > 0 {
		rig.SetConf("serial_speed", fmt.Sprintf("%d", baud))
	}
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("hamlib: open model %d at %s: %w", model, devicePath, err)
	}
	return &hamlibRig{rig: rig}, nil
}

func (h *hamlibRig) Close() error {
	return h.rig.Close()
}

func toHamlibVFO(v VFO) hamlib.VFO {
	switch v {
	case VFOA:
		return hamlib.VFOA
	case VFOB:
		return hamlib.VFOB
	default:
		return hamlib.VFOCurrent
	}
}

func fromHamlibVFO(v hamlib.VFO) VFO {
	switch v {
	case hamlib.VFOA:
		return VFOA
	case hamlib.VFOB:
		return VFOB
	default:
		return VFOCurrent
	}
}

func (h *hamlibRig) GetFreqHz(vfo VFO) (int64, error) {
	freq, err := h.rig.GetFreq(toHamlibVFO(vfo))
	if err != nil {
		return 0, err
	}
	return int64(freq), nil
}

func (h *hamlibRig) SetFreqHz(vfo VFO, hz int64) error {
	return h.rig.SetFreq(toHamlibVFO(vfo), float64(hz))
}

func (h *hamlibRig) GetMode() (Mode, error) {
	m, _, err := h.rig.GetMode(hamlib.VFOCurrent)
	if err != nil {
		return ModeUnavailable, err
	}
	return Mode(m.String()), nil
}

func (h *hamlibRig) SetMode(m Mode) error {
	hm, ok := hamlib.ModeFromString(string(m))
	if !ok {
		return fmt.Errorf("hamlib: unsupported mode %q", m)
	}
	return h.rig.SetMode(hamlib.VFOCurrent, hm, 0)
}

func (h *hamlibRig) GetVFO() (VFO, error) {
	v, err := h.rig.GetVFO()
	if err != nil {
		return VFOCurrent, err
	}
	return fromHamlibVFO(v), nil
}

func (h *hamlibRig) SetVFO(v VFO) error {
	return h.rig.SetVFO(toHamlibVFO(v))
}

func (h *hamlibRig) GetLevels() (Levels, error) {
	get := func(level hamlib.Level) int {
		v, err := h.rig.GetLevel(hamlib.VFOCurrent, level)
		if err != nil {
			return UnavailableInt
		}
		return int(v)
	}
	agc := AGCUnavailable
	if v, err := h.rig.GetLevel(hamlib.VFOCurrent, hamlib.LevelAGC); err == nil {
		switch int(v) {
		case 0:
			agc = AGCFast
		case 1:
			agc = AGCMedium
		case 2:
			agc = AGCSlow
		}
	}
	return Levels{
		PowerPercent:       get(hamlib.LevelRFPower),
		MicGain:            get(hamlib.LevelMicGain),
		NBLevel:            get(hamlib.LevelNB),
		NRLevel:            get(hamlib.LevelNR),
		SMeter:             get(hamlib.LevelStrength),
		Preamp:             get(hamlib.LevelPreamp),
		Attenuation:        get(hamlib.LevelAtt),
		CompressionPercent: get(hamlib.LevelCompression),
		AGCSpeed:           agc,
	}, nil
}

func (h *hamlibRig) SetLevel(name string, value int) error {
	level, ok := hamlib.LevelFromString(name)
	if !ok {
		return fmt.Errorf("hamlib: unsupported level %q", name)
	}
	return h.rig.SetLevel(hamlib.VFOCurrent, level, float32(value))
}
