package mcamdriver

// Vendor protocol constants for the Moticam 3+ sensor, reverse-engineered
// from USB captures. All sensor state is driven through vendor control
// transfers with bRequest CAMERA_VENDOR_REQUEST and the register in wValue.

const (
	CAMERA_ID_VENDOR  = 0x232f
	CAMERA_ID_PRODUCT = 0x0100

	CAMERA_VENDOR_REQUEST = 240

	// Bulk IN endpoint carrying raw frames, and the transfer granularity
	// of the device-side DMA engine.
	CAMERA_BULK_ENDPOINT   = 0x83
	CAMERA_BULK_CHUNK_SIZE = 16384
)

// Register identifies a sensor control register addressed via wValue.
type Register uint16

const (
	RegReset      Register = 0xba00
	RegSensorInit Register = 0xba01
	RegExposure   Register = 0xba09
	RegModeSelect Register = 0xba22

	// Per-channel analog gain stages. The driver always programs all four
	// with the same value; the sensor gets its white balance from the
	// demosaic stage downstream, not from per-channel gain.
	RegGainGreen1 Register = 0xba2d
	RegGainBlue   Register = 0xba2b
	RegGainGreen2 Register = 0xba2e
	RegGainRed    Register = 0xba2c
)

// gainRegisters in programming order. The order is part of the captured
// protocol and is preserved as-is.
var gainRegisters = []Register{RegGainGreen1, RegGainBlue, RegGainGreen2, RegGainRed}

// sensorInitPayload is written to RegSensorInit before a mode select.
var sensorInitPayload = []byte{0x00, 0x14, 0x00, 0x20, 0x05, 0xff, 0x07, 0xff}

// modePayloads maps each supported resolution to its RegModeSelect payload.
var modePayloads = map[Resolution][]byte{
	Resolution512x384:   {0x00, 0x03, 0x00, 0x03},
	Resolution1024x768:  {0x00, 0x11, 0x00, 0x11},
	Resolution2048x1536: {0x00, 0x00, 0x00, 0x00},
}

// Gain register encoding, three piecewise-linear bands. Values at a band
// seam (e.g. exactly 1.34) deliberately take the lower band's formula; the
// hardware calibration intent behind the seams is undocumented, so the
// captured behaviour is kept.
type gainBand struct {
	GainMin, GainMax float64
	RegMin, RegMax   int
	// SecondStage places the register value in the high byte with the low
	// byte fixed to 0x60, engaging the second multiplier stage.
	SecondStage bool
}

var gainBands = []gainBand{
	{GainMin: 0.33, GainMax: 1.33, RegMin: 0x08, RegMax: 0x20},
	{GainMin: 1.42, GainMax: 2.67, RegMin: 0x51, RegMax: 0x60},
	{GainMin: 3, GainMax: 42.67, RegMin: 0x01, RegMax: 0x78, SecondStage: true},
}

// gainBandFor selects the band by the upper gain cut-offs 1.34 and 2.68.
func gainBandFor(gain float64) gainBand {
	switch {
	case gain <= 1.34:
		return gainBands[0]
	case gain <= 2.68:
		return gainBands[1]
	default:
		return gainBands[2]
	}
}

// GainRegisterValue encodes a user-facing gain multiplier into the 16-bit
// register word. The linear map result is clamped to the band's register
// range to absorb floating-point overshoot at the band edges.
func GainRegisterValue(gain float64) uint16 {
	band := gainBandFor(gain)
	x := int((gain-band.GainMin)/(band.GainMax-band.GainMin)*float64(band.RegMax-band.RegMin)) + band.RegMin
	if x < band.RegMin {
		x = band.RegMin
	} else if x > band.RegMax {
		x = band.RegMax
	}
	if band.SecondStage {
		x = x<<8 | 0x60
	}
	return uint16(x)
}

const (
	EXPOSURE_REGISTER_SCALE = 12.82
	EXPOSURE_REGISTER_MIN   = 0x000c
	EXPOSURE_REGISTER_MAX   = 0xffff
)

// ExposureRegisterValue encodes an exposure in milliseconds. Zero is the
// documented power-down value and clamps to the register floor.
func ExposureRegisterValue(ms float64) uint16 {
	x := int(ms * EXPOSURE_REGISTER_SCALE)
	if x < EXPOSURE_REGISTER_MIN {
		x = EXPOSURE_REGISTER_MIN
	} else if x > EXPOSURE_REGISTER_MAX {
		x = EXPOSURE_REGISTER_MAX
	}
	return uint16(x)
}
