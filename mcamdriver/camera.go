package mcamdriver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// Exposure programmed while the readout mode is switched. The sensor
	// needs a short stable-exposure interval during the switch.
	CAMERA_CALIBRATION_EXPOSURE_MS = 30.0

	// Settle delay after configuration before the first frame request.
	CAMERA_SETTLE_DELAY = 100 * time.Millisecond

	// The protocol has no acknowledgment, so the power-down exposure
	// write is repeated to compensate for occasionally dropped control
	// transfers.
	CAMERA_POWER_DOWN_WRITES = 3
)

var (
	// ErrDeviceUnusable marks fatal protocol failures. Once a control
	// transfer fails the sensor state is unknown and the session must end.
	ErrDeviceUnusable = errors.New("device unusable")

	// ErrNotWhileStreaming is returned when a configuration operation is
	// attempted while frames are being read. Reconfiguring a streaming
	// sensor is undefined in the captured protocol.
	ErrNotWhileStreaming = errors.New("can not reconfigure while streaming")

	// ErrCameraClosed is returned once the camera has been released.
	ErrCameraClosed = errors.New("camera closed")
)

// Camera translates high-level intents into the register-level vendor
// control sequences of the Moticam 3+ and tracks the configuration
// lifecycle. It owns the transport it was given.
type Camera struct {
	transport Transport
	state     CameraState
	res       Resolution
}

func NewCamera(t Transport) *Camera {
	return &Camera{transport: t, state: CameraStateUninitialized}
}

func (c *Camera) State() CameraState { return c.state }

// Resolution returns the currently configured readout mode.
func (c *Camera) Resolution() Resolution { return c.res }

func (c *Camera) guardConfigure() error {
	switch c.state {
	case CameraStateStreaming:
		return ErrNotWhileStreaming
	case CameraStateClosed:
		return ErrCameraClosed
	}
	return nil
}

// writeWord writes a 16-bit register word, high byte first.
func (c *Camera) writeWord(reg Register, word uint16) error {
	if err := c.transport.SendVendorControl(reg, []byte{byte(word >> 8), byte(word)}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnusable, err)
	}
	return nil
}

func (c *Camera) writeBytes(reg Register, payload []byte) error {
	if err := c.transport.SendVendorControl(reg, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnusable, err)
	}
	return nil
}

// Reset power-cycles the sensor logic.
func (c *Camera) Reset() error {
	if err := c.guardConfigure(); err != nil {
		return err
	}
	if err := c.writeWord(RegReset, 0x0000); err != nil {
		return err
	}
	return c.writeWord(RegReset, 0x0001)
}

// SetGain programs the same encoded gain into all four channel gain
// registers. Partial writes are not rolled back on failure; the sensor is
// fully reprogrammed through the other configuration calls anyway.
func (c *Camera) SetGain(gain float64) error {
	if err := c.guardConfigure(); err != nil {
		return err
	}
	word := GainRegisterValue(gain)
	DEBUGLogger.Printf("Setting gain %.2f (register word %#04x)", gain, word)
	for _, reg := range gainRegisters {
		if err := c.writeWord(reg, word); err != nil {
			return err
		}
	}
	return nil
}

// SetExposure programs the exposure register. 0 ms is the documented
// power-down value.
func (c *Camera) SetExposure(ms float64) error {
	if err := c.guardConfigure(); err != nil {
		return err
	}
	word := ExposureRegisterValue(ms)
	DEBUGLogger.Printf("Setting exposure %.2f ms (register word %#04x)", ms, word)
	return c.writeWord(RegExposure, word)
}

// SetResolution selects one of the three readout modes. Any other pair is a
// programming error, not a runtime condition.
func (c *Camera) SetResolution(res Resolution) error {
	if err := c.guardConfigure(); err != nil {
		return err
	}
	payload, ok := modePayloads[res]
	if !ok {
		return fmt.Errorf("%w: unrecognized resolution %s", ErrDeviceUnusable, res)
	}
	if err := c.writeBytes(RegSensorInit, sensorInitPayload); err != nil {
		return err
	}
	if err := c.writeBytes(RegModeSelect, payload); err != nil {
		return err
	}
	c.res = res
	return nil
}

// Init runs the full configuration sequence. The order is significant: the
// readout mode is switched between the calibration exposure and the real
// one, then the sensor is given time to settle before the first frame.
func (c *Camera) Init(cfg SessionConfig) error {
	if err := c.guardConfigure(); err != nil {
		return err
	}
	INFOLogger.Printf("Configuring sensor: %s, exposure %.1f ms, gain %.2f", cfg.Resolution, cfg.ExposureMS, cfg.Gain)
	if err := c.Reset(); err != nil {
		return err
	}
	if err := c.SetGain(cfg.Gain); err != nil {
		return err
	}
	if err := c.SetExposure(CAMERA_CALIBRATION_EXPOSURE_MS); err != nil {
		return err
	}
	if err := c.SetResolution(cfg.Resolution); err != nil {
		return err
	}
	if err := c.SetExposure(cfg.ExposureMS); err != nil {
		return err
	}
	time.Sleep(CAMERA_SETTLE_DELAY)
	c.state = CameraStateConfigured
	return nil
}

// Uninit powers down the exposure stage and leaves the device powered for
// the transport to close. Safe to call from any state before Close.
func (c *Camera) Uninit() error {
	if c.state == CameraStateClosed {
		return ErrCameraClosed
	}
	if c.state == CameraStateStreaming {
		c.state = CameraStateConfigured
	}
	word := ExposureRegisterValue(0)
	for i := 0; i < CAMERA_POWER_DOWN_WRITES; i++ {
		if err := c.writeWord(RegExposure, word); err != nil {
			return err
		}
	}
	return nil
}

// StartStreaming marks the transition into frame reads. Configuration calls
// fail until StopStreaming or Uninit.
func (c *Camera) StartStreaming() error {
	switch c.state {
	case CameraStateConfigured:
		c.state = CameraStateStreaming
		return nil
	case CameraStateStreaming:
		return ErrNotWhileStreaming
	case CameraStateClosed:
		return ErrCameraClosed
	}
	return fmt.Errorf("%w: streaming requested before configuration", ErrDeviceUnusable)
}

// StopStreaming returns the camera to the configured state.
func (c *Camera) StopStreaming() {
	if c.state == CameraStateStreaming {
		c.state = CameraStateConfigured
	}
}

// ReadBulk exposes the transport's bulk read to the capture pipeline.
func (c *Camera) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	return c.transport.ReadBulk(ctx, buf)
}

// Close powers the sensor down on a best-effort basis and releases the
// transport. It must run on every exit path once the device was acquired;
// its own failures are logged, not escalated, since the process is already
// exiting.
func (c *Camera) Close() error {
	if c.state == CameraStateClosed {
		return nil
	}
	if err := c.Uninit(); err != nil {
		WARNINGLogger.Printf("Power-down failed during close: %v", err)
	}
	c.state = CameraStateClosed
	return c.transport.Close()
}
