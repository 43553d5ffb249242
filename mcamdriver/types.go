package mcamdriver

import "fmt"

// Resolution is one of the three sensor readout modes supported by the
// Moticam 3+. Width and height are never chosen independently.
type Resolution struct {
	Width  int
	Height int
}

var (
	Resolution512x384   = Resolution{512, 384}
	Resolution1024x768  = Resolution{1024, 768}
	Resolution2048x1536 = Resolution{2048, 1536}
)

// SupportedResolutions lists the readout modes in ascending size order.
var SupportedResolutions = []Resolution{
	Resolution512x384,
	Resolution1024x768,
	Resolution2048x1536,
}

// ResolutionForWidth maps a user-facing width value to the full pair.
func ResolutionForWidth(width int) (Resolution, error) {
	for _, res := range SupportedResolutions {
		if res.Width == width {
			return res, nil
		}
	}
	return Resolution{}, fmt.Errorf("unsupported width %d: must be 512, 1024 or 2048", width)
}

// FrameSize is the raw mosaic byte count of one frame, one byte per sensor
// pixel.
func (r Resolution) FrameSize() int {
	return r.Width * r.Height
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// CaptureMode selects what the capture loop does with each good frame.
// Raw output combined with live view is not a representable state.
type CaptureMode int

const (
	// ModeColor demosaics each frame and hands it to the sink, for a
	// bounded number of frames.
	ModeColor CaptureMode = iota
	// ModeRaw writes the raw mosaic bytes verbatim, bounded.
	ModeRaw
	// ModeLive demosaics each frame for a live view, unbounded until
	// cancelled.
	ModeLive
)

func (m CaptureMode) String() string {
	switch m {
	case ModeColor:
		return "color"
	case ModeRaw:
		return "raw"
	case ModeLive:
		return "live"
	}
	return fmt.Sprintf("CaptureMode(%d)", int(m))
}

const (
	MIN_EXPOSURE_MS = 1.0
	MAX_EXPOSURE_MS = 5000.0
	MIN_GAIN        = 0.33
	MAX_GAIN        = 42.66
)

// SessionConfig carries the validated capture parameters for one session.
// It is immutable once built.
type SessionConfig struct {
	Resolution Resolution
	ExposureMS float64
	Gain       float64
	// Count is the number of good frames to capture. Ignored in live mode.
	Count int
	Mode  CaptureMode
}

// Validate checks the numeric ranges and the resolution pair. The core
// trusts a config that passed here; main runs it before any device I/O.
func (c SessionConfig) Validate() error {
	res, err := ResolutionForWidth(c.Resolution.Width)
	if err != nil {
		return err
	}
	if res.Height != c.Resolution.Height {
		return fmt.Errorf("unsupported resolution %s", c.Resolution)
	}
	if c.ExposureMS < MIN_EXPOSURE_MS || c.ExposureMS > MAX_EXPOSURE_MS {
		return fmt.Errorf("exposure %.2f ms out of range [%v, %v]", c.ExposureMS, MIN_EXPOSURE_MS, MAX_EXPOSURE_MS)
	}
	if c.Gain < MIN_GAIN || c.Gain > MAX_GAIN {
		return fmt.Errorf("gain %.2f out of range [%v, %v]", c.Gain, MIN_GAIN, MAX_GAIN)
	}
	if c.Mode != ModeLive && c.Count <= 0 {
		return fmt.Errorf("frame count %d must be positive outside live mode", c.Count)
	}
	return nil
}

// CameraState tracks the protocol controller lifecycle.
type CameraState byte

const (
	CameraStateUninitialized CameraState = iota
	CameraStateConfigured
	CameraStateStreaming
	CameraStateClosed
)

func (s CameraState) String() string {
	switch s {
	case CameraStateUninitialized:
		return "uninitialized"
	case CameraStateConfigured:
		return "configured"
	case CameraStateStreaming:
		return "streaming"
	case CameraStateClosed:
		return "closed"
	}
	return fmt.Sprintf("CameraState(%d)", byte(s))
}

// CaptureStatusMessage is published over MQTT while a session runs.
type CaptureStatusMessage struct {
	State      string  `json:"state"`
	Resolution string  `json:"resolution"`
	ExposureMS float64 `json:"exposure_ms"`
	Gain       float64 `json:"gain"`
	Captured   int     `json:"captured"`
	Dropped    int     `json:"dropped"`
}
