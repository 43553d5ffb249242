package mcamdriver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// Sink consumes the output of the capture pipeline. The pipeline calls
// exactly one method per successful frame, selected by the capture mode,
// and never looks at how the sink persists or displays the data.
type Sink interface {
	ConsumeRaw(raw []byte) error
	ConsumeColor(width, height int, rgba []byte) error
	PresentLive(width, height int, rgba []byte) error
	Close() error
}

// rgbaToBGRMat wraps a reconstructed RGBA buffer in a Mat and converts it
// to the BGR ordering OpenCV sinks expect.
func rgbaToBGRMat(width, height int, rgba []byte) (gocv.Mat, error) {
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, rgba)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("can not wrap color frame: %w", err)
	}
	defer mat.Close()
	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// RawFileSink appends raw mosaic frames verbatim to a single file: a flat
// concatenation of width*height byte buffers in capture order, no header
// or framing. Readers must know the resolution out-of-band.
type RawFileSink struct {
	f *os.File
}

func NewRawFileSink(path string) (*RawFileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("can not open output file %q: %w", path, err)
	}
	return &RawFileSink{f: f}, nil
}

func (s *RawFileSink) ConsumeRaw(raw []byte) error {
	if _, err := s.f.Write(raw); err != nil {
		return fmt.Errorf("can not write raw frame: %w", err)
	}
	return nil
}

func (s *RawFileSink) ConsumeColor(width, height int, rgba []byte) error {
	return errors.New("raw file sink can not consume color frames")
}

func (s *RawFileSink) PresentLive(width, height int, rgba []byte) error {
	return errors.New("raw file sink can not present live frames")
}

func (s *RawFileSink) Close() error {
	return s.f.Close()
}

// PNGSink writes one numbered PNG file per color frame.
type PNGSink struct {
	prefix string
	index  int
}

func NewPNGSink(prefix string) *PNGSink {
	return &PNGSink{prefix: prefix}
}

func (s *PNGSink) ConsumeRaw(raw []byte) error {
	return errors.New("png sink can not consume raw frames")
}

func (s *PNGSink) ConsumeColor(width, height int, rgba []byte) error {
	bgr, err := rgbaToBGRMat(width, height, rgba)
	if err != nil {
		return err
	}
	defer bgr.Close()
	name := fmt.Sprintf("%s-%04d.png", s.prefix, s.index)
	if ok := gocv.IMWrite(name, bgr); !ok {
		return fmt.Errorf("can not write %q", name)
	}
	s.index++
	return nil
}

func (s *PNGSink) PresentLive(width, height int, rgba []byte) error {
	return errors.New("png sink can not present live frames")
}

func (s *PNGSink) Close() error { return nil }

// WindowSink shows color frames in an OpenCV window. Pressing ESC or
// closing the window requests cooperative cancellation of the capture loop
// through the cancel function it was built with.
type WindowSink struct {
	win    *gocv.Window
	cancel context.CancelFunc
}

func NewWindowSink(title string, cancel context.CancelFunc) *WindowSink {
	return &WindowSink{win: gocv.NewWindow(title), cancel: cancel}
}

func (s *WindowSink) ConsumeRaw(raw []byte) error {
	return errors.New("window sink can not consume raw frames")
}

func (s *WindowSink) ConsumeColor(width, height int, rgba []byte) error {
	return errors.New("window sink can not consume bounded color frames")
}

func (s *WindowSink) PresentLive(width, height int, rgba []byte) error {
	bgr, err := rgbaToBGRMat(width, height, rgba)
	if err != nil {
		return err
	}
	defer bgr.Close()
	s.win.IMShow(bgr)
	key := s.win.WaitKey(1)
	if key == 27 || !s.win.IsOpen() {
		INFOLogger.Println("Live view closed by operator")
		s.cancel()
	}
	return nil
}

func (s *WindowSink) Close() error {
	return s.win.Close()
}

// Sinks fans every frame out to each sink in order. The first error wins.
type Sinks []Sink

func (ss Sinks) ConsumeRaw(raw []byte) error {
	for _, s := range ss {
		if err := s.ConsumeRaw(raw); err != nil {
			return err
		}
	}
	return nil
}

func (ss Sinks) ConsumeColor(width, height int, rgba []byte) error {
	for _, s := range ss {
		if err := s.ConsumeColor(width, height, rgba); err != nil {
			return err
		}
	}
	return nil
}

func (ss Sinks) PresentLive(width, height int, rgba []byte) error {
	for _, s := range ss {
		if err := s.PresentLive(width, height, rgba); err != nil {
			return err
		}
	}
	return nil
}

func (ss Sinks) Close() error {
	var firstErr error
	for _, s := range ss {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
