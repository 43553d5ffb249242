package mcamdriver

import (
	"context"
	"errors"
	"fmt"
)

// FrameSizeError reports a bulk read that produced the wrong number of
// bytes. It is the one recoverable error class in the pipeline: the frame
// is dropped and the read retried, never escalated.
type FrameSizeError struct {
	Transferred int
	Expected    int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("bad image size (%d, expected %d)", e.Transferred, e.Expected)
}

// BulkBufferSize returns the bulk transfer size for one frame: the smallest
// multiple of the device chunk size strictly greater than frameSize. The
// deliberate over-read by one chunk drains the zero-length marker packet
// the device sends after the payload.
func BulkBufferSize(frameSize int) int {
	return (frameSize + CAMERA_BULK_CHUNK_SIZE) / CAMERA_BULK_CHUNK_SIZE * CAMERA_BULK_CHUNK_SIZE
}

// CapturePipeline pulls raw frames from a configured camera, validates
// them, reconstructs color when the mode asks for it, and hands the result
// to the sink. Frame buffers are allocated once and reused across
// iterations.
type CapturePipeline struct {
	cam  *Camera
	cfg  SessionConfig
	sink Sink

	bulk  []byte
	color []byte

	captured int
	dropped  int
}

func NewCapturePipeline(cam *Camera, cfg SessionConfig, sink Sink) *CapturePipeline {
	p := &CapturePipeline{
		cam:  cam,
		cfg:  cfg,
		sink: sink,
		bulk: make([]byte, BulkBufferSize(cfg.Resolution.FrameSize())),
	}
	if cfg.Mode != ModeRaw {
		p.color = make([]byte, cfg.Resolution.FrameSize()*4)
	}
	return p
}

// Captured reports the number of good frames delivered to the sink.
func (p *CapturePipeline) Captured() int { return p.captured }

// Dropped reports the number of frames discarded for a bad transfer size.
func (p *CapturePipeline) Dropped() int { return p.dropped }

// ReadFrame issues exactly one bulk transfer and returns the raw mosaic
// bytes. A size mismatch comes back as *FrameSizeError; anything else is
// fatal to the session.
func (p *CapturePipeline) ReadFrame(ctx context.Context) ([]byte, error) {
	frameSize := p.cfg.Resolution.FrameSize()
	n, err := p.cam.ReadBulk(ctx, p.bulk)
	if err != nil {
		return nil, err
	}
	if n != frameSize {
		return nil, &FrameSizeError{Transferred: n, Expected: frameSize}
	}
	return p.bulk[:frameSize], nil
}

// Run executes the capture loop until the frame target is met (bounded
// modes) or ctx is cancelled (live mode). Cancellation is observed between
// iterations, before the next blocking read is started.
func (p *CapturePipeline) Run(ctx context.Context) error {
	if err := p.cam.StartStreaming(); err != nil {
		return err
	}
	defer p.cam.StopStreaming()

	res := p.cfg.Resolution
	for p.cfg.Mode == ModeLive || p.captured < p.cfg.Count {
		if err := ctx.Err(); err != nil {
			INFOLogger.Printf("Capture cancelled after %d frames (%d dropped)", p.captured, p.dropped)
			return nil
		}

		raw, err := p.ReadFrame(ctx)
		if err != nil {
			var sizeErr *FrameSizeError
			if errors.As(err, &sizeErr) {
				// Dropped frames are common and never abort a session;
				// retry immediately, without counting the frame.
				p.dropped++
				WARNINGLogger.Printf("%v, drop", sizeErr)
				continue
			}
			if ctx.Err() != nil {
				// The read was torn down by cancellation, not the device.
				INFOLogger.Printf("Capture cancelled after %d frames (%d dropped)", p.captured, p.dropped)
				return nil
			}
			return fmt.Errorf("%w: %v", ErrDeviceUnusable, err)
		}

		switch p.cfg.Mode {
		case ModeRaw:
			err = p.sink.ConsumeRaw(raw)
		case ModeColor:
			Demosaic(raw, res.Width, res.Height, p.color)
			err = p.sink.ConsumeColor(res.Width, res.Height, p.color)
		case ModeLive:
			Demosaic(raw, res.Width, res.Height, p.color)
			err = p.sink.PresentLive(res.Width, res.Height, p.color)
		}
		if err != nil {
			return fmt.Errorf("sink failed on frame %d: %w", p.captured, err)
		}

		p.captured++
		DEBUGLogger.Printf("Frame %d delivered (%d dropped so far)", p.captured, p.dropped)
	}

	INFOLogger.Printf("Capture finished: %d frames delivered, %d dropped", p.captured, p.dropped)
	return nil
}
