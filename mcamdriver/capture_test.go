package mcamdriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures everything the pipeline delivers.
type recordingSink struct {
	rawFrames   [][]byte
	colorFrames [][]byte
	liveFrames  [][]byte

	// onFrame runs after every delivery, for cancellation plumbing.
	onFrame func(total int)
}

func (s *recordingSink) record(frames *[][]byte, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	*frames = append(*frames, cp)
	if s.onFrame != nil {
		s.onFrame(len(s.rawFrames) + len(s.colorFrames) + len(s.liveFrames))
	}
	return nil
}

func (s *recordingSink) ConsumeRaw(raw []byte) error {
	return s.record(&s.rawFrames, raw)
}

func (s *recordingSink) ConsumeColor(width, height int, rgba []byte) error {
	return s.record(&s.colorFrames, rgba)
}

func (s *recordingSink) PresentLive(width, height int, rgba []byte) error {
	return s.record(&s.liveFrames, rgba)
}

func (s *recordingSink) Close() error { return nil }

func configuredCamera(t *testing.T, mock *MockTransport, cfg SessionConfig) *Camera {
	t.Helper()
	cam := NewCamera(mock)
	require.NoError(t, cam.Init(cfg))
	return cam
}

func TestBulkBufferSize(t *testing.T) {
	tests := []struct {
		frameSize int
		want      int
	}{
		{Resolution512x384.FrameSize(), 13 * CAMERA_BULK_CHUNK_SIZE},
		{Resolution1024x768.FrameSize(), 49 * CAMERA_BULK_CHUNK_SIZE},
		{Resolution2048x1536.FrameSize(), 193 * CAMERA_BULK_CHUNK_SIZE},
		{1, CAMERA_BULK_CHUNK_SIZE},
		{CAMERA_BULK_CHUNK_SIZE, 2 * CAMERA_BULK_CHUNK_SIZE},
	}
	for _, tt := range tests {
		got := BulkBufferSize(tt.frameSize)
		assert.Equal(t, tt.want, got)
		assert.Greater(t, got, tt.frameSize, "must strictly exceed the frame to drain the ZLP")
	}
}

func TestReadFrameSizeMismatchIsRecoverable(t *testing.T) {
	cfg := SessionConfig{Resolution: Resolution512x384, ExposureMS: 100, Gain: 1, Count: 1, Mode: ModeRaw}
	mock := &MockTransport{Frames: [][]byte{make([]byte, cfg.Resolution.FrameSize()-100)}}
	cam := configuredCamera(t, mock, cfg)

	p := NewCapturePipeline(cam, cfg, &recordingSink{})
	_, err := p.ReadFrame(context.Background())
	require.Error(t, err)

	var sizeErr *FrameSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, cfg.Resolution.FrameSize()-100, sizeErr.Transferred)
	assert.Equal(t, cfg.Resolution.FrameSize(), sizeErr.Expected)
}

// A transport that drops every third read must still yield exactly the
// requested number of frames; drops never count and never abort.
func TestBoundedCaptureRetriesDroppedFrames(t *testing.T) {
	cfg := SessionConfig{Resolution: Resolution512x384, ExposureMS: 100, Gain: 1, Count: 5, Mode: ModeRaw}
	frameSize := cfg.Resolution.FrameSize()

	good := make([]byte, frameSize)
	short := make([]byte, frameSize-CAMERA_BULK_CHUNK_SIZE)
	mock := &MockTransport{
		FrameFunc: func(i int) []byte {
			if i%3 == 2 {
				return short
			}
			return good
		},
	}
	cam := configuredCamera(t, mock, cfg)

	sink := &recordingSink{}
	p := NewCapturePipeline(cam, cfg, sink)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 5, p.Captured())
	assert.Equal(t, 2, p.Dropped())
	assert.Len(t, sink.rawFrames, 5)
	assert.Equal(t, 7, mock.BulkReads, "five good reads plus two dropped")
	for _, frame := range sink.rawFrames {
		assert.Len(t, frame, frameSize)
	}
}

func TestLiveCaptureStopsOnCancellation(t *testing.T) {
	cfg := SessionConfig{Resolution: Resolution512x384, ExposureMS: 100, Gain: 1, Mode: ModeLive}
	mock := NewUniformFrameTransport(cfg.Resolution, 0x40)
	cam := configuredCamera(t, mock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	sink.onFrame = func(total int) {
		if total >= 3 {
			cancel()
		}
	}

	p := NewCapturePipeline(cam, cfg, sink)
	require.NoError(t, p.Run(ctx))

	// Cancellation is observed before the next read, never mid-frame.
	assert.GreaterOrEqual(t, p.Captured(), 3)
	assert.Len(t, sink.liveFrames, p.Captured())
	assert.Equal(t, CameraStateConfigured, cam.State())
}

func TestRunRequiresConfiguredCamera(t *testing.T) {
	cfg := SessionConfig{Resolution: Resolution512x384, ExposureMS: 100, Gain: 1, Count: 1, Mode: ModeRaw}
	cam := NewCamera(&MockTransport{})

	p := NewCapturePipeline(cam, cfg, &recordingSink{})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnusable)
}

func TestBulkFailureIsFatal(t *testing.T) {
	cfg := SessionConfig{Resolution: Resolution512x384, ExposureMS: 100, Gain: 1, Count: 1, Mode: ModeRaw}
	mock := &MockTransport{}
	cam := configuredCamera(t, mock, cfg)

	// No scripted frames and no FrameFunc: the read itself errors.
	p := NewCapturePipeline(cam, cfg, &recordingSink{})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnusable)
}

// End-to-end: a full bounded color session against the mock transport.
func TestColorCaptureEndToEnd(t *testing.T) {
	cfg := SessionConfig{
		Resolution: Resolution512x384,
		ExposureMS: 100,
		Gain:       1,
		Count:      3,
		Mode:       ModeColor,
	}
	require.NoError(t, cfg.Validate())

	mock := NewUniformFrameTransport(cfg.Resolution, 0x55)
	cam := configuredCamera(t, mock, cfg)

	sink := &recordingSink{}
	p := NewCapturePipeline(cam, cfg, sink)
	require.NoError(t, p.Run(context.Background()))

	// Exactly three deliveries, each a full RGBA buffer.
	require.Len(t, sink.colorFrames, 3)
	for _, frame := range sink.colorFrames {
		require.Len(t, frame, 512*384*4)
		assert.Equal(t, []byte{0x55, 0x55, 0x55, 0xff}, frame[:4])
	}

	// Exactly one mode select, with the 512x384 payload.
	modeWrites := mock.WritesTo(RegModeSelect)
	require.Len(t, modeWrites, 1)
	assert.Equal(t, []byte{0x00, 0x03, 0x00, 0x03}, modeWrites[0].Payload)

	// Gain registers carry band A's linear value for gain 1.
	for _, reg := range []Register{RegGainGreen1, RegGainBlue, RegGainGreen2, RegGainRed} {
		writes := mock.WritesTo(reg)
		require.Len(t, writes, 1)
		assert.Equal(t, uint16(0x0018), writes[0].Word())
	}

	require.NoError(t, cam.Close())
	assert.True(t, mock.Closed)
}
