package mcamdriver

import (
	"context"
	"errors"
	"sync"
)

// ControlWrite records one vendor control transfer seen by the mock.
type ControlWrite struct {
	Reg     Register
	Payload []byte
}

// Word returns the payload interpreted as a big-endian 16-bit register
// word, the encoding used for all single-word writes.
func (w ControlWrite) Word() uint16 {
	if len(w.Payload) != 2 {
		return 0
	}
	return uint16(w.Payload[0])<<8 | uint16(w.Payload[1])
}

// MockTransport implements Transport with scripted behaviour for tests and
// hardware-free smoke runs. It provides fine-grained control over bulk
// read outcomes and records every control write.
type MockTransport struct {
	mu sync.Mutex

	// ControlWrites captures every vendor control transfer in order.
	ControlWrites []ControlWrite

	// ControlError is returned by the next SendVendorControl call if set.
	ControlError error

	// Frames holds byte buffers returned by successive ReadBulk calls.
	// When exhausted, FrameFunc is consulted; if that is nil too, ReadBulk
	// returns ErrNoScriptedFrames.
	Frames [][]byte

	// FrameFunc, if set, produces the frame for read number i (counting
	// all ReadBulk calls, including ones served from Frames).
	FrameFunc func(i int) []byte

	// ReadError is returned by the next ReadBulk call if set.
	ReadError error

	// BulkReads records the number of ReadBulk calls.
	BulkReads int

	// Closed indicates whether Close was called.
	Closed bool

	frameIndex int
}

// ErrNoScriptedFrames is returned by MockTransport.ReadBulk when the script
// runs out of frames.
var ErrNoScriptedFrames = errors.New("mock transport: no scripted frames left")

func (m *MockTransport) SendVendorControl(reg Register, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return errors.New("mock transport: closed")
	}
	if m.ControlError != nil {
		err := m.ControlError
		m.ControlError = nil
		return err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.ControlWrites = append(m.ControlWrites, ControlWrite{Reg: reg, Payload: cp})
	return nil
}

func (m *MockTransport) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.Closed {
		return 0, errors.New("mock transport: closed")
	}

	i := m.BulkReads
	m.BulkReads++

	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, err
	}

	var frame []byte
	switch {
	case m.frameIndex < len(m.Frames):
		frame = m.Frames[m.frameIndex]
		m.frameIndex++
	case m.FrameFunc != nil:
		frame = m.FrameFunc(i)
	default:
		return 0, ErrNoScriptedFrames
	}

	return copy(buf, frame), nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

// WritesTo returns the recorded control writes addressed to reg, in order.
func (m *MockTransport) WritesTo(reg Register) []ControlWrite {
	m.mu.Lock()
	defer m.mu.Unlock()

	var writes []ControlWrite
	for _, w := range m.ControlWrites {
		if w.Reg == reg {
			writes = append(writes, w)
		}
	}
	return writes
}

// NewUniformFrameTransport returns a mock that serves an endless stream of
// uniform mosaic frames for the given resolution. Useful for smoke runs
// without camera hardware.
func NewUniformFrameTransport(res Resolution, value byte) *MockTransport {
	frame := make([]byte, res.FrameSize())
	for i := range frame {
		frame[i] = value
	}
	return &MockTransport{
		FrameFunc: func(int) []byte { return frame },
	}
}
