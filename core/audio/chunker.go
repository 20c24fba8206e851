package audio

import "sync"

// FrameChunker accumulates arbitrary sample runs and yields frames of
// exactly FrameSamples samples. A trailing partial frame is held back until
// Flush, which zero-pads it to full length; samples are never truncated or
// merged across a flush boundary.
type FrameChunker struct {
	mu      sync.Mutex
	pending []float32
}

// Push appends samples and returns every complete frame now available.
func (c *FrameChunker) Push(samples []float32) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = append(c.pending, samples...)

	var frames []Frame
	for len(c.pending) >= FrameSamples {
		frame := make(Frame, FrameSamples)
		copy(frame, c.pending[:FrameSamples])
		frames = append(frames, frame)
		c.pending = c.pending[FrameSamples:]
	}
	return frames
}

// Flush zero-pads and returns the pending partial frame, if any.
func (c *FrameChunker) Flush() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil, false
	}

	frame := make(Frame, FrameSamples)
	copy(frame, c.pending)
	c.pending = nil
	return frame, true
}

// Pending reports how many samples are buffered short of a full frame.
func (c *FrameChunker) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
