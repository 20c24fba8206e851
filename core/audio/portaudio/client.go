// Package portaudio captures microphone audio through PortAudio and yields
// protocol-ready frames.
package portaudio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/scribe-core/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	chunker    *audio.FrameChunker

	in []float32
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]float32, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(audio.SampleRate), bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		chunker:    &audio.FrameChunker{},
		in:         in,
	}, nil
}

// Stream reads from the microphone until the context is cancelled.
func (c *Client) Stream(ctx context.Context, onFrame func(frame audio.Frame)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if err := c.stream.Stop(); err != nil {
				return fmt.Errorf("failed to stop capture stream: %w", err)
			}
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				logger.Warn("Failed to read from capture stream", "error", err)
				continue
			}
			for _, frame := range c.chunker.Push(c.in) {
				onFrame(frame)
			}
		}
	}
}

func (c *Client) Close() {
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}
