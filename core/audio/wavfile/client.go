// Package wavfile replays a WAV recording as a real-time frame source, one
// frame per frame duration, the way a live microphone would deliver it.
package wavfile

import (
	"context"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/koscakluka/scribe-core/core/audio"
)

type Client struct {
	file    *os.File
	decoder *wav.Decoder
}

func NewClient(path string) (*Client, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	if decoder.SampleRate != audio.SampleRate || decoder.NumChans != 1 {
		_ = file.Close()
		return nil, fmt.Errorf("expected %dHz mono audio, got %dHz with %d channels",
			audio.SampleRate, decoder.SampleRate, decoder.NumChans)
	}

	return &Client{file: file, decoder: decoder}, nil
}

// Stream replays the file at real-time pace and returns once it runs out.
// The trailing partial frame is zero-padded to full length.
func (c *Client) Stream(ctx context.Context, onFrame func(frame audio.Frame)) error {
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: audio.SampleRate},
		Data:   make([]int, audio.FrameSamples),
	}
	scale := float32(int(1) << (c.decoder.BitDepth - 1))

	chunker := &audio.FrameChunker{}
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.decoder.PCMBuffer(buffer)
			if err != nil {
				return fmt.Errorf("failed to read wav data: %w", err)
			}
			if n == 0 {
				if frame, ok := chunker.Flush(); ok {
					onFrame(frame)
				}
				return nil
			}

			samples := make([]float32, n)
			for i := range samples {
				samples[i] = float32(buffer.Data[i]) / scale
			}
			for _, frame := range chunker.Push(samples) {
				onFrame(frame)
			}
		}
	}
}

func (c *Client) Close() {
	_ = c.file.Close()
}
