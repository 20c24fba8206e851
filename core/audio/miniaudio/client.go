// Package miniaudio captures microphone audio through the miniaudio library
// and yields protocol-ready frames.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/scribe-core/core/audio"
)

type Client struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	chunker      *audio.FrameChunker

	mu      sync.Mutex
	onFrame func(frame audio.Frame)
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := &Client{
		audioContext: audioCtx,
		chunker:      &audio.FrameChunker{},
	}
	if err := client.initDevice(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) initDevice() error {
	format := malgo.FormatF32
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = 480
	config.Periods = 3

	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.handleCapture(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.device = device
	return nil
}

func (c *Client) handleCapture(data []byte) {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}

	c.mu.Lock()
	onFrame := c.onFrame
	c.mu.Unlock()
	if onFrame == nil {
		return
	}

	for _, frame := range c.chunker.Push(samples) {
		onFrame(frame)
	}
}

// Stream starts capturing and blocks until the context is cancelled.
func (c *Client) Stream(ctx context.Context, onFrame func(frame audio.Frame)) error {
	c.mu.Lock()
	if c.device == nil {
		c.mu.Unlock()
		return fmt.Errorf("capture device not initialized")
	}
	c.onFrame = onFrame
	c.mu.Unlock()

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	<-ctx.Done()

	err := c.device.Stop()

	c.mu.Lock()
	c.onFrame = nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}
