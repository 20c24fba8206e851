// Command scribe is a terminal client for the transcription server: it
// captures audio from a microphone or a WAV file, streams it over the
// session protocol and renders the transcript live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	transcription "github.com/koscakluka/scribe-core/core"
	"github.com/koscakluka/scribe-core/core/audio"
	"github.com/koscakluka/scribe-core/core/audio/miniaudio"
	"github.com/koscakluka/scribe-core/core/audio/portaudio"
	"github.com/koscakluka/scribe-core/core/audio/wavfile"
	"github.com/koscakluka/scribe-core/core/connection"
	"github.com/koscakluka/scribe-core/core/status"
	"github.com/koscakluka/scribe-core/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scribe:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "scribe:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	source, err := newFrameSource(cfg.Input)
	if err != nil {
		return err
	}
	defer source.Close()

	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	controller := transcription.NewController(
		transcription.WithServerURL(cfg.Server.URL),
		transcription.WithAuthToken(cfg.Server.AuthToken, connection.TokenPlacement(cfg.Server.TokenPlacement)),
		transcription.WithFinalizeTimeout(cfg.Session.FinalizeTimeout()),
		transcription.WithHandshakeTimeout(cfg.Session.HandshakeTimeout()),
		transcription.WithWatchdogThreshold(cfg.Session.WatchdogThreshold()),
		transcription.WithSilenceWindow(cfg.Session.SilenceWindow()),
		transcription.WithMaxRetries(cfg.Session.MaxRetries),
		transcription.WithWordCallback(func(word transcription.Word) {
			send(wordMsg(word))
		}),
		transcription.WithUtteranceCallback(func(utterance transcription.Utterance) {
			send(utteranceMsg(utterance))
		}),
		transcription.WithStateChangedCallback(func(state transcription.ConnectionState) {
			send(stateMsg(state))
		}),
		transcription.WithErrorCallback(func(connErr *connection.ConnectionError) {
			send(errorMsg{connErr})
		}),
	)

	program = tea.NewProgram(newModel(cfg, controller), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.StatusURL != "" {
		go func() {
			client := status.NewClient(cfg.Server.StatusURL, status.WithAuthToken(cfg.Server.AuthToken))
			if serverStatus, err := client.Fetch(ctx); err == nil {
				send(serverStatusMsg{serverStatus})
			}
		}()
	}

	// A failed first dial is not fatal; the controller schedules reconnects
	// on its own and the UI shows the progress.
	_ = controller.Connect(ctx)

	go func() {
		err := source.Stream(ctx, func(frame audio.Frame) {
			// Frames produced while disconnected are dropped; the server has
			// no buffer for stale audio anyway.
			_ = controller.SendAudio(frame)
		})
		if err != nil {
			send(inputFailedMsg{err})
			return
		}
		_ = controller.Flush()
		send(inputDoneMsg{})
	}()

	_, runErr := program.Run()
	cancel()
	stopErr := controller.Stop()

	if runErr != nil {
		return runErr
	}
	return stopErr
}

func newFrameSource(cfg config.InputConfig) (audio.FrameSource, error) {
	switch cfg.Source {
	case "miniaudio":
		return miniaudio.NewClient()
	case "portaudio":
		return portaudio.NewClient(cfg.BufferSize)
	case "wav":
		return wavfile.NewClient(cfg.WavPath)
	}
	return nil, fmt.Errorf("unsupported input source %q", cfg.Source)
}
