package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jwulff/echo/internal/app"
	"github.com/jwulff/echo/internal/audio"
	"github.com/jwulff/echo/internal/provider"
	"github.com/jwulff/echo/internal/session"
	"github.com/jwulff/echo/internal/speaker"
	"github.com/jwulff/echo/internal/token"
)

// frameMillis is the amount of audio sent per provider message.
const frameMillis = 100

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Open the live transcription view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), deps)
		},
	}
}

func runRecord(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger

	recorder := audio.NewRecorder(cfg.AudioInput, cfg.SampleRate, logger)
	if err := recorder.CheckFFmpeg(); err != nil {
		return err
	}

	store, _, err := deps.OpenArchive(ctx)
	if err != nil {
		return err
	}

	speakers := speaker.NewCache()
	mgr := session.New(
		token.New(cfg.TokenURL, token.WithLogger(logger)),
		&provider.WebSocketDialer{
			URL:          cfg.StreamURL,
			ModelID:      cfg.ModelID,
			LanguageCode: cfg.LanguageCode,
			SampleRate:   cfg.SampleRate,
			Logger:       logger,
		},
		session.WithCredential(cfg.APIKey),
		session.WithLogger(logger),
		session.WithSpeakers(speakers),
	)

	frame := audio.FrameBytes(cfg.SampleRate, frameMillis)
	capture := func(ctx context.Context, send func(context.Context, []byte) error) error {
		c, err := recorder.Start(ctx)
		if err != nil {
			return err
		}
		pumpErr := audio.Pump(ctx, c.Reader(), frame, send)
		stopErr := c.Stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(pumpErr, stopErr)
	}

	model := app.New(app.Deps{
		Session:      mgr,
		Archive:      store,
		Speakers:     speakers,
		Capture:      capture,
		MaxRecording: cfg.MaxRecording,
	})

	logger.Info("echo starting", "version", deps.Version)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := p.Run()

	// The model stops the session on quit; this covers a killed program.
	if err := mgr.Stop(); err != nil {
		logger.Warn("stop session on exit", "err", err)
	}
	if runErr != nil {
		return fmt.Errorf("run TUI: %w", runErr)
	}
	return nil
}
