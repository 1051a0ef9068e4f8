// Package audio captures microphone PCM with ffmpeg and pumps it to a sink in
// fixed-size frames.
package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/jwulff/echo/internal/logging"
)

// DefaultSampleRate matches the provider's pcm_16000 format.
const DefaultSampleRate = 16000

// Recorder captures mono 16-bit little-endian PCM from an input device.
type Recorder struct {
	Input      string // ffmpeg input device, e.g. ":default" on macOS or "default" on Linux
	SampleRate int
	Logger     *slog.Logger
}

// NewRecorder returns a recorder for input at sampleRate.
func NewRecorder(input string, sampleRate int, logger *slog.Logger) *Recorder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{Input: input, SampleRate: sampleRate, Logger: logger}
}

// CheckFFmpeg reports whether ffmpeg is on PATH.
func (r *Recorder) CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found. Install with: brew install ffmpeg")
	}
	return nil
}

// Args returns the ffmpeg arguments used by Start.
func (r *Recorder) Args() []string {
	format, input := "avfoundation", r.Input
	if runtime.GOOS != "darwin" {
		format = "pulse"
		if input == ":default" {
			input = "default"
		}
	}
	if input == "" {
		input = "default"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", input,
		"-ac", "1",
		"-ar", strconv.Itoa(r.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Capture is a running ffmpeg process.
type Capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// Start launches ffmpeg. Cancelling ctx kills the process.
func (r *Recorder) Start(ctx context.Context) (*Capture, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", r.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	r.Logger.Info("audio capture started", "input", r.Input, "sample_rate", r.SampleRate)
	return &Capture{cmd: cmd, stdout: stdout}, nil
}

// Reader returns the PCM stream.
func (c *Capture) Reader() io.Reader { return c.stdout }

// Stop kills ffmpeg and waits for it to exit.
func (c *Capture) Stop() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	err := c.cmd.Wait()
	if _, ok := err.(*exec.ExitError); ok {
		// Killed on purpose.
		return nil
	}
	return err
}
