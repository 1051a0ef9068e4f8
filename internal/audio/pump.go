package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// FrameBytes returns the size of a frame holding ms milliseconds of mono
// 16-bit audio at sampleRate.
func FrameBytes(sampleRate, ms int) int {
	return sampleRate * 2 * ms / 1000
}

// Pump reads r in frames of frameBytes and hands each to send. A short final
// frame is sent before returning. Pump returns nil on EOF, ctx.Err() on
// cancellation, and the first send error otherwise.
func Pump(ctx context.Context, r io.Reader, frameBytes int, send func(context.Context, []byte) error) error {
	if frameBytes <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", frameBytes)
	}
	buf := make([]byte, frameBytes)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if serr := send(ctx, frame); serr != nil {
				return serr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}
