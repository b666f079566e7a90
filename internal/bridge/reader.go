package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// Opener opens the NMEA byte stream.
type Opener func() (io.ReadCloser, error)

// SerialOpener opens a GPS receiver attached to a serial port.
func SerialOpener(device string, baudRate int, readTimeout time.Duration) Opener {
	return func() (io.ReadCloser, error) {
		port, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        baudRate,
			ReadTimeout: readTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", device, err)
		}
		return port, nil
	}
}

// ReadFixes feeds every line of r to tracker and calls onFix for each completed fix. It returns
// when ctx is done or r fails. Unparsable sentences are logged and skipped.
func ReadFixes(ctx context.Context, r io.Reader, tracker *FixTracker, onFix func(Fix), logger zerolog.Logger) error {
	reader := bufio.NewReader(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			fix, ok, perr := tracker.Update(line)
			if perr != nil {
				logger.Debug().Err(perr).Msg("Skipping NMEA sentence")
			} else if ok {
				onFix(fix)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A serial read timeout surfaces as EOF without data.
			if errors.Is(err, io.EOF) && line == "" && ctx.Err() == nil {
				if _, isSerial := r.(*serial.Port); isSerial {
					continue
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read NMEA stream: %w", err)
		}
	}
}
