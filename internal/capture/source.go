// Package capture reads audio from a device or file and maintains the
// sliding window of most recent samples consumed by a classifier.
package capture

import (
	"context"
	"fmt"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// ErrCaptureUnavailable is matched by every error returned from a failed
// Source.Open. Retrying Open later may succeed.
var ErrCaptureUnavailable = errors.NewStd("audio capture unavailable")

// Source is an audio input delivering mono samples normalised to [-1, 1].
type Source interface {
	// Open acquires the underlying device or file.
	Open(ctx context.Context) error
	// Read copies up to len(dst) buffered samples without blocking and
	// returns the count, which may be 0.
	Read(dst []float32) (int, error)
	// Close releases the source. A closed source may be opened again.
	Close() error
	// SampleRate is the rate samples are delivered at, in Hz.
	SampleRate() int
}

// GetLogger returns the capture package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}

func unavailable(err error, source string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)).
		Component("capture").
		Category(errors.CategoryCaptureUnavailable).
		Context("source", source).
		Build()
}
