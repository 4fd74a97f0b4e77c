// Package scorer turns a filtered audio window into per-category scores.
// A Scorer wraps one or two opaque inference models behind a fixed label set.
package scorer

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// ErrModelLoad is matched by every error returned when a model or its
// labels cannot be loaded.
var ErrModelLoad = errors.NewStd("model load failed")

// Unlabelled is reported as both category and specific type by scorers
// whose model emits a bare confidence rather than a label.
const Unlabelled = "Na"

// Score is one category's confidence in [0, 1].
type Score struct {
	Label string
	Score float32
}

// Scores holds one entry per category, in Categories() order.
type Scores []Score

// Scorer maps an audio window to category scores. Implementations are not
// safe for concurrent use; each classifier owns its scorer.
type Scorer interface {
	Score(window []float32) (Scores, error)
	// Categories is fixed after construction.
	Categories() []string
	// WindowSize is the number of samples Score expects.
	WindowSize() int
	Close() error
}

// Namer is implemented by scorers that derive result names differently
// from SplitLabel.
type Namer interface {
	ResultName(label string) (category, specificType string)
}

// ResultName derives the category and specific type reported for label.
func ResultName(s Scorer, label string) (category, specificType string) {
	if n, ok := s.(Namer); ok {
		return n.ResultName(label)
	}
	return SplitLabel(label)
}

// SplitLabel splits "Gunshot, gunfire" into "Gunshot" and "gunfire". A
// label without a comma is returned for both.
func SplitLabel(label string) (category, specificType string) {
	before, after, found := strings.Cut(label, ",")
	if !found {
		label = strings.TrimSpace(label)
		return label, label
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// clamp maps model output into [0, 1]; NaN becomes 0.
func clamp(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func sortedCopy(labels []string) []string {
	out := slices.Clone(labels)
	slices.Sort(out)
	return out
}

// GetLogger returns the scorer package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("scorer")
}

func modelLoadError(err error, path, kind string) error {
	return errors.New(wrapModelLoad(err)).
		Component("scorer").
		Category(errors.CategoryModelLoad).
		ModelContext(path, kind).
		Build()
}

func wrapModelLoad(err error) error {
	if errors.Is(err, ErrModelLoad) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrModelLoad, err)
}
