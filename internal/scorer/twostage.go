package scorer

import (
	"fmt"
	"slices"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// TwoStage runs a signature model turning the waveform into a spectrogram,
// then a detection model turning the spectrogram into one confidence.
// The confidence is reported for every label of a fixed synthetic set.
type TwoStage struct {
	signature  Interpreter
	model      Interpreter
	labels     []string
	windowSize int
}

// NewTwoStage wraps two loaded interpreters. It takes ownership of both.
func NewTwoStage(signature, model Interpreter, labels []string, windowSize int) (*TwoStage, error) {
	if len(labels) == 0 {
		return nil, modelLoadError(fmt.Errorf("two-stage scorer needs at least one label"), "", "two-stage")
	}
	if windowSize <= 0 {
		return nil, modelLoadError(fmt.Errorf("invalid window size %d", windowSize), "", "two-stage")
	}
	return &TwoStage{
		signature:  signature,
		model:      model,
		labels:     slices.Clone(labels),
		windowSize: windowSize,
	}, nil
}

// Score implements Scorer.
func (t *TwoStage) Score(window []float32) (Scores, error) {
	spectrogram, err := t.signature.Run(window)
	if err != nil {
		return nil, scoreError(err, "signature")
	}
	out, err := t.model.Run(spectrogram)
	if err != nil {
		return nil, scoreError(err, "model")
	}
	if len(out) == 0 {
		return nil, scoreError(fmt.Errorf("detection model returned no output"), "model")
	}

	confidence := clamp(out[0])
	scores := make(Scores, len(t.labels))
	for i, label := range t.labels {
		scores[i] = Score{Label: label, Score: confidence}
	}
	return scores, nil
}

// ResultName reports Unlabelled for both fields; the model does not know
// which weapon it heard.
func (t *TwoStage) ResultName(string) (category, specificType string) {
	return Unlabelled, Unlabelled
}

// Categories implements Scorer.
func (t *TwoStage) Categories() []string {
	return slices.Clone(t.labels)
}

// WindowSize implements Scorer.
func (t *TwoStage) WindowSize() int {
	return t.windowSize
}

// Close releases both interpreters.
func (t *TwoStage) Close() error {
	return errors.Join(t.signature.Close(), t.model.Close())
}

func scoreError(err error, stage string) error {
	return errors.New(err).
		Component("scorer").
		Category(errors.CategoryTransientScore).
		Context("stage", stage).
		Build()
}
