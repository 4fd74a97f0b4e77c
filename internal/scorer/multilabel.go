package scorer

import (
	"fmt"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// MultiLabel runs a single model producing one score per label, e.g.
// YAMNet's 521 AudioSet classes.
type MultiLabel struct {
	model      Interpreter
	labels     []string // model output order
	categories []string // sorted by label
	index      []int    // categories[i] is labels[index[i]]
	windowSize int
}

// NewMultiLabel wraps a loaded interpreter whose output i scores labels[i].
// It takes ownership of model.
func NewMultiLabel(model Interpreter, labels []string, windowSize int) (*MultiLabel, error) {
	if len(labels) == 0 {
		return nil, modelLoadError(fmt.Errorf("multi-label scorer needs labels"), "", "multi-label")
	}
	if windowSize <= 0 {
		return nil, modelLoadError(fmt.Errorf("invalid window size %d", windowSize), "", "multi-label")
	}

	position := make(map[string]int, len(labels))
	for i, label := range labels {
		if _, dup := position[label]; dup {
			return nil, modelLoadError(fmt.Errorf("duplicate label %q", label), "", "multi-label")
		}
		position[label] = i
	}

	categories := sortedCopy(labels)
	index := make([]int, len(categories))
	for i, c := range categories {
		index[i] = position[c]
	}

	return &MultiLabel{
		model:      model,
		labels:     labels,
		categories: categories,
		index:      index,
		windowSize: windowSize,
	}, nil
}

// Score implements Scorer. Entries follow the sorted category order.
func (m *MultiLabel) Score(window []float32) (Scores, error) {
	out, err := m.model.Run(window)
	if err != nil {
		return nil, scoreError(err, "model")
	}
	if len(out) < len(m.labels) {
		return nil, errors.New(fmt.Errorf("model returned %d scores for %d labels", len(out), len(m.labels))).
			Component("scorer").
			Category(errors.CategoryTransientScore).
			Build()
	}

	scores := make(Scores, len(m.categories))
	for i, c := range m.categories {
		scores[i] = Score{Label: c, Score: clamp(out[m.index[i]])}
	}
	return scores, nil
}

// Categories implements Scorer.
func (m *MultiLabel) Categories() []string {
	out := make([]string, len(m.categories))
	copy(out, m.categories)
	return out
}

// WindowSize implements Scorer.
func (m *MultiLabel) WindowSize() int {
	return m.windowSize
}

// Close implements Scorer.
func (m *MultiLabel) Close() error {
	return m.model.Close()
}
