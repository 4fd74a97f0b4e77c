package classifier

import (
	"context"
	"io"
	"sync"

	"github.com/pagd-project/pagd-go/internal/scorer"
)

type fakeSource struct {
	mu      sync.Mutex
	openErr error
	readErr error
	frames  [][]float32
	eof     bool
	opens   int
	closes  int
}

func (f *fakeSource) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	return nil
}

func (f *fakeSource) Read(dst []float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.frames) == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(dst, f.frames[0])
	f.frames = f.frames[1:]
	return n, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSource) SampleRate() int { return 8000 }

func (f *fakeSource) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

func (f *fakeSource) setReadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// fakeScorer returns fixed scores for its labels, in label order.
type fakeScorer struct {
	mu      sync.Mutex
	labels  []string
	values  map[string]float32
	err     error
	windows [][]float32
	size    int
	closed  bool
}

func newFakeScorer(size int, labels ...string) *fakeScorer {
	return &fakeScorer{labels: labels, values: map[string]float32{}, size: size}
}

func (f *fakeScorer) set(values map[string]float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = values
}

func (f *fakeScorer) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeScorer) Score(window []float32) (scorer.Scores, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, append([]float32(nil), window...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(scorer.Scores, len(f.labels))
	for i, l := range f.labels {
		out[i] = scorer.Score{Label: l, Score: f.values[l]}
	}
	return out, nil
}

func (f *fakeScorer) lastWindow() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.windows) == 0 {
		return nil
	}
	return f.windows[len(f.windows)-1]
}

func (f *fakeScorer) Categories() []string { return append([]string(nil), f.labels...) }
func (f *fakeScorer) WindowSize() int      { return f.size }

func (f *fakeScorer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// unlabelledScorer names every result like a two-stage model.
type unlabelledScorer struct{ *fakeScorer }

func (unlabelledScorer) ResultName(string) (string, string) {
	return scorer.Unlabelled, scorer.Unlabelled
}
