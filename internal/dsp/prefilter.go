package dsp

import (
	"fmt"
	"sync"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// maxCutFraction keeps the high cut just under Nyquist, matching a
// 3999 Hz cut at 8 kHz.
const maxCutFraction = 0.4999

// BandPassConfig describes the pre-filter. Cutoffs are fractions of the
// sample rate, e.g. 1000 Hz at 8 kHz is 0.125.
type BandPassConfig struct {
	SampleRate int
	LowCut     float64
	HighCut    float64
	Passes     int
	Q          float64 // 0 selects ButterworthQ
}

// CutoffsFromHz converts absolute cutoffs into sample-rate fractions.
func CutoffsFromHz(sampleRate int, lowHz, highHz float64) (low, high float64) {
	return lowHz / float64(sampleRate), highHz / float64(sampleRate)
}

// PreFilter band-limits a window before scoring.
type PreFilter interface {
	Filter(window []float32) []float32
}

// BandPassFilter is a high-pass at LowCut followed by a low-pass at HighCut.
// Filter state is reset on every call so the output depends only on the
// window passed in.
type BandPassFilter struct {
	cfg     BandPassConfig
	mu      sync.Mutex
	chain   *Chain
	scratch []float64
}

// NewBandPassFilter validates cfg and builds the filter chain.
func NewBandPassFilter(cfg BandPassConfig) (*BandPassFilter, error) {
	if cfg.Passes == 0 {
		cfg.Passes = 1
	}
	if cfg.Q == 0 {
		cfg.Q = ButterworthQ
	}
	if cfg.HighCut > maxCutFraction {
		cfg.HighCut = maxCutFraction
	}

	if cfg.LowCut <= 0 || cfg.LowCut >= cfg.HighCut {
		return nil, errors.New(fmt.Errorf("band-pass cutoffs must satisfy 0 < low < high, got %v and %v", cfg.LowCut, cfg.HighCut)).
			Component("dsp").
			Category(errors.CategoryValidation).
			Build()
	}

	rate := float64(cfg.SampleRate)
	hp, err := NewHighPass(rate, cfg.LowCut*rate, cfg.Q, cfg.Passes)
	if err != nil {
		return nil, err
	}
	lp, err := NewLowPass(rate, cfg.HighCut*rate, cfg.Q, cfg.Passes)
	if err != nil {
		return nil, err
	}

	return &BandPassFilter{cfg: cfg, chain: NewChain(hp, lp)}, nil
}

// Config returns the effective configuration after defaults and clamping.
func (b *BandPassFilter) Config() BandPassConfig {
	return b.cfg
}

// Filter returns a filtered copy of window. The input is not modified and
// the output has the same length.
func (b *BandPassFilter) Filter(window []float32) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cap(b.scratch) < len(window) {
		b.scratch = make([]float64, len(window))
	}
	buf := b.scratch[:len(window)]
	for i, s := range window {
		buf[i] = float64(s)
	}

	b.chain.Reset()
	b.chain.ApplyBatch(buf)

	out := make([]float32, len(window))
	for i, s := range buf {
		out[i] = float32(s)
	}
	return out
}

// Passthrough is a PreFilter that returns a copy of its input unchanged,
// used for scorers that band-limit internally.
type Passthrough struct{}

// Filter returns a copy of window.
func (Passthrough) Filter(window []float32) []float32 {
	out := make([]float32, len(window))
	copy(out, window)
	return out
}
