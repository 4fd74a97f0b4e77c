// Package dsp provides the biquad filters used to band-limit audio windows
// before scoring. Coefficients follow Robert Bristow-Johnson's audio EQ cookbook.
package dsp

import (
	"fmt"
	"math"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// FilterName identifies a biquad response.
type FilterName int

const (
	Undefined FilterName = iota
	LowPass
	HighPass
)

func (n FilterName) String() string {
	switch n {
	case LowPass:
		return "low-pass"
	case HighPass:
		return "high-pass"
	default:
		return "undefined"
	}
}

// ButterworthQ gives a maximally flat pass band for a single biquad.
const ButterworthQ = 1 / math.Sqrt2

// Filter is a biquad section applied passes times in cascade. It keeps
// per-pass state so consecutive ApplyBatch calls filter a continuous stream.
type Filter struct {
	passes int

	// normalised coefficients (divided by a0)
	b0, b1, b2, a1, a2 float64

	in1, in2, out1, out2 []float64
}

func newFilter(a0, a1, a2, b0, b1, b2 float64, passes int) *Filter {
	return &Filter{
		passes: passes,
		b0:     b0 / a0,
		b1:     b1 / a0,
		b2:     b2 / a0,
		a1:     a1 / a0,
		a2:     a2 / a0,
		in1:    make([]float64, passes),
		in2:    make([]float64, passes),
		out1:   make([]float64, passes),
		out2:   make([]float64, passes),
	}
}

// Reset clears the filter history.
func (f *Filter) Reset() {
	clear(f.in1)
	clear(f.in2)
	clear(f.out1)
	clear(f.out2)
}

// ApplyBatch filters input in place.
func (f *Filter) ApplyBatch(input []float64) {
	for p := range f.passes {
		for i, x := range input {
			y := f.b0*x + f.b1*f.in1[p] + f.b2*f.in2[p] - f.a1*f.out1[p] - f.a2*f.out2[p]

			f.in2[p] = f.in1[p]
			f.in1[p] = x
			f.out2[p] = f.out1[p]
			f.out1[p] = y

			input[i] = y
		}
	}
}

func checkParams(sampleRate, frequency, shape float64, passes int) error {
	switch {
	case passes < 1:
		return fmt.Errorf("passes must be 1 or greater, got %d", passes)
	case sampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	case frequency <= 0 || frequency >= sampleRate/2:
		return fmt.Errorf("frequency %v Hz must be between 0 and Nyquist (%v Hz)", frequency, sampleRate/2)
	case shape <= 0:
		return fmt.Errorf("q/width must be positive, got %v", shape)
	}
	return nil
}

func invalidFilter(name FilterName, err error) error {
	return errors.New(err).
		Component("dsp").
		Category(errors.CategoryValidation).
		Context("filter", name.String()).
		Build()
}

// NewLowPass returns a low-pass filter. Each pass adds 12 dB/octave.
func NewLowPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	if err := checkParams(sampleRate, frequency, q, passes); err != nil {
		return nil, invalidFilter(LowPass, err)
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cos := math.Cos(w0)

	return newFilter(
		1.0+alpha, -2.0*cos, 1.0-alpha,
		(1.0-cos)/2.0, 1.0-cos, (1.0-cos)/2.0,
		passes), nil
}

// NewHighPass returns a high-pass filter. Each pass adds 12 dB/octave.
func NewHighPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	if err := checkParams(sampleRate, frequency, q, passes); err != nil {
		return nil, invalidFilter(HighPass, err)
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cos := math.Cos(w0)

	return newFilter(
		1.0+alpha, -2.0*cos, 1.0-alpha,
		(1.0+cos)/2.0, -(1.0 + cos), (1.0+cos)/2.0,
		passes), nil
}

// Chain applies filters in sequence.
type Chain struct {
	filters []*Filter
}

// NewChain returns a chain of the given filters.
func NewChain(filters ...*Filter) *Chain {
	return &Chain{filters: filters}
}

// Reset clears the history of every filter.
func (c *Chain) Reset() {
	for _, f := range c.filters {
		f.Reset()
	}
}

// ApplyBatch runs input through every filter in place.
func (c *Chain) ApplyBatch(input []float64) {
	for _, f := range c.filters {
		f.ApplyBatch(input)
	}
}
