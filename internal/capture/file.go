package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// FileConfig describes a recorded file replayed as a capture source.
type FileConfig struct {
	Path       string
	SampleRate int  // expected rate; files at another rate are rejected
	ChunkSize  int  // samples returned per Read, 0 returns everything at once
	Realtime   bool // pace reads to the file's sample rate
}

// FileSource replays a WAV or FLAC file. The whole file is decoded on Open;
// Read returns io.EOF once every sample has been delivered.
type FileSource struct {
	cfg FileConfig
	log logger.Logger

	mu      sync.Mutex
	samples []float32
	pos     int
	open    bool
	started time.Time
	now     func() time.Time
}

// NewFileSource returns an unopened file source.
func NewFileSource(cfg FileConfig) *FileSource {
	return &FileSource{
		cfg: cfg,
		log: GetLogger().With(logger.String("file", filepath.Base(cfg.Path))),
		now: time.Now,
	}
}

// SampleRate implements Source.
func (f *FileSource) SampleRate() int {
	return f.cfg.SampleRate
}

// Open decodes the file. Reopening rewinds to the start.
func (f *FileSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return unavailable(err, f.cfg.Path)
	}

	if f.samples == nil {
		start := time.Now()
		samples, rate, err := decodeFile(f.cfg.Path)
		if err != nil {
			return unavailable(err, f.cfg.Path)
		}
		if f.cfg.SampleRate > 0 && rate != f.cfg.SampleRate {
			return unavailable(fmt.Errorf("file sample rate %d Hz does not match %d Hz", rate, f.cfg.SampleRate), f.cfg.Path)
		}
		if f.cfg.SampleRate == 0 {
			f.cfg.SampleRate = rate
		}
		f.samples = samples
		f.log.Debug("audio file decoded",
			logger.Int("samples", len(samples)),
			logger.Int("sample_rate", rate),
			logger.Duration("elapsed", time.Since(start)))
	}

	f.pos = 0
	f.open = true
	f.started = f.now()
	return nil
}

// Read implements Source.
func (f *FileSource) Read(dst []float32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, errors.Newf("audio file %s is not open", f.cfg.Path).
			Component("capture").
			Category(errors.CategoryTransientRead).
			Build()
	}
	if f.pos >= len(f.samples) {
		return 0, io.EOF
	}

	limit := len(f.samples)
	if f.cfg.Realtime && f.cfg.SampleRate > 0 {
		due := int(f.now().Sub(f.started).Seconds() * float64(f.cfg.SampleRate))
		limit = min(limit, due)
	}

	n := min(len(dst), limit-f.pos)
	if f.cfg.ChunkSize > 0 {
		n = min(n, f.cfg.ChunkSize)
	}
	if n <= 0 {
		return 0, nil
	}
	copy(dst, f.samples[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

// Close implements Source.
func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

// Duration returns the decoded length of the file.
func (f *FileSource) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.cfg.SampleRate)
}

func decodeFile(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(file)
	case ".flac":
		return decodeFLAC(file)
	default:
		return nil, 0, fmt.Errorf("unsupported audio file type %q", filepath.Ext(path))
	}
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file format")
	}

	divisor, err := pcmDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, 0, err
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("unsupported number of channels: %d", channels)
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, 8192*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	var out []float32
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			break
		}
		out = appendMono(out, buf.Data[:n-n%channels], channels, divisor)
	}
	return out, int(decoder.SampleRate), nil
}

func decodeFLAC(r io.Reader) ([]float32, int, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}

	divisor, err := pcmDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, 0, err
	}
	channels := decoder.NChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("unsupported number of channels: %d", channels)
	}
	width := decoder.BitsPerSample / 8

	var out []float32
	ints := make([]int, 0, 4096)
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, 0, err
		}

		ints = ints[:0]
		for i := 0; i+width <= len(frame); i += width {
			var sample int32
			switch width {
			case 2:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 3:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16
			case 4:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			ints = append(ints, int(sample))
		}
		out = appendMono(out, ints[:len(ints)-len(ints)%channels], channels, divisor)
	}
	return out, decoder.SampleRate, nil
}

// appendMono averages interleaved channels and normalises to [-1, 1].
func appendMono(out []float32, interleaved []int, channels int, divisor float32) []float32 {
	for i := 0; i < len(interleaved); i += channels {
		var sum int
		for c := range channels {
			sum += interleaved[i+c]
		}
		out = append(out, float32(sum)/float32(channels)/divisor)
	}
	return out
}
