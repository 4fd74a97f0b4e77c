package capture

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/errors"
)

func writeWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clip.wav")
	out, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(out, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func TestFileSource_ChunkedReadsUntilEOF(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 8000, 1, []int{0, 16384, -16384, 32767, -32768})
	src := NewFileSource(FileConfig{Path: path, SampleRate: 8000, ChunkSize: 2})
	require.NoError(t, src.Open(context.Background()))
	defer src.Close()

	dst := make([]float32, 4)
	var got []float32
	for {
		n, err := src.Read(dst)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 2)
		got = append(got, dst[:n]...)
	}

	require.Len(t, got, 5)
	assert.InDelta(t, 0.5, got[1], 1e-4)
	assert.InDelta(t, -0.5, got[2], 1e-4)
	assert.InDelta(t, -1.0, got[4], 1e-4)
	assert.Equal(t, 8000, src.SampleRate())
	assert.Equal(t, 625*time.Microsecond, src.Duration())
}

func TestFileSource_StereoDownmix(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 8000, 2, []int{16384, 0, -16384, -16384})
	src := NewFileSource(FileConfig{Path: path})
	require.NoError(t, src.Open(context.Background()))

	dst := make([]float32, 8)
	n, err := src.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.InDelta(t, 0.25, dst[0], 1e-4)
	assert.InDelta(t, -0.5, dst[1], 1e-4)
}

func TestFileSource_RejectsSampleRateMismatch(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 16000, 1, []int{1, 2, 3})
	src := NewFileSource(FileConfig{Path: path, SampleRate: 8000})

	err := src.Open(context.Background())
	require.ErrorIs(t, err, ErrCaptureUnavailable)
	assert.True(t, errors.IsCategory(err, errors.CategoryCaptureUnavailable))
}

func TestFileSource_MissingFile(t *testing.T) {
	t.Parallel()

	src := NewFileSource(FileConfig{Path: filepath.Join(t.TempDir(), "nope.wav")})
	require.ErrorIs(t, src.Open(context.Background()), ErrCaptureUnavailable)
}

func TestFileSource_ReadBeforeOpen(t *testing.T) {
	t.Parallel()

	src := NewFileSource(FileConfig{Path: "unused.wav"})
	_, err := src.Read(make([]float32, 1))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTransientRead))
}

func TestFileSource_RealtimePacing(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 8000, 1, make([]int, 8000))
	src := NewFileSource(FileConfig{Path: path, SampleRate: 8000, Realtime: true})

	clock := time.Unix(1000, 0)
	src.now = func() time.Time { return clock }
	require.NoError(t, src.Open(context.Background()))

	dst := make([]float32, 8000)
	n, err := src.Read(dst)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due at t=0")

	clock = clock.Add(250 * time.Millisecond)
	n, err = src.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 2000, n)

	clock = clock.Add(time.Second)
	n, err = src.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 6000, n)

	_, err = src.Read(dst)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileSource_ReopenRewinds(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 8000, 1, []int{100, 200})
	src := NewFileSource(FileConfig{Path: path})
	ctx := context.Background()

	require.NoError(t, src.Open(ctx))
	dst := make([]float32, 4)
	n, _ := src.Read(dst)
	require.Equal(t, 2, n)
	require.NoError(t, src.Close())

	require.NoError(t, src.Open(ctx))
	n, err := src.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileSource_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.ErrorIs(t, NewFileSource(FileConfig{Path: path}).Open(context.Background()), ErrCaptureUnavailable)
}
