package capture

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSource_OverflowReportsDroppedSamples(t *testing.T) {
	t.Parallel()

	var overflow atomic.Int64
	d := NewDeviceSource(DeviceConfig{
		SampleRate: 8000,
		OnOverflow: func(samples int) { overflow.Add(int64(samples)) },
	})
	ring := ringbuffer.New(8)

	d.write(ring, make([]byte, 6))
	assert.Zero(t, overflow.Load())

	// two bytes fit, the remaining eight are discarded
	d.write(ring, make([]byte, 10))
	assert.Equal(t, int64(4), overflow.Load())
	assert.Equal(t, 8, ring.Length())

	// a full ring discards the whole callback buffer
	d.write(ring, make([]byte, 4))
	assert.Equal(t, int64(6), overflow.Load())
	assert.Equal(t, uint64(12), d.dropped.Load())
}

func TestDeviceSource_OverflowWarningIsRateLimited(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	d := NewDeviceSource(DeviceConfig{SampleRate: 8000})
	d.now = func() time.Time { return now }

	require.True(t, d.shouldLog(), "first overflow is logged")
	assert.False(t, d.shouldLog())

	now = now.Add(overflowLogInterval / 2)
	assert.False(t, d.shouldLog())

	now = now.Add(overflowLogInterval)
	assert.True(t, d.shouldLog())
	assert.False(t, d.shouldLog())
}

func TestBackends(t *testing.T) {
	t.Parallel()

	assert.Len(t, backends("alsa"), 1)
	assert.Len(t, backends("PulseAudio"), 1)
	assert.Equal(t, backends(""), backends("unknown"))
}
