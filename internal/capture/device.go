package capture

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

const bytesPerSample = 2

// overflowLogInterval limits how often a full ring buffer is logged.
const overflowLogInterval = 30 * time.Second

// DeviceConfig selects and sizes a capture device.
type DeviceConfig struct {
	Device        string // device name substring or ID, "" or "default" for the system default
	Backend       string // "" picks the platform default
	SampleRate    int
	BufferSeconds int

	// OnOverflow, when set, receives the number of samples discarded each
	// time the ring buffer is full. It runs on the audio thread.
	OnOverflow func(samples int)
}

// DeviceSource captures mono 16-bit PCM from a sound card. The device
// callback writes into a ring buffer and Read drains it without blocking.
type DeviceSource struct {
	cfg DeviceConfig
	log logger.Logger

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	ring    *ringbuffer.RingBuffer
	raw     []byte
	dropped atomic.Uint64
	lastLog atomic.Int64 // unix nanos of the last overflow warning
	now     func() time.Time
}

// NewDeviceSource returns an unopened device source.
func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = 2
	}
	return &DeviceSource{
		cfg: cfg,
		log: GetLogger().With(logger.String("device", deviceLabel(cfg.Device))),
		now: time.Now,
	}
}

func deviceLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

// SampleRate implements Source.
func (d *DeviceSource) SampleRate() int {
	return d.cfg.SampleRate
}

func backends(name string) []malgo.Backend {
	switch strings.ToLower(name) {
	case "alsa":
		return []malgo.Backend{malgo.BackendAlsa}
	case "pulse", "pulseaudio":
		return []malgo.Backend{malgo.BackendPulseaudio}
	case "coreaudio":
		return []malgo.Backend{malgo.BackendCoreaudio}
	case "wasapi":
		return []malgo.Backend{malgo.BackendWasapi}
	}

	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	}
	return nil
}

// Open initialises the device and starts capturing. Calling Open on an
// open source is a no-op.
func (d *DeviceSource) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return unavailable(err, deviceLabel(d.cfg.Device))
	}
	if d.cfg.SampleRate <= 0 {
		return unavailable(fmt.Errorf("invalid sample rate %d", d.cfg.SampleRate), deviceLabel(d.cfg.Device))
	}

	mctx, err := malgo.InitContext(backends(d.cfg.Backend), malgo.ContextConfig{}, func(message string) {
		d.log.Trace("malgo", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return unavailable(fmt.Errorf("context init failed: %w", err), deviceLabel(d.cfg.Device))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if d.cfg.Device != "" && d.cfg.Device != "default" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			d.releaseContext(mctx)
			return unavailable(fmt.Errorf("listing capture devices: %w", err), d.cfg.Device)
		}
		info, ok := matchDevice(infos, d.cfg.Device)
		if !ok {
			d.releaseContext(mctx)
			return unavailable(fmt.Errorf("no capture device matches %q", d.cfg.Device), d.cfg.Device)
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	ring := ringbuffer.New(d.cfg.BufferSeconds * d.cfg.SampleRate * bytesPerSample)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			d.write(ring, input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.releaseContext(mctx)
		return unavailable(fmt.Errorf("device init failed: %w", err), deviceLabel(d.cfg.Device))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		d.releaseContext(mctx)
		return unavailable(fmt.Errorf("device start failed: %w", err), deviceLabel(d.cfg.Device))
	}

	d.mctx = mctx
	d.device = device
	d.ring = ring
	d.log.Info("capture started",
		logger.Int("sample_rate", d.cfg.SampleRate),
		logger.Int("buffer_bytes", ring.Capacity()))
	return nil
}

func matchDevice(infos []malgo.DeviceInfo, want string) (malgo.DeviceInfo, bool) {
	for i := range infos {
		if infos[i].ID.String() == want || strings.Contains(infos[i].Name(), want) {
			return infos[i], true
		}
	}
	return malgo.DeviceInfo{}, false
}

func (d *DeviceSource) write(ring *ringbuffer.RingBuffer, data []byte) {
	n, err := ring.Write(data)
	if err == nil {
		return
	}
	lost := len(data) - n
	dropped := d.dropped.Add(uint64(lost)) //nolint:gosec // G115: lost is non-negative
	if d.cfg.OnOverflow != nil {
		d.cfg.OnOverflow(lost / bytesPerSample)
	}
	if !d.shouldLog() {
		return
	}
	if errors.Is(err, ringbuffer.ErrIsFull) || errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		d.log.Warn("capture ring buffer full, dropping audio",
			logger.Int("bytes", lost),
			logger.Uint64("dropped_total", dropped))
		return
	}
	d.log.Warn("capture ring buffer write failed", logger.Error(err))
}

// shouldLog reports whether an overflow warning is due.
func (d *DeviceSource) shouldLog() bool {
	now := d.now().UnixNano()
	last := d.lastLog.Load()
	if last != 0 && now-last < int64(overflowLogInterval) {
		return false
	}
	return d.lastLog.CompareAndSwap(last, now)
}

// Read implements Source.
func (d *DeviceSource) Read(dst []float32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ring == nil {
		return 0, errors.Newf("capture device %s is not open", deviceLabel(d.cfg.Device)).
			Component("capture").
			Category(errors.CategoryTransientRead).
			Build()
	}

	want := min(d.ring.Length(), len(dst)*bytesPerSample)
	want -= want % bytesPerSample
	if want == 0 {
		return 0, nil
	}
	if cap(d.raw) < want {
		d.raw = make([]byte, want)
	}
	n, err := d.ring.Read(d.raw[:want])
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, errors.New(err).
			Component("capture").
			Category(errors.CategoryTransientRead).
			Build()
	}
	return ConvertPCM16(dst, d.raw[:n]), nil
}

// Close stops the device. The source can be reopened afterwards.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return nil
	}

	var errs []error
	if err := d.device.Stop(); err != nil {
		errs = append(errs, err)
	}
	d.device.Uninit()
	d.releaseContext(d.mctx)

	d.device = nil
	d.mctx = nil
	d.ring = nil
	d.log.Info("capture stopped", logger.Uint64("dropped_bytes", d.dropped.Load()))

	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("capture").
			Category(errors.CategoryAudio).
			Build()
	}
	return nil
}

func (d *DeviceSource) releaseContext(mctx *malgo.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		d.log.Debug("malgo context uninit failed", logger.Error(err))
	}
	mctx.Free()
}

// ListDevices returns the names of the available capture devices.
func ListDevices(backend string) ([]string, error) {
	mctx, err := malgo.InitContext(backends(backend), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, unavailable(err, "list")
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, unavailable(err, "list")
	}
	names := make([]string, 0, len(infos))
	for i := range infos {
		names = append(names, infos[i].Name())
	}
	return names, nil
}
