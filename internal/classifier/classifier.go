// Package classifier runs the classification loop: it slides captured
// audio into a window, band-limits and scores it each cycle, and emits
// the best included category at or above the threshold.
package classifier

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagd-project/pagd-go/internal/capture"
	"github.com/pagd-project/pagd-go/internal/dsp"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/scorer"
)

// Sentinels for per-cycle failures. They are logged and counted, never
// returned to callers.
var (
	ErrTransientRead  = errors.NewStd("transient capture read failure")
	ErrTransientScore = errors.NewStd("transient scoring failure")
)

// transientLogInterval limits how often a repeating transient error is logged.
const transientLogInterval = 30 * time.Second

// Options configures a Classifier.
type Options struct {
	Name        string
	Source      capture.Source
	Scorer      scorer.Scorer
	PreFilter   dsp.PreFilter // nil scores the raw window
	Threshold   float32
	CyclePeriod time.Duration
	Metrics     *metrics.ClassifierMetrics
	Clock       func() time.Time // nil uses time.Now

	// SubscriberBuffer is the channel capacity of each Subscribe call.
	SubscriberBuffer int
}

// Classifier is one classification loop and its control surface. Control
// methods are safe to call from any goroutine while the loop runs.
type Classifier struct {
	name      string
	source    capture.Source
	scorer    scorer.Scorer
	prefilter dsp.PreFilter
	window    *capture.Buffer
	metrics   *metrics.ClassifierMetrics
	now       func() time.Time
	log       logger.Logger

	threshold atomic.Uint32 // math.Float32bits
	period    atomic.Int64

	titles []string // fixed, scorer order

	// The map behind included is never modified once stored, so the cycle
	// reads it without locking. Writers serialise on catMu and swap a copy.
	catMu    sync.Mutex
	included atomic.Pointer[map[string]bool]

	listener atomic.Pointer[Listener]
	hub      *broadcaster
	latest   atomic.Pointer[Result]
	summary  atomic.Pointer[string]

	lifeMu    sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	recording atomic.Bool

	// Lock-free views of the loop for calls made from inside the listener,
	// which runs on the cycle goroutine.
	loopCancel atomic.Pointer[context.CancelFunc]
	loopDone   atomic.Pointer[chan struct{}]
	inListener atomic.Bool
	halted     atomic.Bool // set by Stop, suppresses emission of the in-flight result
	detached   atomic.Bool // loop closes the source itself on exit
	sourceOpen atomic.Bool

	// touched only by the cycle goroutine
	lastTransientLog map[string]time.Time
}

// New returns a stopped classifier with every category included.
func New(opts Options) (*Classifier, error) {
	if opts.Source == nil || opts.Scorer == nil {
		return nil, errors.Newf("classifier %q needs a capture source and a scorer", opts.Name).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := validateThreshold(opts.Threshold); err != nil {
		return nil, err
	}
	if opts.CyclePeriod < 0 {
		return nil, invalidPeriod(opts.CyclePeriod)
	}

	c := &Classifier{
		name:             opts.Name,
		source:           opts.Source,
		scorer:           opts.Scorer,
		prefilter:        opts.PreFilter,
		window:           capture.NewBuffer(opts.Scorer.WindowSize()),
		metrics:          opts.Metrics,
		now:              opts.Clock,
		log:              GetLogger().With(logger.String("classifier", opts.Name)),
		titles:           opts.Scorer.Categories(),
		lastTransientLog: make(map[string]time.Time),
	}
	if c.prefilter == nil {
		c.prefilter = dsp.Passthrough{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.hub = newBroadcaster(opts.SubscriberBuffer, func() { c.metrics.RecordDroppedEvent(c.name) })

	inclusion := make(map[string]bool, len(c.titles))
	for _, t := range c.titles {
		inclusion[t] = true
	}
	c.included.Store(&inclusion)

	c.threshold.Store(math.Float32bits(opts.Threshold))
	c.period.Store(int64(opts.CyclePeriod))
	c.metrics.SetThreshold(c.name, opts.Threshold)
	c.metrics.SetRecording(c.name, false)

	return c, nil
}

// Name returns the classifier name.
func (c *Classifier) Name() string {
	return c.name
}

// Scorer returns the scorer the classifier owns.
func (c *Classifier) Scorer() scorer.Scorer {
	return c.scorer
}

// Start opens the capture source and starts the cycle goroutine. It is a
// no-op while recording. A capture failure leaves the classifier stopped
// and matches capture.ErrCaptureUnavailable. The loop outlives ctx; only
// Stop ends it.
func (c *Classifier) Start(ctx context.Context) error {
	if c.inListener.Load() {
		if c.recording.Load() {
			return nil
		}
		return errors.Newf("classifier %q cannot restart from its own listener", c.name).
			Component("classifier").
			Category(errors.CategoryState).
			Build()
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.done != nil {
		if c.halted.Load() {
			// stopped from the listener, the loop is on its way out
			<-c.done
		}
		select {
		case <-c.done:
			// the loop ended on its own when the source ran dry
			_ = c.releaseLocked()
		default:
			return nil
		}
	}

	if err := c.source.Open(ctx); err != nil {
		c.log.Warn("start failed, capture unavailable", logger.Error(err))
		if !errors.Is(err, capture.ErrCaptureUnavailable) {
			err = errors.New(fmt.Errorf("%w: %w", capture.ErrCaptureUnavailable, err)).
				Component("classifier").
				Category(errors.CategoryCaptureUnavailable).
				Context("classifier", c.name).
				Build()
		}
		return err
	}
	c.sourceOpen.Store(true)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.loopCancel.Store(&cancel)
	c.loopDone.Store(&done)
	c.halted.Store(false)
	c.detached.Store(false)
	c.recording.Store(true)
	c.metrics.SetRecording(c.name, true)

	go c.run(loopCtx, done)

	c.log.Info("classifier started",
		logger.Int("window_size", c.window.Len()),
		logger.Int("sample_rate", c.source.SampleRate()),
		logger.Float32("threshold", c.Threshold()),
		logger.Duration("cycle_period", c.CyclePeriod()))
	return nil
}

// Stop cancels the loop, waits for the in-flight cycle to finish and
// releases the capture source. No result is emitted after Stop returns.
// It is a no-op when stopped.
//
// Called while the listener runs, Stop only cancels the loop and returns;
// the result being delivered reaches no subscriber and the loop releases
// the capture source when it exits.
func (c *Classifier) Stop() error {
	if c.inListener.Load() {
		c.stopFromListener()
		return nil
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.done == nil {
		return nil
	}

	c.halted.Store(true)
	c.recording.Store(false)
	c.cancel()
	<-c.done

	err := c.releaseLocked()
	c.log.Info("classifier stopped")
	return err
}

func (c *Classifier) stopFromListener() {
	if !c.recording.Load() {
		return
	}
	c.halted.Store(true)
	c.detached.Store(true)
	c.recording.Store(false)
	c.metrics.SetRecording(c.name, false)
	if cancel := c.loopCancel.Load(); cancel != nil {
		(*cancel)()
	}
	c.log.Info("classifier stopped from listener")
}

func (c *Classifier) releaseLocked() error {
	c.cancel()
	c.cancel = nil
	c.done = nil
	c.loopCancel.Store(nil)
	c.loopDone.Store(nil)
	c.recording.Store(false)
	c.metrics.SetRecording(c.name, false)
	return c.closeSource()
}

// closeSource closes the capture source once per successful Open.
func (c *Classifier) closeSource() error {
	if !c.sourceOpen.CompareAndSwap(true, false) {
		return nil
	}
	if err := c.source.Close(); err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryAudio).
			Context("classifier", c.name).
			Build()
	}
	return nil
}

// IsRecording reports whether the loop is running.
func (c *Classifier) IsRecording() bool {
	return c.recording.Load()
}

// Done returns a channel closed when the current loop exits, either via
// Stop or because the source reported io.EOF. It is closed already when
// the classifier is stopped.
func (c *Classifier) Done() <-chan struct{} {
	if done := c.loopDone.Load(); done != nil {
		return *done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Close stops the loop, ends every subscription and releases the scorer.
func (c *Classifier) Close() error {
	stopErr := c.Stop()
	c.hub.close()
	return errors.Join(stopErr, c.scorer.Close())
}

func validateThreshold(t float32) error {
	if math.IsNaN(float64(t)) || t < 0 || t > 1 {
		return errors.Newf("threshold %v outside [0, 1]", t).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func invalidPeriod(d time.Duration) error {
	return errors.Newf("cycle period %v must not be negative", d).
		Component("classifier").
		Category(errors.CategoryValidation).
		Build()
}

// SetThreshold sets the probability threshold from the next cycle on.
// Scores equal to the threshold are reported.
func (c *Classifier) SetThreshold(t float32) error {
	if err := validateThreshold(t); err != nil {
		return err
	}
	c.threshold.Store(math.Float32bits(t))
	c.metrics.SetThreshold(c.name, t)
	c.log.Debug("threshold changed", logger.Float32("threshold", t))
	return nil
}

// Threshold returns the probability threshold.
func (c *Classifier) Threshold() float32 {
	return math.Float32frombits(c.threshold.Load())
}

// SetCyclePeriod sets the pause between cycles from the next sleep on.
func (c *Classifier) SetCyclePeriod(d time.Duration) error {
	if d < 0 {
		return invalidPeriod(d)
	}
	c.period.Store(int64(d))
	c.log.Debug("cycle period changed", logger.Duration("cycle_period", d))
	return nil
}

// CyclePeriod returns the pause between cycles.
func (c *Classifier) CyclePeriod() time.Duration {
	return time.Duration(c.period.Load())
}

// RegisterListener sets the push-style listener, replacing any previous one.
func (c *Classifier) RegisterListener(l Listener) {
	if l == nil {
		c.listener.Store(nil)
		return
	}
	c.listener.Store(&l)
}

// UnregisterListener removes the listener.
func (c *Classifier) UnregisterListener() {
	c.listener.Store(nil)
}

// Subscribe returns a stream of results emitted after the call and a
// function ending the subscription. Unsubscribing never stops the loop.
// A subscriber that falls behind misses results instead of blocking the
// cycle.
func (c *Classifier) Subscribe() (<-chan Result, func()) {
	return c.hub.subscribe()
}

// Subscribers returns the number of open subscriptions.
func (c *Classifier) Subscribers() int {
	return c.hub.count()
}

// Latest returns the most recent emitted result.
func (c *Classifier) Latest() (Result, bool) {
	r := c.latest.Load()
	if r == nil {
		return Result{}, false
	}
	return *r, true
}

// Summary lists the included categories at or above threshold in the
// last scored cycle as "label -> score" lines, highest first.
func (c *Classifier) Summary() string {
	s := c.summary.Load()
	if s == nil {
		return ""
	}
	return *s
}

func (c *Classifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if !c.detached.Load() {
			return
		}
		if err := c.closeSource(); err != nil {
			c.log.Warn("failed to release capture source", logger.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if !c.cycle() {
			c.recording.Store(false)
			c.metrics.SetRecording(c.name, false)
			c.log.Info("capture source exhausted, loop finished")
			return
		}

		period := c.CyclePeriod()
		if period <= 0 {
			runtime.Gosched()
			continue
		}
		timer := time.NewTimer(period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle runs capture, filter, score, select and emit once. It returns
// false when the source reports io.EOF.
func (c *Classifier) cycle() bool {
	ts := c.now()

	n, err := c.window.PushFrame(c.source)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false
		}
		c.transient("read", fmt.Errorf("%w: %w", ErrTransientRead, err))
	}

	start := time.Now()
	filtered := c.prefilter.Filter(c.window.Snapshot())
	scores, err := c.scorer.Score(filtered)
	c.metrics.ObserveInference(c.name, time.Since(start).Seconds())
	c.metrics.RecordCycle(c.name, n)

	if err != nil {
		c.transient("score", fmt.Errorf("%w: %w", ErrTransientScore, err))
		return true
	}

	threshold := c.Threshold()
	inclusion := c.inclusion()

	var above []scorer.Score
	best := -1
	for _, s := range scores {
		if s.Score < threshold || !inclusion[s.Label] {
			continue
		}
		above = append(above, s)
		// strict comparison keeps the first of equal maxima
		if best < 0 || s.Score > above[best].Score {
			best = len(above) - 1
		}
	}

	if best < 0 {
		empty := ""
		c.summary.Store(&empty)
		return true
	}

	winner := above[best]
	slices.SortStableFunc(above, func(a, b scorer.Score) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	summary := formatSummary(above)
	c.summary.Store(&summary)

	category, specificType := scorer.ResultName(c.scorer, winner.Label)
	c.emit(Result{
		Classifier:   c.name,
		Timestamp:    ts,
		Category:     category,
		SpecificType: specificType,
		Label:        winner.Label,
		Score:        winner.Score,
	})
	return true
}

func (c *Classifier) emit(r Result) {
	c.latest.Store(&r)
	c.metrics.RecordDetection(c.name, r.Category)

	if l := c.listener.Load(); l != nil {
		c.callListener(*l, r)
		if c.halted.Load() {
			return
		}
	}
	c.hub.publish(r)

	c.log.Debug("classification emitted",
		logger.String("category", r.Category),
		logger.String("specific_type", r.SpecificType),
		logger.Float32("score", r.Score))
}

func (c *Classifier) callListener(l Listener, r Result) {
	c.inListener.Store(true)
	defer c.inListener.Store(false)
	l(r)
}

// transient counts and logs an absorbed per-cycle error, logging each kind
// at most once per transientLogInterval.
func (c *Classifier) transient(kind string, err error) {
	c.metrics.RecordTransientError(c.name, kind)

	now := time.Now()
	if last, ok := c.lastTransientLog[kind]; ok && now.Sub(last) < transientLogInterval {
		return
	}
	c.lastTransientLog[kind] = now
	c.log.Warn("transient cycle error, continuing",
		logger.String("kind", kind),
		logger.Error(err))
}

func loggerCategory(title string) logger.Field {
	return logger.String("category", title)
}

// GetLogger returns the classifier package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("classifier")
}
