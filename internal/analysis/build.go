// Package analysis assembles classifiers and the services around them for
// the realtime and file commands.
package analysis

import (
	"fmt"

	"github.com/pagd-project/pagd-go/internal/capture"
	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/dsp"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/scorer"
)

// loadScorer is replaced in tests.
var loadScorer = scorer.Load

// SourceFactory returns the capture source a classifier reads from.
type SourceFactory func(cfg conf.ClassifierSettings) capture.Source

// DeviceSources opens the configured capture device at each classifier's
// sample rate. Samples lost to a full capture buffer are counted under the
// classifier's name.
func DeviceSources(audio conf.AudioSettings, m *metrics.ClassifierMetrics) SourceFactory {
	return func(cfg conf.ClassifierSettings) capture.Source {
		name := cfg.Name
		return capture.NewDeviceSource(capture.DeviceConfig{
			Device:        audio.Source,
			Backend:       audio.Backend,
			SampleRate:    cfg.SampleRate,
			BufferSeconds: audio.BufferSeconds,
			OnOverflow: func(samples int) {
				m.RecordCaptureOverflow(name, samples)
			},
		})
	}
}

// BuildClassifier loads the scorer and pre-filter described by cfg and
// wraps them in a stopped classifier reading from src.
func BuildClassifier(cfg conf.ClassifierSettings, src capture.Source, m *metrics.ClassifierMetrics) (*classifier.Classifier, error) {
	conf.ApplyClassifierDefaults(&cfg)

	sc, err := loadScorer(cfg)
	if err != nil {
		return nil, err
	}

	prefilter, err := newPreFilter(cfg)
	if err != nil {
		_ = sc.Close()
		return nil, err
	}

	cl, err := classifier.New(classifier.Options{
		Name:        cfg.Name,
		Source:      src,
		Scorer:      sc,
		PreFilter:   prefilter,
		Threshold:   cfg.Threshold,
		CyclePeriod: cfg.CyclePeriod,
		Metrics:     m,
	})
	if err != nil {
		_ = sc.Close()
		return nil, err
	}
	return cl, nil
}

// newPreFilter returns nil when the classifier has no low cut configured.
func newPreFilter(cfg conf.ClassifierSettings) (dsp.PreFilter, error) {
	if cfg.LowCutHz <= 0 {
		return nil, nil
	}
	low, high := dsp.CutoffsFromHz(cfg.SampleRate, cfg.LowCutHz, cfg.HighCutHz)
	f, err := dsp.NewBandPassFilter(dsp.BandPassConfig{
		SampleRate: cfg.SampleRate,
		LowCut:     low,
		HighCut:    high,
		Passes:     cfg.FilterPasses,
	})
	if err != nil {
		return nil, err
	}
	eff := f.Config()
	GetLogger().Debug("pre-filter configured",
		logger.String("classifier", cfg.Name),
		logger.Float64("low_cut_hz", eff.LowCut*float64(eff.SampleRate)),
		logger.Float64("high_cut_hz", eff.HighCut*float64(eff.SampleRate)),
		logger.Int("passes", eff.Passes))
	return f, nil
}

// BuildClassifiers builds every configured classifier in order. One that
// fails to load is logged and skipped; an error is returned only when
// nothing could be built.
func BuildClassifiers(settings *conf.Settings, sources SourceFactory, m *metrics.ClassifierMetrics) ([]*classifier.Classifier, error) {
	log := GetLogger()
	built := make([]*classifier.Classifier, 0, len(settings.Classifiers))

	for _, cfg := range settings.Classifiers {
		cl, err := BuildClassifier(cfg, sources(cfg), m)
		if err != nil {
			log.Error("classifier skipped",
				logger.String("classifier", cfg.Name),
				logger.String("kind", cfg.Kind),
				logger.Error(err))
			continue
		}
		built = append(built, cl)
	}

	if len(built) == 0 {
		return nil, errors.New(fmt.Errorf("none of %d configured classifiers could be loaded", len(settings.Classifiers))).
			Component("analysis").
			Category(errors.CategoryModelLoad).
			Build()
	}
	return built, nil
}

// closeClassifiers stops and releases every classifier.
func closeClassifiers(classifiers []*classifier.Classifier) {
	for _, cl := range classifiers {
		if err := cl.Close(); err != nil {
			GetLogger().Warn("failed to close classifier",
				logger.String("classifier", cl.Name()),
				logger.Error(err))
		}
	}
}

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
