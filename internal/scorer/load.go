package scorer

import (
	"fmt"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// openInterpreter is replaced in tests.
var openInterpreter = func(path string, opts TFLiteOptions) (Interpreter, error) {
	return LoadTFLite(path, opts)
}

// Load builds the scorer described by cfg. A failure affects only this
// classifier; the error matches ErrModelLoad.
func Load(cfg conf.ClassifierSettings) (Scorer, error) {
	opts := TFLiteOptions{Threads: cfg.Threads, UseXNNPACK: cfg.UseXNNPACK}

	switch cfg.Kind {
	case conf.KindTwoStage:
		signature, err := openInterpreter(cfg.SignaturePath, opts)
		if err != nil {
			return nil, err
		}
		model, err := openInterpreter(cfg.ModelPath, opts)
		if err != nil {
			_ = signature.Close()
			return nil, err
		}
		s, err := NewTwoStage(signature, model, cfg.Labels, cfg.WindowSize)
		if err != nil {
			_ = signature.Close()
			_ = model.Close()
			return nil, err
		}
		logLoaded(cfg, len(cfg.Labels))
		return s, nil

	case conf.KindMultiLabel:
		labels := cfg.Labels
		if cfg.LabelPath != "" {
			var err error
			if labels, err = LoadLabels(cfg.LabelPath); err != nil {
				return nil, err
			}
		}
		model, err := openInterpreter(cfg.ModelPath, opts)
		if err != nil {
			return nil, err
		}
		s, err := NewMultiLabel(model, labels, cfg.WindowSize)
		if err != nil {
			_ = model.Close()
			return nil, err
		}
		logLoaded(cfg, len(labels))
		return s, nil

	default:
		return nil, modelLoadError(fmt.Errorf("unknown classifier kind %q", cfg.Kind), cfg.ModelPath, cfg.Kind)
	}
}

func logLoaded(cfg conf.ClassifierSettings, labels int) {
	GetLogger().Info("scorer ready",
		logger.String("classifier", cfg.Name),
		logger.String("kind", cfg.Kind),
		logger.Int("labels", labels),
		logger.Int("window_size", cfg.WindowSize))
}
