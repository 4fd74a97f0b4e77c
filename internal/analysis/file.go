package analysis

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pagd-project/pagd-go/internal/capture"
	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/selector"
)

// FileOptions configures a file replay.
type FileOptions struct {
	Path       string
	Classifier string // "" uses the persisted selection
	Realtime   bool   // pace the replay and keep the configured cycle period
}

// FileAnalysis replays a WAV or FLAC file through one classifier and
// writes every result to out. It returns once the file is exhausted or
// ctx is cancelled.
func FileAnalysis(ctx context.Context, settings *conf.Settings, opts FileOptions, out io.Writer) error {
	cfg, err := resolveClassifier(settings, opts.Classifier)
	if err != nil {
		return err
	}
	conf.ApplyClassifierDefaults(&cfg)

	src := capture.NewFileSource(capture.FileConfig{
		Path:       opts.Path,
		SampleRate: cfg.SampleRate,
		ChunkSize:  cfg.WindowSize,
		Realtime:   opts.Realtime,
	})

	cl, err := BuildClassifier(cfg, src, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.Close(); err != nil {
			GetLogger().Warn("failed to close classifier", logger.Error(err))
		}
	}()

	if !opts.Realtime {
		if err := cl.SetCyclePeriod(0); err != nil {
			return err
		}
	}

	var count int
	// The listener runs on the loop goroutine, so nothing is dropped.
	cl.RegisterListener(func(r classifier.Result) {
		count++
		_, _ = fmt.Fprintln(out, formatResult(r))
	})

	GetLogger().Info("replaying file",
		logger.String("path", opts.Path),
		logger.String("classifier", cfg.Name),
		logger.Bool("realtime", opts.Realtime))

	if err := cl.Start(ctx); err != nil {
		return err
	}

	select {
	case <-cl.Done():
	case <-ctx.Done():
	}
	if err := cl.Stop(); err != nil {
		return err
	}

	GetLogger().Info("file replay finished",
		logger.String("path", opts.Path),
		logger.Int("results", count))
	return nil
}

func formatResult(r classifier.Result) string {
	return fmt.Sprintf("%s\t%s\t%s\t%.3f",
		r.Timestamp.Format(time.RFC3339Nano), r.Category, r.SpecificType, r.Score)
}

// resolveClassifier picks the named classifier, or the persisted
// selection falling back to the configured default and then the first.
func resolveClassifier(settings *conf.Settings, name string) (conf.ClassifierSettings, error) {
	if len(settings.Classifiers) == 0 {
		return conf.ClassifierSettings{}, errors.Newf("no classifiers configured").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if name == "" {
		name = settings.Selector.DefaultClassifier
		if store, err := conf.OpenFileStore(settings.Selector.StorePath); err == nil {
			name = store.Get(conf.SelectedClassifierKey, name)
		}
		if _, ok := settings.Classifier(name); !ok {
			name = settings.Classifiers[0].Name
		}
	}

	cfg, ok := settings.Classifier(name)
	if !ok {
		return conf.ClassifierSettings{}, errors.New(fmt.Errorf("%w: %q", selector.ErrUnknownClassifier, name)).
			Component("analysis").
			Category(errors.CategoryNotFound).
			Build()
	}
	return cfg, nil
}
