package analysis

import (
	"fmt"
	"io"

	"github.com/pagd-project/pagd-go/internal/capture"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/scorer"
)

// PrintLabels writes the category list of the named classifier, or of
// every configured classifier when name is empty. Models are not loaded.
func PrintLabels(settings *conf.Settings, name string, out io.Writer) error {
	targets := settings.Classifiers
	if name != "" {
		cfg, err := resolveClassifier(settings, name)
		if err != nil {
			return err
		}
		targets = []conf.ClassifierSettings{cfg}
	}

	for i, cfg := range targets {
		conf.ApplyClassifierDefaults(&cfg)
		labels, err := categories(cfg)
		if err != nil {
			return err
		}
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		_, _ = fmt.Fprintf(out, "%s (%s, %d categories)\n", cfg.Name, cfg.Kind, len(labels))
		for _, l := range labels {
			_, _ = fmt.Fprintf(out, "  %s\n", l)
		}
	}
	return nil
}

func categories(cfg conf.ClassifierSettings) ([]string, error) {
	if cfg.Kind == conf.KindMultiLabel && cfg.LabelPath != "" {
		return scorer.LoadLabels(cfg.LabelPath)
	}
	return cfg.Labels, nil
}

// listDevices is replaced in tests.
var listDevices = capture.ListDevices

// PrintDevices writes the capture devices available through backend, one
// per line.
func PrintDevices(backend string, out io.Writer) error {
	names, err := listDevices(backend)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(out, n)
	}
	return nil
}
