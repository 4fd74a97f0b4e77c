package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagd-project/pagd-go/internal/api"
	"github.com/pagd-project/pagd-go/internal/buildinfo"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/datastore"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability"
	"github.com/pagd-project/pagd-go/internal/report"
	"github.com/pagd-project/pagd-go/internal/selector"
	"github.com/pagd-project/pagd-go/internal/telemetry"
)

const (
	mqttConnectTimeout = 30 * time.Second
	telemetryFlushWait = 2 * time.Second
)

// RealtimeAnalysis runs the live service until ctx is cancelled: the
// active classifier's loop, the report pipeline and the HTTP API.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, build buildinfo.BuildInfo) error {
	log := GetLogger()

	if err := telemetry.InitSentry(settings.Telemetry, build.GetVersion()); err != nil {
		log.Warn("telemetry unavailable", logger.Error(err))
	}
	defer telemetry.Flush(telemetryFlushWait)

	m, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	classifiers, err := BuildClassifiers(settings, DeviceSources(settings.Audio, m.Classifier), m.Classifier)
	if err != nil {
		return err
	}
	defer closeClassifiers(classifiers)

	store, err := conf.OpenFileStore(settings.Selector.StorePath)
	if err != nil {
		return err
	}
	sel, err := selector.New(store, settings.Selector.DefaultClassifier, classifiers...)
	if err != nil {
		return err
	}
	followSwitches(sel, m)

	sinks, cleanup, err := openSinks(ctx, settings, m)
	if err != nil {
		return err
	}
	defer cleanup()

	activeName, active := sel.Active()
	log.Info("starting realtime analysis",
		logger.String("node", build.GetNodeName()),
		logger.String("version", build.GetVersion()),
		logger.String("active", activeName),
		logger.Int("classifiers", len(classifiers)),
		logger.Int("sinks", len(sinks)))

	if err := active.Start(ctx); err != nil {
		// The operator can retry from the API once the device is back.
		log.Error("failed to start active classifier",
			logger.String("classifier", activeName),
			logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(sinks) > 0 {
		pipeline := report.NewPipeline(report.Builder{
			Node:          settings.Main.Name,
			Location:      settings.Location,
			DefaultWeapon: settings.MQTT.DefaultWeapon,
		}, settings.MQTT.Cooldown, m.Report, sinks...)
		g.Go(func() error {
			return pipeline.Run(gctx, sel.ActiveResults(gctx))
		})
	}

	if settings.WebServer.Enabled {
		var history api.History
		for _, s := range sinks {
			if h, ok := s.(api.History); ok {
				history = h
			}
		}
		server, err := api.New(api.Options{
			Listen:   settings.WebServer.Listen,
			Selector: sel,
			History:  history,
			Metrics:  m,
			Build:    build,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	log.Info("shutting down realtime analysis")
	return err
}

// followSwitches keeps the selector gauges current and starts a newly
// selected classifier that is not recording yet. The previous one keeps
// running until it is stopped through the API.
func followSwitches(sel *selector.Selector, m *observability.Metrics) {
	name, _ := sel.Active()
	m.Selector.SetActive(name)

	sel.OnSwitch(func(from, to string) {
		m.Selector.RecordSwitch(from, to)
		m.Selector.SetActive(to)
		startIfIdle(sel, to)
	})
}

func startIfIdle(sel *selector.Selector, name string) {
	cl, ok := sel.Get(name)
	if !ok || cl.IsRecording() {
		return
	}
	if err := cl.Start(context.Background()); err != nil {
		GetLogger().Error("failed to start selected classifier",
			logger.String("classifier", name),
			logger.Error(err))
	}
}

// openSinks returns the enabled report sinks and a cleanup closing them.
// An unreachable MQTT broker does not stop startup.
func openSinks(ctx context.Context, settings *conf.Settings, m *observability.Metrics) ([]report.Sink, func(), error) {
	log := GetLogger()
	var (
		sinks   []report.Sink
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("failed to close report sink", logger.Error(err))
			}
		}
	}

	if settings.Datastore.Enabled {
		store, err := datastore.OpenSettings(settings.Datastore, m.Datastore)
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	if settings.MQTT.Enabled {
		publisher := report.NewMQTTPublisher(report.MQTTConfigFromSettings(settings.MQTT, settings.Main.Name), m.Report)
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := publisher.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Warn("MQTT broker unreachable, reports fail until it connects", logger.Error(err))
		}
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	return sinks, cleanup, nil
}
