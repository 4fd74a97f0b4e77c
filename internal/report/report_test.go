package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/scorer"
	chanutil "github.com/pagd-project/pagd-go/internal/testutil"
)

type recordingSink struct {
	mu      sync.Mutex
	name    string
	err     error
	reports []Report
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) received() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.reports...)
}

var testBuilder = Builder{
	Node:          "node-1",
	Location:      conf.LocationSettings{Latitude: 60.1, Longitude: 24.9, Altitude: 12},
	DefaultWeapon: "Rifle",
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := testBuilder.Build(classifier.Result{
		Classifier:   "Yamnet model",
		Timestamp:    ts,
		Category:     "Gunshot",
		SpecificType: "gunfire",
		Label:        "Gunshot, gunfire",
		Score:        0.8,
	})

	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.Equal(t, "node-1", r.Node)
	assert.Equal(t, ts, r.Timestamp)
	assert.InDelta(t, 60.1, r.Latitude, 1e-9)
	assert.Equal(t, "gunfire", r.Gun)
	assert.Equal(t, "Gunshot", r.Category)
	assert.Equal(t, "Yamnet model", r.Classifier)
}

func TestBuilder_UnlabelledUsesDefaultWeapon(t *testing.T) {
	t.Parallel()

	r := testBuilder.Build(classifier.Result{Category: scorer.Unlabelled, SpecificType: scorer.Unlabelled, Score: 0.9})
	assert.Equal(t, "Rifle", r.Gun)
	assert.Equal(t, scorer.Unlabelled, r.SpecificType)

	a, b := testBuilder.Build(classifier.Result{}), testBuilder.Build(classifier.Result{})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPipeline_DeliversToEverySink(t *testing.T) {
	t.Parallel()

	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.NewStd("offline")}

	m, err := metrics.NewReportMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p := NewPipeline(testBuilder, 0, m, bad, good)
	assert.True(t, p.Handle(context.Background(), classifier.Result{Category: "Gunshot"}))
	assert.True(t, p.Handle(context.Background(), classifier.Result{Category: "Gunshot"}), "no cooldown")

	assert.Len(t, good.received(), 2)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SinkErrors.WithLabelValues("bad")), 0)
}

func TestPipeline_Cooldown(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "s"}
	m, err := metrics.NewReportMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	p := NewPipeline(testBuilder, 50*time.Millisecond, m, sink)
	ctx := context.Background()

	assert.True(t, p.Handle(ctx, classifier.Result{Category: "Gunshot"}))
	assert.False(t, p.Handle(ctx, classifier.Result{Category: "Gunshot"}))
	assert.True(t, p.Handle(ctx, classifier.Result{Category: "Explosion"}), "cooldown is per category")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Suppressed.WithLabelValues("Gunshot")), 0)

	time.Sleep(80 * time.Millisecond)
	assert.True(t, p.Handle(ctx, classifier.Result{Category: "Gunshot"}))
	assert.Len(t, sink.received(), 3)
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "s"}
	p := NewPipeline(testBuilder, 0, nil, sink)

	results := make(chan classifier.Result)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), results) }()

	results <- classifier.Result{Category: "a"}
	results <- classifier.Result{Category: "b"}
	close(results)

	require.NoError(t, <-done)
	got := sink.received()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Category)
	assert.Equal(t, "b", got[1].Category)
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	p := NewPipeline(testBuilder, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, make(chan classifier.Result)) }()

	cancel()
	require.NoError(t, chanutil.Receive(t, done, chanutil.ShortTestTimeout))
}

func resultFixture() classifier.Result {
	return classifier.Result{
		Classifier:   "PAGD Legacy model",
		Timestamp:    time.Now(),
		Category:     "Gunshot",
		SpecificType: scorer.Unlabelled,
		Label:        "Gun1",
		Score:        0.91,
	}
}
