package report

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
)

// Pipeline builds a report for every result, suppresses repeats of the
// same category within the cooldown and hands the rest to each sink.
type Pipeline struct {
	builder  Builder
	sinks    []Sink
	cooldown time.Duration
	recent   *cache.Cache
	metrics  *metrics.ReportMetrics
	log      logger.Logger
}

// NewPipeline returns a pipeline delivering to sinks. A zero cooldown
// disables suppression.
func NewPipeline(b Builder, cooldown time.Duration, m *metrics.ReportMetrics, sinks ...Sink) *Pipeline {
	// no janitor goroutine; expired entries are replaced on Add
	return &Pipeline{
		builder:  b,
		sinks:    sinks,
		cooldown: cooldown,
		recent:   cache.New(cooldown, 0),
		metrics:  m,
		log:      GetLogger(),
	}
}

// Run consumes results until ctx ends or results is closed.
func (p *Pipeline) Run(ctx context.Context, results <-chan classifier.Result) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-results:
			if !ok {
				return nil
			}
			p.Handle(ctx, r)
		}
	}
}

// Handle delivers one result. It reports whether the result was sent
// rather than suppressed.
func (p *Pipeline) Handle(ctx context.Context, r classifier.Result) bool {
	if p.cooldown > 0 {
		if err := p.recent.Add(r.Category, struct{}{}, cache.DefaultExpiration); err != nil {
			p.metrics.RecordSuppressed(r.Category)
			p.log.Debug("report suppressed by cooldown",
				logger.String("category", r.Category),
				logger.Duration("cooldown", p.cooldown))
			return false
		}
	}

	report := p.builder.Build(r)
	for _, s := range p.sinks {
		if err := s.Publish(ctx, report); err != nil {
			p.metrics.RecordSinkError(s.Name())
			p.log.Error("report delivery failed",
				logger.String("sink", s.Name()),
				logger.String("report_id", report.ID.String()),
				logger.Error(err))
		}
	}
	return true
}
