package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/report"
)

func openTestStore(t *testing.T, m *metrics.DatastoreMetrics) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history", "pagd.db"), m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func reportAt(ts time.Time, category string) report.Report {
	return report.Report{
		ID:         uuid.New(),
		Node:       "node-1",
		Timestamp:  ts,
		Category:   category,
		Gun:        "Rifle",
		Score:      0.75,
		Classifier: "PAGD Legacy model",
		Latitude:   60.17,
		Longitude:  24.94,
	}
}

func TestStore_SaveAndRecent(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := openTestStore(t, m)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, cat := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, reportAt(base.Add(time.Duration(i)*time.Minute), cat)))
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Category)
	assert.Equal(t, "b", recent[1].Category)
	assert.Equal(t, "Rifle", recent[0].Gun)
	assert.InDelta(t, 0.75, recent[0].Score, 1e-6)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.InDelta(t, 3, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpDbInsert, "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Operations.WithLabelValues(metrics.OpDbQuery, "success")), 0)
}

func TestStore_Between(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, s.Save(ctx, reportAt(base.Add(time.Duration(i)*time.Hour), "Gunshot")))
	}

	got, err := s.Between(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Hour)))
	assert.True(t, got[1].Timestamp.Equal(base.Add(2*time.Hour)))

	_, err = s.Between(ctx, base, base)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestStore_IsReportSink(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	p := report.NewPipeline(report.Builder{DefaultWeapon: "Rifle"}, 0, nil, s)

	p.Handle(context.Background(), resultFor("Gunshot"))

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "datastore", s.Name())
	assert.Equal(t, "Gunshot", got[0].Category)
	assert.NotEmpty(t, got[0].ReportID)
}

func TestStore_DuplicateReportRejected(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	r := reportAt(time.Now(), "Gunshot")

	require.NoError(t, s.Save(context.Background(), r))
	err := s.Save(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func resultFor(category string) classifier.Result {
	return classifier.Result{Classifier: "Yamnet model", Timestamp: time.Now(), Category: category, SpecificType: "gunfire", Score: 0.9}
}

func TestOpenMySQL_RejectsBadDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenMySQL("pagd:secret@tcp(localhost:3306)/pagd", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), "parseTime is required")

	_, err = OpenMySQL("not a dsn", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestOpenSettings_SQLite(t *testing.T) {
	t.Parallel()

	s, err := OpenSettings(conf.DatastoreSettings{
		Enabled: true,
		Driver:  conf.DriverSQLite,
		Path:    filepath.Join(t.TempDir(), "pagd.db"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
