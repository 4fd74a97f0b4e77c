package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagd-project/pagd-go/internal/buildinfo"
	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/datastore"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/observability"
	"github.com/pagd-project/pagd-go/internal/scorer"
	"github.com/pagd-project/pagd-go/internal/selector"
	"github.com/pagd-project/pagd-go/internal/testutil"
)

type stubSource struct {
	mu      sync.Mutex
	openErr error
}

func (s *stubSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openErr
}
func (*stubSource) Read([]float32) (int, error) { return 0, nil }
func (*stubSource) Close() error                { return nil }
func (*stubSource) SampleRate() int             { return 16000 }

type stubScorer struct{ labels []string }

func (s stubScorer) Score([]float32) (scorer.Scores, error) {
	out := make(scorer.Scores, len(s.labels))
	for i, l := range s.labels {
		out[i] = scorer.Score{Label: l, Score: 0.9 - float32(i)*0.1}
	}
	return out, nil
}
func (s stubScorer) Categories() []string { return s.labels }
func (stubScorer) WindowSize() int        { return 8 }
func (stubScorer) Close() error           { return nil }

type stubHistory struct {
	detections []datastore.Detection
	from, to   time.Time
	limit      int
}

func (h *stubHistory) Recent(_ context.Context, limit int) ([]datastore.Detection, error) {
	h.limit = limit
	return h.detections, nil
}

func (h *stubHistory) Between(_ context.Context, from, to time.Time) ([]datastore.Detection, error) {
	h.from, h.to = from, to
	return h.detections, nil
}

type fixture struct {
	server  *Server
	sel     *selector.Selector
	yamnet  *classifier.Classifier
	legacy  *classifier.Classifier
	source  *stubSource
	history *stubHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{source: &stubSource{}, history: &stubHistory{}}

	var err error
	f.legacy, err = classifier.New(classifier.Options{
		Name:        "PAGD Legacy model",
		Source:      f.source,
		Scorer:      stubScorer{labels: []string{"Gun1", "Gun2"}},
		Threshold:   0.5,
		CyclePeriod: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	f.yamnet, err = classifier.New(classifier.Options{
		Name:        "Yamnet model",
		Source:      &stubSource{},
		Scorer:      stubScorer{labels: []string{"Gunshot, gunfire", "Speech"}},
		Threshold:   0.5,
		CyclePeriod: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.legacy.Close()
		_ = f.yamnet.Close()
	})

	f.sel, err = selector.New(conf.NewMemoryStore(), "PAGD Legacy model", f.legacy, f.yamnet)
	require.NoError(t, err)

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	f.server, err = New(Options{
		Selector:          f.sel,
		History:           f.history,
		Metrics:           m,
		Build:             buildinfo.New("v0.9.0", "", "north-gate"),
		HeartbeatInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListClassifiers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/classifiers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ClassifierStatus](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "PAGD Legacy model", list[0].Name)
	assert.True(t, list[0].Active)
	assert.False(t, list[1].Active)
	assert.Equal(t, int64(500), list[0].DelayMs)
	assert.Equal(t, 8, list[0].WindowSize)
}

func TestSwitchActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/classifiers/active", `{"name":"Yamnet model"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Yamnet model", decode[ClassifierStatus](t, rec).Name)

	name, _ := f.sel.Active()
	assert.Equal(t, "Yamnet model", name)
	assert.False(t, f.yamnet.IsRecording(), "switching does not start recording")

	rec = f.do(t, http.MethodPut, "/api/v1/classifiers/active", `{"name":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/classifiers/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	path := "/api/v1/classifiers/" + url.PathEscape("PAGD Legacy model")

	rec := f.do(t, http.MethodPost, path+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ClassifierStatus](t, rec).Recording)
	assert.True(t, f.legacy.IsRecording())

	rec = f.do(t, http.MethodPost, path+"/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.legacy.IsRecording())
}

func TestStart_CaptureUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.source.mu.Lock()
	f.source.openErr = errors.NewStd("no microphone permission")
	f.source.mu.Unlock()

	rec := f.do(t, http.MethodPost, "/api/v1/classifiers/"+url.PathEscape("PAGD Legacy model")+"/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.False(t, f.legacy.IsRecording())
}

func TestUnknownClassifier(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/classifiers/missing/threshold", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThresholdAndDelay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	path := "/api/v1/classifiers/" + url.PathEscape("Yamnet model")

	rec := f.do(t, http.MethodPut, path+"/threshold", `{"threshold":0.25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.25, f.yamnet.Threshold(), 1e-7)

	rec = f.do(t, http.MethodPut, path+"/threshold", `{"threshold":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, 0.25, f.yamnet.Threshold(), 1e-7)

	rec = f.do(t, http.MethodPut, path+"/threshold", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, path+"/delay", `{"delayMs":250}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 250*time.Millisecond, f.yamnet.CyclePeriod())

	rec = f.do(t, http.MethodPut, path+"/delay", `{"delayMs":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// one past the largest period a time.Duration can hold
	rec = f.do(t, http.MethodPut, path+"/delay", `{"delayMs":9223372036855}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 250*time.Millisecond, f.yamnet.CyclePeriod())

	rec = f.do(t, http.MethodGet, path+"/delay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delayMs":250}`, rec.Body.String())
}

func TestCategories(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	path := "/api/v1/classifiers/" + url.PathEscape("Yamnet model") + "/categories"

	rec := f.do(t, http.MethodPut, path+"/"+url.PathEscape("Gunshot, gunfire"), `{"included":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]classifier.Category](t, rec)
	assert.Equal(t, []classifier.Category{
		{Title: "Gunshot, gunfire", Included: false},
		{Title: "Speech", Included: true},
	}, cats)

	rec = f.do(t, http.MethodPut, path+"/Fireworks", `{"included":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, path+"/exclude-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.yamnet.AllCategoriesIncluded())

	rec = f.do(t, http.MethodPost, path+"/include-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.yamnet.AllCategoriesIncluded())

	rec = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]classifier.Category](t, rec), 2)
}

func TestLatestAndSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	path := "/api/v1/classifiers/" + url.PathEscape("Yamnet model")

	rec := f.do(t, http.MethodGet, path+"/latest", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	results, unsubscribe := f.yamnet.Subscribe()
	defer unsubscribe()
	require.NoError(t, f.yamnet.Start(context.Background()))
	select {
	case <-results:
	case <-time.After(time.Second):
		t.Fatal("no result")
	}
	require.NoError(t, f.yamnet.Stop())

	rec = f.do(t, http.MethodGet, path+"/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[classifier.Result](t, rec)
	assert.Equal(t, "Gunshot", r.Category)
	assert.Equal(t, "gunfire", r.SpecificType)

	rec = f.do(t, http.MethodGet, path+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gunshot, gunfire -> 0.900")
}

func TestDetections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.history.detections = []datastore.Detection{{ReportID: "r1", Category: "Gunshot"}}

	rec := f.do(t, http.MethodGet, "/api/v1/detections?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.history.limit)
	assert.Len(t, decode[[]datastore.Detection](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/v1/detections?from=2026-01-01T00:00:00Z&to=2026-01-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2026, f.history.from.Year())
	assert.Equal(t, 2, f.history.to.Day())

	rec = f.do(t, http.MethodGet, "/api/v1/detections?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/detections?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetections_HistoryDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s, err := New(Options{Selector: f.sel})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/detections", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/v1/classifiers", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/classifiers"`)

	rec = f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "PAGD Legacy model", health["active"])
	assert.Equal(t, "v0.9.0", health["version"])
	assert.Equal(t, "north-gate", health["node"])
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	build := func(cat errors.ErrorCategory) error {
		return errors.Newf("x").Category(cat).Build()
	}
	assert.Equal(t, http.StatusNotFound, statusFor(build(errors.CategoryNotFound)))
	assert.Equal(t, http.StatusBadRequest, statusFor(build(errors.CategoryValidation)))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(build(errors.CategoryCaptureUnavailable)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(build(errors.CategoryDatabase)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.NewStd("plain")))
}

func TestStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.sel.SwitchActive("Yamnet model"))

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, f.yamnet.Start(context.Background()))

	events := map[string]string{}
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			events[event] = strings.TrimPrefix(line, "data: ")
		}
		if events["result"] != "" && events["heartbeat"] != "" {
			break
		}
	}

	require.Contains(t, events, "connected")
	assert.Contains(t, events["connected"], `"active":"Yamnet model"`)

	var r classifier.Result
	require.NoError(t, json.Unmarshal([]byte(events["result"]), &r))
	assert.Equal(t, "Yamnet model", r.Classifier)
	assert.Equal(t, "Gunshot", r.Category)

	cancel()
	require.NoError(t, f.yamnet.Stop())
}

func TestShutdownEndsStreams(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()
	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	resp, err := client.Get(srv.URL + "/api/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.NoError(t, f.server.Shutdown())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	testutil.WaitForChannel(t, done, 2*time.Second, "stream not closed on shutdown")
}
