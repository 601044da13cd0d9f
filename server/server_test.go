package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/go-plot-queue/analysis"
	"github.com/jupark12/go-plot-queue/dataset"
	"github.com/jupark12/go-plot-queue/events"
	"github.com/jupark12/go-plot-queue/importer"
	"github.com/jupark12/go-plot-queue/ledger"
	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/queue"
	"github.com/jupark12/go-plot-queue/service"
	"github.com/jupark12/go-plot-queue/store"
	"github.com/jupark12/go-plot-queue/worker"
)

const patients = `[{"PatientID":1,"BMI":"24","TumorSize":"2.5"},{"PatientID":2,"BMI":"bad","TumorSize":"4.2"}]`

type testEnv struct {
	store  *store.Memory
	ledger *ledger.Ledger
	queue  *queue.PlotJobQueue
	cache  *dataset.Cache
	bus    *events.Bus
	srv    *Server
	http   *httptest.Server
}

// fetchFunc serves a fixed catalog download through the importer's decoder.
type fetchFunc func(ctx context.Context, source, file string) ([]models.Record, error)

func (f fetchFunc) Fetch(ctx context.Context, source, file string) ([]models.Record, error) {
	return f(ctx, source, file)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithFetcher(t, nil)
}

func newTestEnvWithFetcher(t *testing.T, fetcher service.Fetcher) *testEnv {
	t.Helper()
	s := store.NewMemory("", nil)
	env := &testEnv{
		store:  s,
		ledger: ledger.New(s, "job_status", "job_result"),
		queue:  queue.NewPlotJobQueue(s, "job_queue", nil),
		cache:  dataset.NewCache(s, "raw_data", ""),
		bus:    events.NewBus(s, "job_events", nil),
	}
	analytics := service.NewAnalytics(s, env.cache, env.ledger, env.queue, fetcher, nil)
	env.srv = NewServer(analytics, env.bus, ":0", nil)
	env.http = httptest.NewServer(env.srv.Router())
	t.Cleanup(env.http.Close)
	return env
}

// runWorker drains the queue in the background for the rest of the test.
func (e *testEnv) runWorker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.NewWorker("worker-1", e.queue, e.ledger, e.cache, analysis.Render, nil)
	w.SetNotifier(e.bus.Notify)
	done := w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestDataEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/data", patients)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Uploaded 2 records.", decode(t, body)["message"])

	resp, body = env.do(t, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, patients, string(body))

	resp, body = env.do(t, http.MethodGet, "/data/2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"PatientID":2,"BMI":"bad","TumorSize":"4.2"}`, string(body))

	resp, _ = env.do(t, http.MethodGet, "/data/99", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/data", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/data", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestUploadRejectsNonList(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{"PatientID":1}`, `not json`, `[1,2]`} {
		resp, data := env.do(t, http.MethodPost, "/data", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "Expected a list of records", decode(t, data)["error"])
	}
}

func TestSubmitJob(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/job", `{"x_field":"BMI","y_field":"TumorSize"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	got := decode(t, body)
	assert.Equal(t, "Job submitted", got["message"])
	assert.Equal(t, "queued", got["status"])
	jobID, _ := got["job_id"].(string)
	require.NotEmpty(t, jobID)

	resp, body = env.do(t, http.MethodGet, "/job/"+jobID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"job_id": jobID, "status": "queued"}, decode(t, body))

	resp, body = env.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{jobID: "queued"}, decode(t, body)["jobs"])
}

func TestSubmitJobBadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"x_field":`},
		{"missing y", `{"x_field":"BMI"}`},
		{"unknown plot type", `{"x_field":"BMI","y_field":"TumorSize","plot_type":"pie"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPost, "/job", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, env.store.Len("job_queue"))
}

func TestUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/job/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Job not found", decode(t, body)["error"])

	resp, body = env.do(t, http.MethodGet, "/result/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Result not found or job not completed", decode(t, body)["error"])
}

func TestEndToEndScatter(t *testing.T) {
	env := newTestEnv(t)
	env.runWorker(t)

	resp, _ := env.do(t, http.MethodPost, "/data", patients)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := env.do(t, http.MethodPost, "/job", `{"x_field":"BMI","y_field":"TumorSize"}`)
	jobID := decode(t, body)["job_id"].(string)

	require.Eventually(t, func() bool {
		_, body := env.do(t, http.MethodGet, "/job/"+jobID, "")
		return decode(t, body)["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	resp, image := env.do(t, http.MethodGet, "/result/"+jobID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "result_"+jobID+".png")
	_, err := png.Decode(bytes.NewReader(image))
	require.NoError(t, err)
}

func TestEndToEndFailures(t *testing.T) {
	env := newTestEnv(t)
	env.runWorker(t)

	// No dataset loaded yet.
	_, body := env.do(t, http.MethodPost, "/job", `{"x_field":"BMI","y_field":"TumorSize"}`)
	jobID := decode(t, body)["job_id"].(string)

	require.Eventually(t, func() bool {
		_, body := env.do(t, http.MethodGet, "/job/"+jobID, "")
		return decode(t, body)["status"] == "failed: dataset not loaded"
	}, 5*time.Second, 20*time.Millisecond)

	resp, _ := env.do(t, http.MethodGet, "/result/"+jobID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/admin/snapshot", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.store.WaitSnapshot()
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(models.ErrValidation))
	assert.Equal(t, http.StatusNotFound, statusFor(models.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrSnapshotInProgress))
	assert.Equal(t, http.StatusInternalServerError, statusFor(models.ErrDependency))
}

func TestImportWithoutCatalog(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/data/import", `{"source":"clinical","file":"patients.csv"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/data/import", `{"source":"clinical"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportBrokenArchive(t *testing.T) {
	downloads := map[string][]byte{
		"broken.zip":   []byte("PK nope"),
		"patients.csv": []byte("PatientID,BMI\n1,24\n"),
	}
	env := newTestEnvWithFetcher(t, fetchFunc(func(_ context.Context, _, file string) ([]models.Record, error) {
		return importer.Decode(file, downloads[file])
	}))

	resp, body := env.do(t, http.MethodPost, "/data/import", `{"source":"clinical","file":"broken.zip"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decode(t, body)["error"], "open zip archive")

	resp, body = env.do(t, http.MethodPost, "/data/import", `{"source":"clinical","file":"patients.csv"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Imported 1 records from clinical/patients.csv.", decode(t, body)["message"])
}

func TestHelpAndHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/help", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	routes, ok := decode(t, body)["routes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, routes, "/result/{id}")

	resp, body = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestWebSocketReceivesJobEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, env.srv.startBackground(ctx))

	require.NoError(t, env.ledger.SetStatus(ctx, "j1", models.StatusQueued))

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var initial map[string]any
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "initial_jobs", initial["type"])
	assert.Equal(t, map[string]any{"j1": "queued"}, initial["jobs"])

	require.Eventually(t, func() bool {
		return env.srv.wsManager.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	env.bus.Notify(models.JobEvent{JobID: "j1", Status: models.Failed("insufficient data")})

	var update map[string]any
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, map[string]any{
		"type":   "job_update",
		"job_id": "j1",
		"status": "failed",
		"error":  "insufficient data",
	}, update)
}
