package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/jupark12/go-plot-queue/events"
	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/service"
	"github.com/jupark12/go-plot-queue/store"
)

const (
	maxBodyBytes      = 32 << 20
	resubscribeDelay  = 2 * time.Second
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server handles HTTP requests for datasets and plot jobs
type Server struct {
	analytics *service.Analytics
	events    *events.Bus
	httpAddr  string
	wsManager *models.WebSocketManager
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewServer creates a new server instance. bus may be nil, in which case
// websocket clients only receive the initial job list.
func NewServer(analytics *service.Analytics, bus *events.Bus, httpAddr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		analytics: analytics,
		events:    bus,
		httpAddr:  httpAddr,
		wsManager: models.NewWebSocketManager(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(cors)

	r.Get("/help", s.handleHelp)
	r.Get("/healthz", s.handleHealth)

	r.Route("/data", func(r chi.Router) {
		r.Post("/", s.handleUploadData)
		r.Get("/", s.handleGetData)
		r.Delete("/", s.handleDeleteData)
		r.Post("/import", s.handleImportData)
		r.Get("/{id}", s.handleGetRecord)
	})

	r.Post("/job", s.handleSubmitJob)
	r.Get("/job/{id}", s.handleJobStatus)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/result/{id}", s.handleResult)
	r.Post("/admin/snapshot", s.handleSnapshot)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startBackground(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// startBackground runs the websocket hub and relays job events to it.
func (s *Server) startBackground(ctx context.Context) error {
	s.wsManager.Start(ctx)
	if s.events == nil {
		return nil
	}

	updates, err := s.events.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to job events: %w", err)
	}
	go s.relayEvents(ctx, updates)
	return nil
}

// relayEvents forwards job events to websocket clients, resubscribing if the
// store drops the subscription.
func (s *Server) relayEvents(ctx context.Context, updates <-chan models.JobEvent) {
	for {
		for event := range updates {
			s.wsManager.BroadcastJobEvent(event)
		}
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("job event subscription closed, resubscribing")
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
			var err error
			updates, err = s.events.Subscribe(ctx)
			if err == nil {
				break
			}
			s.logger.Error("failed to resubscribe to job events", "error", err)
		}
	}
}

func (s *Server) handleHelp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": map[string]string{
			"/help":           "GET - Show available routes",
			"/healthz":        "GET - Store health check",
			"/data":           "POST/GET/DELETE - Manage dataset",
			"/data/import":    "POST - Import dataset from the data catalog",
			"/data/{id}":      "GET - Get single record",
			"/job":            "POST - Submit analysis job",
			"/job/{id}":       "GET - Get job status",
			"/jobs":           "GET - List all jobs",
			"/result/{id}":    "GET - Get image result",
			"/admin/snapshot": "POST - Trigger a background store snapshot",
			"/ws":             "GET - Job status updates over websocket",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.analytics.Ping(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("store unavailable: %w", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleUploadData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	n, err := s.analytics.UploadDataset(r.Context(), body)
	if errors.Is(err, models.ErrValidation) {
		writeErr(w, http.StatusBadRequest, errors.New("Expected a list of records"))
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Uploaded %d records.", n)})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	records, err := s.analytics.GetDataset(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.analytics.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrNotFound) {
		writeErr(w, http.StatusNotFound, errors.New("Record not found."))
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	if err := s.analytics.DeleteDataset(r.Context()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dataset deleted."})
}

type importRequest struct {
	Source string `json:"source"`
	File   string `json:"file"`
}

func (s *Server) handleImportData(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	n, err := s.analytics.ImportDataset(r.Context(), req.Source, req.File)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Imported %d records from %s/%s.", n, req.Source, req.File),
	})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req service.JobRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	job, status, err := s.analytics.SubmitJob(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job submitted",
		"job_id":  job.ID,
		"status":  string(status),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	status, err := s.analytics.JobStatus(r.Context(), jobID)
	if errors.Is(err, models.ErrNotFound) {
		writeErr(w, http.StatusNotFound, errors.New("Job not found"))
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(status)})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.analytics.ListJobs(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	image, err := s.analytics.JobResult(r.Context(), jobID)
	if errors.Is(err, models.ErrNotFound) {
		writeErr(w, http.StatusNotFound, errors.New("Result not found or job not completed"))
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="result_%s.png"`, jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.analytics.TriggerSnapshot(r.Context()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Snapshot started"})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade to websocket", "error", err)
		return
	}

	// The initial list goes out before registering so the hub never writes
	// to the connection concurrently with this handler.
	jobs, err := s.analytics.ListJobs(r.Context())
	if err != nil {
		s.logger.Warn("failed to load jobs for websocket client", "error", err)
		jobs = map[string]models.JobStatus{}
	}
	initialData, err := json.Marshal(map[string]any{
		"type": "initial_jobs",
		"jobs": jobs,
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initialData)
	}

	s.wsManager.RegisterClient(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}

// writeFailure maps a façade error to a status code and logs server-side failures.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	writeErr(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSnapshotInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
