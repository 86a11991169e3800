// ABOUTME: HTTP API for starting pipeline runs and reading their state.
// ABOUTME: chi router with JSON handlers; each submitted run executes in its own goroutine.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/longform/pipeline"
	"github.com/2389-research/longform/store"
)

// EngineFactory builds a fresh Engine for one submitted run. Every run
// gets its own Engine instance; the factory decides the approver
// (servers typically wire auto-approval or a callback transport). The
// onEvent handler must receive the run's events; factories that carry
// their own handler should fan out to both.
type EngineFactory func(onEvent func(pipeline.Event)) (*pipeline.Engine, error)

// Server exposes the run API over HTTP.
type Server struct {
	store   *store.RunStore
	factory EngineFactory
	router  chi.Router
	addr    string

	// baseCtx parents every background run so shutdown cancels them.
	baseCtx context.Context
}

// ServerConfig holds the settings for NewServer.
type ServerConfig struct {
	Addr    string // listen address (default: "127.0.0.1:8080")
	Store   *store.RunStore
	Factory EngineFactory
	BaseCtx context.Context // optional; defaults to context.Background()
}

// NewServer creates a Server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("web: ServerConfig.Store is required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("web: ServerConfig.Factory is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.BaseCtx == nil {
		cfg.BaseCtx = context.Background()
	}

	s := &Server{
		store:   cfg.Store,
		factory: cfg.Factory,
		addr:    cfg.Addr,
		baseCtx: cfg.BaseCtx,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured address with
// timeouts to prevent resource exhaustion from slow clients.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return srv.ListenAndServe()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRunRequest struct {
	Topic string `json:"topic"`
}

type startRunResponse struct {
	RunID  string          `json:"run_id"`
	Topic  string          `json:"topic"`
	Status pipeline.Status `json:"status"`
}

// handleStartRun validates the request and launches the run in a
// background goroutine. The response reports the accepted topic; the
// run ID becomes visible through the list endpoint once the engine has
// created its record.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	started := make(chan string, 1)
	eng, err := s.factory(func(evt pipeline.Event) {
		if evt.Type == pipeline.EventRunStarted {
			select {
			case started <- evt.RunID:
			default:
			}
		}
	})
	if err != nil {
		log.Printf("web: build engine: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to initialize run")
		return
	}

	go func() {
		result, err := eng.Execute(s.baseCtx, req.Topic)
		switch {
		case err != nil && result != nil:
			log.Printf("web: run %s failed: %v", result.RunID, err)
		case err != nil:
			log.Printf("web: run failed before start: %v", err)
		default:
			log.Printf("web: run %s finished with status %s", result.RunID, result.Status)
		}
	}()

	select {
	case runID := <-started:
		writeJSON(w, http.StatusAccepted, startRunResponse{
			RunID:  runID,
			Topic:  req.Topic,
			Status: pipeline.StatusInProgress,
		})
	case <-time.After(5 * time.Second):
		writeError(w, http.StatusInternalServerError, "run did not start in time")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.List()
	if err != nil {
		log.Printf("web: list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	type runRow struct {
		RunID     string          `json:"run_id"`
		Topic     string          `json:"topic"`
		Status    pipeline.Status `json:"status"`
		CreatedAt string          `json:"created_at"`
		UpdatedAt string          `json:"updated_at"`
	}
	rows := make([]runRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, runRow{
			RunID:     run.RunID,
			Topic:     run.Topic,
			Status:    run.Status,
			CreatedAt: run.CreatedAt,
			UpdatedAt: run.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	state, err := s.store.Get(runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		log.Printf("web: get run %s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
