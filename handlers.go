package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/lomsac/fitting"
	"github.com/kwv/lomsac/store"
)

// maxBodyBytes caps uploaded datasets.
const maxBodyBytes = 32 << 20

// server holds what the HTTP endpoints need. runs and jobs may be nil;
// metrics may not.
type server struct {
	config  *fitting.Config
	runs    *store.Store
	metrics *fitting.Metrics
	jobs    *fitting.JobService
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(config *fitting.Config, runs *store.Store, metrics *fitting.Metrics, jobs *fitting.JobService) http.Handler {
	s := &server{config: config, runs: runs, metrics: metrics, jobs: jobs}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /estimate", s.handleEstimate)
	mux.HandleFunc("POST /render", s.handleRender)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
	status := struct {
		Status        string    `json:"status"`
		Version       string    `json:"version"`
		Timestamp     time.Time `json:"timestamp"`
		MQTTConnected bool      `json:"mqttConnected"`
		HasStore      bool      `json:"hasStore"`
		LatestJob     string    `json:"latestJob,omitempty"`
	}{
		Status:        "ok",
		Version:       Version,
		Timestamp:     time.Now(),
		MQTTConnected: s.jobs != nil && s.jobs.IsConnected(),
		HasStore:      s.runs != nil,
	}
	if s.jobs != nil {
		if latest, ok := s.jobs.Publisher().Latest(); ok {
			status.LatestJob = latest.ID
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleEstimate fits the GeoJSON body with the model named by ?kind=.
func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.estimate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRender fits the body like /estimate and responds with the plot.
func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "svg"
	}
	if format != "svg" && format != "png" {
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	res, ds, ok := s.estimate(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Run-ID", res.ID)
	var err error
	switch {
	case format == "svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		err = fitting.NewVectorRenderer().RenderToSVG(w, res, ds)
	case s.config.Render.Format == "raster":
		w.Header().Set("Content-Type", "image/png")
		err = fitting.NewRasterRenderer(s.config.Render.Width).RenderPNG(w, res, ds)
	default:
		w.Header().Set("Content-Type", "image/png")
		err = fitting.NewVectorRenderer().RenderToPNG(w, res, ds)
	}
	if err != nil {
		log.Printf("[HTTP] Error rendering %s plot: %v", format, err)
	}
}

// estimate runs one fit for a request and records it. It writes the error
// response itself and reports false when the request failed.
func (s *server) estimate(w http.ResponseWriter, r *http.Request) (*fitting.Result, *fitting.Dataset, bool) {
	kind, err := fitting.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.metrics.ObserveError("")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		s.metrics.ObserveError(kind)
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, fmt.Sprintf("reading body: %v", err), status)
		return nil, nil, false
	}

	ds, err := fitting.ParseDataset(kind, data)
	if err != nil {
		s.metrics.ObserveError(kind)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	res, err := fitting.Estimate(ds, s.config.Estimator)
	if err != nil {
		s.metrics.ObserveError(kind)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, nil, false
	}
	s.metrics.Observe(res)
	log.Printf("[HTTP] %s %s (%.1f ms)", r.URL.Path, res.Summary(), res.DurationMS)

	if s.runs != nil {
		if err := s.runs.RecordRun(res); err != nil {
			log.Printf("[HTTP] Error recording run %s: %v", res.ID, err)
		}
	}
	return res, ds, true
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "Run history disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		log.Printf("[HTTP] Error listing runs: %v", err)
		http.Error(w, "Error listing runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "Run history disabled", http.StatusServiceUnavailable)
		return
	}
	stored, err := s.runs.GetRun(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[HTTP] Error loading run: %v", err)
		http.Error(w, "Error loading run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
