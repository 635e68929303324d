// Package monitor provides the HTTP interface for observing the grasp
// pipeline: candidate inspection, planning-run history, and debug charts.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldworks/graspplan/internal/grasp"
	"github.com/fieldworks/graspplan/internal/graspdb"
	"github.com/fieldworks/graspplan/internal/planner"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the grasp pipeline.
// It provides endpoints for health checks, candidate inspection and
// planning telemetry.
type WebServer struct {
	address  string
	server   *http.Server
	db       *graspdb.DB
	cache    *grasp.CandidateCache
	attempts *planner.AttemptLog
	scene    string
	started  time.Time
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address  string
	DB       *graspdb.DB
	Cache    *grasp.CandidateCache
	Attempts *planner.AttemptLog
	Scene    string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		db:       config.DB,
		cache:    config.Cache,
		attempts: config.Attempts,
		scene:    config.Scene,
		started:  time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/grasp/candidates", ws.handleCandidates)
	mux.HandleFunc("/api/plan/runs", ws.handleRuns)
	mux.HandleFunc("/api/plan/attempts", ws.handleAttempts)
	mux.HandleFunc("/api/plan/attempts/recent", ws.handleRecentAttempts)
	mux.HandleFunc("/debug/charts/scores", ws.handleScoreChart)
	mux.HandleFunc("/debug/charts/hemisphere", ws.handleHemisphereChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "graspplan", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var runs []graspdb.PlanningRun
	if ws.db != nil {
		runs, _ = ws.db.RecentRuns(10)
	}

	data := struct {
		HTTPAddress string
		Scene       string
		Uptime      string
		Runs        []graspdb.PlanningRun
	}{
		HTTPAddress: ws.address,
		Scene:       ws.scene,
		Uptime:      time.Since(ws.started).Round(time.Second).String(),
		Runs:        runs,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleCandidates returns the cached candidate set for a scene as JSON.
// Query params:
//
//	scene (optional; defaults to the configured scene)
func (ws *WebServer) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	scene := r.URL.Query().Get("scene")
	if scene == "" {
		scene = ws.scene
	}
	if scene == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'scene' parameter")
		return
	}
	if ws.cache == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no candidate cache configured")
		return
	}
	set, ok, err := ws.cache.Load(scene)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load candidates: %v", err))
		return
	}
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no cached candidates for scene '%s'", scene))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(set)
}

// handleRuns returns recent planning runs.
// Query params:
//
//	limit (optional, default 20)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	runs, err := ws.db.RecentRuns(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("recent runs: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// handleAttempts returns the stored attempts of one run.
// Query params:
//
//	run_id (required)
func (ws *WebServer) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	attempts, err := ws.db.AttemptsForRun(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("attempts: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attempts)
}

// handleRecentAttempts returns the in-memory attempt log of the current
// process, most useful while a synthesis is in flight.
func (ws *WebServer) handleRecentAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.attempts == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no attempt log configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ws.attempts.Attempts())
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
