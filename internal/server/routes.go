package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs (prospect research job management)
	mux.HandleFunc("/api/jobs/stats", s.app.JobHandler.GetJobStatsHandler)
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Service variables (API keys)
	mux.HandleFunc("/api/variables", s.handleVariablesRoute)
	mux.HandleFunc("/api/variables/", s.handleVariableRoutes) // Handles /api/variables/{key}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute dispatches /api/jobs by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.CreateJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and its subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// POST /api/jobs/{id}/process
	if r.Method == http.MethodPost && strings.HasSuffix(path, "/process") {
		jobID := strings.TrimSuffix(path, "/process")
		s.app.JobHandler.ProcessNextHandler(w, r, jobID)
		return
	}

	// GET /api/jobs/{id}/items
	if r.Method == http.MethodGet && strings.HasSuffix(path, "/items") {
		jobID := strings.TrimSuffix(path, "/items")
		s.app.JobHandler.ListItemsHandler(w, r, jobID)
		return
	}

	// Plain /api/jobs/{id}
	if strings.Contains(path, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.GetJobHandler(w, r, path)
	case http.MethodPatch:
		s.app.JobHandler.PatchJobHandler(w, r, path)
	case http.MethodDelete:
		s.app.JobHandler.DeleteJobHandler(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVariablesRoute dispatches /api/variables by method
func (s *Server) handleVariablesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.VariableHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.VariableHandler.SetHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVariableRoutes routes /api/variables/{key}
func (s *Server) handleVariableRoutes(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/variables/")
	if key == "" || strings.Contains(key, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.app.VariableHandler.DeleteHandler(w, r, key)
}
