package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ledger-dashboard/internal/job"
)

// handleStartImport handles POST /api/import. The job runs in the background; the id is returned at once.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var req job.ImportRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	id, err := s.services.Imports.StartImport(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"importId": id,
		"message":  "Import started",
	})
}

// handleImportProgress handles GET /api/import/{importId}/progress
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.services.Imports.Progress(mux.Vars(r)["importId"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleActiveImports handles GET /api/import/active
func (s *Server) handleActiveImports(w http.ResponseWriter, r *http.Request) {
	active := s.services.Imports.Active()
	if active == nil {
		active = []job.Snapshot{}
	}
	respondJSON(w, http.StatusOK, active)
}

// handleReclaimImports handles DELETE /api/import/completed
func (s *Server) handleReclaimImports(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{
		"reclaimed": s.services.Imports.ReclaimCompleted(),
	})
}
