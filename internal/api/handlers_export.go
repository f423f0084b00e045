package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/service"
	"github.com/ledger-dashboard/internal/storage"
)

// handleExportTransactions handles GET /api/export/transactions[?walletId]
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	walletID, err := service.ParseWalletID(r.URL.Query().Get("walletId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// Buffered so a failed read still gets a proper error response.
	var buf bytes.Buffer
	if err := s.services.Export.WriteTransactionsCSV(r.Context(), &buf, walletID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.services.Archive == nil {
		respondServiceError(w, r, apperrors.NewServiceUnavailableError("artifact archive"))
		return
	}
	arts, err := s.services.Archive.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, arts)
}

// validArtifactName accepts archive keys like <network>/<importId>/<file>.csv
func validArtifactName(name string) bool {
	if !strings.HasSuffix(name, ".csv") || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	if s.services.Archive == nil {
		respondServiceError(w, r, apperrors.NewServiceUnavailableError("artifact archive"))
		return
	}

	name := mux.Vars(r)["name"]
	if !validArtifactName(name) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid artifact name", nil)
		return
	}

	rc, err := s.services.Archive.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Artifact not found", nil)
			return
		}
		respondServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(name)+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("artifact", name).Warn("Artifact download interrupted")
	}
}
