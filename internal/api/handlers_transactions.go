package api

import (
	"net/http"
	"strconv"

	"github.com/ledger-dashboard/internal/service"
)

// queryInputFromRequest reads pagination, filters and sort order. Malformed offset or limit
// values fall back to the defaults.
func queryInputFromRequest(r *http.Request) service.QueryInput {
	q := r.URL.Query()
	input := service.QueryInput{
		TokenFilter: q.Get("tokenFilter"),
		SearchQuery: q.Get("searchQuery"),
		SortOrder:   q.Get("sortOrder"),
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		input.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		input.Limit = v
	}
	return input
}

// handleListTransactions handles GET /api/transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	input := queryInputFromRequest(r)

	walletID, err := service.ParseWalletID(r.URL.Query().Get("walletId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	input.WalletID = walletID

	s.respondTransactions(w, r, input)
}

// handleWalletTransactions handles GET /api/wallets/{id}/transactions
func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input := queryInputFromRequest(r)
	input.WalletID = &id

	s.respondTransactions(w, r, input)
}

func (s *Server) respondTransactions(w http.ResponseWriter, r *http.Request, input service.QueryInput) {
	result, err := s.services.Query.ListTransactions(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleClearTransactions handles DELETE /api/transactions
func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	n, err := s.services.Query.ClearTransactions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleDashboard handles GET /api/analytics/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.services.Analytics.Dashboard(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
