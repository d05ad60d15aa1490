package http

import (
	"net/http"
	"strings"

	"ledgerbook/internal/core"
	"ledgerbook/internal/services"
)

const (
	defaultSuggestions = 10
	maxSuggestions     = 50
)

type groupingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dir := services.LoanDirection(r.URL.Query().Get("direction"))
	groups, err := s.deps.Views.Loans(r.Context(), dir, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []core.LoanGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleLoanPeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.deps.Views.LoanPeople(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if people == nil {
		people = []core.PersonLoans{}
	}
	writeJSON(w, http.StatusOK, people)
}

// handleAssets returns asset groups, or per-category rows when grouped=true.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	grouped, err := parseBool(r, "grouped")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if grouped {
		rows, err := s.deps.Views.AssetSummary(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rows == nil {
			rows = []core.AssetCategorySummary{}
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}
	groups, err := s.deps.Views.Assets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []core.AssetGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleSetAssetGrouping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "categoryId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req groupingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Views.SetAssetGrouping(r.Context(), id, req.Enabled); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categoryId": id, "enabled": req.Enabled})
}

func (s *Server) handleFuel(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Views.FuelStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stats.Fills == nil {
		stats.Fills = []core.FuelFill{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r, s.now(), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	overview, err := s.deps.Views.BudgetOverview(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if overview == nil {
		overview = []core.BudgetStatus{}
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "categoryId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := parseMonth(r, s.now(), s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.deps.Views.BudgetStatus(r.Context(), id, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultSuggestions, maxSuggestions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	memos, err := s.deps.Views.MemoSuggestions(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if memos == nil {
		memos = []string{}
	}
	writeJSON(w, http.StatusOK, memos)
}
