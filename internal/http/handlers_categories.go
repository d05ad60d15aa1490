package http

import (
	"net/http"

	"ledgerbook/internal/core"
)

type orderRequest struct {
	Type core.TxType `json:"type"`
	IDs  []int64     `json:"ids"`
}

type budgetRequest struct {
	Budget *core.Money `json:"budget"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ := core.TxType(r.URL.Query().Get("type"))
	var (
		cats []core.Category
		err  error
	)
	switch {
	case typ == "":
		cats, err = s.deps.Registry.ListAll(r.Context())
	case !typ.Valid():
		err = &core.ValidationError{Field: "type", Message: "must be income or expense"}
	default:
		cats, err = s.deps.Registry.ListByType(r.Context(), typ)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.deps.Registry.Add(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.ID = id
	saved, err := s.deps.Registry.Update(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Registry.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetBudget sets or clears (null) the category budget.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.deps.Registry.SetBudget(r.Context(), id, req.Budget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleBudgetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Registry.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	hist, err := s.deps.Registry.BudgetHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hist == nil {
		hist = []core.BudgetChange{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Registry.Reorder(r.Context(), req.Type, req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetCategoryOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Registry.ResetOrder(r.Context(), req.Type); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
