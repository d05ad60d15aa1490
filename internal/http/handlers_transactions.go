package http

import (
	"net/http"
	"strconv"

	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := services.TxFilter{SubType: core.SubType(r.URL.Query().Get("subType"))}
	if rng != nil {
		f.From, f.To = rng.Start, rng.End
	}
	txs, err := s.deps.Views.QueryTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Ledger.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleCreateTransaction ignores any id in the body.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, r, err)
		return
	}
	tx.ID = 0
	saved, err := s.deps.Ledger.Add(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logChange(r, applog.OpCreate, saved)
	w.Header().Set("Location", "/v1/transactions/"+strconv.FormatInt(saved.ID, 10))
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, r, err)
		return
	}
	tx.ID = id
	saved, err := s.deps.Ledger.Update(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logChange(r, applog.OpUpdate, saved)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Ledger.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logChange(r, applog.OpDelete, core.Transaction{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// handleOrphans lists children whose parent no longer exists.
func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Views.Orphans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func logChange(r *http.Request, op string, tx core.Transaction) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogTransactionChange(r.Context(), op, tx.ID, string(tx.Type), string(tx.SubType), tx.Amount.Cents, tx.CategoryID)
}
