package http

import (
	"bytes"
	"fmt"
	"net/http"

	"ledgerbook/internal/export"
	applog "ledgerbook/internal/log"
)

const maxRestoreBytes = 64 << 20

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.deps.Views.ExportRows(r.Context(), rng, s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger-%s.csv"`, s.now().In(s.loc).Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Backup.Write(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger-backup-%s.json"`, s.now().In(s.loc).Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleRestore replaces the whole ledger with the posted backup document.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRestoreBytes)
	res, err := s.deps.Backup.Restore(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Ledger restored",
		applog.FieldOperation, applog.OpRestore,
		"transactions", res.Transactions,
		"categories", res.Categories)
	writeJSON(w, http.StatusOK, res)
}
