package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ledgerbook/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON value from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("decode body: %w", err)
		}
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Message: "is empty"}
		}
		return &core.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// parseBound parses a from/to query value. A bare date used as an upper
// bound covers the whole day.
func parseBound(raw, field string, upper bool, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if len(raw) == len("2006-01-02") {
		t, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return time.Time{}, &core.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
		}
		if upper {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	t, err := core.ParseISO(raw)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

// parseRange reads from/to. It returns nil when neither is set.
func parseRange(r *http.Request, loc *time.Location) (*core.DateRange, error) {
	q := r.URL.Query()
	from, err := parseBound(q.Get("from"), "from", false, loc)
	if err != nil {
		return nil, err
	}
	to, err := parseBound(q.Get("to"), "to", true, loc)
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return nil, nil
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	}
	if to.Before(from) {
		return nil, &core.ValidationError{Field: "to", Message: "must not be before from"}
	}
	return &core.DateRange{Start: from, End: to}, nil
}

// parseMonth reads ?month=YYYY-MM, defaulting to the current month.
func parseMonth(r *http.Request, now time.Time, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		return now.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01", raw, loc)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: "month", Message: "must be YYYY-MM"}
	}
	return t, nil
}

// parseLimit reads ?limit, clamped to [1, max].
func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &core.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > max {
		n = max
	}
	return n, nil
}

func parseBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &core.ValidationError{Field: name, Message: "must be true or false"}
	}
	return b, nil
}
