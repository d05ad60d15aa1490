package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/cli"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/storage/memory"
)

type testServer struct {
	t      *testing.T
	srv    *Server
	engine *cli.Engine
}

func now() time.Time { return time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC) }

func newTestServer(t *testing.T, mutate ...func(*Deps)) *testServer {
	t.Helper()
	engine := cli.NewEngine(memory.New(), nil)
	lc := applog.DefaultConfig()
	lc.Output = io.Discard
	deps := Deps{
		Registry: engine.Registry,
		Ledger:   engine.Ledger,
		Views:    engine.Views,
		Backup:   engine.Backup,
		Logger:   applog.New(lc),
		Now:      now,
	}
	for _, m := range mutate {
		m(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{t: t, srv: srv, engine: engine}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) category(name string, typ core.TxType, st core.SubType) core.Category {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/categories", map[string]any{"name": name, "icon": name, "type": typ, "subType": st})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Category](ts.t, rec)
}

func (ts *testServer) transaction(body map[string]any) core.Transaction {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/transactions", body)
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Transaction](ts.t, rec)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/readyz", nil).Code)

	down := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/readyz", nil).Code)
}

func TestSecurityAndTraceHeaders(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/v1/categories", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCategoryLifecycle(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)
	rent := ts.category("Rent", core.Expense, core.SubTypeNone)
	ts.category("Salary", core.Income, core.SubTypeNone)
	assert.Equal(t, 1, food.Order)
	assert.Equal(t, 2, rent.Order)

	rec := ts.do(http.MethodGet, "/v1/categories?type=expense", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Category](t, rec), 2)

	rec = ts.do(http.MethodGet, "/v1/categories?type=weird", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/v1/categories/"+catID(food), map[string]any{"name": "Groceries", "icon": "cart"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Groceries", decode[core.Category](t, rec).Name)

	rec = ts.do(http.MethodPut, "/v1/categories/"+catID(food), map[string]any{"name": "Groceries", "icon": "cart", "type": "income"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/categories/order", map[string]any{"type": "expense", "ids": []int64{rent.ID, food.ID}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	cats := decode[[]core.Category](t, ts.do(http.MethodGet, "/v1/categories?type=expense", nil))
	assert.Equal(t, rent.ID, cats[0].ID)

	rec = ts.do(http.MethodPost, "/v1/categories/order", map[string]any{"type": "expense", "ids": []int64{rent.ID}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "must list every category")

	rec = ts.do(http.MethodPost, "/v1/categories/order/reset", map[string]any{"type": "expense"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	cats = decode[[]core.Category](t, ts.do(http.MethodGet, "/v1/categories?type=expense", nil))
	assert.Equal(t, food.ID, cats[0].ID)

	rec = ts.do(http.MethodDelete, "/v1/categories/"+catID(food), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodDelete, "/v1/categories/"+catID(food), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	cats = decode[[]core.Category](t, ts.do(http.MethodGet, "/v1/categories?type=expense", nil))
	require.Len(t, cats, 1)
	assert.Equal(t, 1, cats[0].Order)
}

func TestBudgetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)

	rec := ts.do(http.MethodPut, "/v1/categories/"+catID(food)+"/budget", map[string]any{"budget": 200})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.transaction(map[string]any{"type": "expense", "amount": 150, "categoryId": food.ID, "date": "2025-06-03"})
	ts.transaction(map[string]any{"type": "expense", "amount": 90, "categoryId": food.ID, "date": "2025-05-30"})

	rec = ts.do(http.MethodGet, "/v1/budgets?month=2025-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overview := decode[[]core.BudgetStatus](t, rec)
	require.Len(t, overview, 1)
	assert.InDelta(t, 75, overview[0].PercentUsed, 1e-9)

	rec = ts.do(http.MethodGet, "/v1/budgets/"+catID(food), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(15000), decode[core.BudgetStatus](t, rec).Spend.Cents, "defaults to the current month")

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/budgets?month=June", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/v1/budgets/999", nil).Code)

	rec = ts.do(http.MethodPut, "/v1/categories/"+catID(food)+"/budget", map[string]any{"budget": nil})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[core.Category](t, rec).Budget)

	rec = ts.do(http.MethodGet, "/v1/categories/"+catID(food)+"/budget/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.BudgetChange](t, rec), 2)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/v1/categories/999/budget/history", nil).Code)
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)

	created := ts.transaction(map[string]any{"id": 99, "type": "expense", "amount": 12.5, "categoryId": food.ID, "memo": "lunch", "date": "2025-06-01T12:30:00Z"})
	assert.NotEqual(t, int64(99), created.ID, "ids are assigned by the store")
	assert.Equal(t, int64(1250), created.Amount.Cents)

	rec := ts.do(http.MethodGet, "/v1/transactions/"+txID(created), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lunch", decode[core.Transaction](t, rec).Memo)

	rec = ts.do(http.MethodPut, "/v1/transactions/"+txID(created), map[string]any{"type": "expense", "amount": 13, "categoryId": food.ID, "memo": "lunch+tip", "date": "2025-06-01T12:30:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1300), decode[core.Transaction](t, rec).Amount.Cents)

	rec = ts.do(http.MethodDelete, "/v1/transactions/"+txID(created), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/v1/transactions/"+txID(created), nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/v1/transactions/"+txID(created), nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/transactions/abc", nil).Code)
}

func TestTransactionValidation(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "zero amount", body: map[string]any{"type": "expense", "amount": 0, "categoryId": food.ID, "date": "2025-06-01"}, field: "amount"},
		{name: "bad date", body: map[string]any{"type": "expense", "amount": 1, "categoryId": food.ID, "date": "tomorrow"}, field: "date"},
		{name: "non-numeric amount", body: map[string]any{"type": "expense", "amount": "ten", "categoryId": food.ID, "date": "2025-06-01"}, field: "amount"},
		{name: "bad type", body: map[string]any{"type": "gift", "amount": 1, "categoryId": food.ID, "date": "2025-06-01"}, field: "type"},
		{name: "repaid without parent", body: map[string]any{"type": "income", "subType": "repaid", "amount": 1, "categoryId": food.ID, "date": "2025-06-01", "personName": "Al"}, field: "parentId"},
		{name: "unknown parent", body: map[string]any{"type": "income", "subType": "repaid", "amount": 1, "categoryId": food.ID, "date": "2025-06-01", "personName": "Al", "parentId": 42}, field: "parentId"},
		{name: "empty body", body: "", field: "body"},
		{name: "malformed body", body: "{", field: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/v1/transactions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decode[errorResponse](t, rec).Field)
		})
	}
}

func TestOversizedBody(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)

	memo := strings.Repeat("a", 2<<20)
	rec := ts.do(http.MethodPost, "/v1/transactions", map[string]any{"type": "expense", "amount": 1, "categoryId": food.ID, "memo": memo, "date": "2025-06-01"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPut, "/v1/categories/"+catID(food), map[string]any{"name": memo, "icon": "food"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/transactions", nil)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestListTransactionsFilters(t *testing.T) {
	ts := newTestServer(t)
	car := ts.category("Car", core.Expense, core.SubTypeFuel)

	ts.transaction(map[string]any{"type": "expense", "subType": "fuel", "amount": 50, "categoryId": car.ID, "date": "2025-06-01", "odometerReading": 1000, "fuelQuantity": 40})
	ts.transaction(map[string]any{"type": "expense", "amount": 10, "categoryId": car.ID, "date": "2025-06-10T18:00:00Z"})

	rec := ts.do(http.MethodGet, "/v1/transactions?from=2025-06-05&to=2025-06-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Transaction](t, rec), 1, "bare upper date covers the whole day")

	rec = ts.do(http.MethodGet, "/v1/transactions?subType=fuel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Transaction](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/transactions?subType=boat", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/transactions?from=2025-06-10&to=2025-06-01", nil).Code)
}

func TestLoanEndpoints(t *testing.T) {
	ts := newTestServer(t)
	lent := ts.category("Lent", core.Expense, core.SubTypeLoan)
	back := ts.category("Back", core.Income, core.SubTypeRepaid)

	root := ts.transaction(map[string]any{"type": "expense", "subType": "loan", "amount": 100, "categoryId": lent.ID, "date": "2025-06-01", "personName": "Alice", "dueDate": "2025-06-10"})
	ts.transaction(map[string]any{"type": "income", "subType": "repaid", "amount": 40, "categoryId": back.ID, "date": "2025-06-05", "personName": "Alice", "parentId": root.ID})

	rec := ts.do(http.MethodGet, "/v1/loans?direction=given", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]core.LoanGroup](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(6000), groups[0].Status.RemainingAmount.Cents)
	assert.Equal(t, core.LoanPartial, groups[0].StatusText)
	assert.Len(t, groups[0].Transactions, 2)

	rec = ts.do(http.MethodGet, "/v1/loans?direction=taken", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.LoanGroup](t, rec))

	rec = ts.do(http.MethodGet, "/v1/loans?from=2025-07-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]core.LoanGroup](t, rec))

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/loans?direction=up", nil).Code)

	rec = ts.do(http.MethodGet, "/v1/loans/people", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	people := decode[[]core.PersonLoans](t, rec)
	require.Len(t, people, 1)
	assert.Equal(t, "Alice", people[0].PersonName)

	require.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/v1/transactions/"+txID(root), nil).Code)
	rec = ts.do(http.MethodGet, "/v1/orphans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Transaction](t, rec), 1)
}

func TestAssetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	metals := ts.category("Metals", core.Expense, core.SubTypeAsset)
	for _, name := range []string{"Gold", "Silver"} {
		ts.transaction(map[string]any{"type": "expense", "subType": "asset", "amount": 10, "categoryId": metals.ID, "date": "2025-06-01", "assetName": name, "quantity": 1})
	}

	rec := ts.do(http.MethodGet, "/v1/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.AssetGroup](t, rec), 2)

	rec = ts.do(http.MethodPut, "/v1/assets/grouping/"+catID(metals), map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/v1/assets?grouped=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]core.AssetCategorySummary](t, rec)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Merged)
	assert.Equal(t, int64(2000), rows[0].Value.Cents)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/v1/assets/grouping/999", map[string]any{"enabled": true}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/assets?grouped=maybe", nil).Code)
}

func TestFuelAndSuggestions(t *testing.T) {
	ts := newTestServer(t)
	car := ts.category("Car", core.Expense, core.SubTypeFuel)
	ts.transaction(map[string]any{"type": "expense", "subType": "fuel", "amount": 10, "categoryId": car.ID, "memo": "Shell", "date": "2025-06-01", "odometerReading": 1000, "fuelQuantity": 5})
	ts.transaction(map[string]any{"type": "expense", "subType": "fuel", "amount": 40, "categoryId": car.ID, "memo": "Shell A1", "date": "2025-06-08", "odometerReading": 1300, "fuelQuantity": 20})

	rec := ts.do(http.MethodGet, "/v1/fuel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[core.FuelStats](t, rec)
	require.Len(t, stats.Fills, 2)
	assert.InDelta(t, 15, stats.Fills[1].Mileage, 1e-9)

	rec = ts.do(http.MethodGet, "/v1/suggestions?q=sh&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]string](t, rec), 1)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/suggestions?limit=-1", nil).Code)
}

func TestExportAndBackupRestore(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)
	ts.transaction(map[string]any{"type": "expense", "amount": 12.05, "categoryId": food.ID, "memo": "lunch", "date": "2025-06-01T13:05:00Z"})

	rec := ts.do(http.MethodGet, "/v1/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Date,Time,Type,Category,Amount,Memo\n2025-06-01,13:05,expense,Food,12.05,lunch\n", rec.Body.String())

	rec = ts.do(http.MethodGet, "/v1/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ledger-backup-20250620.json")
	doc := rec.Body.String()

	ts.transaction(map[string]any{"type": "expense", "amount": 1, "categoryId": food.ID, "date": "2025-06-02"})
	require.Len(t, decode[[]core.Transaction](t, ts.do(http.MethodGet, "/v1/transactions", nil)), 2)

	rec = ts.do(http.MethodPost, "/v1/restore", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]core.Transaction](t, ts.do(http.MethodGet, "/v1/transactions", nil)), 1, "restore invalidates cached views")

	rec = ts.do(http.MethodPost, "/v1/restore", `{"categories": [], "transactions": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[[]core.Transaction](t, ts.do(http.MethodGet, "/v1/transactions", nil)), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	food := ts.category("Food", core.Expense, core.SubTypeNone)
	ts.transaction(map[string]any{"type": "expense", "amount": 1, "categoryId": food.ID, "date": "2025-06-02"})

	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ledger_changes_total{op="created",sub_type="none"} 1`)
	assert.Contains(t, body, `ledger_http_requests_total{method="POST",route="/v1/transactions`)
	assert.Contains(t, body, `status="201"`)
}

func TestWriteRateLimit(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.WriteRateLimit = 1 })
	ts.category("Food", core.Expense, core.SubTypeNone)

	rec := ts.do(http.MethodPost, "/v1/categories", map[string]any{"name": "Rent", "icon": "home", "type": "expense"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/v1/categories", nil).Code, "reads are not limited")
}

func catID(c core.Category) string   { return strconv.FormatInt(c.ID, 10) }
func txID(t core.Transaction) string { return strconv.FormatInt(t.ID, 10) }

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"body too large", fmt.Errorf("decode body: %w", &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{"validation", &core.ValidationError{Field: "name", Message: "required"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("get: %w", &core.NotFoundError{Resource: "transaction", ID: 7}), http.StatusNotFound},
		{"client gone", fmt.Errorf("load: %w", context.Canceled), statusClientClosedRequest},
		{"store failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/v1/loans", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == statusClientClosedRequest {
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}
