package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledgerbook/internal/core"
	"ledgerbook/internal/ports"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

// Fixed-width UTC layout so lexical order in SQLite equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway; one connection keeps batches simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// detailsRecord is the JSON document stored in transactions.details.
type detailsRecord struct {
	PersonName      string              `json:"personName,omitempty"`
	LoanChargeCents int64               `json:"loanChargeCents,omitempty"`
	LoanDate        string              `json:"loanDate,omitempty"`
	DueDate         string              `json:"dueDate,omitempty"`
	Status          core.LoanStatusText `json:"status,omitempty"`

	AssetName         string  `json:"assetName,omitempty"`
	TransactionDate   string  `json:"transactionDate,omitempty"`
	Quantity          float64 `json:"quantity,omitempty"`
	MeasurementUnit   string  `json:"measurementUnit,omitempty"`
	CurrentValueCents int64   `json:"currentValueCents,omitempty"`

	OdometerReading float64 `json:"odometerReading,omitempty"`
	FuelQuantity    float64 `json:"fuelQuantity,omitempty"`
	FuelType        string  `json:"fuelType,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// encodeDetails splits a transaction into its parent column and details document.
func encodeDetails(tx core.Transaction) (sql.NullInt64, sql.NullString, error) {
	var parent sql.NullInt64
	if pid, ok := tx.ParentID(); ok {
		parent = sql.NullInt64{Int64: pid, Valid: true}
	}

	var rec detailsRecord
	switch d := tx.Details.(type) {
	case *core.LoanDetails:
		rec.PersonName = d.PersonName
		rec.LoanChargeCents = d.LoanCharges.Cents
		rec.LoanDate = formatTime(d.LoanDate)
		if d.DueDate != nil {
			rec.DueDate = formatTime(*d.DueDate)
		}
		rec.Status = d.Status
	case *core.AssetDetails:
		rec.AssetName = d.AssetName
		rec.TransactionDate = formatTime(d.TransactionDate)
		rec.Quantity = d.Quantity
		rec.MeasurementUnit = d.MeasurementUnit
		rec.CurrentValueCents = d.CurrentValue.Cents
	case *core.FuelDetails:
		rec.OdometerReading = d.OdometerReading
		rec.FuelQuantity = d.FuelQuantity
		rec.FuelType = d.FuelType
	case nil:
		return parent, sql.NullString{}, nil
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return parent, sql.NullString{}, fmt.Errorf("encode details: %w", err)
	}
	return parent, sql.NullString{String: string(b), Valid: true}, nil
}

func decodeDetails(st core.SubType, parent sql.NullInt64, raw sql.NullString) (core.Details, error) {
	var rec detailsRecord
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &rec); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	var parentID *int64
	if parent.Valid {
		pid := parent.Int64
		parentID = &pid
	}

	switch st.Family() {
	case core.FamilyLoan:
		d := &core.LoanDetails{
			PersonName:  rec.PersonName,
			LoanCharges: core.Money{Cents: rec.LoanChargeCents},
			ParentID:    parentID,
			Status:      rec.Status,
		}
		var err error
		if d.LoanDate, err = parseTime(rec.LoanDate); err != nil {
			return nil, fmt.Errorf("decode loan date: %w", err)
		}
		if rec.DueDate != "" {
			due, err := parseTime(rec.DueDate)
			if err != nil {
				return nil, fmt.Errorf("decode due date: %w", err)
			}
			d.DueDate = &due
		}
		return d, nil
	case core.FamilyAsset:
		date, err := parseTime(rec.TransactionDate)
		if err != nil {
			return nil, fmt.Errorf("decode asset date: %w", err)
		}
		return &core.AssetDetails{
			AssetName:       rec.AssetName,
			TransactionDate: date,
			Quantity:        rec.Quantity,
			MeasurementUnit: rec.MeasurementUnit,
			CurrentValue:    core.Money{Cents: rec.CurrentValueCents},
			ParentID:        parentID,
		}, nil
	case core.FamilyFuel:
		return &core.FuelDetails{
			OdometerReading: rec.OdometerReading,
			FuelQuantity:    rec.FuelQuantity,
			FuelType:        rec.FuelType,
		}, nil
	default:
		return nil, nil
	}
}

const transactionColumns = `id, type, sub_type, amount_cents, category_id, memo, occurred_at, parent_id, details`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx         core.Transaction
		txType     string
		subType    string
		occurredAt string
		parent     sql.NullInt64
		details    sql.NullString
	)
	if err := row.Scan(&tx.ID, &txType, &subType, &tx.Amount.Cents, &tx.CategoryID, &tx.Memo, &occurredAt, &parent, &details); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TxType(txType)
	tx.SubType = core.SubType(subType)

	var err error
	if tx.Date, err = parseTime(occurredAt); err != nil {
		return core.Transaction{}, fmt.Errorf("decode date of transaction %d: %w", tx.ID, err)
	}
	if tx.Details, err = decodeDetails(tx.SubType, parent, details); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	return tx, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStoreError(op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, core.NewStoreError(op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError(op, err)
	}
	return out, nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	parent, details, err := encodeDetails(tx)
	if err != nil {
		return core.Transaction{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (type, sub_type, amount_cents, category_id, memo, occurred_at, parent_id, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.Type), string(tx.SubType), tx.Amount.Cents, tx.CategoryID, tx.Memo, formatTime(tx.Date), parent, details)
	if err != nil {
		return core.Transaction{}, core.NewStoreError("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, core.NewStoreError("insert transaction", err)
	}
	tx = tx.Clone()
	tx.ID = id

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"sub_type", tx.SubType,
		"amount_cents", tx.Amount.Cents)

	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	parent, details, err := encodeDetails(tx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET type = ?, sub_type = ?, amount_cents = ?, category_id = ?, memo = ?, occurred_at = ?, parent_id = ?, details = ?
		 WHERE id = ?`,
		string(tx.Type), string(tx.SubType), tx.Amount.Cents, tx.CategoryID, tx.Memo, formatTime(tx.Date), parent, details, tx.ID)
	if err != nil {
		return core.NewStoreError("update transaction", err)
	}
	return requireAffected(res, "transaction", tx.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return core.NewStoreError("delete transaction", err)
	}
	return requireAffected(res, "transaction", id)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, &core.NotFoundError{Resource: "transaction", ID: id}
	}
	if err != nil {
		return core.Transaction{}, core.NewStoreError("get transaction", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) TransactionsBetween(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, "query transactions by date",
		`SELECT `+transactionColumns+` FROM transactions WHERE occurred_at >= ? AND occurred_at <= ? ORDER BY id`,
		formatTime(start), formatTime(end))
}

func (r *SQLiteRepository) TransactionsBySubType(ctx context.Context, subTypes ...core.SubType) ([]core.Transaction, error) {
	if len(subTypes) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(subTypes))
	args := make([]any, len(subTypes))
	for i, st := range subTypes {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return r.queryTransactions(ctx, "query transactions by subtype",
		`SELECT `+transactionColumns+` FROM transactions WHERE sub_type IN (`+strings.Join(placeholders, ", ")+`) ORDER BY id`,
		args...)
}

func (r *SQLiteRepository) AllTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, "list transactions", `SELECT `+transactionColumns+` FROM transactions ORDER BY id`)
}

const categoryColumns = `id, name, icon, type, sub_type, sort_order, budget_cents, is_custom, version`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c       core.Category
		typ     string
		subType string
		budget  sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Icon, &typ, &subType, &c.Order, &budget, &c.IsCustom, &c.Version); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TxType(typ)
	c.SubType = core.SubType(subType)
	if budget.Valid {
		c.Budget = &core.Money{Cents: budget.Int64}
	}
	return c, nil
}

func budgetArg(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, core.NewStoreError("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, core.NewStoreError("scan category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, &core.NotFoundError{Resource: "category", ID: id}
	}
	if err != nil {
		return core.Category{}, core.NewStoreError("get category", err)
	}
	return c, nil
}

func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, icon, type, sub_type, sort_order, budget_cents, is_custom, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Icon, string(c.Type), string(c.SubType), c.Order, budgetArg(c.Budget), c.IsCustom, c.Version)
	if err != nil {
		return core.Category{}, core.NewStoreError("insert category", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, core.NewStoreError("insert category", err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories
		 SET name = ?, icon = ?, type = ?, sub_type = ?, sort_order = ?, budget_cents = ?, is_custom = ?, version = ?
		 WHERE id = ?`,
		c.Name, c.Icon, string(c.Type), string(c.SubType), c.Order, budgetArg(c.Budget), c.IsCustom, c.Version, c.ID)
	if err != nil {
		return core.NewStoreError("update category", err)
	}
	return requireAffected(res, "category", c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64, orders map[int64]int) error {
	return r.inTx(ctx, "delete category", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "category", id); err != nil {
			return err
		}
		return applyOrders(ctx, tx, orders)
	})
}

func (r *SQLiteRepository) ApplyCategoryOrder(ctx context.Context, orders map[int64]int) error {
	err := r.inTx(ctx, "apply category order", func(tx *sql.Tx) error {
		return applyOrders(ctx, tx, orders)
	})
	if err == nil {
		slog.DebugContext(ctx, "Category order applied", "count", len(orders))
	}
	return err
}

func applyOrders(ctx context.Context, ex execer, orders map[int64]int) error {
	for id, order := range orders {
		res, err := ex.ExecContext(ctx, `UPDATE categories SET sort_order = ? WHERE id = ?`, order, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "category", id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) AppendBudgetChange(ctx context.Context, change core.BudgetChange) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_history (category_id, budget_cents, effective_from) VALUES (?, ?, ?)`,
		change.CategoryID, budgetArg(change.Budget), formatTime(change.EffectiveFrom))
	return core.NewStoreError("append budget change", err)
}

func (r *SQLiteRepository) BudgetHistory(ctx context.Context) ([]core.BudgetChange, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id, budget_cents, effective_from FROM budget_history ORDER BY id`)
	if err != nil {
		return nil, core.NewStoreError("list budget history", err)
	}
	defer rows.Close()

	var out []core.BudgetChange
	for rows.Next() {
		var (
			b      core.BudgetChange
			budget sql.NullInt64
			from   string
		)
		if err := rows.Scan(&b.CategoryID, &budget, &from); err != nil {
			return nil, core.NewStoreError("scan budget history", err)
		}
		if budget.Valid {
			b.Budget = &core.Money{Cents: budget.Int64}
		}
		if b.EffectiveFrom, err = parseTime(from); err != nil {
			return nil, core.NewStoreError("scan budget history", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("list budget history", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.NewStoreError("get setting", err)
	}
	return v, true, nil
}

func (r *SQLiteRepository) PutSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return core.NewStoreError("put setting", err)
}

func (r *SQLiteRepository) ReplaceAll(ctx context.Context, snap ports.Snapshot) error {
	err := r.inTx(ctx, "replace all", func(tx *sql.Tx) error {
		for _, table := range []string{"transactions", "categories", "budget_history"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, c := range snap.Categories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, c.Icon, string(c.Type), string(c.SubType), c.Order, budgetArg(c.Budget), c.IsCustom, c.Version); err != nil {
				return fmt.Errorf("restore category %d: %w", c.ID, err)
			}
		}
		for _, t := range snap.Transactions {
			parent, details, err := encodeDetails(t)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, string(t.Type), string(t.SubType), t.Amount.Cents, t.CategoryID, t.Memo, formatTime(t.Date), parent, details); err != nil {
				return fmt.Errorf("restore transaction %d: %w", t.ID, err)
			}
		}
		for _, b := range snap.BudgetHistory {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_history (category_id, budget_cents, effective_from) VALUES (?, ?, ?)`,
				b.CategoryID, budgetArg(b.Budget), formatTime(b.EffectiveFrom)); err != nil {
				return fmt.Errorf("restore budget history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ledger replaced from snapshot",
		"transactions", len(snap.Transactions),
		"categories", len(snap.Categories),
		"budget_changes", len(snap.BudgetHistory))
	return nil
}

// inTx runs fn in one SQL transaction and rolls back on any error.
func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStoreError(op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "op", op, "error", rbErr)
		}
		return core.NewStoreError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStoreError(op, err)
	}
	return nil
}

func requireAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewStoreError("rows affected", err)
	}
	if n == 0 {
		return &core.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
