// Package category maintains the versioned category taxonomy: built-in and
// user categories, their per-type ordering, and budget amounts.
package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/ports"
)

// UnknownName is shown for transactions whose category no longer exists.
const UnknownName = "Unknown"

const versionSettingKey = "category_registry_version"

// Store is the subset of ports.Store the registry writes to.
type Store interface {
	ports.CategoryRepository
	ports.SettingsRepository
}

type Registry struct {
	store Store
	now   func() time.Time
}

type Option func(*Registry)

// WithClock overrides the clock used to stamp budget history.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListAll returns every category, income first, each type by order.
func (r *Registry) ListAll(ctx context.Context) ([]core.Category, error) {
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	sortByTypeAndOrder(cats)
	return cats, nil
}

// ListByType returns the categories of one type by order.
func (r *Registry) ListByType(ctx context.Context, typ core.TxType) ([]core.Category, error) {
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := ofType(cats, typ)
	sortByTypeAndOrder(out)
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (core.Category, error) {
	return r.store.GetCategory(ctx, id)
}

// Add creates a custom category at the end of its type's ordering.
func (r *Registry) Add(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Icon = strings.TrimSpace(c.Icon)
	if c.SubType == "" {
		c.SubType = core.SubTypeNone
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	c.ID = 0
	c.Order = maxOrder(cats, c.Type) + 1
	c.IsCustom = true
	c.Version = CurrentVersion

	saved, err := r.store.InsertCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}

	slog.InfoContext(ctx, "Category added",
		applog.FieldComponent, applog.ComponentCategory,
		"id", saved.ID,
		"name", saved.Name,
		"type", saved.Type,
		"order", saved.Order)

	if saved.Budget != nil {
		r.recordBudget(ctx, saved.ID, saved.Budget)
	}
	return saved, nil
}

// Update edits name, icon, subtype and budget. Type changes are rejected;
// order, custom flag and version are kept from the stored row.
func (r *Registry) Update(ctx context.Context, c core.Category) (core.Category, error) {
	existing, err := r.store.GetCategory(ctx, c.ID)
	if err != nil {
		return core.Category{}, err
	}
	if c.Type != "" && c.Type != existing.Type {
		return core.Category{}, &core.ValidationError{Field: "type", Message: "cannot change the type of an existing category"}
	}

	updated := existing
	updated.Name = strings.TrimSpace(c.Name)
	updated.Icon = strings.TrimSpace(c.Icon)
	if c.SubType != "" {
		updated.SubType = c.SubType
	}
	updated.Budget = c.Budget
	if err := updated.Validate(); err != nil {
		return core.Category{}, err
	}

	if err := r.store.UpdateCategory(ctx, updated); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if !sameBudget(existing.Budget, updated.Budget) {
		r.recordBudget(ctx, updated.ID, updated.Budget)
	}
	return updated, nil
}

// Delete removes a category and re-densifies its siblings. Transactions that
// reference it are left alone.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	target, err := r.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	siblings := make([]core.Category, 0, len(cats))
	for _, c := range ofType(cats, target.Type) {
		if c.ID != id {
			siblings = append(siblings, c)
		}
	}
	sortByTypeAndOrder(siblings)

	if err := r.store.DeleteCategory(ctx, id, denseOrders(idsOf(siblings))); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	slog.InfoContext(ctx, "Category deleted", "id", id, "type", target.Type)
	return nil
}

// Reorder assigns orders 1..N following ids, which must list every category
// of typ exactly once.
func (r *Registry) Reorder(ctx context.Context, typ core.TxType, ids []int64) error {
	if !typ.Valid() {
		return &core.ValidationError{Field: "type", Message: "must be income or expense"}
	}
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	if err := checkPermutation(idsOf(ofType(cats, typ)), ids); err != nil {
		return err
	}
	if err := r.store.ApplyCategoryOrder(ctx, denseOrders(ids)); err != nil {
		return fmt.Errorf("apply category order: %w", err)
	}
	slog.InfoContext(ctx, "Category order applied",
		applog.FieldComponent, applog.ComponentCategory,
		applog.FieldOperation, applog.OpReorder,
		"type", typ,
		"count", len(ids))
	return nil
}

// ResetOrder restores ascending-by-id ordering for typ.
func (r *Registry) ResetOrder(ctx context.Context, typ core.TxType) error {
	if !typ.Valid() {
		return &core.ValidationError{Field: "type", Message: "must be income or expense"}
	}
	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	ids := idsOf(ofType(cats, typ))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := r.store.ApplyCategoryOrder(ctx, denseOrders(ids)); err != nil {
		return fmt.Errorf("apply category order: %w", err)
	}
	slog.InfoContext(ctx, "Category order reset",
		applog.FieldComponent, applog.ComponentCategory,
		applog.FieldOperation, applog.OpReorder,
		"type", typ)
	return nil
}

// SeedDefaults inserts the built-ins newer than the stored registry version
// that are not already present. Existing rows are never touched. It returns
// the number of categories inserted.
func (r *Registry) SeedDefaults(ctx context.Context) (int, error) {
	stored, err := r.storedVersion(ctx)
	if err != nil {
		return 0, err
	}
	if stored >= CurrentVersion {
		return 0, nil
	}

	cats, err := r.store.ListCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	present := make(map[string]bool, len(cats))
	next := map[core.TxType]int{
		core.Income:  maxOrder(cats, core.Income),
		core.Expense: maxOrder(cats, core.Expense),
	}
	for _, c := range cats {
		if !c.IsCustom {
			present[c.BuiltinKey()] = true
		}
	}

	inserted := 0
	for _, def := range Builtins() {
		if def.Version <= stored || present[def.BuiltinKey()] {
			continue
		}
		next[def.Type]++
		def.Order = next[def.Type]
		def.IsCustom = false
		if _, err := r.store.InsertCategory(ctx, def); err != nil {
			return inserted, fmt.Errorf("seed category %q: %w", def.Name, err)
		}
		present[def.BuiltinKey()] = true
		inserted++
	}

	if err := r.store.PutSetting(ctx, versionSettingKey, strconv.Itoa(CurrentVersion)); err != nil {
		return inserted, fmt.Errorf("store registry version: %w", err)
	}

	slog.InfoContext(ctx, "Default categories seeded",
		"from_version", stored,
		"to_version", CurrentVersion,
		"inserted", inserted)
	return inserted, nil
}

func (r *Registry) storedVersion(ctx context.Context) (int, error) {
	v, ok, err := r.store.GetSetting(ctx, versionSettingKey)
	if err != nil {
		return 0, fmt.Errorf("read registry version: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring malformed registry version", "value", v)
		return 0, nil
	}
	return n, nil
}

// Name resolves a category name, falling back to UnknownName. It never fails.
func (r *Registry) Name(ctx context.Context, id int64) string {
	c, err := r.store.GetCategory(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Category lookup failed", "id", id, "error", err)
		}
		return UnknownName
	}
	return c.Name
}

// SetBudget sets or clears (nil) a category budget and records the change.
func (r *Registry) SetBudget(ctx context.Context, id int64, budget *core.Money) (core.Category, error) {
	if budget != nil && budget.Cents < 0 {
		return core.Category{}, &core.ValidationError{Field: "budget", Message: "must not be negative"}
	}
	c, err := r.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	c.Budget = budget
	if err := r.store.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category budget: %w", err)
	}
	r.recordBudget(ctx, id, budget)
	return c, nil
}

// BudgetHistory returns recorded budget changes in insertion order. A
// categoryID of zero returns every category's history.
func (r *Registry) BudgetHistory(ctx context.Context, categoryID int64) ([]core.BudgetChange, error) {
	all, err := r.store.BudgetHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("budget history: %w", err)
	}
	if categoryID == 0 {
		return all, nil
	}
	out := make([]core.BudgetChange, 0)
	for _, b := range all {
		if b.CategoryID == categoryID {
			out = append(out, b)
		}
	}
	return out, nil
}

// recordBudget appends to budget history. The category row is already
// written, so a failure here is logged only.
func (r *Registry) recordBudget(ctx context.Context, id int64, budget *core.Money) {
	change := core.BudgetChange{CategoryID: id, Budget: budget, EffectiveFrom: r.now()}
	if err := r.store.AppendBudgetChange(ctx, change); err != nil {
		slog.ErrorContext(ctx, "Failed to record budget change", "category_id", id, "error", err)
	}
}

func ofType(cats []core.Category, typ core.TxType) []core.Category {
	out := make([]core.Category, 0, len(cats))
	for _, c := range cats {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func idsOf(cats []core.Category) []int64 {
	ids := make([]int64, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	return ids
}

func maxOrder(cats []core.Category, typ core.TxType) int {
	m := 0
	for _, c := range cats {
		if c.Type == typ && c.Order > m {
			m = c.Order
		}
	}
	return m
}

func denseOrders(ids []int64) map[int64]int {
	orders := make(map[int64]int, len(ids))
	for i, id := range ids {
		orders[id] = i + 1
	}
	return orders
}

func checkPermutation(want, got []int64) error {
	if len(want) != len(got) {
		return &core.ValidationError{Field: "ids", Message: fmt.Sprintf("expected %d ids, got %d", len(want), len(got))}
	}
	known := make(map[int64]bool, len(want))
	for _, id := range want {
		known[id] = false
	}
	for _, id := range got {
		seen, ok := known[id]
		if !ok {
			return &core.ValidationError{Field: "ids", Message: fmt.Sprintf("category %d does not belong to this type", id)}
		}
		if seen {
			return &core.ValidationError{Field: "ids", Message: fmt.Sprintf("category %d listed twice", id)}
		}
		known[id] = true
	}
	return nil
}

// sortByTypeAndOrder sorts income before expense, then by order and id.
func sortByTypeAndOrder(cats []core.Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		a, b := cats[i], cats[j]
		if a.Type != b.Type {
			return a.Type == core.Income
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
}

func sameBudget(a, b *core.Money) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cents == b.Cents
}
