package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ledgerbook/internal/aggregate"
	"ledgerbook/internal/cache"
	"ledgerbook/internal/category"
	"ledgerbook/internal/core"
	"ledgerbook/internal/export"
	"ledgerbook/internal/ledger"
	"ledgerbook/internal/linkage"
	"ledgerbook/internal/ports"
)

const (
	assetGroupingKey = "asset_grouping"
	snapshotKey      = "all"
)

// LoanDirection selects loans by the type of their root.
type LoanDirection string

const (
	LoansAll   LoanDirection = ""
	LoansGiven LoanDirection = "given"
	LoansTaken LoanDirection = "taken"
)

// TxFilter narrows QueryTransactions. Zero values mean no bound.
type TxFilter struct {
	From    time.Time
	To      time.Time
	SubType core.SubType
}

type ViewsConfig struct {
	SnapshotTTL   time.Duration
	SuggestionTTL time.Duration
	CacheSize     int
	Clock         cache.Clock
}

func DefaultViewsConfig() ViewsConfig {
	return ViewsConfig{
		SnapshotTTL:   30 * time.Second,
		SuggestionTTL: 5 * time.Minute,
		CacheSize:     256,
	}
}

// Views answers the presentation queries. Results are recomputed from a
// cached transaction snapshot that every ledger write invalidates.
type Views struct {
	ledger   *ledger.Service
	registry *category.Registry
	settings ports.SettingsRepository
	now      cache.Clock

	loads       singleflight.Group
	generation  atomic.Uint64
	snapshots   *cache.LRUCache[[]core.Transaction]
	suggestions *cache.LRUCache[[]string]
	caches      *cache.Manager
}

func NewViews(l *ledger.Service, r *category.Registry, settings ports.SettingsRepository, cfg ViewsConfig) *Views {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultViewsConfig().CacheSize
	}
	v := &Views{
		ledger:      l,
		registry:    r,
		settings:    settings,
		now:         cfg.Clock,
		snapshots:   cache.NewLRUCache[[]core.Transaction](1, cfg.SnapshotTTL, cfg.Clock),
		suggestions: cache.NewLRUCache[[]string](cfg.CacheSize, cfg.SuggestionTTL, cfg.Clock),
		caches:      cache.NewManager(),
	}
	v.caches.Register(v.snapshots)
	v.caches.Register(v.suggestions)
	return v
}

// Caches exposes the cache manager so callers can run periodic sweeps.
func (v *Views) Caches() *cache.Manager {
	return v.caches
}

// Invalidate drops every cached view. It is registered as a ledger hook.
func (v *Views) Invalidate() {
	v.generation.Add(1)
	v.caches.InvalidateAll()
}

// OnLedgerChange adapts Invalidate to ledger.ChangeHook.
func (v *Views) OnLedgerChange(ctx context.Context, ev core.ChangeEvent) {
	v.Invalidate()
	slog.DebugContext(ctx, "Views invalidated", "op", ev.Op, "id", ev.TransactionID)
}

// snapshot returns every transaction. Concurrent callers share one load,
// and a load that raced with a write is not cached. The shared load ignores
// the caller's cancellation; a cancelled caller stops waiting for it.
func (v *Views) snapshot(ctx context.Context) ([]core.Transaction, error) {
	if txs, ok := v.snapshots.Get(snapshotKey); ok {
		return txs, nil
	}
	gen := v.generation.Load()
	loadCtx := context.WithoutCancel(ctx)
	ch := v.loads.DoChan(snapshotKey, func() (any, error) {
		txs, err := v.ledger.All(loadCtx)
		if err != nil {
			return nil, err
		}
		if v.generation.Load() == gen {
			v.snapshots.Set(snapshotKey, txs)
		}
		return txs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]core.Transaction), nil
	}
}

func (v *Views) ListCategories(ctx context.Context) ([]core.Category, error) {
	return v.registry.ListAll(ctx)
}

func (v *Views) CategoryName(ctx context.Context, id int64) string {
	return v.registry.Name(ctx, id)
}

// categoryNames returns a resolver backed by one category listing.
func (v *Views) categoryNames(ctx context.Context) (func(int64) string, error) {
	cats, err := v.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		return category.UnknownName
	}, nil
}

// QueryTransactions returns matching transactions, newest first.
func (v *Views) QueryTransactions(ctx context.Context, f TxFilter) ([]core.Transaction, error) {
	if f.SubType != "" && !f.SubType.Valid() {
		return nil, &core.ValidationError{Field: "subType", Message: "unknown subtype " + string(f.SubType)}
	}

	var (
		txs []core.Transaction
		err error
	)
	if !f.From.IsZero() || !f.To.IsZero() {
		to := f.To
		if to.IsZero() {
			to = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
		}
		txs, err = v.ledger.QueryByDateRange(ctx, f.From, to)
	} else {
		txs, err = v.snapshot(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.SubType == "" || tx.SubType == f.SubType {
			out = append(out, tx)
		}
	}
	linkage.SortByDate(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Loans returns loan groups, optionally by direction and root date range.
func (v *Views) Loans(ctx context.Context, dir LoanDirection, r *core.DateRange) ([]core.LoanGroup, error) {
	txs, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	groups := aggregate.GroupLoans(txs, v.now())

	rng := core.DateRange{Start: time.Time{}, End: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	if r != nil {
		rng = *r
	}
	switch dir {
	case LoansGiven:
		return aggregate.LoansGiven(groups, rng), nil
	case LoansTaken:
		return aggregate.LoansTaken(groups, rng), nil
	case LoansAll:
		if r == nil {
			return groups, nil
		}
		out := make([]core.LoanGroup, 0, len(groups))
		for _, g := range groups {
			if rng.Contains(g.Parent.Date) {
				out = append(out, g)
			}
		}
		return out, nil
	default:
		return nil, &core.ValidationError{Field: "direction", Message: "must be given or taken"}
	}
}

func (v *Views) LoanPeople(ctx context.Context) ([]core.PersonLoans, error) {
	groups, err := v.Loans(ctx, LoansAll, nil)
	if err != nil {
		return nil, err
	}
	return aggregate.SummarizeByPerson(groups), nil
}

func (v *Views) Assets(ctx context.Context) ([]core.AssetGroup, error) {
	txs, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupAssets(txs), nil
}

// AssetSummary returns asset rows merged per the stored category toggles.
func (v *Views) AssetSummary(ctx context.Context) ([]core.AssetCategorySummary, error) {
	groups, err := v.Assets(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := v.AssetGrouping(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupAssetsByCategory(groups, enabled), nil
}

// AssetGrouping returns the categories whose assets are merged.
func (v *Views) AssetGrouping(ctx context.Context) (map[int64]bool, error) {
	raw, ok, err := v.settings.GetSetting(ctx, assetGroupingKey)
	if err != nil {
		return nil, fmt.Errorf("read asset grouping: %w", err)
	}
	enabled := make(map[int64]bool)
	if !ok || raw == "" {
		return enabled, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		slog.WarnContext(ctx, "Ignoring malformed asset grouping setting", "error", err)
		return enabled, nil
	}
	for _, id := range ids {
		enabled[id] = true
	}
	return enabled, nil
}

// SetAssetGrouping turns merging on or off for one category.
func (v *Views) SetAssetGrouping(ctx context.Context, categoryID int64, on bool) error {
	if _, err := v.registry.Get(ctx, categoryID); err != nil {
		return err
	}
	enabled, err := v.AssetGrouping(ctx)
	if err != nil {
		return err
	}
	if on {
		enabled[categoryID] = true
	} else {
		delete(enabled, categoryID)
	}

	ids := make([]int64, 0, len(enabled))
	for id := range enabled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode asset grouping: %w", err)
	}
	if err := v.settings.PutSetting(ctx, assetGroupingKey, string(raw)); err != nil {
		return fmt.Errorf("store asset grouping: %w", err)
	}
	return nil
}

func (v *Views) FuelStats(ctx context.Context) (core.FuelStats, error) {
	txs, err := v.ledger.QueryBySubType(ctx, core.SubTypeFuel)
	if err != nil {
		return core.FuelStats{}, err
	}
	return aggregate.FuelStats(txs), nil
}

// BudgetOverview evaluates every budgeted category for the month of month.
func (v *Views) BudgetOverview(ctx context.Context, month time.Time) ([]core.BudgetStatus, error) {
	cats, err := v.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	r := core.MonthRange(month)
	txs, err := v.ledger.QueryByDateRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return aggregate.BudgetOverview(cats, txs), nil
}

// BudgetStatus evaluates one category for the month of month, whether or
// not it has a budget.
func (v *Views) BudgetStatus(ctx context.Context, categoryID int64, month time.Time) (core.BudgetStatus, error) {
	c, err := v.registry.Get(ctx, categoryID)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	r := core.MonthRange(month)
	txs, err := v.ledger.QueryByDateRange(ctx, r.Start, r.End)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	spend := aggregate.SpendByCategory(txs, c.Type)[c.ID]
	return aggregate.EvaluateBudget(c, spend), nil
}

// MemoSuggestions returns past memos starting with prefix, most used first.
func (v *Views) MemoSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(prefix))
	if limit <= 0 {
		limit = 10
	}
	if cached, ok := v.suggestions.Get(key); ok {
		return truncate(cached, limit), nil
	}

	txs, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	type memoStat struct {
		text  string
		count int
		last  time.Time
	}
	stats := make(map[string]*memoStat)
	for _, tx := range txs {
		memo := strings.TrimSpace(tx.Memo)
		norm := strings.ToLower(memo)
		if memo == "" || !strings.HasPrefix(norm, key) {
			continue
		}
		s, ok := stats[norm]
		if !ok {
			s = &memoStat{text: memo}
			stats[norm] = s
		}
		s.count++
		if tx.Date.After(s.last) {
			s.last = tx.Date
			s.text = memo
		}
	}

	list := make([]*memoStat, 0, len(stats))
	for _, s := range stats {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		if !list[i].last.Equal(list[j].last) {
			return list[i].last.After(list[j].last)
		}
		return list[i].text < list[j].text
	})
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.text
	}

	v.suggestions.Set(key, out)
	return truncate(out, limit), nil
}

// Orphans lists child transactions whose parent no longer exists.
func (v *Views) Orphans(ctx context.Context) ([]core.Transaction, error) {
	txs, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := linkage.New(txs)
	orphans := res.Dangling()
	for _, tx := range orphans {
		res.ResolveParent(ctx, tx)
	}
	return orphans, nil
}

// ExportRows projects transactions in r (all when nil) for export.
func (v *Views) ExportRows(ctx context.Context, r *core.DateRange, loc *time.Location) ([]export.Row, error) {
	var (
		txs []core.Transaction
		err error
	)
	if r != nil {
		txs, err = v.ledger.QueryByDateRange(ctx, r.Start, r.End)
	} else {
		txs, err = v.snapshot(ctx)
	}
	if err != nil {
		return nil, err
	}
	names, err := v.categoryNames(ctx)
	if err != nil {
		return nil, err
	}
	return export.Rows(txs, names, loc), nil
}

func truncate(s []string, n int) []string {
	if len(s) <= n {
		out := make([]string, len(s))
		copy(out, s)
		return out
	}
	out := make([]string, n)
	copy(out, s[:n])
	return out
}
