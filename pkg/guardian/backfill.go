package guardian

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

// BackfillSource supplies the historical queries a backfill needs.
// *collector.CostExplorerCollector satisfies it.
type BackfillSource interface {
	DailyServiceCosts(ctx context.Context, start, end time.Time) (map[string]map[string]float64, error)
	AccountID(ctx context.Context) (string, error)
}

// WithBackfillSource sets the historical cost source.
func WithBackfillSource(s BackfillSource) Option {
	return func(g *Guardian) { g.backfill = s }
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	DaysRequested    int
	StartDate        string
	EndDate          string
	SnapshotsCreated int
	SnapshotsSkipped int
}

// Backfill loads historical daily costs and creates one noon snapshot per
// day. Days that already have snapshots are left alone so a re-run never
// clobbers live collection data.
func (g *Guardian) Backfill(ctx context.Context, days int, opts RunOptions) (*BackfillResult, error) {
	ctx, span := g.Tracer.Start(ctx, "Guardian.Backfill")
	defer span.End()

	if g.backfill == nil {
		return nil, fmt.Errorf("guardian: no backfill source configured")
	}
	if g.store == nil {
		return nil, fmt.Errorf("guardian: no store configured")
	}
	if days <= 0 {
		return nil, fmt.Errorf("backfill days must be positive, got %d", days)
	}

	accountID, err := g.backfill.AccountID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	end := g.now().UTC()
	start := end.AddDate(0, 0, -days)
	g.Logger.Info("backfilling historical data",
		"days", days,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"))

	byDate, err := g.backfill.DailyServiceCosts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query historical costs: %w", err)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	result := &BackfillResult{
		DaysRequested: days,
		StartDate:     start.Format("2006-01-02"),
		EndDate:       end.Format("2006-01-02"),
	}

	for _, date := range dates {
		existing, err := g.store.SnapshotsForDate(ctx, date)
		if err != nil {
			return result, fmt.Errorf("check existing snapshots for %s: %w", date, err)
		}
		if len(existing) > 0 {
			g.Logger.Info("date already has snapshots, skipping", "date", date, "count", len(existing))
			result.SnapshotsSkipped++
			continue
		}

		costByService := byDate[date]
		var totalCost float64
		for _, cost := range costByService {
			totalCost += cost
		}
		if totalCost < 0.01 {
			result.SnapshotsSkipped++
			continue
		}

		snapshot := g.backfillSnapshot(date, accountID, costByService, totalCost)
		if opts.skipStorage() {
			g.Logger.Info("dry run, snapshot not stored", "date", date, "total_cost", totalCost)
			result.SnapshotsCreated++
			continue
		}
		if err := g.store.PutSnapshot(ctx, snapshot); err != nil {
			return result, fmt.Errorf("store snapshot for %s: %w", date, err)
		}
		result.SnapshotsCreated++
		g.Logger.Info("backfilled snapshot",
			"date", date,
			"total_cost", round2(totalCost),
			"services", len(costByService))
	}

	return result, nil
}

// backfillSnapshot records historical data as a noon snapshot; the true
// collection hour is unknowable after the fact.
func (g *Guardian) backfillSnapshot(date, accountID string, costByService map[string]float64, totalCost float64) storage.CostSnapshot {
	day, _ := time.Parse("2006-01-02", date)
	snapshot := storage.NewCostSnapshot(accountID, day.Add(12*time.Hour))
	snapshot.CostDataDate = date
	snapshot.TotalCost = round2(totalCost)
	snapshot.CostByService = costByService
	snapshot.TTL = g.snapshotTTL()
	return snapshot
}
