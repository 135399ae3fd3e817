package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/trendscope/trendscope/pkg/catalog"
)

// ErrCleanupRunning is returned when a cleanup pass is already in flight in
// this process.
var ErrCleanupRunning = errors.New("a cleanup pass is already running")

// RecalcResult summarizes a score recalculation pass.
type RecalcResult struct {
	Recalculated int     `json:"scoresRecalculated"`
	AverageScore float64 `json:"averageScore"`
}

// recencyHorizon is the age at which the recency component of the blended
// score bottoms out.
const recencyHorizon = 7 * 24 * time.Hour

// blendScore mixes the stored classifier score with a linear recency factor
// so stale sightings drift down without losing the visual verdict.
func blendScore(visual float64, age time.Duration) float64 {
	recency := 100 * (1 - float64(age)/float64(recencyHorizon))
	if recency < 0 {
		recency = 0
	}
	return catalog.ClampScore(0.8*visual + 0.2*recency)
}

// RecalculateScores recomputes every entry's trend score from its stored
// visual score and age, refreshes saturability, and reports the new catalog
// average for observability.
func (d *DB) RecalculateScores(ctx context.Context) (RecalcResult, error) {
	now := d.now().UTC()

	rows, err := d.sql.QueryContext(ctx, "SELECT id, trend_score_visual, updated_at FROM catalog_entries")
	if err != nil {
		return RecalcResult{}, err
	}

	type scored struct {
		id    int64
		score float64
	}
	var updates []scored
	for rows.Next() {
		var id int64
		var visual float64
		var updatedAt string
		if err := rows.Scan(&id, &visual, &updatedAt); err != nil {
			rows.Close()
			return RecalcResult{}, err
		}
		updates = append(updates, scored{id: id, score: blendScore(visual, now.Sub(parseTime(updatedAt)))})
	}
	if err := rows.Close(); err != nil {
		return RecalcResult{}, err
	}

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return RecalcResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var sum float64
	for _, u := range updates {
		// Recalculation mutates scores only; updated_at stays, it marks sightings.
		if _, err = tx.ExecContext(ctx,
			"UPDATE catalog_entries SET trend_score = ?, saturability = ? WHERE id = ?",
			u.score, catalog.SaturabilityFor(u.score), u.id); err != nil {
			return RecalcResult{}, err
		}
		sum += u.score
	}
	if err = tx.Commit(); err != nil {
		return RecalcResult{}, err
	}

	result := RecalcResult{Recalculated: len(updates)}
	if len(updates) > 0 {
		result.AverageScore = sum / float64(len(updates))
	}
	return result, nil
}

// CleanupOptions tunes the retention pass. The keep predicate is
// configurable: alert-flagged entries and the top-N scorers of each
// (category, market zone) group survive expiry.
type CleanupOptions struct {
	Retention  time.Duration // default 7 days
	KeepAlerts bool
	KeepTopN   int
	DryRun     bool
}

// DefaultCleanupOptions returns the standard retention policy.
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		Retention:  7 * 24 * time.Hour,
		KeepAlerts: true,
		KeepTopN:   3,
	}
}

// CleanupResult reports a retention pass. In dry-run mode Deleted stays 0
// and ToDelete reports what a real run would remove.
type CleanupResult struct {
	ToDelete int     `json:"toDelete"`
	Deleted  int     `json:"deleted"`
	KeptIDs  []int64 `json:"keptIds"`
	DryRun   bool    `json:"dryRun"`
}

// Cleanup deletes entries whose last sighting is older than the retention
// window, unless the keep predicate protects them. Dry run computes the full
// result without mutating the store. Single-flight per process.
func (d *DB) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if !d.cleaning.TryLock() {
		return CleanupResult{}, ErrCleanupRunning
	}
	defer d.cleaning.Unlock()

	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	cutoff := d.now().UTC().Add(-opts.Retention).Format(timeLayout)

	type rankedEntry struct {
		id      int64
		group   string
		score   float64
		alert   bool
		expired bool
	}

	rows, err := d.sql.QueryContext(ctx, `
SELECT id, COALESCE(category, ''), market_zone, trend_score, is_global_trend_alert, updated_at < ?
FROM catalog_entries`, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}

	var all []rankedEntry
	for rows.Next() {
		var e rankedEntry
		var category, zone string
		var alert, expired int
		if err := rows.Scan(&e.id, &category, &zone, &e.score, &alert, &expired); err != nil {
			rows.Close()
			return CleanupResult{}, err
		}
		e.group = category + "|" + zone
		e.alert = alert == 1
		e.expired = expired == 1
		all = append(all, e)
	}
	if err := rows.Close(); err != nil {
		return CleanupResult{}, err
	}

	// Rank within (category, zone) across the whole catalog, not just the
	// expired slice: an old entry still leading its group stays.
	topIDs := make(map[int64]struct{})
	if opts.KeepTopN > 0 {
		groups := make(map[string][]rankedEntry)
		for _, e := range all {
			groups[e.group] = append(groups[e.group], e)
		}
		for _, members := range groups {
			sort.Slice(members, func(i, j int) bool { return members[i].score > members[j].score })
			for i := 0; i < len(members) && i < opts.KeepTopN; i++ {
				topIDs[members[i].id] = struct{}{}
			}
		}
	}

	result := CleanupResult{DryRun: opts.DryRun}
	var deleteIDs []int64
	for _, e := range all {
		if !e.expired {
			continue
		}
		keep := (opts.KeepAlerts && e.alert)
		if !keep {
			_, keep = topIDs[e.id]
		}
		if keep {
			result.KeptIDs = append(result.KeptIDs, e.id)
			continue
		}
		deleteIDs = append(deleteIDs, e.id)
	}
	result.ToDelete = len(deleteIDs)

	if opts.DryRun || len(deleteIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(deleteIDs)), ",")
	args := make([]interface{}, 0, len(deleteIDs))
	for _, id := range deleteIDs {
		args = append(args, id)
	}
	res, err := d.sql.ExecContext(ctx, "DELETE FROM catalog_entries WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return CleanupResult{}, err
	}
	deleted, _ := res.RowsAffected()
	result.Deleted = int(deleted)
	return result, nil
}
