package storage

import (
	"context"

	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/sources"
)

// SaveSources records the source table a scan ran against. The table is
// configuration, not pipeline output: rows are replaced wholesale, keyed by
// source name.
func (d *DB) SaveSources(ctx context.Context, srcs []sources.Source) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, s := range srcs {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO sources(name, brand, market_zone, segment, listing_url, kind, priority, enabled)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET
  brand = excluded.brand, market_zone = excluded.market_zone, segment = excluded.segment,
  listing_url = excluded.listing_url, kind = excluded.kind,
  priority = excluded.priority, enabled = excluded.enabled`,
			s.Name, s.Brand, s.MarketZone, string(s.Segment), s.ListingURL, string(s.Kind), s.Priority, boolToInt(s.Enabled)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSources returns the recorded source table, highest priority first.
func (d *DB) ListSources(ctx context.Context) ([]sources.Source, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT name, brand, market_zone, segment, listing_url, kind, priority, enabled
FROM sources ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sources.Source
	for rows.Next() {
		var s sources.Source
		var segment, kind string
		var enabled int
		if err := rows.Scan(&s.Name, &s.Brand, &s.MarketZone, &segment, &s.ListingURL, &kind, &s.Priority, &enabled); err != nil {
			return nil, err
		}
		s.Segment = catalog.Segment(segment)
		s.Kind = sources.Kind(kind)
		s.Enabled = enabled == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

// SourceStats aggregates the catalog per (brand, zone) for the stats views.
type SourceStats struct {
	SourceBrand  string  `json:"sourceBrand"`
	MarketZone   string  `json:"marketZone"`
	EntryCount   int     `json:"entryCount"`
	AverageScore float64 `json:"averageScore"`
	AlertCount   int     `json:"alertCount"`
	AveragePrice float64 `json:"averagePrice"`
}

func (d *DB) GetStats(ctx context.Context) ([]SourceStats, error) {
	query := `
		SELECT
			source_brand,
			market_zone,
			COUNT(*),
			AVG(trend_score),
			SUM(is_global_trend_alert),
			AVG(price)
		FROM
			catalog_entries
		GROUP BY
			source_brand, market_zone
		ORDER BY
			source_brand, market_zone;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.SourceBrand, &s.MarketZone, &s.EntryCount, &s.AverageScore, &s.AlertCount, &s.AveragePrice); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
