package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trendscope/trendscope/pkg/catalog"
)

const timeLayout = "2006-01-02 15:04:05"

// lockStripes bounds the per-identity mutex table. Writes to the same
// identity triple serialize; distinct identities proceed concurrently.
const lockStripes = 64

type DB struct {
	sql *sql.DB
	now func() time.Time

	identityLocks [lockStripes]sync.Mutex
	correlating   sync.Mutex
	cleaning      sync.Mutex
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS catalog_entries (
  id                    INTEGER PRIMARY KEY,
  source_url            TEXT NOT NULL,
  market_zone           TEXT NOT NULL,
  source_brand          TEXT NOT NULL,
  name                  TEXT NOT NULL,
  category              TEXT,
  style                 TEXT,
  material              TEXT,
  color                 TEXT,
  price                 REAL NOT NULL DEFAULT 0,
  image_ref             TEXT,
  segment               TEXT,
  cut                   TEXT,
  visual_attributes     TEXT,
  signature             TEXT,
  trend_score           REAL NOT NULL DEFAULT 50 CHECK (trend_score >= 0 AND trend_score <= 100),
  trend_score_visual    REAL NOT NULL DEFAULT 50,
  saturability          REAL NOT NULL DEFAULT 50 CHECK (saturability >= 0 AND saturability <= 100),
  growth_percent        REAL NOT NULL DEFAULT 0,
  is_global_trend_alert INTEGER NOT NULL DEFAULT 0 CHECK (is_global_trend_alert IN (0,1)),
  created_at            DATETIME NOT NULL,
  updated_at            DATETIME NOT NULL,
  UNIQUE(source_url, market_zone, source_brand)
);
CREATE INDEX IF NOT EXISTS idx_catalog_signature ON catalog_entries(signature);
CREATE INDEX IF NOT EXISTS idx_catalog_updated ON catalog_entries(updated_at);
CREATE INDEX IF NOT EXISTS idx_catalog_group ON catalog_entries(category, market_zone);
CREATE TABLE IF NOT EXISTS sources (
  name        TEXT PRIMARY KEY,
  brand       TEXT NOT NULL,
  market_zone TEXT NOT NULL,
  segment     TEXT,
  listing_url TEXT NOT NULL,
  kind        TEXT NOT NULL,
  priority    INTEGER NOT NULL DEFAULT 0,
  enabled     INTEGER NOT NULL DEFAULT 1 CHECK (enabled IN (0,1))
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// WithClock overrides the time source. Tests use it to age entries.
func (d *DB) WithClock(now func() time.Time) *DB {
	d.now = now
	return d
}

func (d *DB) identityLock(e catalog.Entry) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(e.SourceURL))
	h.Write([]byte{0})
	h.Write([]byte(e.MarketZone))
	h.Write([]byte{0})
	h.Write([]byte(e.SourceBrand))
	return &d.identityLocks[h.Sum32()%lockStripes]
}

// UpsertEntry persists one catalog entry under its composite identity.
// First sighting inserts; re-sighting updates mutable fields in place and
// never touches created_at or the alert flag. enriched signals whether the
// entry carries a fresh classifier verdict: without it, an existing row only
// gets its listing fields (name, price, image) refreshed, so an enrichment
// outage cannot reset previously classified entries to the neutral score.
// The operation is idempotent.
func (d *DB) UpsertEntry(ctx context.Context, e catalog.Entry, enriched bool) (created bool, err error) {
	if e.SourceURL == "" || e.MarketZone == "" || e.SourceBrand == "" {
		return false, fmt.Errorf("incomplete identity for %q", e.Name)
	}

	mu := d.identityLock(e)
	mu.Lock()
	defer mu.Unlock()

	now := d.now().UTC().Format(timeLayout)

	var id int64
	row := d.sql.QueryRowContext(ctx,
		`SELECT id FROM catalog_entries WHERE source_url = ? AND market_zone = ? AND source_brand = ?`,
		e.SourceURL, e.MarketZone, e.SourceBrand)
	switch err := row.Scan(&id); err {
	case sql.ErrNoRows:
		attrs, jerr := attrsToJSON(e.VisualAttributes)
		if jerr != nil {
			return false, jerr
		}
		score := catalog.ClampScore(e.TrendScore)
		_, ierr := d.sql.ExecContext(ctx, `
INSERT INTO catalog_entries(
  source_url, market_zone, source_brand,
  name, category, style, material, color, price, image_ref, segment,
  cut, visual_attributes, signature,
  trend_score, trend_score_visual, saturability, growth_percent,
  created_at, updated_at
) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.SourceURL, e.MarketZone, e.SourceBrand,
			e.Name, nullIfEmpty(e.Category), nullIfEmpty(e.Style), nullIfEmpty(e.Material), nullIfEmpty(e.Color),
			e.Price, nullIfEmpty(e.ImageRef), nullIfEmpty(string(e.Segment)),
			nullIfEmpty(e.Cut), attrs, nullIfEmpty(e.Signature),
			score, catalog.ClampScore(e.TrendScoreVisual), catalog.SaturabilityFor(score), e.GrowthPercent,
			now, now)
		if ierr != nil {
			return false, ierr
		}
		return true, nil
	case nil:
	default:
		return false, err
	}

	if !enriched {
		_, uerr := d.sql.ExecContext(ctx, `
UPDATE catalog_entries SET name = ?, price = ?, image_ref = COALESCE(?, image_ref), updated_at = ?
WHERE id = ?`,
			e.Name, e.Price, nullIfEmpty(e.ImageRef), now, id)
		return false, uerr
	}

	attrs, jerr := attrsToJSON(e.VisualAttributes)
	if jerr != nil {
		return false, jerr
	}
	score := catalog.ClampScore(e.TrendScore)
	_, uerr := d.sql.ExecContext(ctx, `
UPDATE catalog_entries SET
  name = ?, category = COALESCE(?, category), style = COALESCE(?, style),
  material = COALESCE(?, material), color = COALESCE(?, color),
  price = ?, image_ref = COALESCE(?, image_ref), segment = COALESCE(?, segment),
  cut = COALESCE(?, cut), visual_attributes = COALESCE(?, visual_attributes),
  signature = COALESCE(?, signature),
  trend_score = ?, trend_score_visual = ?, saturability = ?, growth_percent = ?,
  updated_at = ?
WHERE id = ?`,
		e.Name, nullIfEmpty(e.Category), nullIfEmpty(e.Style),
		nullIfEmpty(e.Material), nullIfEmpty(e.Color),
		e.Price, nullIfEmpty(e.ImageRef), nullIfEmpty(string(e.Segment)),
		nullIfEmpty(e.Cut), attrs, nullIfEmpty(e.Signature),
		score, catalog.ClampScore(e.TrendScoreVisual), catalog.SaturabilityFor(score), e.GrowthPercent,
		now, id)
	return false, uerr
}

// GetEntry looks up one entry by its composite identity.
func (d *DB) GetEntry(ctx context.Context, sourceURL, marketZone, sourceBrand string) (*catalog.Entry, error) {
	rows, err := d.sql.QueryContext(ctx, selectColumns+`
FROM catalog_entries WHERE source_url = ? AND market_zone = ? AND source_brand = ?`,
		sourceURL, marketZone, sourceBrand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListOptions controls selection when listing entries.
type ListOptions struct {
	MarketZone    string
	SourceBrand   string
	Category      string
	WithSignature bool
	AlertsOnly    bool
	Limit         int
}

// ListEntries returns current entries matching filters, most recent first.
func (d *DB) ListEntries(ctx context.Context, opts ListOptions) ([]catalog.Entry, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.MarketZone != "" {
		where += " AND market_zone = ?"
		args = append(args, opts.MarketZone)
	}
	if opts.SourceBrand != "" {
		where += " AND source_brand = ?"
		args = append(args, opts.SourceBrand)
	}
	if opts.Category != "" {
		where += " AND category = ?"
		args = append(args, opts.Category)
	}
	if opts.WithSignature {
		where += " AND signature IS NOT NULL AND signature != ''"
	}
	if opts.AlertsOnly {
		where += " AND is_global_trend_alert = 1"
	}

	q := selectColumns + " FROM catalog_entries " + where + " ORDER BY updated_at DESC, id DESC"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentWindow returns the most recent entries with a positive trend score,
// the slice the signal aggregator reads.
func (d *DB) RecentWindow(ctx context.Context, limit int) ([]catalog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.sql.QueryContext(ctx, selectColumns+`
FROM catalog_entries WHERE trend_score > 0 ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntries returns the catalog size.
func (d *DB) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&n)
	return n, err
}

const selectColumns = `
SELECT id, source_url, market_zone, source_brand,
  name, category, style, material, color, price, image_ref, segment,
  cut, visual_attributes, signature,
  trend_score, trend_score_visual, saturability, growth_percent,
  is_global_trend_alert, created_at, updated_at`

func scanEntry(rows *sql.Rows) (catalog.Entry, error) {
	var e catalog.Entry
	var category, style, material, color, imageRef, segment, cut, attrs, signature sql.NullString
	var alert int
	var createdAt, updatedAt string
	if err := rows.Scan(
		&e.ID, &e.SourceURL, &e.MarketZone, &e.SourceBrand,
		&e.Name, &category, &style, &material, &color, &e.Price, &imageRef, &segment,
		&cut, &attrs, &signature,
		&e.TrendScore, &e.TrendScoreVisual, &e.Saturability, &e.GrowthPercent,
		&alert, &createdAt, &updatedAt,
	); err != nil {
		return e, err
	}
	e.Category = category.String
	e.Style = style.String
	e.Material = material.String
	e.Color = color.String
	e.ImageRef = imageRef.String
	e.Segment = catalog.Segment(segment.String)
	e.Cut = cut.String
	e.Signature = signature.String
	e.IsGlobalTrendAlert = alert == 1
	if attrs.Valid && attrs.String != "" {
		_ = json.Unmarshal([]byte(attrs.String), &e.VisualAttributes)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// parseTime handles both the SQLite CURRENT_TIMESTAMP layout and RFC3339.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func attrsToJSON(m map[string]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
