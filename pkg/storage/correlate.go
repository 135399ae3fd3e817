package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrCorrelationRunning is returned when a correlation pass is already in
// flight in this process.
var ErrCorrelationRunning = errors.New("a correlation pass is already running")

// CorrelationResult summarizes one correlation pass.
type CorrelationResult struct {
	SignaturesExamined int      `json:"signaturesExamined"`
	AlertSignatures    []string `json:"alertSignatures"`
	EntriesFlagged     int64    `json:"entriesFlagged"`
}

// Correlate groups catalog entries by classifier signature and promotes
// every member of a group observed in two or more distinct market zones to a
// global trend alert. The flag is monotonic: a group that later shrinks back
// to one zone stays flagged. Single-flight per process.
func (d *DB) Correlate(ctx context.Context) (CorrelationResult, error) {
	if !d.correlating.TryLock() {
		return CorrelationResult{}, ErrCorrelationRunning
	}
	defer d.correlating.Unlock()

	rows, err := d.sql.QueryContext(ctx, `
SELECT signature, market_zone FROM catalog_entries
WHERE signature IS NOT NULL AND signature != '' AND market_zone != ''`)
	if err != nil {
		return CorrelationResult{}, err
	}

	zonesBySignature := make(map[string]map[string]struct{})
	for rows.Next() {
		var sig, zone string
		if err := rows.Scan(&sig, &zone); err != nil {
			rows.Close()
			return CorrelationResult{}, err
		}
		zones, ok := zonesBySignature[sig]
		if !ok {
			zones = make(map[string]struct{})
			zonesBySignature[sig] = zones
		}
		zones[zone] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return CorrelationResult{}, err
	}

	result := CorrelationResult{SignaturesExamined: len(zonesBySignature)}
	for sig, zones := range zonesBySignature {
		if len(zones) >= 2 {
			result.AlertSignatures = append(result.AlertSignatures, sig)
		}
	}
	if len(result.AlertSignatures) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(result.AlertSignatures)), ",")
	args := make([]interface{}, 0, len(result.AlertSignatures))
	for _, sig := range result.AlertSignatures {
		args = append(args, sig)
	}

	// Only ever sets the flag. Clearing is deliberately not implemented.
	res, err := d.sql.ExecContext(ctx, `
UPDATE catalog_entries SET is_global_trend_alert = 1
WHERE is_global_trend_alert = 0 AND signature IN (`+placeholders+`)`, args...)
	if err != nil {
		return CorrelationResult{}, err
	}
	result.EntriesFlagged, _ = res.RowsAffected()
	return result, nil
}
