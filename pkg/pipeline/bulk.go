package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/storage"
)

// BulkConfig describes an externally prepared item list to ingest. The
// items were scraped elsewhere and arrive tagged with a common source
// context; no harvesting or enrichment runs.
type BulkConfig struct {
	DB          *storage.DB
	Items       []catalog.Candidate
	SourceBrand string
	MarketZone  string
	Segment     catalog.Segment

	FilterOptions filter.Options
	Log           Logger
}

// BulkResult reports saved vs skipped counts, by reason.
type BulkResult struct {
	Saved             int      `json:"saved"`
	SkippedNoURL      int      `json:"skippedNoUrl"`
	SkippedInvalidURL int      `json:"skippedInvalidUrl"`
	SkippedDuplicate  int      `json:"skippedDuplicate"`
	Errors            []string `json:"errors"`
}

// BulkSave ingests a pre-scraped list: URL validity and in-batch dedup are
// the only exclusion rules applied, then entries upsert as usual.
func BulkSave(ctx context.Context, cfg BulkConfig) (*BulkResult, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("bulk save requires a database")
	}
	if cfg.SourceBrand == "" || cfg.MarketZone == "" {
		return nil, fmt.Errorf("bulk save requires a source brand and market zone")
	}

	result := &BulkResult{}
	seen := make(map[string]struct{}, len(cfg.Items))

	for _, item := range cfg.Items {
		if strings.TrimSpace(item.ItemURL) == "" {
			result.SkippedNoURL++
			continue
		}
		if !filter.IsProductURL(item.ItemURL, cfg.FilterOptions) {
			result.SkippedInvalidURL++
			continue
		}
		if _, dup := seen[item.ItemURL]; dup {
			result.SkippedDuplicate++
			continue
		}
		seen[item.ItemURL] = struct{}{}

		item.SourceBrand = cfg.SourceBrand
		item.MarketZone = cfg.MarketZone
		if item.Segment == "" {
			item.Segment = cfg.Segment
		}

		// Imported items that carry their own trend estimate count as
		// enriched, so re-imports refresh scores instead of being ignored.
		enriched := item.TrendScore != nil
		entry := BuildEntry(item, catalog.Enrichment{}, false)
		if _, err := cfg.DB.UpsertEntry(ctx, entry, enriched); err != nil {
			log.Warnf("Bulk upsert failed for %s: %v", item.ItemURL, err)
			if len(result.Errors) < errorCap {
				result.Errors = append(result.Errors, err.Error())
			}
			continue
		}
		result.Saved++
	}

	log.Infof("Bulk save for %s/%s: %d saved, %d skipped",
		cfg.SourceBrand, cfg.MarketZone,
		result.Saved,
		result.SkippedNoURL+result.SkippedInvalidURL+result.SkippedDuplicate)
	return result, nil
}
