package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/sources"
	"github.com/trendscope/trendscope/pkg/storage"
	"github.com/trendscope/trendscope/pkg/vision"
)

// Harvester abstracts the listing fetch+parse step so the pipeline can be
// exercised against fabricated sources.
type Harvester interface {
	Harvest(ctx context.Context, src sources.Source) ([]catalog.Candidate, error)
}

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// errorCap bounds the error list carried in a batch result.
const errorCap = 20

// Config holds everything Scan needs for a full pipeline run.
type Config struct {
	Sources   []sources.Source
	Harvester Harvester
	DB        *storage.DB

	// Classifier is optional; without it entries persist un-enriched.
	Classifier vision.Classifier

	FilterOptions     filter.Options
	SourceConcurrency int // defaults to 4 if <= 0
	EnrichConcurrency int // defaults to 8 if <= 0
	Log               Logger
}

// Result is the outcome of one scan run.
type Result struct {
	RunID         string   `json:"runId"`
	TotalScraped  int      `json:"totalScraped"`
	TotalAnalyzed int      `json:"totalAnalyzed"`
	TotalSaved    int      `json:"totalSaved"`
	Errors        []string `json:"errors"`
}

// Scan runs the full pipeline: harvest every source, filter, enrich,
// ingest, then one correlation pass. Stage-local failures are collected into
// the result and never abort the batch.
func Scan(ctx context.Context, cfg Config) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	if cfg.Harvester == nil || cfg.DB == nil {
		return nil, fmt.Errorf("pipeline requires a harvester and a database")
	}

	result := &Result{RunID: uuid.NewString()}
	var mu sync.Mutex
	addError := func(err error) {
		mu.Lock()
		if len(result.Errors) < errorCap {
			result.Errors = append(result.Errors, err.Error())
		}
		mu.Unlock()
	}

	srcs := sources.Enabled(cfg.Sources)
	log.Infof("[%s] scanning %d sources", result.RunID, len(srcs))

	// Harvest sources concurrently, but keep candidates in source order so
	// the in-batch dedup of the filter stays deterministic.
	harvested := harvestSources(ctx, cfg, srcs, addError, log)
	var candidates []catalog.Candidate
	for _, batch := range harvested {
		candidates = append(candidates, batch...)
	}
	result.TotalScraped = len(candidates)

	retained, report := filter.Apply(candidates, cfg.FilterOptions)
	log.Infof("[%s] %d/%d candidates retained after filtering", result.RunID, report.Kept, len(candidates))
	for reason, n := range report.Excluded {
		log.Debugf("[%s] excluded %d candidates: %s", result.RunID, n, reason)
	}

	var enrichments map[int]catalog.Enrichment
	if cfg.Classifier != nil {
		enrichments = vision.ClassifyBatch(ctx, cfg.Classifier, retained, cfg.EnrichConcurrency)
		result.TotalAnalyzed = len(enrichments)
	} else {
		log.Warnf("[%s] no classifier configured, persisting raw listings", result.RunID)
	}

	for i, cand := range retained {
		if ctx.Err() != nil {
			addError(ctx.Err())
			break
		}
		enr, enriched := enrichments[i]
		entry := BuildEntry(cand, enr, enriched)
		if _, err := cfg.DB.UpsertEntry(ctx, entry, enriched); err != nil {
			log.Warnf("[%s] upsert failed for %s: %v", result.RunID, cand.ItemURL, err)
			addError(err)
			continue
		}
		result.TotalSaved++
	}

	if corr, err := cfg.DB.Correlate(ctx); err != nil {
		log.Warnf("[%s] correlation pass failed: %v", result.RunID, err)
		addError(err)
	} else if len(corr.AlertSignatures) > 0 {
		log.Infof("[%s] %d signatures crossed the multi-zone threshold (%d entries flagged)",
			result.RunID, len(corr.AlertSignatures), corr.EntriesFlagged)
	}

	return result, nil
}

// harvestSources fetches every source with a bounded worker pool. One
// source failing is recorded and the rest continue; the next scheduled scan
// retries it.
func harvestSources(ctx context.Context, cfg Config, srcs []sources.Source, addError func(error), log Logger) [][]catalog.Candidate {
	concurrency := cfg.SourceConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([][]catalog.Candidate, len(srcs))
	indexChan := make(chan int, len(srcs))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexChan {
				src := srcs[idx]
				cands, err := cfg.Harvester.Harvest(ctx, src)
				if err != nil {
					log.Warnf("Failed to harvest %s: %v", src.Name, err)
					addError(err)
					continue
				}
				log.Debugf("Harvested %d candidates from %s", len(cands), src.Name)
				results[idx] = cands
			}
		}()
	}

	for idx := range srcs {
		indexChan <- idx
	}
	close(indexChan)
	wg.Wait()

	return results
}

// BuildEntry maps a filtered candidate plus its optional enrichment onto a
// catalog entry. Without a classifier verdict the trend score falls back to
// the candidate's own estimate, then to the neutral default.
func BuildEntry(cand catalog.Candidate, enr catalog.Enrichment, enriched bool) catalog.Entry {
	entry := catalog.Entry{
		SourceURL:   cand.ItemURL,
		MarketZone:  cand.MarketZone,
		SourceBrand: cand.SourceBrand,
		Name:        cand.Name,
		Category:    cand.Category,
		Price:       cand.Price,
		ImageRef:    cand.ImageRef,
		Segment:     cand.Segment,
		TrendScore:  catalog.NeutralTrendScore,
	}
	if cand.TrendScore != nil {
		entry.TrendScore = catalog.ClampScore(*cand.TrendScore)
	}
	if cand.GrowthPercent != nil {
		entry.GrowthPercent = *cand.GrowthPercent
	}

	if enriched {
		if enr.TrendScore != nil {
			entry.TrendScore = catalog.ClampScore(*enr.TrendScore)
		}
		if enr.Cut != nil {
			entry.Cut = *enr.Cut
		}
		if enr.Signature != nil {
			entry.Signature = *enr.Signature
		}
		if len(enr.Attributes) > 0 {
			entry.VisualAttributes = enr.Attributes
			if t, ok := enr.Attributes["type"]; ok && entry.Category == "" {
				entry.Category = t
			}
			if c, ok := enr.Attributes["color"]; ok {
				entry.Color = c
			}
			if m, ok := enr.Attributes["fabric"]; ok {
				entry.Material = m
			}
			if s, ok := enr.Attributes["style"]; ok {
				entry.Style = s
			}
		}
	}

	entry.TrendScoreVisual = entry.TrendScore
	entry.Saturability = catalog.SaturabilityFor(entry.TrendScore)
	return entry
}
