package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/trendscope/trendscope/internal/utils"
	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/pipeline"
	"github.com/trendscope/trendscope/pkg/sampler"
	"github.com/trendscope/trendscope/pkg/signals"
	"github.com/trendscope/trendscope/pkg/storage"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := pipeline.Scan(r.Context(), pipeline.Config{
		Sources:           s.Sources,
		Harvester:         s.Harvester,
		DB:                s.DB,
		Classifier:        s.Classifier,
		FilterOptions:     s.FilterOptions,
		SourceConcurrency: s.SourceConcurrency,
		EnrichConcurrency: s.EnrichConcurrency,
		Log:               utils.Log,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// ImportItem is one externally scraped listing item.
type ImportItem struct {
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	ImageURL      string   `json:"imageUrl"`
	ProductURL    string   `json:"productUrl"`
	Category      string   `json:"category,omitempty"`
	TrendScore    *float64 `json:"trendScore,omitempty"`
	GrowthPercent *float64 `json:"growthPercent,omitempty"`
}

// ImportRequest is a pre-scraped list tagged with its source context.
type ImportRequest struct {
	SourceID   string       `json:"sourceId"`
	Brand      string       `json:"brand"`
	MarketZone string       `json:"marketZone"`
	Segment    string       `json:"segment"`
	Items      []ImportItem `json:"items"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]catalog.Candidate, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, catalog.Candidate{
			Name:          it.Name,
			Price:         it.Price,
			ImageRef:      it.ImageURL,
			ItemURL:       it.ProductURL,
			Category:      it.Category,
			TrendScore:    it.TrendScore,
			GrowthPercent: it.GrowthPercent,
		})
	}

	result, err := pipeline.BulkSave(r.Context(), pipeline.BulkConfig{
		DB:            s.DB,
		Items:         items,
		SourceBrand:   req.Brand,
		MarketZone:    req.MarketZone,
		Segment:       catalog.Segment(req.Segment),
		FilterOptions: s.FilterOptions,
		Log:           utils.Log,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// MaintenanceRequest selects dry-run mode for the cleanup stage.
type MaintenanceRequest struct {
	DryRun bool `json:"dryRun"`
}

// MaintenanceResponse reports both maintenance stages.
type MaintenanceResponse struct {
	ScoresRecalculated int     `json:"scoresRecalculated"`
	AverageScore       float64 `json:"averageScore"`
	ProductsDeleted    int     `json:"productsDeleted,omitempty"`
	WouldDelete        int     `json:"wouldDelete,omitempty"`
	ProductsKept       int     `json:"productsKept"`
	DryRun             bool    `json:"dryRun"`
	KeptIDs            []int64 `json:"keptIds,omitempty"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	recalc, err := s.DB.RecalculateScores(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	opts := storage.DefaultCleanupOptions()
	opts.DryRun = req.DryRun
	cleanup, err := s.DB.Cleanup(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := MaintenanceResponse{
		ScoresRecalculated: recalc.Recalculated,
		AverageScore:       recalc.AverageScore,
		ProductsKept:       len(cleanup.KeptIDs),
		DryRun:             req.DryRun,
		KeptIDs:            cleanup.KeptIDs,
	}
	if req.DryRun {
		resp.WouldDelete = cleanup.ToDelete
	} else {
		resp.ProductsDeleted = cleanup.Deleted
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	window, err := s.DB.RecentWindow(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(signals.Aggregate(window, time.Now().UTC()))
}

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	seed := q.Get("seed")
	if seed == "" {
		seed = sampler.MonthlySeed(time.Now().UTC(), q.Get("category"))
	}
	count := 12
	if c := q.Get("count"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 {
			count = n
		}
	}

	entries, err := s.DB.ListEntries(r.Context(), storage.ListOptions{Category: q.Get("category")})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"seed":  seed,
		"items": sampler.Sample(entries, seed, count),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(stats)
}
