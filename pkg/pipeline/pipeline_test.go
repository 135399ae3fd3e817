package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/filter"
	"github.com/trendscope/trendscope/pkg/sources"
	"github.com/trendscope/trendscope/pkg/storage"
)

// fakeHarvester serves canned candidates per source name.
type fakeHarvester struct {
	batches map[string][]catalog.Candidate
	fail    map[string]bool
}

func (f *fakeHarvester) Harvest(_ context.Context, src sources.Source) ([]catalog.Candidate, error) {
	if f.fail[src.Name] {
		return nil, errors.New("fetch failed: " + src.Name)
	}
	return f.batches[src.Name], nil
}

// fakeClassifier returns a signature derived from the product name.
type fakeClassifier struct {
	sigs map[string]string
	fail map[string]bool
}

func (f *fakeClassifier) Classify(_ context.Context, _, name string) (catalog.Enrichment, error) {
	if f.fail[name] {
		return catalog.Enrichment{}, errors.New("classifier timeout")
	}
	score := 75.0
	cut := "boxy"
	sig := f.sigs[name]
	enr := catalog.Enrichment{
		Cut:        &cut,
		TrendScore: &score,
		Attributes: map[string]string{"color": "cream"},
	}
	if sig != "" {
		enr.Signature = &sig
	}
	return enr, nil
}

func src(name, zone string) sources.Source {
	return sources.Source{Name: name, Brand: name, MarketZone: zone, Enabled: true}
}

func goodCand(name, url, zone, brand string) catalog.Candidate {
	return catalog.Candidate{
		Name:        name,
		Price:       39.90,
		ImageRef:    "https://img.example.com/x.jpg",
		ItemURL:     url,
		MarketZone:  zone,
		SourceBrand: brand,
	}
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScanEndToEnd(t *testing.T) {
	db := openTestDB(t)

	h := &fakeHarvester{
		batches: map[string][]catalog.Candidate{
			"eu": {
				goodCand("Hoodie oversize", "https://eu.example.com/product/hoodie", "EU", "eu"),
				goodCand("Chaussettes x3", "https://eu.example.com/product/socks", "EU", "eu"),
			},
			"us": {
				goodCand("Boxy hoodie", "https://us.example.com/product/hoodie", "US", "us"),
			},
		},
	}
	c := &fakeClassifier{sigs: map[string]string{
		"Hoodie oversize": "HOODIE-BOXY-CREAM",
		"Boxy hoodie":     "HOODIE-BOXY-CREAM",
	}}

	result, err := Scan(context.Background(), Config{
		Sources:       []sources.Source{src("eu", "EU"), src("us", "US")},
		Harvester:     h,
		DB:            db,
		Classifier:    c,
		FilterOptions: filter.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalScraped != 3 {
		t.Fatalf("scraped = %d, want 3", result.TotalScraped)
	}
	// The socks candidate is blacklisted before enrichment.
	if result.TotalAnalyzed != 2 || result.TotalSaved != 2 {
		t.Fatalf("analyzed/saved = %d/%d, want 2/2", result.TotalAnalyzed, result.TotalSaved)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	// Correlation ran: the signature was sighted in EU and US.
	entries, err := db.ListEntries(context.Background(), storage.ListOptions{AlertsOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 alert entries after scan, got %d", len(entries))
	}
}

func TestScanToleratesSourceFailure(t *testing.T) {
	db := openTestDB(t)

	h := &fakeHarvester{
		batches: map[string][]catalog.Candidate{
			"ok": {goodCand("Veste courte", "https://ok.example.com/product/veste", "EU", "ok")},
		},
		fail: map[string]bool{"down": true},
	}

	result, err := Scan(context.Background(), Config{
		Sources:       []sources.Source{src("down", "EU"), src("ok", "EU")},
		Harvester:     h,
		DB:            db,
		Classifier:    &fakeClassifier{},
		FilterOptions: filter.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalSaved != 1 {
		t.Fatalf("saved = %d, want the healthy source's item", result.TotalSaved)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 collected error, got %v", result.Errors)
	}
}

func TestScanPersistsItemsThatFailedEnrichment(t *testing.T) {
	db := openTestDB(t)

	h := &fakeHarvester{
		batches: map[string][]catalog.Candidate{
			"eu": {
				goodCand("Hoodie oversize", "https://eu.example.com/product/hoodie", "EU", "eu"),
				goodCand("Pantalon large", "https://eu.example.com/product/pantalon", "EU", "eu"),
			},
		},
	}
	c := &fakeClassifier{
		sigs: map[string]string{"Hoodie oversize": "HOODIE-BOXY-CREAM"},
		fail: map[string]bool{"Pantalon large": true},
	}

	result, err := Scan(context.Background(), Config{
		Sources:       []sources.Source{src("eu", "EU")},
		Harvester:     h,
		DB:            db,
		Classifier:    c,
		FilterOptions: filter.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalAnalyzed != 1 {
		t.Fatalf("analyzed = %d, want 1", result.TotalAnalyzed)
	}
	if result.TotalSaved != 2 {
		t.Fatalf("saved = %d, want both items persisted", result.TotalSaved)
	}

	got, err := db.GetEntry(context.Background(), "https://eu.example.com/product/pantalon", "EU", "eu")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("enrichment-failed item was not persisted")
	}
	if got.TrendScore != catalog.NeutralTrendScore {
		t.Fatalf("expected neutral score, got %v", got.TrendScore)
	}
	if got.Signature != "" {
		t.Fatalf("unexpected signature on failed enrichment: %q", got.Signature)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	h := &fakeHarvester{
		batches: map[string][]catalog.Candidate{
			"eu": {
				goodCand("Hoodie oversize", "https://eu.example.com/product/hoodie", "EU", "eu"),
				goodCand("Veste courte", "https://eu.example.com/product/veste", "EU", "eu"),
			},
		},
	}
	c := &fakeClassifier{sigs: map[string]string{"Hoodie oversize": "HOODIE-BOXY-CREAM"}}
	cfg := Config{
		Sources:       []sources.Source{src("eu", "EU")},
		Harvester:     h,
		DB:            db,
		Classifier:    c,
		FilterOptions: filter.DefaultOptions(),
	}

	first, err := Scan(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Scan(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	if first.TotalSaved != second.TotalSaved {
		t.Fatalf("saved counts diverged: %d vs %d", first.TotalSaved, second.TotalSaved)
	}
	n, err := db.CountEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries after identical scans, got %d", n)
	}
}

func TestBulkSaveSkipReasons(t *testing.T) {
	db := openTestDB(t)

	items := []catalog.Candidate{
		{Name: "Hoodie", Price: 30, ItemURL: "https://shop.example.com/product/hoodie"},
		{Name: "No URL", Price: 30},
		{Name: "Bad URL", Price: 30, ItemURL: "https://shop.example.com/search?q=x"},
		{Name: "Dup", Price: 30, ItemURL: "https://shop.example.com/product/hoodie"},
	}

	result, err := BulkSave(context.Background(), BulkConfig{
		DB:            db,
		Items:         items,
		SourceBrand:   "Partner",
		MarketZone:    "EU",
		Segment:       catalog.SegmentMen,
		FilterOptions: filter.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Saved != 1 {
		t.Fatalf("saved = %d, want 1", result.Saved)
	}
	if result.SkippedNoURL != 1 || result.SkippedInvalidURL != 1 || result.SkippedDuplicate != 1 {
		t.Fatalf("unexpected skip counts: %+v", result)
	}

	// The import path skips blacklist/price/image rules: only URL checks apply.
	imgless, err := BulkSave(context.Background(), BulkConfig{
		DB:            db,
		Items:         []catalog.Candidate{{Name: "Chaussettes", Price: 2, ItemURL: "https://shop.example.com/product/socks"}},
		SourceBrand:   "Partner",
		MarketZone:    "EU",
		FilterOptions: filter.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if imgless.Saved != 1 {
		t.Fatalf("import path must not apply scan-only rules: %+v", imgless)
	}
}

func TestBuildEntryDefaults(t *testing.T) {
	cand := goodCand("Hoodie", "https://eu.example.com/product/hoodie", "EU", "Zalando")

	plain := BuildEntry(cand, catalog.Enrichment{}, false)
	if plain.TrendScore != catalog.NeutralTrendScore || plain.Saturability != 50 {
		t.Fatalf("expected neutral defaults, got %+v", plain)
	}

	score := 92.0
	sig := "HOODIE-BOXY-CREAM"
	enriched := BuildEntry(cand, catalog.Enrichment{TrendScore: &score, Signature: &sig}, true)
	if enriched.TrendScore != 92 || enriched.Saturability != 8 {
		t.Fatalf("expected classifier score applied, got %+v", enriched)
	}
	if enriched.Signature != sig {
		t.Fatalf("signature not applied: %+v", enriched)
	}
}
