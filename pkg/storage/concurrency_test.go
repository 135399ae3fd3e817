package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/trendscope/trendscope/pkg/catalog"
)

func TestUpsertEntryConcurrentSameIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const workers = 16
	created := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(price float64) {
			defer wg.Done()
			c, err := db.UpsertEntry(ctx, catalog.Entry{
				SourceURL:   "https://shop.example.com/product/hoodie-1",
				MarketZone:  "EU",
				SourceBrand: "Zalando",
				Name:        "Hoodie oversize",
				Price:       price,
			}, false)
			if err != nil {
				t.Errorf("concurrent upsert failed: %v", err)
				return
			}
			created <- c
		}(float64(20 + i))
	}
	wg.Wait()
	close(created)

	var inserts int
	for c := range created {
		if c {
			inserts++
		}
	}
	if inserts != 1 {
		t.Fatalf("expected exactly one insert for a shared identity, got %d", inserts)
	}

	n, err := db.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestUpsertEntryConcurrentDistinctIdentities(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := db.UpsertEntry(ctx, catalog.Entry{
				SourceURL:   fmt.Sprintf("https://shop.example.com/product/item-%d", i),
				MarketZone:  "EU",
				SourceBrand: "Zalando",
				Name:        fmt.Sprintf("Item %d", i),
				Price:       30,
			}, false)
			if err != nil {
				t.Errorf("concurrent upsert failed: %v", err)
				return
			}
			if !created {
				t.Errorf("distinct identity %d should have inserted", i)
			}
		}(i)
	}
	wg.Wait()

	n, err := db.CountEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != workers {
		t.Fatalf("expected %d rows, got %d", workers, n)
	}
}

func TestCorrelateSingleFlight(t *testing.T) {
	db := openTestDB(t)

	// Stand in for an in-flight correlation pass.
	db.correlating.Lock()
	defer db.correlating.Unlock()

	if _, err := db.Correlate(context.Background()); !errors.Is(err, ErrCorrelationRunning) {
		t.Fatalf("err = %v, want ErrCorrelationRunning", err)
	}
}

func TestCleanupSingleFlight(t *testing.T) {
	db := openTestDB(t)

	db.cleaning.Lock()
	defer db.cleaning.Unlock()

	if _, err := db.Cleanup(context.Background(), DefaultCleanupOptions()); !errors.Is(err, ErrCleanupRunning) {
		t.Fatalf("err = %v, want ErrCleanupRunning", err)
	}
}
