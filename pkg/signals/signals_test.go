package signals

import (
	"testing"
	"time"

	"github.com/trendscope/trendscope/pkg/catalog"
)

var now = time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)

func entry(sig, category string, score, price float64, age time.Duration) catalog.Entry {
	return catalog.Entry{
		Signature:  sig,
		Category:   category,
		TrendScore: score,
		Price:      price,
		UpdatedAt:  now.Add(-age),
	}
}

func TestAggregateGroupsBySignatureThenCategory(t *testing.T) {
	entries := []catalog.Entry{
		entry("HOODIE-BOXY-CREAM", "hoodie", 90, 40, time.Minute),
		entry("HOODIE-BOXY-CREAM", "hoodie", 80, 50, 2*time.Minute),
		entry("", "veste", 60, 100, time.Minute),
		entry("", "veste", 40, 120, time.Minute),
	}

	clusters := Aggregate(entries, now)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	if clusters[0].Key != "HOODIE-BOXY-CREAM" {
		t.Fatalf("expected signature cluster first, got %q", clusters[0].Key)
	}
	if clusters[0].MemberCount != 2 || clusters[0].AverageScore != 85 {
		t.Fatalf("bad signature cluster: %+v", clusters[0])
	}
	if clusters[1].Key != "veste" || clusters[1].AverageScore != 50 {
		t.Fatalf("bad category cluster: %+v", clusters[1])
	}
}

func TestAggregateConservesMembers(t *testing.T) {
	var entries []catalog.Entry
	sigs := []string{"A", "B", "C", ""}
	for i := 0; i < 40; i++ {
		entries = append(entries, entry(sigs[i%len(sigs)], "divers", float64(10+i), 20, time.Minute))
	}

	clusters := Aggregate(entries, now)
	total := 0
	for _, c := range clusters {
		total += c.MemberCount
	}
	if total != len(entries) {
		t.Fatalf("cluster members sum to %d, want %d", total, len(entries))
	}
}

func TestAggregateSkipsZeroScores(t *testing.T) {
	entries := []catalog.Entry{
		entry("A", "", 0, 10, time.Minute),
		entry("B", "", 70, 10, time.Minute),
	}
	clusters := Aggregate(entries, now)
	if len(clusters) != 1 || clusters[0].Key != "B" {
		t.Fatalf("expected only the scored entry, got %+v", clusters)
	}
}

func TestAggregateTopTen(t *testing.T) {
	var entries []catalog.Entry
	for i := 0; i < 15; i++ {
		entries = append(entries, entry("", string(rune('a'+i)), float64(10+i), 10, time.Minute))
	}

	clusters := Aggregate(entries, now)
	if len(clusters) != 10 {
		t.Fatalf("expected 10 clusters, got %d", len(clusters))
	}
	for i := 1; i < len(clusters); i++ {
		if clusters[i].AverageScore > clusters[i-1].AverageScore {
			t.Fatalf("clusters not sorted by score at %d", i)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{95, TierAccelerate},
		{81, TierAccelerate},
		{80, TierWatch},
		{51, TierWatch},
		{50, TierDoNotProduce},
		{10, TierDoNotProduce},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestAgeLabel(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{30 * time.Second, "À l'instant"},
		{5 * time.Minute, "Il y a 5 min"},
		{59 * time.Minute, "Il y a 59 min"},
		{3 * time.Hour, "Il y a 3 h"},
	}
	for _, tt := range tests {
		if got := AgeLabel(now, now.Add(-tt.age)); got != tt.want {
			t.Errorf("AgeLabel(-%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}
