package signals

import (
	"fmt"
	"sort"
	"time"

	"github.com/trendscope/trendscope/pkg/catalog"
)

// Tier is the production advice derived from a cluster's average score.
type Tier string

const (
	TierAccelerate   Tier = "accelerate-production"
	TierWatch        Tier = "watch"
	TierDoNotProduce Tier = "do-not-produce"
)

// maxClusters bounds the ranked view.
const maxClusters = 10

// Cluster is one ranked trading-signal group over the live catalog.
type Cluster struct {
	Key           string  `json:"key"`
	MemberCount   int     `json:"memberCount"`
	AverageScore  float64 `json:"averageScore"`
	AverageGrowth float64 `json:"averageGrowth"`
	AveragePrice  float64 `json:"averagePrice"`
	LastSeen      string  `json:"lastSeen"`
	Tier          Tier    `json:"tier"`
}

// Aggregate clusters a window of catalog entries into ranked signals:
// grouped by signature when present (category otherwise), averaged, tiered,
// sorted by average score, top 10. Read-only.
func Aggregate(entries []catalog.Entry, now time.Time) []Cluster {
	type group struct {
		key      string
		scoreSum float64
		growth   float64
		price    float64
		count    int
		lastSeen time.Time
	}

	groups := make(map[string]*group)
	var order []string
	for _, e := range entries {
		if e.TrendScore <= 0 {
			continue
		}
		key := e.Signature
		if key == "" {
			key = e.Category
		}
		if key == "" {
			key = "divers"
		}

		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.scoreSum += e.TrendScore
		g.growth += e.GrowthPercent
		g.price += e.Price
		g.count++
		if e.UpdatedAt.After(g.lastSeen) {
			g.lastSeen = e.UpdatedAt
		}
	}

	clusters := make([]Cluster, 0, len(order))
	for _, key := range order {
		g := groups[key]
		n := float64(g.count)
		avg := g.scoreSum / n
		clusters = append(clusters, Cluster{
			Key:           g.key,
			MemberCount:   g.count,
			AverageScore:  avg,
			AverageGrowth: g.growth / n,
			AveragePrice:  g.price / n,
			LastSeen:      AgeLabel(now, g.lastSeen),
			Tier:          TierFor(avg),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AverageScore > clusters[j].AverageScore
	})
	if len(clusters) > maxClusters {
		clusters = clusters[:maxClusters]
	}
	return clusters
}

// TierFor maps an average score to its production advice.
func TierFor(avgScore float64) Tier {
	switch {
	case avgScore > 80:
		return TierAccelerate
	case avgScore > 50:
		return TierWatch
	default:
		return TierDoNotProduce
	}
}

// AgeLabel renders a last-sighting timestamp as a relative French label.
func AgeLabel(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	age := now.Sub(t)
	if age < time.Minute {
		return "À l'instant"
	}
	if age < time.Hour {
		return fmt.Sprintf("Il y a %d min", int(age.Minutes()))
	}
	return fmt.Sprintf("Il y a %d h", int(age.Hours()))
}
