package catalog

import "time"

// Segment partitions the catalog by target audience.
type Segment string

const (
	SegmentMen   Segment = "men"
	SegmentWomen Segment = "women"
)

// Candidate is a raw listing item produced by a harvester, before any
// filtering or enrichment.
type Candidate struct {
	Name     string
	Price    float64
	ImageRef string
	ItemURL  string

	// Source context the candidate was harvested under.
	SourceBrand string
	MarketZone  string
	Segment     Segment

	// Optional trend fields carried by externally prepared imports.
	TrendScore    *float64
	GrowthPercent *float64
	Category      string
}

// Enrichment is the output of the visual classifier for one candidate.
// Every field is optional: the classifier may return a partial answer and
// the pipeline must cope.
type Enrichment struct {
	Cut        *string
	Attributes map[string]string
	TrendScore *float64
	Signature  *string
}

// Entry is a persisted catalog record. Its identity is the composite
// (SourceURL, MarketZone, SourceBrand) triple; re-ingesting the same triple
// updates the existing row.
type Entry struct {
	ID int64

	SourceURL   string
	MarketZone  string
	SourceBrand string

	Name     string
	Category string
	Style    string
	Material string
	Color    string
	Price    float64
	ImageRef string
	Segment  Segment

	Cut              string
	VisualAttributes map[string]string
	Signature        string

	TrendScore       float64
	TrendScoreVisual float64
	Saturability     float64
	GrowthPercent    float64

	IsGlobalTrendAlert bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NeutralTrendScore is assigned when an item persists without a classifier
// verdict.
const NeutralTrendScore = 50

// ClampScore bounds a score to the [0,100] range.
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// SaturabilityFor derives the inverse-of-opportunity estimate from a trend
// score: max(0, 100-score).
func SaturabilityFor(trendScore float64) float64 {
	sat := 100 - trendScore
	if sat < 0 {
		return 0
	}
	return sat
}
