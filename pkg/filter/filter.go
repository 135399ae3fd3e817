package filter

import (
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/trendscope/trendscope/pkg/catalog"
)

// Reason identifies why a candidate was excluded.
type Reason string

const (
	ReasonBlacklist  Reason = "blacklisted-keyword"
	ReasonPriceFloor Reason = "below-price-floor"
	ReasonNoImage    Reason = "missing-image"
	ReasonNoURL      Reason = "missing-url"
	ReasonInvalidURL Reason = "invalid-url"
	ReasonDuplicate  Reason = "duplicate-url"
)

// Options tunes the exclusion filter.
type Options struct {
	Blacklist      []string
	PriceFloor     float64
	ProductMarkers []string
	ListingMarkers []string
}

// DefaultOptions returns the standard exclusion rules: non-garment keyword
// blacklist, a 5-unit price floor, and the usual product/listing URL shapes.
func DefaultOptions() Options {
	return Options{
		Blacklist: []string{
			"chaussette", "sock",
			"carte cadeau", "gift card", "giftcard",
			"lot de", "pack de", "bundle", "multipack",
			"sous-vetement", "sous-vêtement", "underwear", "boxer", "brief",
			"ceinture", "belt",
			"e-carte", "voucher",
		},
		PriceFloor: 5,
		ProductMarkers: []string{
			"/product", "/produit", "/p/", "/item", "/prod/", ".html",
		},
		ListingMarkers: []string{
			"/category", "/categories", "/categorie", "/collection",
			"/search", "/recherche", "/c/", "/list",
		},
	}
}

// Report summarizes one filter pass.
type Report struct {
	Kept     int
	Excluded map[Reason]int
}

// Apply runs the exclusion rules over a batch, in order, short-circuiting on
// the first matching rule per candidate. It is pure: the same input always
// yields the same retained subset.
func Apply(cands []catalog.Candidate, opts Options) ([]catalog.Candidate, Report) {
	report := Report{Excluded: make(map[Reason]int)}
	seen := make(map[string]struct{}, len(cands))

	kept := make([]catalog.Candidate, 0, len(cands))
	for _, c := range cands {
		if reason, excluded := Check(c, opts, seen); excluded {
			report.Excluded[reason]++
			continue
		}
		seen[c.ItemURL] = struct{}{}
		kept = append(kept, c)
	}
	report.Kept = len(kept)
	return kept, report
}

// Check applies the exclusion rules to a single candidate. seen tracks item
// URLs already accepted earlier in the batch; pass nil to skip batch dedup.
func Check(c catalog.Candidate, opts Options, seen map[string]struct{}) (Reason, bool) {
	name := strings.ToLower(c.Name)
	for _, kw := range opts.Blacklist {
		if strings.Contains(name, kw) {
			return ReasonBlacklist, true
		}
	}

	if c.Price < opts.PriceFloor {
		return ReasonPriceFloor, true
	}

	if strings.TrimSpace(c.ImageRef) == "" {
		return ReasonNoImage, true
	}

	if strings.TrimSpace(c.ItemURL) == "" {
		return ReasonNoURL, true
	}
	if !IsProductURL(c.ItemURL, opts) {
		return ReasonInvalidURL, true
	}

	if seen != nil {
		if _, dup := seen[c.ItemURL]; dup {
			return ReasonDuplicate, true
		}
	}

	return "", false
}

// IsProductURL reports whether a URL looks like a real product page: an
// absolute http(s) URL on a registrable domain, carrying a product-path
// marker and none of the listing/category markers.
func IsProductURL(raw string, opts Options) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if _, err := publicsuffix.Domain(host); err != nil {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, m := range opts.ListingMarkers {
		if strings.Contains(path, m) {
			return false
		}
	}
	for _, m := range opts.ProductMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}
