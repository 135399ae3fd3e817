package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/trendscope/trendscope/pkg/catalog"
	"github.com/trendscope/trendscope/pkg/fetch"
	"github.com/trendscope/trendscope/pkg/sources"
)

// Fetcher abstracts the HTTP layer so harvesting can be tested against
// canned bodies.
type Fetcher interface {
	Do(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// Harvester turns a source descriptor into raw candidates.
type Harvester struct {
	fetcher Fetcher
	timeout time.Duration
}

// New builds a Harvester. timeout bounds each listing fetch; zero means a
// 30s default.
func New(fetcher Fetcher, timeout time.Duration) *Harvester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Harvester{fetcher: fetcher, timeout: timeout}
}

// Harvest fetches one source's listing and extracts its candidates. A
// failure here is scoped to the source: callers collect the error and move
// on to the next source.
func (h *Harvester) Harvest(ctx context.Context, src sources.Source) ([]catalog.Candidate, error) {
	res, err := h.fetcher.Do(ctx, &fetch.Request{URL: src.ListingURL, Timeout: h.timeout})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.Name, err)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: HTTP %d", src.Name, res.StatusCode)
	}

	cands, err := Parse(res.BodyString, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", src.Name, err)
	}
	return cands, nil
}

// Parse extracts candidates from a listing body according to the source's
// kind and parsing rules.
func Parse(body string, src sources.Source) ([]catalog.Candidate, error) {
	switch src.Kind {
	case sources.KindHTML:
		return parseHTML(body, src)
	case sources.KindEmbeddedJSON:
		return parseEmbeddedJSON(body, src)
	case sources.KindJSON:
		return parseJSON(body, src), nil
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
	}
}

func parseHTML(body string, src sources.Source) ([]catalog.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	sel := src.Selectors
	var cands []catalog.Candidate
	doc.Find(sel.Item).Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(sel.Name).First().Text())
		price := ParsePrice(s.Find(sel.Price).First().Text())

		image, _ := s.Find(sel.Image).First().Attr("src")
		if image == "" {
			image, _ = s.Find(sel.Image).First().Attr("data-src")
		}

		link, _ := s.Find(sel.Link).First().Attr("href")
		if link == "" && goquery.NodeName(s) == "a" {
			link, _ = s.Attr("href")
		}

		if name == "" || link == "" {
			return
		}
		cands = append(cands, newCandidate(src, name, price, image, link))
	})
	return cands, nil
}

func parseEmbeddedJSON(body string, src sources.Source) ([]catalog.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var cands []catalog.Candidate
	doc.Find(src.JSONPaths.Script).Each(func(_ int, s *goquery.Selection) {
		payload := s.Contents().Text()
		cands = append(cands, parseItems(payload, src)...)
	})
	return cands, nil
}

func parseJSON(body string, src sources.Source) []catalog.Candidate {
	return parseItems(body, src)
}

func parseItems(payload string, src sources.Source) []catalog.Candidate {
	paths := src.JSONPaths
	var cands []catalog.Candidate
	for _, item := range gjson.Get(payload, paths.Items).Array() {
		name := strings.TrimSpace(gjson.Get(item.Raw, paths.Name).String())
		link := gjson.Get(item.Raw, paths.Link).String()
		if name == "" || link == "" {
			continue
		}

		priceRes := gjson.Get(item.Raw, paths.Price)
		price := priceRes.Float()
		if price == 0 && priceRes.Type == gjson.String {
			price = ParsePrice(priceRes.Str)
		}

		image := gjson.Get(item.Raw, paths.Image).String()
		cands = append(cands, newCandidate(src, name, price, image, link))
	}
	return cands
}

func newCandidate(src sources.Source, name string, price float64, image, link string) catalog.Candidate {
	return catalog.Candidate{
		Name:        name,
		Price:       price,
		ImageRef:    ResolveURL(src.BaseURL, image),
		ItemURL:     ResolveURL(src.BaseURL, link),
		SourceBrand: src.Brand,
		MarketZone:  src.MarketZone,
		Segment:     src.Segment,
	}
}

// ParsePrice extracts a decimal from messy retail price text: currency
// symbols, thousands separators, comma decimals.
func ParsePrice(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0
	}

	// "1.299,90" and "29,90" use comma decimals; "1,299.90" does not.
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", -1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ResolveURL joins a possibly relative href against the source's base URL.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if base == "" {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	hu, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(hu).String()
}
