package sources

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"github.com/trendscope/trendscope/pkg/catalog"
)

// Kind selects the parsing strategy a harvester applies to a source.
type Kind string

const (
	KindHTML         Kind = "html"
	KindEmbeddedJSON Kind = "embedded-json"
	KindJSON         Kind = "json"
)

// Selectors holds goquery CSS selectors for HTML sources. Relative selectors
// are resolved within each item node.
type Selectors struct {
	Item  string `mapstructure:"item"`
	Name  string `mapstructure:"name"`
	Price string `mapstructure:"price"`
	Image string `mapstructure:"image"`
	Link  string `mapstructure:"link"`
}

// JSONPaths holds gjson paths for JSON sources. Items is evaluated against
// the payload root; the rest against each item element.
type JSONPaths struct {
	Script string `mapstructure:"script"` // CSS selector of the script node (embedded-json only)
	Items  string `mapstructure:"items"`
	Name   string `mapstructure:"name"`
	Price  string `mapstructure:"price"`
	Image  string `mapstructure:"image"`
	Link   string `mapstructure:"link"`
}

// Source describes one retail listing to harvest.
type Source struct {
	Name       string          `mapstructure:"name"`
	Brand      string          `mapstructure:"brand"`
	MarketZone string          `mapstructure:"market_zone"`
	Segment    catalog.Segment `mapstructure:"segment"`
	ListingURL string          `mapstructure:"listing_url"`
	BaseURL    string          `mapstructure:"base_url"`
	Kind       Kind            `mapstructure:"kind"`
	Selectors  Selectors       `mapstructure:"selectors"`
	JSONPaths  JSONPaths       `mapstructure:"json_paths"`
	Priority   int             `mapstructure:"priority"`
	Enabled    bool            `mapstructure:"enabled"`
}

// Defaults returns the built-in source table, highest priority first.
func Defaults() []Source {
	srcs := []Source{
		{
			Name:       "zalando-fr-men",
			Brand:      "Zalando",
			MarketZone: "EU",
			Segment:    catalog.SegmentMen,
			ListingURL: "https://www.zalando.fr/vetements-homme/",
			BaseURL:    "https://www.zalando.fr",
			Kind:       KindEmbeddedJSON,
			JSONPaths: JSONPaths{
				Script: "script#__NEXT_DATA__",
				Items:  "props.pageProps.articles",
				Name:   "name",
				Price:  "price.current",
				Image:  "media.0.url",
				Link:   "url",
			},
			Priority: 10,
			Enabled:  true,
		},
		{
			Name:       "asos-us-men",
			Brand:      "ASOS",
			MarketZone: "US",
			Segment:    catalog.SegmentMen,
			ListingURL: "https://www.asos.com/api/product/search/v2/categories/27111?lang=en-US",
			BaseURL:    "https://www.asos.com",
			Kind:       KindJSON,
			JSONPaths: JSONPaths{
				Items: "products",
				Name:  "name",
				Price: "price.current.value",
				Image: "imageUrl",
				Link:  "url",
			},
			Priority: 10,
			Enabled:  true,
		},
		{
			Name:       "uniqlo-jp-men",
			Brand:      "Uniqlo",
			MarketZone: "ASIA",
			Segment:    catalog.SegmentMen,
			ListingURL: "https://www.uniqlo.com/jp/api/commerce/v5/ja/products?categoryId=2278",
			BaseURL:    "https://www.uniqlo.com/jp",
			Kind:       KindJSON,
			JSONPaths: JSONPaths{
				Items: "result.items",
				Name:  "name",
				Price: "prices.base.value",
				Image: "images.main.0.url",
				Link:  "canonicalUrl",
			},
			Priority: 8,
			Enabled:  true,
		},
		{
			Name:       "zara-eu-women",
			Brand:      "Zara",
			MarketZone: "EU",
			Segment:    catalog.SegmentWomen,
			ListingURL: "https://www.zara.com/fr/fr/categories/femme-nouveautes-l1180.html",
			BaseURL:    "https://www.zara.com",
			Kind:       KindHTML,
			Selectors: Selectors{
				Item:  "li.product-grid-product",
				Name:  "h3.product-grid-product-info__name",
				Price: "span.price__amount",
				Image: "img.media-image__image",
				Link:  "a.product-grid-product__link",
			},
			Priority: 9,
			Enabled:  true,
		},
	}
	sort.SliceStable(srcs, func(i, j int) bool { return srcs[i].Priority > srcs[j].Priority })
	return srcs
}

// Load reads a YAML source table from path, replacing the defaults. An empty
// path returns Defaults().
func Load(path string) ([]Source, error) {
	if path == "" {
		return Defaults(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading source table %s: %w", path, err)
	}

	var loaded struct {
		Sources []Source `mapstructure:"sources"`
	}
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("parsing source table %s: %w", path, err)
	}
	if len(loaded.Sources) == 0 {
		return nil, fmt.Errorf("source table %s defines no sources", path)
	}

	sort.SliceStable(loaded.Sources, func(i, j int) bool {
		return loaded.Sources[i].Priority > loaded.Sources[j].Priority
	})
	return loaded.Sources, nil
}

// Enabled filters a source table down to the enabled entries.
func Enabled(srcs []Source) []Source {
	out := make([]Source, 0, len(srcs))
	for _, s := range srcs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
