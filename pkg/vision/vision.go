package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/trendscope/trendscope/internal/utils"
	"github.com/trendscope/trendscope/pkg/catalog"
)

// Config controls how the visual classifier behaves.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	Endpoint       string
	MaxConcurrency int
	ItemTimeout    time.Duration
	HTTPClient     *http.Client
}

// Classifier infers garment attributes, a trend estimate, and a cross-source
// matching signature from a product image and name.
type Classifier interface {
	Classify(ctx context.Context, imageRef, name string) (catalog.Enrichment, error)
}

const (
	defaultProvider       = "openai"
	defaultModel          = "gpt-4.1-mini"
	defaultEndpoint       = "https://api.openai.com/v1/chat/completions"
	defaultMaxConcurrency = 8
	defaultItemTimeout    = 25 * time.Second
)

// NewClassifier builds a concrete Classifier implementation based on the
// provided config.
func NewClassifier(cfg Config) (Classifier, error) {
	cfg.Provider = strings.TrimSpace(strings.ToLower(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}

	switch cfg.Provider {
	case "openai":
		return newOpenAIClassifier(cfg)
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.Provider)
	}
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type openAIClassifier struct {
	apiKey         string
	model          string
	endpoint       string
	maxConcurrency int
	itemTimeout    time.Duration
	client         httpClient
}

func newOpenAIClassifier(cfg Config) (*openAIClassifier, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("visual classification requires an API key (set vision.api_key in config or OPENAI_API_KEY)")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	itemTimeout := cfg.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	return &openAIClassifier{
		apiKey:         apiKey,
		model:          model,
		endpoint:       endpoint,
		maxConcurrency: maxConcurrency,
		itemTimeout:    itemTimeout,
		client:         client,
	}, nil
}

// Classify runs one classification call. The per-item timeout always
// applies, so a hung classifier cannot stall the batch.
func (c *openAIClassifier) Classify(ctx context.Context, imageRef, name string) (catalog.Enrichment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.itemTimeout)
	defer cancel()

	reqBody := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []openAIContentPart{
				{Type: "text", Text: fmt.Sprintf("Product name: %s", name)},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: imageRef}},
			}},
		},
		Temperature:    0.1,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return catalog.Enrichment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return catalog.Enrichment{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return catalog.Enrichment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErrResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErrResp)
		if apiErrResp.Error.Message != "" {
			return catalog.Enrichment{}, fmt.Errorf("visual classification: %s", apiErrResp.Error.Message)
		}
		return catalog.Enrichment{}, fmt.Errorf("visual classification failed with HTTP %d", resp.StatusCode)
	}

	var apiResp openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return catalog.Enrichment{}, err
	}

	if len(apiResp.Choices) == 0 || strings.TrimSpace(apiResp.Choices[0].Message.Content) == "" {
		return catalog.Enrichment{}, errors.New("visual classification returned an empty response")
	}

	return ParseVerdict(apiResp.Choices[0].Message.Content)
}

// ClassifyBatch runs classification for a batch of candidates under the
// configured concurrency cap. Per-item failures are logged and dropped: the
// returned map only holds indexes that classified successfully.
func ClassifyBatch(ctx context.Context, c Classifier, cands []catalog.Candidate, maxConcurrency int) map[int]catalog.Enrichment {
	if len(cands) == 0 {
		return nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	out := make(map[int]catalog.Enrichment, len(cands))
	var mu sync.Mutex
	sem := make(chan struct{}, maxConcurrency)

	var wg sync.WaitGroup
	for i, cand := range cands {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, cand catalog.Candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			enr, err := c.Classify(ctx, cand.ImageRef, cand.Name)
			if err != nil {
				utils.Log.Warnf("Classification failed for %s: %v", cand.ItemURL, err)
				return
			}
			mu.Lock()
			out[i] = enr
			mu.Unlock()
		}(i, cand)
	}
	wg.Wait()

	return out
}

// ParseVerdict decodes the classifier's JSON verdict into an Enrichment.
// Every field is optional; a verdict that parses but answers nothing is
// still valid.
func ParseVerdict(content string) (catalog.Enrichment, error) {
	var parsed verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return catalog.Enrichment{}, fmt.Errorf("unable to parse classifier response: %w", err)
	}

	enr := catalog.Enrichment{
		Cut:        parsed.Cut,
		Attributes: parsed.Attributes,
	}
	if parsed.TrendScore != nil {
		clamped := catalog.ClampScore(*parsed.TrendScore)
		enr.TrendScore = &clamped
	}
	if parsed.Signature != nil {
		sig := strings.ToUpper(strings.TrimSpace(*parsed.Signature))
		if sig != "" {
			enr.Signature = &sig
		}
	}
	return enr, nil
}

const systemPrompt = `You are a fashion trend analyst. You receive a garment product photo and its listing name.

Analyze the garment and return:
- "cut": the garment cut (e.g. "boxy", "slim", "oversized", "straight", "cropped").
- "attributes": a flat object of visual attributes (e.g. {"color": "cream", "pattern": "plain", "fabric": "fleece", "neckline": "crew"}).
- "trend_score": an integer from 0 to 100 estimating how strongly this garment matches currently emerging trends.
- "signature": a stable matching descriptor of the form TYPE-CUT-COLOR in uppercase (e.g. "HOODIE-BOXY-CREAM"). Two visually equivalent garments from different shops must produce the same signature.

Return ONLY JSON following this schema:
{"cut": "string", "attributes": {"key": "value"}, "trend_score": 0, "signature": "string"}

Omit any field you cannot infer from the image.`

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	Temperature    float64              `json:"temperature"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	Cut        *string           `json:"cut,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	TrendScore *float64          `json:"trend_score,omitempty"`
	Signature  *string           `json:"signature,omitempty"`
}
