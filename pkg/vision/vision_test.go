package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cut, sig *string, score *float64)
		wantErr bool
	}{
		{
			name:    "full verdict",
			content: `{"cut":"boxy","attributes":{"color":"cream"},"trend_score":87,"signature":"hoodie-boxy-cream"}`,
			check: func(t *testing.T, cut, sig *string, score *float64) {
				if cut == nil || *cut != "boxy" {
					t.Fatalf("cut = %v", cut)
				}
				if score == nil || *score != 87 {
					t.Fatalf("score = %v", score)
				}
				if sig == nil || *sig != "HOODIE-BOXY-CREAM" {
					t.Fatalf("signature not uppercased: %v", sig)
				}
			},
		},
		{
			name:    "partial verdict",
			content: `{"trend_score":40}`,
			check: func(t *testing.T, cut, sig *string, score *float64) {
				if cut != nil || sig != nil {
					t.Fatalf("expected nil optional fields, got cut=%v sig=%v", cut, sig)
				}
				if score == nil || *score != 40 {
					t.Fatalf("score = %v", score)
				}
			},
		},
		{
			name:    "out-of-range score is clamped",
			content: `{"trend_score":140}`,
			check: func(t *testing.T, _, _ *string, score *float64) {
				if score == nil || *score != 100 {
					t.Fatalf("score = %v, want clamped to 100", score)
				}
			},
		},
		{
			name:    "blank signature dropped",
			content: `{"signature":"  "}`,
			check: func(t *testing.T, _, sig *string, _ *float64) {
				if sig != nil {
					t.Fatalf("expected blank signature dropped, got %q", *sig)
				}
			},
		},
		{
			name:    "malformed response",
			content: "not json at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enr, err := ParseVerdict(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, enr.Cut, enr.Signature, enr.TrendScore)
		})
	}
}

// stubClient answers every request with a canned chat completion.
type stubClient struct {
	status  int
	content string
	gotReq  *http.Request
}

func (s *stubClient) Do(req *http.Request) (*http.Response, error) {
	s.gotReq = req
	body := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": s.content}},
		},
	}
	b, _ := json.Marshal(body)
	status := s.status
	if status == 0 {
		status = 200
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func testClassifier(client httpClient) *openAIClassifier {
	return &openAIClassifier{
		apiKey:      "test-key",
		model:       defaultModel,
		endpoint:    defaultEndpoint,
		itemTimeout: 5 * time.Second,
		client:      client,
	}
}

func TestClassify(t *testing.T) {
	stub := &stubClient{content: `{"cut":"slim","trend_score":66,"signature":"TSHIRT-SLIM-BLACK"}`}
	c := testClassifier(stub)

	enr, err := c.Classify(context.Background(), "https://img.example.com/1.jpg", "T-shirt slim")
	if err != nil {
		t.Fatal(err)
	}
	if enr.Signature == nil || *enr.Signature != "TSHIRT-SLIM-BLACK" {
		t.Fatalf("signature = %v", enr.Signature)
	}
	if enr.TrendScore == nil || *enr.TrendScore != 66 {
		t.Fatalf("score = %v", enr.TrendScore)
	}

	if auth := stub.gotReq.Header.Get("Authorization"); auth != "Bearer test-key" {
		t.Fatalf("bad auth header: %q", auth)
	}
	if _, ok := stub.gotReq.Context().Deadline(); !ok {
		t.Fatal("classify request must carry a deadline")
	}
}

func TestClassifyHTTPError(t *testing.T) {
	c := testClassifier(&stubClient{status: 500, content: "{}"})
	if _, err := c.Classify(context.Background(), "https://img.example.com/1.jpg", "x"); err == nil {
		t.Fatal("expected an error on HTTP 500")
	}
}

func TestNewClassifierRequiresAPIKey(t *testing.T) {
	if _, err := NewClassifier(Config{}); err == nil {
		t.Fatal("expected a configuration error without an API key")
	}
	if _, err := NewClassifier(Config{Provider: "mystery", APIKey: "k"}); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
	if _, err := NewClassifier(Config{APIKey: "k"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
