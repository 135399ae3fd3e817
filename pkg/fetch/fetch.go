package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

// Header is a single HTTP header to set on a request.
type Header struct {
	Name  string
	Value string
}

// Request describes one listing fetch.
type Request struct {
	URL     string
	Method  string
	Headers []Header
	Timeout time.Duration
}

// Response is the relevant slice of the HTTP answer.
type Response struct {
	StatusCode     int
	ResponseLength int
	PageTitle      string
	BodyString     string
}

// Client wraps a retrying HTTP client with the headers retail sites expect.
type Client struct {
	inner *retryablehttp.Client
}

// NewClient builds a Client. proxy may be empty.
func NewClient(proxy string) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.Logger = nil

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		rc.HTTPClient.Transport = transport
	}

	return &Client{inner: rc}, nil
}

// Do performs the request and reads the full body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, err
	}

	hreq.Header.Set("User-Agent", userAgent)
	hreq.Header.Set("Accept", "*/*")
	hreq.Header.Set("Accept-Language", "en")
	for _, h := range req.Headers {
		hreq.Header.Add(h.Name, h.Value)
	}

	resp, err := c.inner.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
	}
	out.ResponseLength = utf8.RuneCountInString(out.BodyString)

	if title, ok := pageTitle(out.BodyString); ok {
		out.PageTitle = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}

	return out, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func pageTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
