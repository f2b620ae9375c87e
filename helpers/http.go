package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"golang.org/x/net/html/charset"
)

// HTTP client and header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.naver.com/",
		"https://www.daum.net/",
	}
)

// maxBodySize caps how much of a page is read into memory
const maxBodySize = 10 * 1024 * 1024

// Page is a fetched document converted to UTF-8
type Page struct {
	Body        []byte
	FinalURL    string
	ContentType string
	StatusCode  int
}

// RandomUserAgent returns one of the browser user agents
func RandomUserAgent() string {
	return userAgents[mathrand.Intn(len(userAgents))]
}

// NewHTTPClient builds the client used for page fetches.
// A non-empty proxyURL routes every request through that proxy.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// FetchWithRandomHeaders sends an HTTP GET request with randomized browser headers,
// converts the response body to UTF-8 (if needed), and returns it with the final URL
// after redirects.
func FetchWithRandomHeaders(ctx context.Context, client *http.Client, rawURL string) (*Page, error) {
	rnd := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set browser-like headers
	req.Header.Set("User-Agent", userAgents[rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[rnd.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetwork(hostOf(rawURL), "request failed", err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, apperrors.NewRateLimit(hostOf(rawURL), time.Duration(retryAfter)*time.Second)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetwork(hostOf(rawURL), fmt.Sprintf("fetch %s unexpected status code: %d", rawURL, resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.NewNetwork(hostOf(rawURL), "failed to read response body", err)
	}

	contentType := resp.Header.Get("Content-Type")
	utf8Body, err := ToUTF8(bodyBytes, contentType)
	if err != nil {
		return nil, err
	}

	return &Page{
		Body:        utf8Body,
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}, nil
}

// ToUTF8 converts body to UTF-8 using the Content-Type header and meta tags.
// Many government sites still serve EUC-KR.
func ToUTF8(body []byte, contentType string) ([]byte, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if strings.EqualFold(name, "utf-8") {
		return body, nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(body))); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}
	return buf.Bytes(), nil
}

// LooksLikeHTML reports whether data plausibly contains an HTML document
func LooksLikeHTML(data []byte) bool {
	if len(data) < 50 {
		return false
	}
	head := strings.ToLower(string(data[:min(len(data), 4096)]))
	return strings.Contains(head, "<html") ||
		strings.Contains(head, "<!doctype") ||
		strings.Contains(head, "<body") ||
		strings.Contains(head, "<table")
}

// HostOf returns the host part of rawURL, or rawURL when it cannot be parsed
func HostOf(rawURL string) string {
	return hostOf(rawURL)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
