// Package dataapi is a client for the data.go.kr bid notice service
// (BidPublicInfoService).
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"golang.org/x/time/rate"
)

// ListOperation is the bid notice list endpoint
const ListOperation = "getBidPblancListInfoServc"

// inqryDiv 1: 공고게시일시 기준 조회
const inquiryByNoticeDate = "1"

const maxResponseSize = 20 * 1024 * 1024

// Params are the query parameters of one list request
type Params struct {
	PageNo     int
	NumOfRows  int
	InqryDiv   string
	InqryBgnDt string
	InqryEndDt string
	Type       string
}

// Config configures a Client
type Config struct {
	BaseURL    string
	ServiceKey string
	NumOfRows  int
	Format     string
	PageDelay  time.Duration
	Timeout    time.Duration
}

// Client calls the public bid notice API
type Client struct {
	baseURL    string
	serviceKey string
	numOfRows  int
	format     string
	http       *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a client. Requests are spaced by cfg.PageDelay.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.NumOfRows <= 0 {
		cfg.NumOfRows = 100
	}
	if cfg.Format != "xml" {
		cfg.Format = "json"
	}

	limit := rate.Inf
	if cfg.PageDelay > 0 {
		limit = rate.Every(cfg.PageDelay)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		numOfRows:  cfg.NumOfRows,
		format:     cfg.Format,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		log:        logger.ForAPIClient(),
	}
}

// NumOfRows returns the configured page size
func (c *Client) NumOfRows() int { return c.numOfRows }

func (c *Client) endpoint(p Params) string {
	q := url.Values{}
	q.Set("pageNo", strconv.Itoa(p.PageNo))
	q.Set("numOfRows", strconv.Itoa(p.NumOfRows))
	q.Set("type", p.Type)
	if p.InqryDiv != "" {
		q.Set("inqryDiv", p.InqryDiv)
	}
	if p.InqryBgnDt != "" {
		q.Set("inqryBgnDt", p.InqryBgnDt)
	}
	if p.InqryEndDt != "" {
		q.Set("inqryEndDt", p.InqryEndDt)
	}
	// 서비스키는 이미 인코딩된 값으로 발급되는 경우가 많아 그대로 붙인다
	return fmt.Sprintf("%s/%s?serviceKey=%s&%s", c.baseURL, ListOperation, c.serviceKey, q.Encode())
}

// FetchPage requests one page and returns its items. A result code other than
// "00" is an error.
func (c *Client) FetchPage(ctx context.Context, p Params) ([]models.RawItem, error) {
	if p.PageNo <= 0 {
		p.PageNo = 1
	}
	if p.NumOfRows <= 0 {
		p.NumOfRows = c.numOfRows
	}
	if p.Type == "" {
		p.Type = c.format
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(p), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", helpers.RandomUserAgent())
	req.Header.Set("Accept", "application/json, application/xml")

	c.log.Debug().Int("page", p.PageNo).Int("rows", p.NumOfRows).Str("type", p.Type).Msg("Requesting bid notices")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewNetwork(ListOperation, "API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperrors.NewNetwork(ListOperation, "read response", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewRateLimit(ListOperation, 0)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetwork(ListOperation, fmt.Sprintf("API returned %d: %s", resp.StatusCode, helpers.Truncate(string(body), 200)), nil)
	}

	data, err := decodeBody(body, p.Type, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, apperrors.NewParsing(ListOperation, "decode response", err)
	}
	if err := checkResult(data); err != nil {
		return nil, err
	}

	items := ExtractItems(data)
	c.log.Debug().Int("page", p.PageNo).Int("items", len(items)).Msg("Retrieved bid notices")
	return items, nil
}

// DateRange is an inclusive inquiry window
type DateRange struct {
	Start time.Time
	End   time.Time
}

// FetchAllPages requests pages until one is empty, one is shorter than the
// page size, or maxPages is reached. A failing page stops the loop; the items
// already collected are returned together with the error.
func (c *Client) FetchAllPages(ctx context.Context, dr DateRange, filters Filters, maxPages int) ([]models.RawItem, error) {
	if maxPages <= 0 {
		maxPages = 10
	}
	base := Params{
		NumOfRows: c.numOfRows,
		Type:      c.format,
		InqryDiv:  inquiryByNoticeDate,
	}
	if !dr.Start.IsZero() {
		base.InqryBgnDt = dr.Start.In(helpers.KST).Format("20060102") + "0000"
	}
	if !dr.End.IsZero() {
		base.InqryEndDt = dr.End.In(helpers.KST).Format("20060102") + "2359"
	}

	var all []models.RawItem
	for page := 1; page <= maxPages; page++ {
		p := base
		p.PageNo = page

		items, err := c.FetchPage(ctx, p)
		if err != nil {
			c.log.Error().Err(err).Int("page", page).Int("collected", len(all)).Msg("Page request failed, stopping")
			return filters.Apply(all), fmt.Errorf("page %d: %w", page, err)
		}
		if len(items) == 0 {
			c.log.Debug().Int("page", page).Msg("Empty page, stopping")
			break
		}
		all = append(all, items...)
		if len(items) < p.NumOfRows {
			break
		}
	}

	filtered := filters.Apply(all)
	c.log.Info().
		Str("from", base.InqryBgnDt).
		Str("to", base.InqryEndDt).
		Int("fetched", len(all)).
		Int("kept", len(filtered)).
		Msg("Paginated fetch completed")
	return filtered, nil
}

func decodeBody(body []byte, format, contentType string) (any, error) {
	trimmed := bytes.TrimSpace(body)
	isXML := format == "xml" || strings.Contains(contentType, "xml") || bytes.HasPrefix(trimmed, []byte("<"))
	if isXML {
		return xmlToMap(trimmed)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// checkResult rejects error envelopes: a response header whose resultCode is
// not "00", and the gateway's OpenAPI_ServiceResponse error document.
func checkResult(data any) error {
	if gw, ok := lookup(data, "OpenAPI_ServiceResponse", "cmmMsgHeader").(map[string]any); ok {
		msg := models.RawItem(gw).String("returnAuthMsg")
		if msg == "" {
			msg = models.RawItem(gw).String("errMsg")
		}
		return apperrors.NewValidation(ListOperation, fmt.Sprintf("gateway error %s: %s", models.RawItem(gw).String("returnReasonCode"), msg))
	}

	for _, path := range [][]string{{"response", "header"}, {"header"}} {
		h, ok := lookup(data, path...).(map[string]any)
		if !ok {
			continue
		}
		hdr := models.RawItem(h)
		if code := hdr.String("resultCode"); code != "" && code != "00" {
			return apperrors.NewValidation(ListOperation, fmt.Sprintf("API error %s: %s", code, hdr.String("resultMsg")))
		}
		return nil
	}
	return nil
}
