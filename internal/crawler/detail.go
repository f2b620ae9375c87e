package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/logger"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Content selectors, tried in order
var contentSelectors = []string{
	".content", ".board-content", ".view-content",
	"#content", "#board-content",
	".post-content", ".article-content",
	`div[class*="content"]`, `div[class*="view"]`,
}

// Attachment link selectors, tried in order
var attachmentSelectors = []string{
	`a[href*=".pdf"]`, `a[href*=".doc"]`, `a[href*=".hwp"]`,
	`a[href*=".xlsx"]`, `a[href*=".xls"]`, `a[href*=".zip"]`,
	".attach a", ".attachment a", ".file a", ".download a",
	`a[class*="attach"]`, `a[class*="file"]`, `a[class*="download"]`,
}

var documentExts = map[string]bool{
	".pdf": true, ".hwp": true, ".hwpx": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true, ".zip": true,
	".txt": true,
}

// minContentLen is the text length a content selector must exceed
const minContentLen = 50

// DetailTarget is a stored notice whose detail page should be collected
type DetailTarget struct {
	NoticeNo string
	Title    string
	URL      string
	OrgName  string
}

// DetailQuery selects detail candidates. NoticeID wins over OrgName.
type DetailQuery struct {
	OrgName  string
	NoticeID string
	Limit    int
}

// DetailStore supplies candidates and persists collected details
type DetailStore interface {
	DetailCandidates(ctx context.Context, q DetailQuery) ([]DetailTarget, error)
	SaveDetail(ctx context.Context, noticeNo string, detail models.NoticeDetail) error
}

// DetailOptions controls one detail collection batch
type DetailOptions struct {
	OrgName  string
	NoticeID string
	Limit    int
	DryRun   bool
	Debug    bool
	// FailureThreshold is the error ratio below which the batch still
	// succeeds. Zero means the collector default.
	FailureThreshold float64
}

// DetailResult summarizes a detail batch
type DetailResult struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors"`
}

// DetailCollector fetches detail pages and extracts body and attachments
type DetailCollector struct {
	store     DetailStore
	pages     *PageFetcher
	threshold float64
	sanitizer *bluemonday.Policy
	markdown  *converter.Converter
	log       *logger.Logger
}

// NewDetailCollector creates a detail collector. threshold <= 0 uses 0.5.
func NewDetailCollector(store DetailStore, pages *PageFetcher, threshold float64) *DetailCollector {
	if threshold <= 0 {
		threshold = 0.5
	}
	return &DetailCollector{
		store:     store,
		pages:     pages,
		threshold: threshold,
		sanitizer: bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: logger.ForCollector("detail"),
	}
}

// CollectDetails collects the detail pages of the selected notices. Every
// candidate counts as processed; only saved details count as updated.
func (d *DetailCollector) CollectDetails(ctx context.Context, opts DetailOptions) DetailResult {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.DryRun {
		processed := opts.Limit
		if opts.NoticeID != "" {
			processed = 1
		}
		d.log.Info().Int("processed", processed).Msg("Dry run, skipping detail collection")
		return DetailResult{Success: true, Processed: processed, Errors: []string{}}
	}

	res := DetailResult{Errors: []string{}}
	targets, err := d.store.DetailCandidates(ctx, DetailQuery{OrgName: opts.OrgName, NoticeID: opts.NoticeID, Limit: opts.Limit})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("load candidates: %v", err))
		return res
	}
	if len(targets) == 0 {
		d.log.Info().Str("org", opts.OrgName).Msg("No notices need detail collection")
		res.Success = true
		return res
	}

	run := d.pages.Begin()
	defer func() {
		if err := run.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Failed to close render session")
		}
	}()

	for _, t := range targets {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", t.NoticeNo, ctx.Err()))
			res.Processed++
			continue
		}

		detail, err := d.collectOne(ctx, run, t, opts.Debug)
		if err == nil {
			err = d.store.SaveDetail(ctx, t.NoticeNo, *detail)
		}
		res.Processed++
		if err != nil {
			d.log.Error().Err(err).Str("notice", t.NoticeNo).Msg("Detail collection failed")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", t.NoticeNo, err))
			continue
		}
		res.Updated++
	}

	threshold := opts.FailureThreshold
	if threshold <= 0 {
		threshold = d.threshold
	}
	errs := float64(len(res.Errors))
	res.Success = len(res.Errors) == 0 || errs < float64(res.Processed)*threshold

	d.log.Info().
		Int("processed", res.Processed).
		Int("updated", res.Updated).
		Int("errors", len(res.Errors)).
		Bool("success", res.Success).
		Msg("Detail collection finished")
	return res
}

func (d *DetailCollector) collectOne(ctx context.Context, run *FetchRun, t DetailTarget, debug bool) (*models.NoticeDetail, error) {
	if strings.TrimSpace(t.URL) == "" {
		return nil, fmt.Errorf("no detail url")
	}
	if debug {
		d.log.Debug().Str("title", t.Title).Str("url", t.URL).Msg("Collecting detail")
	}

	page, err := run.FetchDocument(ctx, t.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	base := page.FinalURL
	if base == "" {
		base = t.URL
	}
	attachments := ExtractAttachments(doc, base)
	if debug && len(attachments) > 0 {
		d.log.Debug().Int("attachments", len(attachments)).Str("notice", t.NoticeNo).Msg("Found attachments")
	}

	return &models.NoticeDetail{
		NoticeID:    t.NoticeNo,
		Title:       t.Title,
		Content:     d.ExtractContent(doc, base),
		Attachments: attachments,
		OrgName:     t.OrgName,
		ScrapedAt:   helpers.Now(),
	}, nil
}

// ExtractContent returns the body of the first content selector holding more
// than 50 characters of text, as sanitized markdown. Without a match it falls
// back to the cleaned page text.
func (d *DetailCollector) ExtractContent(doc *goquery.Document, pageURL string) string {
	doc.Find("script, style, noscript").Remove()

	for _, sel := range contentSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(el.Text())
		if len([]rune(text)) <= minContentLen {
			continue
		}

		inner, err := el.Html()
		if err != nil {
			return helpers.CleanText(text)
		}
		md, err := d.markdown.ConvertString(d.sanitizer.Sanitize(inner), converter.WithDomain(pageURL))
		if err != nil || strings.TrimSpace(md) == "" {
			return helpers.CleanText(text)
		}
		return strings.TrimSpace(md)
	}

	return helpers.CleanText(doc.Find("body").Text())
}

// ExtractAttachments collects document links, deduplicated by absolute URL
func ExtractAttachments(doc *goquery.Document, pageURL string) []models.Attachment {
	seen := make(map[string]bool)
	attachments := []models.Attachment{}

	for _, sel := range attachmentSelectors {
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			name := helpers.CleanText(a.Text())
			if name == "" {
				return
			}
			abs := helpers.MakeAbsoluteURL(pageURL, strings.TrimSpace(href))
			if abs == "" || seen[abs] {
				return
			}
			if !isDocument(abs) && !isDocument(name) {
				return
			}
			seen[abs] = true
			attachments = append(attachments, models.Attachment{Filename: name, URL: abs})
		})
	}
	return attachments
}

func isDocument(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return documentExts[strings.ToLower(path.Ext(s))]
	}
	if documentExts[strings.ToLower(path.Ext(u.Path))] {
		return true
	}
	// download.do?file=공고문.hwp
	for _, vs := range u.Query() {
		for _, v := range vs {
			if documentExts[strings.ToLower(path.Ext(v))] {
				return true
			}
		}
	}
	return false
}
