package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// RawPage is a listing page ready for extraction
type RawPage struct {
	HTML     []byte
	URL      string
	Rows     int
	Rendered bool
}

// PageFetcher fetches listing pages over plain HTTP first and falls back to
// a rendered page when the light result has too few rows.
type PageFetcher struct {
	light    Fetcher
	renderer Renderer
	minRows  int
	timeout  time.Duration
	log      *logger.Logger
}

// NewPageFetcher creates a page fetcher. renderer may be nil.
func NewPageFetcher(light Fetcher, renderer Renderer, minRows int, timeout time.Duration) *PageFetcher {
	if renderer == nil {
		renderer = UnavailableRenderer{Reason: "no renderer configured"}
	}
	if minRows < 1 {
		minRows = 1
	}
	return &PageFetcher{
		light:    light,
		renderer: renderer,
		minRows:  minRows,
		timeout:  timeout,
		log:      logger.ForCollector("page"),
	}
}

// Begin starts a fetch run. The browser session is opened on first use and
// released by Close.
func (p *PageFetcher) Begin() *FetchRun {
	return &FetchRun{pf: p}
}

// FetchRun shares one render session across the pages of a ruleset run
type FetchRun struct {
	pf      *PageFetcher
	session RenderSession
	openErr error
	renders int
}

// Renders returns how many pages were rendered in this run
func (r *FetchRun) Renders() int { return r.renders }

// Close releases the render session if one was opened
func (r *FetchRun) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	return err
}

func (r *FetchRun) sessionFor(ctx context.Context) (RenderSession, error) {
	if r.session != nil {
		return r.session, nil
	}
	if r.openErr != nil {
		return nil, r.openErr
	}
	s, err := r.pf.renderer.Open(ctx)
	if err != nil {
		r.openErr = err
		return nil, err
	}
	r.session = s
	return s, nil
}

// Fetch returns the listing page for url, following rs.Iframe when set
func (r *FetchRun) Fetch(ctx context.Context, url string, rs *ruleset.Ruleset) (*RawPage, error) {
	light, lightErr := r.fetchLight(ctx, url, rs)
	if lightErr == nil && light.Rows >= r.pf.minRows {
		return light, nil
	}
	if lightErr != nil && errors.Is(lightErr, context.Canceled) {
		return nil, lightErr
	}

	rendered, renderErr := r.render(ctx, url, rs, nil)
	switch {
	case renderErr == nil && (light == nil || rendered.Rows >= light.Rows):
		return rendered, nil
	case light != nil:
		if renderErr != nil && !errors.Is(renderErr, ErrRenderUnavailable) {
			r.pf.log.Warn().Err(renderErr).Str("url", url).Msg("Render fallback failed, using light page")
		}
		return light, nil
	case errors.Is(renderErr, ErrRenderUnavailable), codeOf(renderErr) == apperrors.CodePageAccess:
		// 두 경로 모두 사이트에 닿지 못했으면 light 쪽 오류가 더 구체적이다
		return nil, lightErr
	}
	return nil, renderErr
}

// FetchClicked renders url and clicks through the paging locators before
// reading the rows. Clicking needs a browser, so there is no light path.
func (r *FetchRun) FetchClicked(ctx context.Context, url string, rs *ruleset.Ruleset, clicks []string) (*RawPage, error) {
	return r.render(ctx, url, rs, clicks)
}

// FetchDocument fetches a single page with the same light then render order,
// used for detail pages where no row count applies.
func (r *FetchRun) FetchDocument(ctx context.Context, url string) (*helpers.Page, error) {
	page, err := r.pf.light.Fetch(ctx, url)
	if err == nil && helpers.LooksLikeHTML(page.Body) {
		return page, nil
	}

	s, openErr := r.sessionFor(ctx)
	if openErr != nil {
		if err != nil {
			return nil, err
		}
		return page, nil
	}
	rendered, renderErr := s.Render(ctx, url, RenderOptions{Timeout: r.pf.timeout})
	if renderErr != nil {
		if err != nil {
			return nil, err
		}
		return page, nil
	}
	r.renders++
	return rendered, nil
}

func (r *FetchRun) fetchLight(ctx context.Context, url string, rs *ruleset.Ruleset) (*RawPage, error) {
	page, err := r.pf.light.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !helpers.LooksLikeHTML(page.Body) {
		return nil, apperrors.NewParsing(helpers.HostOf(url), "response is not html", nil)
	}

	body, final := page.Body, page.FinalURL
	if rs.Iframe != "" {
		src, err := iframeSource(body, rs.Iframe, final)
		if err != nil {
			return nil, apperrors.NewScrapeError(apperrors.CodeIframe, "%s: %v", rs.OrgName, err)
		}
		framePage, err := r.pf.light.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		body, final = framePage.Body, framePage.FinalURL
	}

	rows, err := countRows(body, rs.RowXPath)
	if err != nil {
		return nil, err
	}
	return &RawPage{HTML: body, URL: final, Rows: rows}, nil
}

func (r *FetchRun) render(ctx context.Context, url string, rs *ruleset.Ruleset, clicks []string) (*RawPage, error) {
	s, err := r.sessionFor(ctx)
	if err != nil {
		if errors.Is(err, ErrRenderUnavailable) {
			return nil, err
		}
		return nil, apperrors.NewScrapeError(apperrors.CodeRenderEngine, "%s: %v", rs.OrgName, err)
	}

	page, err := s.Render(ctx, url, RenderOptions{
		WaitXPath: rs.RowXPath,
		Iframe:    rs.Iframe,
		Click:     clicks,
		Timeout:   r.pf.timeout,
	})
	if err != nil {
		return nil, renderError(rs.OrgName, err)
	}
	r.renders++

	rows, err := countRows(page.Body, rs.RowXPath)
	if err != nil {
		return nil, err
	}
	return &RawPage{HTML: page.Body, URL: page.FinalURL, Rows: rows, Rendered: true}, nil
}

// renderError maps a failed render to its scrape code. Only failures of the
// browser itself are engine errors; navigation failures mean the site could
// not be reached.
func renderError(org string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrRenderEngine):
		return apperrors.NewScrapeError(apperrors.CodeRenderEngine, "%s: %v", org, err)
	case errors.Is(err, ErrPagingNotFound):
		return apperrors.NewScrapeError(apperrors.CodeNextPage, "%s: %v", org, err)
	}
	return apperrors.NewScrapeError(apperrors.CodePageAccess, "%s: %v", org, err)
}

func countRows(body []byte, rowXPath string) (int, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, apperrors.NewScrapeError(apperrors.CodePageAccess, "parse html: %v", err)
	}
	nodes, err := htmlquery.QueryAll(doc, rowXPath)
	if err != nil {
		return 0, apperrors.NewScrapeError(apperrors.CodeSelector, "row xpath %q: %v", rowXPath, err)
	}
	return len(nodes), nil
}

// iframeSource resolves the src of the frame matched by locator against base
func iframeSource(body []byte, locator, base string) (string, error) {
	var src string
	if isXPath(locator) {
		doc, err := htmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		node, err := htmlquery.Query(doc, locator)
		if err != nil {
			return "", fmt.Errorf("iframe xpath %q: %w", locator, err)
		}
		if node != nil {
			src = htmlquery.SelectAttr(node, "src")
		}
	} else {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		src, _ = doc.Find(locator).First().Attr("src")
	}

	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("iframe %q not found", locator)
	}
	abs := helpers.MakeAbsoluteURL(base, src)
	if abs == "" {
		return "", fmt.Errorf("iframe %q has unusable src %q", locator, src)
	}
	return abs, nil
}
