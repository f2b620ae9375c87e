package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

var (
	// ErrRenderUnavailable is returned when no render engine is configured
	ErrRenderUnavailable = errors.New("render engine unavailable")
	// ErrRenderEngine marks failures of the browser itself, as opposed to
	// the site being unreachable
	ErrRenderEngine = errors.New("render engine failure")
	// ErrPagingNotFound is returned when a paging locator matches nothing
	ErrPagingNotFound = errors.New("paging element not found")
)

// RenderOptions controls one rendered navigation
type RenderOptions struct {
	// WaitXPath is awaited after load; a miss is not an error
	WaitXPath string
	// Iframe locates a frame whose document replaces the page (CSS or XPath)
	Iframe string
	// Click lists locators (CSS or XPath) clicked in order after load
	Click   []string
	Timeout time.Duration
}

// Renderer opens browser sessions. A session is scoped to one ruleset run.
type Renderer interface {
	Name() string
	Open(ctx context.Context) (RenderSession, error)
}

// RenderSession renders pages inside one browser instance
type RenderSession interface {
	Render(ctx context.Context, url string, opts RenderOptions) (*helpers.Page, error)
	Close() error
}

// NewRenderer selects the render engine by name (rod or none)
func NewRenderer(engine, remoteURL string, timeout time.Duration) Renderer {
	switch engine {
	case "rod":
		return &RodRenderer{RemoteURL: remoteURL, Timeout: timeout}
	}
	return UnavailableRenderer{Reason: fmt.Sprintf("render engine %q disabled", engine)}
}

// UnavailableRenderer always fails with ErrRenderUnavailable
type UnavailableRenderer struct {
	Reason string
}

func (u UnavailableRenderer) Name() string { return "none" }

func (u UnavailableRenderer) Open(context.Context) (RenderSession, error) {
	return nil, fmt.Errorf("%w: %s", ErrRenderUnavailable, u.Reason)
}

// RodRenderer drives headless Chrome through go-rod. With RemoteURL set it
// connects to an existing browser instead of launching one.
type RodRenderer struct {
	RemoteURL string
	Timeout   time.Duration
}

func (r *RodRenderer) Name() string { return "rod" }

// Open launches (or connects to) a browser
func (r *RodRenderer) Open(ctx context.Context) (RenderSession, error) {
	log := logger.ForCollector("render")

	var (
		wsURL string
		lnch  *launcher.Launcher
	)
	if r.RemoteURL != "" {
		wsURL = r.RemoteURL
	} else {
		lnch = launcher.New().
			Context(ctx).
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn().Err(err).Msg("Failed to ignore certificate errors")
	}

	log.Debug().Str("url", wsURL).Bool("remote", lnch == nil).Msg("Browser session opened")
	return &rodSession{browser: b, launcher: lnch, timeout: r.Timeout}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
}

func (s *rodSession) Render(ctx context.Context, url string, opts RenderOptions) (*helpers.Page, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("%w: create page: %v", ErrRenderEngine, err)
	}
	defer page.Close()

	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}

	doc := p
	if opts.Iframe != "" {
		frame, err := frameOf(p, opts.Iframe)
		if err != nil {
			return nil, err
		}
		doc = frame
	}

	// 행이 늦게 그려지는 사이트가 많아 목록 행을 기다린다
	waitRows := func(doc *rod.Page) {
		if opts.WaitXPath != "" {
			_, _ = doc.Timeout(timeout / 2).ElementX(opts.WaitXPath)
		}
	}
	waitRows(doc)

	if len(opts.Click) > 0 {
		for _, locator := range opts.Click {
			if err := clickOn(doc, locator); err != nil {
				return nil, err
			}
		}
		// 페이지 이동으로 프레임이 새로 그려질 수 있다
		if opts.Iframe != "" {
			frame, err := frameOf(p, opts.Iframe)
			if err != nil {
				return nil, err
			}
			doc = frame
		}
		waitRows(doc)
	}

	html, err := doc.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read rendered html: %v", ErrRenderEngine, err)
	}

	finalURL := url
	if info, err := doc.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &helpers.Page{
		Body:        []byte(html),
		FinalURL:    finalURL,
		ContentType: "text/html; charset=utf-8",
		StatusCode:  200,
	}, nil
}

// clickOn clicks the first element matched by locator and waits for the page
// to settle. A locator that matches nothing is ErrPagingNotFound.
func clickOn(p *rod.Page, locator string) error {
	var (
		has bool
		el  *rod.Element
		err error
	)
	if isXPath(locator) {
		has, el, err = p.HasX(locator)
	} else {
		has, el, err = p.Has(locator)
	}
	if err != nil {
		return fmt.Errorf("locate paging %q: %w", locator, err)
	}
	if !has {
		return fmt.Errorf("%w: %q", ErrPagingNotFound, locator)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click paging %q: %w", locator, err)
	}
	_ = p.WaitStable(500 * time.Millisecond)
	return nil
}

func frameOf(p *rod.Page, locator string) (*rod.Page, error) {
	var (
		el  *rod.Element
		err error
	)
	if isXPath(locator) {
		el, err = p.ElementX(locator)
	} else {
		el, err = p.Element(locator)
	}
	if err != nil {
		return nil, fmt.Errorf("locate iframe %q: %w", locator, err)
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("enter iframe %q: %w", locator, err)
	}
	if err := frame.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait iframe %q: %w", locator, err)
	}
	return frame, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	return err
}

func isXPath(locator string) bool {
	return strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(")
}
