package crawler

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/logger"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ExtractStats counts what happened to the rows of one page
type ExtractStats struct {
	Rows      int
	Skipped   int
	Untitled  int
	Extracted int
	// RowErrors counts row and field failures by code. A field failure
	// keeps the row; a row failure drops it.
	RowErrors map[apperrors.ErrorCode]int
	// FirstError is the first row or field failure on the page
	FirstError *apperrors.ScrapeError
}

func (s *ExtractStats) fail(err *apperrors.ScrapeError) {
	if s.RowErrors == nil {
		s.RowErrors = make(map[apperrors.ErrorCode]int)
	}
	s.RowErrors[err.Code]++
	if s.FirstError == nil {
		s.FirstError = err
	}
}

// Extractor turns a listing page into notice items
type Extractor struct {
	log *logger.Logger
}

// NewExtractor creates an extractor
func NewExtractor() *Extractor {
	return &Extractor{log: logger.ForCollector("extract")}
}

// Extract applies the ruleset to page. Items keep document order. Rows
// without a title are dropped and a missing detail url falls back to the
// page url. When more than one row was tried and none survived, the page
// fails with the first row error.
func (e *Extractor) Extract(page []byte, rs *ruleset.Ruleset, pageURL string) ([]models.NoticeItem, ExtractStats, error) {
	var stats ExtractStats

	doc, err := htmlquery.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, stats, apperrors.NewScrapeError(apperrors.CodePageAccess, "%s: parse html: %v", rs.OrgName, err)
	}
	rows, err := htmlquery.QueryAll(doc, rs.RowXPath)
	if err != nil {
		return nil, stats, apperrors.NewScrapeError(apperrors.CodeSelector, "%s: row xpath %q: %v", rs.OrgName, rs.RowXPath, err)
	}
	stats.Rows = len(rows)

	items := make([]models.NoticeItem, 0, len(rows))
	for i, row := range rows {
		if rs.SkipRow(i+1, len(rows)) {
			stats.Skipped++
			continue
		}
		item, rowErr := e.extractRow(row, i+1, rs, pageURL, &stats)
		if rowErr != nil {
			if rowErr.Code == apperrors.CodeTitleParsing {
				stats.Untitled++
			}
			stats.fail(rowErr)
			continue
		}
		items = append(items, *item)
	}
	stats.Extracted = len(items)
	if stats.FirstError != nil {
		e.log.Debug().
			Str("org", rs.OrgName).
			Interface("row_errors", stats.RowErrors).
			Str("first", stats.FirstError.Message).
			Msg("Row failures")
	}

	if tried := stats.Rows - stats.Skipped; tried > 1 && len(items) == 0 && stats.FirstError != nil {
		return nil, stats, stats.FirstError
	}
	return items, stats, nil
}

func (e *Extractor) extractRow(row *html.Node, index int, rs *ruleset.Ruleset, pageURL string, stats *ExtractStats) (item *models.NoticeItem, rowErr *apperrors.ScrapeError) {
	defer func() {
		if p := recover(); p != nil {
			item = nil
			rowErr = apperrors.NewScrapeError(apperrors.CodeRowParsing, "%s: row %d: %v", rs.OrgName, index, p)
		}
	}()

	it := models.NoticeItem{OrgName: rs.OrgName}
	for _, f := range rs.Fields {
		value, err := e.fieldValue(row, f)
		if err != nil {
			stats.fail(apperrors.NewScrapeError(fieldCode(f.Name), "%s: row %d %s: %v", rs.OrgName, index, f.Name, err))
		}
		switch f.Name {
		case ruleset.FieldTitle:
			it.Title = value
		case ruleset.FieldDetailURL:
			if value != "" {
				abs := helpers.MakeAbsoluteURL(pageURL, value)
				if abs == "" {
					stats.fail(apperrors.NewScrapeError(apperrors.CodeURLParsing, "%s: row %d: unusable detail url %q", rs.OrgName, index, value))
				}
				value = abs
			}
			it.DetailURL = value
		case ruleset.FieldPostedDate:
			it.PostedDate = helpers.FormatDate(value)
			if it.PostedDate != "" && !isoDateRe.MatchString(it.PostedDate) {
				stats.fail(apperrors.NewScrapeError(apperrors.CodeDateParsing, "%s: row %d: unrecognized date %q", rs.OrgName, index, it.PostedDate))
			}
		case ruleset.FieldPostedBy:
			it.PostedBy = value
		}
	}

	if it.Title == "" {
		return nil, apperrors.NewScrapeError(apperrors.CodeTitleParsing, "%s: row %d: no title", rs.OrgName, index)
	}
	if it.DetailURL == "" {
		it.DetailURL = pageURL
	}
	return &it, nil
}

// fieldValue reads one field from row. A failing callback keeps the raw
// value and is reported as an error.
func (e *Extractor) fieldValue(row *html.Node, f ruleset.FieldSpec) (string, error) {
	node, err := htmlquery.Query(row, f.XPath)
	if err != nil {
		return "", fmt.Errorf("xpath %q: %w", f.XPath, err)
	}
	if node == nil {
		return "", nil
	}

	var value string
	if f.Target == ruleset.TargetText || f.Target == "" {
		value = helpers.CleanText(htmlquery.InnerText(node))
	} else {
		value = strings.TrimSpace(htmlquery.SelectAttr(node, f.Target))
		if value == "" && node.FirstChild != nil && node.FirstChild.Type == html.TextNode {
			// xpath가 @href 처럼 속성을 직접 가리키는 경우
			value = strings.TrimSpace(htmlquery.InnerText(node))
		}
	}

	if value == "" || f.Transform == nil {
		return value, nil
	}
	out, err := f.Transform.Apply(value)
	if err != nil {
		return value, fmt.Errorf("callback %s: %w", f.Transform, err)
	}
	return strings.TrimSpace(out), nil
}

func fieldCode(name string) apperrors.ErrorCode {
	switch name {
	case ruleset.FieldTitle:
		return apperrors.CodeTitleParsing
	case ruleset.FieldDetailURL:
		return apperrors.CodeURLParsing
	case ruleset.FieldPostedDate:
		return apperrors.CodeDateParsing
	}
	return apperrors.CodeRowParsing
}
