// Package ruleset holds the per-organization extraction settings used to
// scrape listing pages.
package ruleset

import (
	"strconv"
	"strings"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/antchfx/xpath"
)

// Page number placeholders accepted in listing URLs
var pagePlaceholders = []string{"${i}", "{i}", "pageNum"}

// Ruleset describes how to reach and parse one organization's listing
type Ruleset struct {
	ID              int64             `json:"oid" yaml:"oid"`
	OrgName         string            `json:"org_name" yaml:"org_name"`
	URL             string            `json:"url" yaml:"url"`
	RowXPath        string            `json:"row_xpath" yaml:"row_xpath"`
	Paging          string            `json:"paging,omitempty" yaml:"paging"`
	StartPage       int               `json:"start_page" yaml:"start_page"`
	EndPage         int               `json:"end_page" yaml:"end_page"`
	Login           string            `json:"login,omitempty" yaml:"login"`
	Iframe          string            `json:"iframe,omitempty" yaml:"iframe"`
	Elements        map[string]string `json:"elements" yaml:"elements"`
	ExceptionRow    string            `json:"exception_row,omitempty" yaml:"exception_row"`
	OrgRegion       string            `json:"org_region,omitempty" yaml:"org_region"`
	Registration    string            `json:"registration,omitempty" yaml:"registration"`
	Use             bool              `json:"use" yaml:"use"`
	CompanyInCharge string            `json:"company_in_charge,omitempty" yaml:"company_in_charge"`
	OrgMan          string            `json:"org_man,omitempty" yaml:"org_man"`

	// Fields is filled by Compile
	Fields []FieldSpec `json:"-" yaml:"-"`
}

// Compile parses the element descriptors into Fields and returns any
// non-fatal warnings (ignored callbacks, empty descriptors).
func (r *Ruleset) Compile() []string {
	fields, warnings := ParseElements(r.Elements)
	r.Fields = fields
	return warnings
}

// Field returns the compiled spec for name
func (r *Ruleset) Field(name string) (FieldSpec, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Validate checks that the ruleset is usable. It must be called after Compile.
func (r *Ruleset) Validate() *apperrors.ScrapeError {
	switch {
	case strings.TrimSpace(r.OrgName) == "":
		return apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "organization name is missing")
	case strings.TrimSpace(r.URL) == "":
		return apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "%s: url is missing", r.OrgName)
	case strings.TrimSpace(r.RowXPath) == "":
		return apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "%s: row xpath is missing", r.OrgName)
	}
	if _, ok := r.Field(FieldTitle); !ok {
		return apperrors.NewScrapeError(apperrors.CodeSettingsNotFound, "%s: title element is missing", r.OrgName)
	}

	if _, err := xpath.Compile(r.RowXPath); err != nil {
		return apperrors.NewScrapeError(apperrors.CodeSelector, "%s: invalid row xpath %q: %v", r.OrgName, r.RowXPath, err)
	}
	for _, f := range r.Fields {
		if _, err := xpath.Compile(f.XPath); err != nil {
			return apperrors.NewScrapeError(apperrors.CodeSelector, "%s: invalid xpath for %s %q: %v", r.OrgName, f.Name, f.XPath, err)
		}
	}
	return nil
}

// HasPagePlaceholder reports whether the URL changes with the page number
func (r *Ruleset) HasPagePlaceholder() bool {
	for _, p := range pagePlaceholders {
		if strings.Contains(r.URL, p) {
			return true
		}
	}
	return false
}

// PageURL returns the listing URL for page. Without a placeholder the same
// URL is used for every page.
func (r *Ruleset) PageURL(page int) string {
	u := r.URL
	n := strconv.Itoa(page)
	for _, p := range pagePlaceholders {
		u = strings.ReplaceAll(u, p, n)
	}
	return u
}

// Paged reports whether pages past the first can be reached, either through
// a URL placeholder or a paging locator
func (r *Ruleset) Paged() bool {
	return r.HasPagePlaceholder() || strings.TrimSpace(r.Paging) != ""
}

// PagingClicks returns the paging locators to click, in order, after loading
// the listing URL to reach page. A locator with ${i} jumps to the page
// directly; one without is a next button clicked once per page past the
// start. A URL placeholder takes precedence over Paging.
func (r *Ruleset) PagingClicks(page int) []string {
	locator := strings.TrimSpace(r.Paging)
	start, _ := r.Pages()
	if locator == "" || page <= start || r.HasPagePlaceholder() {
		return nil
	}
	if strings.Contains(locator, "{i}") {
		n := strconv.Itoa(page)
		locator = strings.ReplaceAll(locator, "${i}", n)
		locator = strings.ReplaceAll(locator, "{i}", n)
		return []string{locator}
	}
	clicks := make([]string, page-start)
	for i := range clicks {
		clicks[i] = locator
	}
	return clicks
}

// Pages returns the inclusive page range to visit
func (r *Ruleset) Pages() (start, end int) {
	start, end = r.StartPage, r.EndPage
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	return start, end
}

// SkipRow reports whether the 1-based row index is listed in ExceptionRow.
// ExceptionRow is a comma separated list; negative entries count from the
// last row (-1 is the last row).
func (r *Ruleset) SkipRow(index, total int) bool {
	if r.ExceptionRow == "" {
		return false
	}
	for _, part := range strings.Split(r.ExceptionRow, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n == 0 {
			continue
		}
		if n < 0 {
			n = total + n + 1
		}
		if n == index {
			return true
		}
	}
	return false
}
