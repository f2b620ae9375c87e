package errors

import "fmt"

// ErrorCode is the stable numeric code reported by list scraping runs.
// Codes are persisted in scraping logs, so their values must not change.
type ErrorCode int

const (
	CodeSuccess          ErrorCode = 0
	CodeSettingsNotFound ErrorCode = 100
	CodePageAccess       ErrorCode = 200
	CodeIframe           ErrorCode = 210
	CodeSelector         ErrorCode = 220
	CodeRowParsing       ErrorCode = 300
	CodeTitleParsing     ErrorCode = 301
	CodeURLParsing       ErrorCode = 302
	CodeDateParsing      ErrorCode = 303
	CodeNextPage         ErrorCode = 400
	CodeDataProcessing   ErrorCode = 500
	CodeUnknown          ErrorCode = 900
	CodeRenderEngine     ErrorCode = 999
)

var codeNames = map[ErrorCode]string{
	CodeSuccess:          "SUCCESS",
	CodeSettingsNotFound: "SETTINGS_NOT_FOUND",
	CodePageAccess:       "PAGE_ACCESS_ERROR",
	CodeIframe:           "IFRAME_ERROR",
	CodeSelector:         "SELECTOR_ERROR",
	CodeRowParsing:       "ROW_PARSING_ERROR",
	CodeTitleParsing:     "TITLE_PARSING_ERROR",
	CodeURLParsing:       "URL_PARSING_ERROR",
	CodeDateParsing:      "DATE_PARSING_ERROR",
	CodeNextPage:         "NEXT_PAGE_ERROR",
	CodeDataProcessing:   "DATA_PROCESSING_ERROR",
	CodeUnknown:          "UNKNOWN_ERROR",
	CodeRenderEngine:     "RENDER_ENGINE_ERROR",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", int(c))
}

// ScrapeError is the value form of a failed scrape. It is returned inside
// results instead of crossing API boundaries as a Go error.
type ScrapeError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"msg"`
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s(%d): %s", e.Code, int(e.Code), e.Message)
}

// NewScrapeError builds a ScrapeError with a formatted message
func NewScrapeError(code ErrorCode, format string, v ...interface{}) *ScrapeError {
	return &ScrapeError{Code: code, Message: fmt.Sprintf(format, v...)}
}
