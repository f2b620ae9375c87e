package models

import (
	"time"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"
)

// CollectionResult summarizes one API collection pass
type CollectionResult struct {
	TotalCount     int      `json:"total_count"`
	CollectedCount int      `json:"collected_count"`
	NewCount       int      `json:"new_count"`
	UpdatedCount   int      `json:"updated_count"`
	ErrorCount     int      `json:"error_count"`
	Errors         []string `json:"errors"`
}

// Merge adds the counts and errors of other into r
func (r *CollectionResult) Merge(other CollectionResult) {
	r.TotalCount += other.TotalCount
	r.CollectedCount += other.CollectedCount
	r.NewCount += other.NewCount
	r.UpdatedCount += other.UpdatedCount
	r.ErrorCount += other.ErrorCount
	r.Errors = append(r.Errors, other.Errors...)
}

// SaveResult summarizes a batch upsert
type SaveResult struct {
	Saved        int      `json:"saved"`
	NewCount     int      `json:"new_count"`
	UpdatedCount int      `json:"updated_count"`
	Errors       []string `json:"errors"`

	// Inserted holds the notices that did not exist before the save
	Inserted []*BidNotice `json:"-"`
}

// KeywordProcessingResult summarizes a classification batch
type KeywordProcessingResult struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Skipped   int `json:"skipped"`
}

// ScrapingLog is appended once per organization scrape
type ScrapingLog struct {
	OrgName       string                 `json:"org_name"`
	Error         *apperrors.ScrapeError `json:"error"`
	ScrapedCount  int                    `json:"scraped_count"`
	NewCount      int                    `json:"new_count"`
	InsertedCount int                    `json:"inserted_count"`
	Time          string                 `json:"time"`
}

// CollectionLog statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CollectionLog is appended once per orchestrated API run
type CollectionLog struct {
	RunID           string            `json:"run_id"`
	APIEndpoint     string            `json:"api_endpoint"`
	RequestParams   map[string]string `json:"request_params"`
	TotalCount      int               `json:"total_count"`
	NewCount        int               `json:"new_count"`
	UpdatedCount    int               `json:"updated_count"`
	ErrorCount      int               `json:"error_count"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Status          string            `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ErrorDetails    []string          `json:"error_details,omitempty"`
}

// Statistics summarizes the stored notices
type Statistics struct {
	TotalNotices     int            `json:"total_notices"`
	ProcessedNotices int            `json:"processed_notices"`
	MatchedNotices   int            `json:"matched_notices"`
	TodayNotices     int            `json:"today_notices"`
	ScrapedNotices   int            `json:"scraped_notices"`
	ByCategory       map[string]int `json:"by_category"`
	LastCollection   *CollectionLog `json:"last_collection,omitempty"`
}

// ProcessingStatus reports classification progress
type ProcessingStatus struct {
	Total          int     `json:"total"`
	Unprocessed    int     `json:"unprocessed"`
	Processed      int     `json:"processed"`
	Matched        int     `json:"matched"`
	ProcessingRate float64 `json:"processing_rate"`
}
