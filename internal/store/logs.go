package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/models"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
)

// error_message keeps a short sample; the full list goes to error_details
const errorSampleSize = 5

// SaveCollectionLog appends one API run record
func (s *Store) SaveCollectionLog(ctx context.Context, l models.CollectionLog) error {
	params, err := marshalJSON(l.RequestParams)
	if err != nil {
		return err
	}
	var details any
	if len(l.ErrorDetails) > 0 {
		if details, err = marshalJSON(l.ErrorDetails); err != nil {
			return err
		}
	}
	msg := l.ErrorMessage
	if msg == "" && len(l.ErrorDetails) > 0 {
		msg = strings.Join(l.ErrorDetails[:min(errorSampleSize, len(l.ErrorDetails))], "; ")
	}

	_, err = s.exec(ctx, `INSERT INTO api_collection_logs (run_id, api_endpoint, request_params,
			total_count, new_count, updated_count, error_count, start_date, end_date, status,
			started_at, completed_at, duration_seconds, error_message, error_details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, l.APIEndpoint, params,
		l.TotalCount, l.NewCount, l.UpdatedCount, l.ErrorCount,
		nullTime(l.StartDate), nullTime(l.EndDate), l.Status,
		l.StartedAt.UTC(), nullTime(l.CompletedAt), l.DurationSeconds, msg, details,
	)
	if err != nil {
		return fmt.Errorf("save collection log: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// LastCollectionLog returns the most recent API run, or nil when none exists
func (s *Store) LastCollectionLog(ctx context.Context) (*models.CollectionLog, error) {
	var (
		l                     models.CollectionLog
		start, end, completed sql.NullTime
	)
	err := s.queryRow(ctx, `SELECT run_id, api_endpoint, request_params, total_count, new_count, updated_count,
			error_count, start_date, end_date, status, started_at, completed_at, duration_seconds,
			error_message, error_details
		FROM api_collection_logs ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(
		&l.RunID, &l.APIEndpoint, &jsonColumn{target: &l.RequestParams}, &l.TotalCount, &l.NewCount, &l.UpdatedCount,
		&l.ErrorCount, &start, &end, &l.Status, &l.StartedAt, &completed, &l.DurationSeconds,
		&l.ErrorMessage, &jsonColumn{target: &l.ErrorDetails},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last collection log: %w", err)
	}
	l.StartDate, l.EndDate, l.CompletedAt = start.Time, end.Time, completed.Time
	return &l, nil
}

// SaveScrapingLogs appends one row per organization scrape
func (s *Store) SaveScrapingLogs(ctx context.Context, logs []models.ScrapingLog) error {
	for _, l := range logs {
		code, msg := 0, ""
		if l.Error != nil {
			code, msg = int(l.Error.Code), l.Error.Message
		}
		if l.Time == "" {
			l.Time = helpers.Now()
		}
		_, err := s.exec(ctx, `INSERT INTO scraping_logs (org_name, error_code, error_message,
				scraped_count, new_count, inserted_count, logged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.OrgName, code, msg, l.ScrapedCount, l.NewCount, l.InsertedCount, l.Time,
		)
		if err != nil {
			return fmt.Errorf("save scraping log %s: %w", l.OrgName, err)
		}
	}
	return nil
}

// RecentScrapingLogs returns the newest scraping log rows
func (s *Store) RecentScrapingLogs(ctx context.Context, limit int) ([]models.ScrapingLog, error) {
	rows, err := s.query(ctx, `SELECT org_name, error_code, error_message, scraped_count, new_count, inserted_count, logged_at
		FROM scraping_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScrapingLog
	for rows.Next() {
		var (
			l    models.ScrapingLog
			code int
			msg  string
		)
		if err := rows.Scan(&l.OrgName, &code, &msg, &l.ScrapedCount, &l.NewCount, &l.InsertedCount, &l.Time); err != nil {
			return nil, err
		}
		if code != 0 || msg != "" {
			l.Error = &apperrors.ScrapeError{Code: apperrors.ErrorCode(code), Message: msg}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveErrorScraping records the organizations that failed in one batch
func (s *Store) SaveErrorScraping(ctx context.Context, orgs []string, at string) error {
	if len(orgs) == 0 {
		return nil
	}
	if at == "" {
		at = helpers.Now()
	}
	if _, err := s.exec(ctx, "INSERT INTO error_scrapings (orgs, logged_at) VALUES (?, ?)", strings.Join(orgs, ","), at); err != nil {
		return fmt.Errorf("save error scraping: %w", err)
	}
	return nil
}

// Statistics summarizes the stored notices. "Today" starts at midnight KST.
func (s *Store) Statistics(ctx context.Context) (models.Statistics, error) {
	st := models.Statistics{ByCategory: map[string]int{}}

	y, m, d := time.Now().In(helpers.KST).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, helpers.KST).UTC()

	counts := []struct {
		dst  *int
		q    string
		args []any
	}{
		{&st.TotalNotices, "SELECT COUNT(*) FROM bid_notices", nil},
		{&st.ProcessedNotices, "SELECT COUNT(*) FROM bid_notices WHERE is_processed = ?", []any{true}},
		{&st.MatchedNotices, "SELECT COUNT(*) FROM bid_notices WHERE is_matched = ?", []any{true}},
		{&st.TodayNotices, "SELECT COUNT(*) FROM bid_notices WHERE created_at >= ?", []any{today}},
		{&st.ScrapedNotices, "SELECT COUNT(*) FROM bid_notices WHERE source = ?", []any{models.SourceScrape}},
	}
	for _, c := range counts {
		n, err := s.count(ctx, c.q, c.args...)
		if err != nil {
			return st, fmt.Errorf("statistics: %w", err)
		}
		*c.dst = n
	}

	rows, err := s.query(ctx, "SELECT category, COUNT(*) FROM bid_notices WHERE category <> '' GROUP BY category")
	if err != nil {
		return st, fmt.Errorf("statistics by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return st, err
		}
		st.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	last, err := s.LastCollectionLog(ctx)
	if err != nil {
		return st, err
	}
	st.LastCollection = last
	return st, nil
}

// ProcessingStatus reports classification progress
func (s *Store) ProcessingStatus(ctx context.Context) (models.ProcessingStatus, error) {
	var ps models.ProcessingStatus
	err := s.queryRow(ctx, `SELECT
			COALESCE(SUM(CASE WHEN is_processed THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(CASE WHEN is_processed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_matched THEN 1 ELSE 0 END), 0)
		FROM bid_notices`).Scan(&ps.Unprocessed, &ps.Processed, &ps.Matched)
	if err != nil {
		return ps, fmt.Errorf("processing status: %w", err)
	}
	ps.Total = ps.Processed + ps.Unprocessed
	if ps.Total > 0 {
		// percent, two decimals
		ps.ProcessingRate = math.Round(float64(ps.Processed)*10000/float64(ps.Total)) / 100
	}
	return ps, nil
}
