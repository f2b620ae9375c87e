package store

import (
	"context"
	"fmt"

	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/models"
)

var _ crawler.DetailStore = (*Store)(nil)

// DetailCandidates returns notices with a detail URL and no collected content.
// An explicit notice id is returned even when its content was collected.
func (s *Store) DetailCandidates(ctx context.Context, q crawler.DetailQuery) ([]crawler.DetailTarget, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	query := "SELECT bid_notice_no, bid_notice_name, bid_ntce_dtl_url, ntce_instt_nm FROM bid_notices WHERE bid_ntce_dtl_url <> ''"
	var args []any
	switch {
	case q.NoticeID != "":
		query += " AND bid_notice_no = ?"
		args = append(args, q.NoticeID)
	case q.OrgName != "":
		query += " AND ntce_instt_nm = ? AND content = ''"
		args = append(args, q.OrgName)
	default:
		query += " AND content = ''"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detail candidates: %w", err)
	}
	defer rows.Close()

	var out []crawler.DetailTarget
	for rows.Next() {
		var t crawler.DetailTarget
		if err := rows.Scan(&t.NoticeNo, &t.Title, &t.URL, &t.OrgName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveDetail stores the collected content and attachments of one notice
func (s *Store) SaveDetail(ctx context.Context, noticeNo string, d models.NoticeDetail) error {
	attachments, err := marshalJSON(d.Attachments)
	if err != nil {
		return err
	}
	if d.Attachments == nil {
		attachments = "[]"
	}

	res, err := s.exec(ctx, "UPDATE bid_notices SET content = ?, attachments = ?, updated_at = ? WHERE bid_notice_no = ?",
		d.Content, attachments, now(), noticeNo)
	if err != nil {
		return fmt.Errorf("save detail %s: %w", noticeNo, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notice %s: %w", noticeNo, ErrNotFound)
	}
	return nil
}
