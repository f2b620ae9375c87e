package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sjsage522/bidnoticeworker/internal/ruleset"
)

// SettingsStore reads scraping rulesets from the scraping_settings table
type SettingsStore struct {
	s *Store
}

var _ ruleset.Source = (*SettingsStore)(nil)

// Settings returns the ruleset source backed by this store
func (s *Store) Settings() *SettingsStore {
	return &SettingsStore{s: s}
}

const settingsColumns = `oid, org_name, url, row_xpath, paging, start_page, end_page, login, iframe,
	elements, exception_row, org_region, registration, use, company_in_charge, org_man`

func scanRuleset(scan func(dest ...any) error) (*ruleset.Ruleset, error) {
	r := &ruleset.Ruleset{}
	err := scan(
		&r.ID, &r.OrgName, &r.URL, &r.RowXPath, &r.Paging, &r.StartPage, &r.EndPage, &r.Login, &r.Iframe,
		&jsonColumn{target: &r.Elements}, &r.ExceptionRow, &r.OrgRegion, &r.Registration, &r.Use,
		&r.CompanyInCharge, &r.OrgMan,
	)
	if err != nil {
		return nil, err
	}
	if r.Elements == nil {
		r.Elements = map[string]string{}
	}
	return r, nil
}

// Load returns the active ruleset of orgName
func (ss *SettingsStore) Load(ctx context.Context, orgName string) (*ruleset.Ruleset, error) {
	r, err := scanRuleset(ss.s.queryRow(ctx,
		"SELECT "+settingsColumns+" FROM scraping_settings WHERE org_name = ? AND use = ?", orgName, true).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", orgName, ruleset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ruleset %s: %w", orgName, err)
	}
	return r, nil
}

// ListActive returns every active ruleset sorted by organization name
func (ss *SettingsStore) ListActive(ctx context.Context) ([]*ruleset.Ruleset, error) {
	rows, err := ss.s.query(ctx, "SELECT "+settingsColumns+" FROM scraping_settings WHERE use = ? ORDER BY org_name", true)
	if err != nil {
		return nil, fmt.Errorf("list rulesets: %w", err)
	}
	defer rows.Close()

	var out []*ruleset.Ruleset
	for rows.Next() {
		r, err := scanRuleset(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Save inserts or replaces the ruleset of r.OrgName
func (ss *SettingsStore) Save(ctx context.Context, r *ruleset.Ruleset) error {
	elements, err := marshalJSON(r.Elements)
	if err != nil {
		return err
	}
	_, err = ss.s.exec(ctx, `INSERT INTO scraping_settings (org_name, url, row_xpath, paging, start_page, end_page,
			login, iframe, elements, exception_row, org_region, registration, use, company_in_charge, org_man)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_name) DO UPDATE SET url = excluded.url, row_xpath = excluded.row_xpath,
			paging = excluded.paging, start_page = excluded.start_page, end_page = excluded.end_page,
			login = excluded.login, iframe = excluded.iframe, elements = excluded.elements,
			exception_row = excluded.exception_row, org_region = excluded.org_region,
			registration = excluded.registration, use = excluded.use,
			company_in_charge = excluded.company_in_charge, org_man = excluded.org_man`,
		r.OrgName, r.URL, r.RowXPath, r.Paging, r.StartPage, r.EndPage,
		r.Login, r.Iframe, elements, r.ExceptionRow, r.OrgRegion, r.Registration, r.Use, r.CompanyInCharge, r.OrgMan,
	)
	if err != nil {
		return fmt.Errorf("save ruleset %s: %w", r.OrgName, err)
	}
	return nil
}

// Import saves every ruleset, stopping at the first failure
func (ss *SettingsStore) Import(ctx context.Context, rulesets []*ruleset.Ruleset) (int, error) {
	for i, r := range rulesets {
		if err := ss.Save(ctx, r); err != nil {
			return i, err
		}
	}
	return len(rulesets), nil
}
