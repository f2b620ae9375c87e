package dataapi

import (
	"strings"

	"sjsage522/bidnoticeworker/internal/models"
)

// Filters narrow fetched items. The list endpoint has no server side filter
// for these, so they are applied after the fetch.
type Filters struct {
	// AreaCode matches any region restriction field by substring
	AreaCode string
	// OrgName matches the notice or demand institution by substring
	OrgName string
	// BidKind must equal ntceKindNm
	BidKind string
}

var regionFields = []string{
	"prtcptPsblRgnNm",
	"rgnLmtBidLocplcJdgmBssNm",
	"jntcontrctDutyRgnNm1",
	"jntcontrctDutyRgnNm2",
	"jntcontrctDutyRgnNm3",
}

// Empty reports whether no filter is set
func (f Filters) Empty() bool {
	return f.AreaCode == "" && f.OrgName == "" && f.BidKind == ""
}

// Match reports whether item passes every set filter
func (f Filters) Match(item models.RawItem) bool {
	if f.OrgName != "" &&
		!strings.Contains(item.String("ntceInsttNm"), f.OrgName) &&
		!strings.Contains(item.String("dminsttNm"), f.OrgName) {
		return false
	}
	if f.BidKind != "" && item.String("ntceKindNm") != f.BidKind {
		return false
	}
	if f.AreaCode != "" {
		for _, key := range regionFields {
			if strings.Contains(item.String(key), f.AreaCode) {
				return true
			}
		}
		return false
	}
	return true
}

// Apply returns the items that match
func (f Filters) Apply(items []models.RawItem) []models.RawItem {
	if f.Empty() {
		return items
	}
	out := make([]models.RawItem, 0, len(items))
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	return out
}
