package dataapi

import (
	"bytes"
	"strings"

	"sjsage522/bidnoticeworker/internal/models"

	"github.com/antchfx/xmlquery"
)

// item locations, tried in order
var itemPaths = [][]string{
	{"response", "body", "items", "item"},
	{"body", "items", "item"},
	{"items", "item"},
	{"response", "body", "items"},
}

// ExtractItems finds the item list in a decoded response. A single object is
// returned as a one element list; non-object entries are dropped.
func ExtractItems(data any) []models.RawItem {
	var found any
	for _, p := range itemPaths {
		if v := lookup(data, p...); v != nil {
			found = v
			break
		}
	}
	if found == nil {
		if arr, ok := data.([]any); ok {
			found = arr
		}
	}

	var list []any
	switch v := found.(type) {
	case []any:
		list = v
	case map[string]any:
		list = []any{v}
	default:
		return []models.RawItem{}
	}

	items := make([]models.RawItem, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok && len(m) > 0 {
			items = append(items, models.RawItem(m))
		}
	}
	return items
}

func lookup(data any, path ...string) any {
	cur := data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil
		}
	}
	return cur
}

// xmlToMap converts an XML document into the nested shape produced by the
// JSON decoder: elements with children become maps, repeated children become
// lists and leaves become trimmed strings.
func xmlToMap(body []byte) (map[string]any, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make(map[string]any)
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			addChild(out, n.Data, nodeValue(n))
		}
	}
	return out, nil
}

func nodeValue(n *xmlquery.Node) any {
	var m map[string]any
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if m == nil {
			m = make(map[string]any)
		}
		addChild(m, c.Data, nodeValue(c))
	}
	if m == nil {
		return strings.TrimSpace(n.InnerText())
	}
	return m
}

func addChild(m map[string]any, key string, v any) {
	prev, ok := m[key]
	if !ok {
		m[key] = v
		return
	}
	if list, isList := prev.([]any); isList {
		m[key] = append(list, v)
		return
	}
	m[key] = []any{prev, v}
}
