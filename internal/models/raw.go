package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RawItem is one notice as returned by the public data API, before parsing.
// JSON bodies may carry numbers where the API documents strings.
type RawItem map[string]any

// String returns the trimmed string form of key, or "" when absent
func (r RawItem) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		// XML bodies turn empty elements into empty maps
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
