package ruleset

import (
	"fmt"
	"sort"
	"strings"
)

// Separator joins the parts of a stored field descriptor: xpath|-target|-callback
const Separator = "|-"

// Field names understood by the extractor
const (
	FieldTitle      = "title"
	FieldDetailURL  = "detail_url"
	FieldPostedDate = "posted_date"
	FieldPostedBy   = "posted_by"
)

// Extraction targets
const (
	TargetText = "text"
	TargetHref = "href"
)

// FieldSpec describes how one field is read from a listing row
type FieldSpec struct {
	Name      string
	XPath     string
	Target    string
	Callback  string
	Transform *Transform
}

// Encode renders the spec back to its stored form
func (f FieldSpec) Encode() string {
	s := f.XPath
	if f.Callback != "" || (f.Target != "" && f.Target != defaultTarget(f.Name)) {
		s += Separator + f.Target
	}
	if f.Callback != "" {
		s += Separator + f.Callback
	}
	return s
}

// ParseFieldSpec parses a stored descriptor. A callback that cannot be parsed
// is reported as a warning and the field is kept without a transform.
func ParseFieldSpec(name, raw string) (FieldSpec, string, error) {
	parts := strings.Split(raw, Separator)
	spec := FieldSpec{Name: name, XPath: strings.TrimSpace(parts[0])}
	if spec.XPath == "" {
		return spec, "", fmt.Errorf("field %s: empty xpath", name)
	}

	if len(parts) > 1 {
		spec.Target = strings.TrimSpace(parts[1])
	}
	if spec.Target == "" {
		spec.Target = defaultTarget(name)
	}

	if len(parts) > 2 {
		// callbacks may themselves contain the separator
		spec.Callback = strings.TrimSpace(strings.Join(parts[2:], Separator))
	}
	if spec.Callback == "" {
		return spec, "", nil
	}

	t, err := ParseTransform(spec.Callback)
	if err != nil {
		return spec, fmt.Sprintf("field %s: callback %q ignored: %v", name, spec.Callback, err), nil
	}
	spec.Transform = t
	return spec, "", nil
}

// ParseElements parses every non-empty descriptor of a ruleset. Fields are
// returned in name order so extraction is deterministic.
func ParseElements(elements map[string]string) ([]FieldSpec, []string) {
	names := make([]string, 0, len(elements))
	for name := range elements {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		specs    []FieldSpec
		warnings []string
	)
	for _, name := range names {
		raw := strings.TrimSpace(elements[name])
		if raw == "" {
			continue
		}
		spec, warn, err := ParseFieldSpec(name, raw)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		specs = append(specs, spec)
	}
	return specs, warnings
}

func defaultTarget(name string) string {
	if name == FieldDetailURL {
		return TargetHref
	}
	return TargetText
}
