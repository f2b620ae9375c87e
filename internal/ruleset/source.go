package ruleset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no active ruleset exists for an organization
var ErrNotFound = errors.New("ruleset not found")

// Source provides rulesets. Implementations return fresh copies on every call.
type Source interface {
	Load(ctx context.Context, orgName string) (*Ruleset, error)
	ListActive(ctx context.Context) ([]*Ruleset, error)
}

// FileSource reads rulesets from a YAML file of the form
//
//	rulesets:
//	  - org_name: 조달청
//	    url: https://example.go.kr/list?page=${i}
//	    row_xpath: //table/tbody/tr
//	    use: true
//	    elements:
//	      title: ./td[2]/a
//	      detail_url: ./td[2]/a|-href
type FileSource struct {
	Path string
}

type rulesetFile struct {
	Rulesets []*Ruleset `yaml:"rulesets"`
}

// NewFileSource creates a source backed by path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// LoadFile reads every ruleset in path, active or not
func LoadFile(path string) ([]*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulesets: %w", err)
	}

	var f rulesetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rulesets %s: %w", path, err)
	}
	return f.Rulesets, nil
}

// Load returns the active ruleset for orgName
func (s *FileSource) Load(_ context.Context, orgName string) (*Ruleset, error) {
	all, err := LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.OrgName == orgName && r.Use {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", orgName, ErrNotFound)
}

// ListActive returns all active rulesets sorted by organization name
func (s *FileSource) ListActive(_ context.Context) ([]*Ruleset, error) {
	all, err := LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	active := make([]*Ruleset, 0, len(all))
	for _, r := range all {
		if r.Use {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].OrgName < active[j].OrgName })
	return active, nil
}
