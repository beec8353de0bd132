// Package strategy picks the next extraction method for a failed field,
// starting from a static ranking table and re-ordering it with observed
// retry outcomes.
package strategy

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/verify-cli/internal/model"
)

// Extraction method identifiers. These name external collaborators; the
// registry in internal/extractor binds them to implementations.
const (
	MethodEmailVerify  = "email_verify"
	MethodSiteCrawl    = "site_crawl"
	MethodDeepResearch = "deep_research"
)

// Rule maps one (field category, failure type) pair to a ranked method list.
type Rule struct {
	Category model.FieldCategory `yaml:"category"`
	Failure  model.FailureType   `yaml:"failure"`
	Methods  []string            `yaml:"methods"`
}

// Table is the static strategy ranking. First matching rule wins; Fallback
// covers pairs with no specific mapping.
type Table struct {
	Rules    []Rule   `yaml:"rules"`
	Fallback []string `yaml:"fallback"`
}

// DefaultTable returns the built-in ranking heuristics.
func DefaultTable() *Table {
	return &Table{
		Rules: []Rule{
			{Category: model.CategoryIdentifier, Failure: model.FailureEmailInvalid,
				Methods: []string{MethodEmailVerify, MethodSiteCrawl, MethodDeepResearch}},
			{Category: model.CategoryIdentifier, Failure: model.FailureMissingData,
				Methods: []string{MethodEmailVerify, MethodSiteCrawl, MethodDeepResearch}},
			{Category: model.CategoryIdentifier, Failure: model.FailureHallucination,
				Methods: []string{MethodEmailVerify, MethodDeepResearch}},
			{Category: model.CategoryURL, Failure: model.FailureFormatError,
				Methods: []string{MethodSiteCrawl, MethodDeepResearch}},
			{Category: model.CategoryFreeText, Failure: model.FailureHallucination,
				Methods: []string{MethodSiteCrawl, MethodDeepResearch}},
			{Category: model.CategoryFreeText, Failure: model.FailureStaleContent,
				Methods: []string{MethodSiteCrawl, MethodDeepResearch}},
			{Category: model.CategoryBasic, Failure: model.FailureMissingData,
				Methods: []string{MethodSiteCrawl, MethodDeepResearch}},
		},
		Fallback: []string{MethodDeepResearch},
	}
}

// LoadTable reads a strategy table from a YAML file. The file has a
// top-level "strategies" key so it can share a config file with other
// sections.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "strategy: read table %s", path)
	}

	var wrapper struct {
		Strategies Table `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "strategy: parse table %s", path)
	}

	t := &wrapper.Strategies
	if len(t.Fallback) == 0 {
		t.Fallback = DefaultTable().Fallback
	}
	for i, r := range t.Rules {
		if len(r.Methods) == 0 {
			return nil, eris.Errorf("strategy: rule %d (%s/%s) has no methods", i, r.Category, r.Failure)
		}
	}
	return t, nil
}

// Ranked returns the static ranking for a pair, falling back to the
// universal fallback chain. The returned slice is a copy.
func (t *Table) Ranked(cat model.FieldCategory, failure model.FailureType) []string {
	for _, r := range t.Rules {
		if r.Category == cat && r.Failure == failure {
			return append([]string(nil), r.Methods...)
		}
	}
	return append([]string(nil), t.Fallback...)
}
