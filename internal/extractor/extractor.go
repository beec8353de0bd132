// Package extractor binds retry strategy names to the external extraction
// methods they invoke. Each method re-derives values for just the failed
// fields of a record, never the whole profile.
package extractor

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/model"
)

// Result is the output of one targeted re-extraction.
type Result struct {
	// Fields holds the re-extracted values, keyed by field.
	Fields map[string]string
	// Evidence holds supporting quotations for free-text fields.
	Evidence map[string]string
	// SourceContent, when non-empty, is fresh raw source material that
	// replaces the record's stale copy on re-verification.
	SourceContent string
}

// Method is one external extraction strategy.
type Method interface {
	Name() string
	// Extract re-derives values for the requested fields. A method may
	// return a partial result; fields it cannot serve are simply absent.
	Extract(ctx context.Context, rec *model.CandidateRecord, fields []string) (*Result, error)
}

// Registry resolves strategy names to methods.
type Registry struct {
	methods map[string]Method
}

// NewRegistry creates a registry over the given methods.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{methods: make(map[string]Method, len(methods))}
	for _, m := range methods {
		r.methods[m.Name()] = m
	}
	return r
}

// Register adds or replaces a method.
func (r *Registry) Register(m Method) {
	r.methods[m.Name()] = m
}

// Get resolves a method by strategy name.
func (r *Registry) Get(name string) (Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, eris.Errorf("extractor: unknown method %q", name)
	}
	return m, nil
}

// Names lists the registered method names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	return out
}
