package scanner

import (
	"errors"
	"fmt"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
)

// ErrUnknownAdapter is returned when no adapter serves a source's kind.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Registry keeps a mapping from adapter kinds to their implementations.
type Registry struct {
	adapters map[domain.AdapterKind]ports.SourceAdapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[domain.AdapterKind]ports.SourceAdapter{}}
}

// Register adds or replaces the adapter for a kind.
func (r *Registry) Register(kind domain.AdapterKind, adapter ports.SourceAdapter) {
	if r.adapters == nil {
		r.adapters = map[domain.AdapterKind]ports.SourceAdapter{}
	}
	r.adapters[kind] = adapter
}

// Resolve returns the adapter for the source's crawler type.
func (r *Registry) Resolve(source domain.Source) (ports.SourceAdapter, error) {
	kind := source.Kind()
	if adapter, ok := r.adapters[kind]; ok && kind != "" {
		return adapter, nil
	}
	return nil, fmt.Errorf("%w: crawler type %q", ErrUnknownAdapter, source.CrawlerType)
}
