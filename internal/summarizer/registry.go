package summarizer

import (
	"fmt"
	"sort"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

// Registry keeps a mapping from provider names to summarizer implementations.
type Registry struct {
	providers map[string]ports.Summarizer
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]ports.Summarizer{}}
}

// Register adds or replaces a provider.
func (r *Registry) Register(s ports.Summarizer) {
	if s == nil {
		return
	}
	if r.providers == nil {
		r.providers = map[string]ports.Summarizer{}
	}
	r.providers[s.Name()] = s
}

// Resolve returns a provider by name or ErrNoSummarizer if it is absent.
func (r *Registry) Resolve(name string) (ports.Summarizer, error) {
	if s, ok := r.providers[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("summarizer %q: %w", name, domain.ErrNoSummarizer)
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
