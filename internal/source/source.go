// Package source defines the adapter interface for external manga
// sites and the closed registry of known adapters. Each adapter owns
// its own fetching and maps site data into the shared models.
package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

// Source is implemented by each external manga site adapter.
type Source interface {
	// Name is the stable identifier used in URLs and cache keys.
	Name() string
	// Domain is the host rate limiting keys on.
	Domain() string
	// BaseDelay is the adapter's minimum pause between requests.
	BaseDelay() time.Duration

	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	GetDetails(ctx context.Context, mangaID string) (*models.Details, error)
	GetChapterImages(ctx context.Context, chapterURL string) ([]string, error)
}

// Paginator is implemented by sources whose full catalog can be walked
// page by page.
type Paginator interface {
	ListPage(ctx context.Context, page int) ([]models.SearchResult, error)
}

// ErrUnknownSource is returned for names outside the registry.
type ErrUnknownSource struct {
	Name string
}

func (e *ErrUnknownSource) Error() string {
	return fmt.Sprintf("unknown source: %s", e.Name)
}

// Registry is the closed set of configured sources.
type Registry struct {
	sources map[string]Source
	names   []string
}

// NewRegistry builds a registry from the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		if _, exists := r.sources[s.Name()]; exists {
			continue
		}
		r.sources[s.Name()] = s
		r.names = append(r.names, s.Name())
	}
	sort.Strings(r.names)
	return r
}

// Get returns the source with the given name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, &ErrUnknownSource{Name: name}
	}
	return s, nil
}

// Names returns all registered source names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every registered source in name order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.sources[name])
	}
	return out
}

// Resolve maps requested names to sources, defaulting to all sources
// when names is empty. Unknown names fail the whole resolution.
func (r *Registry) Resolve(names []string) ([]Source, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Source, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
