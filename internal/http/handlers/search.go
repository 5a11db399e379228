package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/service"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

// SearchInput is the query surface of the search endpoint.
type SearchInput struct {
	Query   string   `query:"q" minLength:"1" maxLength:"200" doc:"Search query"`
	Sources []string `query:"sources" doc:"Source names to query, all when omitted"`
	Refresh bool     `query:"refresh" doc:"Bypass cached results and scrape fresh"`
}

// SearchOutput is the merged, deduplicated search response.
type SearchOutput struct {
	Body service.SearchOutput
}

// Search fans the query out across the requested sources, serving
// cached source results without touching the upstream sites.
func (h *Handlers) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	out, err := h.svcs.Aggregator.Search(ctx, mw.Scope(ctx), input.Query, input.Sources, input.Refresh)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &SearchOutput{Body: *out}, nil
}

// ListSourcesOutput lists the configured sources.
type ListSourcesOutput struct {
	Body struct {
		Sources []SourceInfo `json:"sources"`
	}
}

// SourceInfo describes one configured source.
type SourceInfo struct {
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Paginated bool   `json:"paginated" doc:"Whether the source supports full catalog walks"`
}

// ListSources returns the configured source adapters.
func (h *Handlers) ListSources(ctx context.Context, input *struct{}) (*ListSourcesOutput, error) {
	out := &ListSourcesOutput{}
	for _, src := range h.svcs.Registry.All() {
		_, paginated := src.(source.Paginator)
		out.Body.Sources = append(out.Body.Sources, SourceInfo{
			Name:      src.Name(),
			Domain:    src.Domain(),
			Paginated: paginated,
		})
	}
	return out, nil
}
