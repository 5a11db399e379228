// Package routes provides shared route registration for the MangaRelay
// API, used by the main server and the OpenAPI surface alike.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("MangaRelay API", version.Get().Short())
	cfg.Info.Description = "Manga metadata aggregation API that searches multiple scanlation sites in parallel, merges the results, and serves them from a tiered cache."

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "JWT bearer token. Optional on read endpoints; when present, cache entries live in the caller's private scope.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Search", Description: "Multi-source manga search"},
		{Name: "Manga", Description: "Manga details and chapter images"},
		{Name: "Cache", Description: "Cache statistics and maintenance"},
		{Name: "Preload", Description: "Background preload queue administration"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}
