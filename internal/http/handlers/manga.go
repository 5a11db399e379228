package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/reiwa-dev/mangarelay/internal/http/mw"
	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

// GetMangaInput identifies one manga on one source.
type GetMangaInput struct {
	Source  string `path:"source" doc:"Source name"`
	MangaID string `path:"id" doc:"Source-local manga identifier"`
	Refresh bool   `query:"refresh" doc:"Bypass the cached record and scrape fresh"`
}

// GetMangaOutput carries the full detail record.
type GetMangaOutput struct {
	Body models.Details
}

// GetManga returns one manga's metadata and chapter list, scraping the
// source on cache miss.
func (h *Handlers) GetManga(ctx context.Context, input *GetMangaInput) (*GetMangaOutput, error) {
	d, err := h.svcs.Aggregator.GetDetails(ctx, mw.Scope(ctx), input.Source, input.MangaID, input.Refresh)
	if err != nil {
		var unknown *source.ErrUnknownSource
		if errors.As(err, &unknown) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error502BadGateway(err.Error())
	}
	return &GetMangaOutput{Body: *d}, nil
}

// GetChapterImagesInput identifies one chapter by its page URL.
type GetChapterImagesInput struct {
	Source  string `query:"source" minLength:"1" doc:"Source name"`
	URL     string `query:"url" minLength:"1" doc:"Chapter page URL"`
	Refresh bool   `query:"refresh" doc:"Bypass the cached images and scrape fresh"`
}

// GetChapterImagesOutput is the ordered image URL list for a chapter.
type GetChapterImagesOutput struct {
	Body struct {
		Images []string `json:"images"`
		Cached bool     `json:"cached"`
	}
}

// GetChapterImages returns a chapter's page images in reading order.
func (h *Handlers) GetChapterImages(ctx context.Context, input *GetChapterImagesInput) (*GetChapterImagesOutput, error) {
	images, cached, err := h.svcs.Aggregator.GetChapterImages(ctx, mw.Scope(ctx), input.Source, input.URL, input.Refresh)
	if err != nil {
		var unknown *source.ErrUnknownSource
		if errors.As(err, &unknown) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error502BadGateway(err.Error())
	}
	out := &GetChapterImagesOutput{}
	out.Body.Images = images
	out.Body.Cached = cached
	return out, nil
}
