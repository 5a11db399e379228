package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

const (
	asuraScansName    = "asurascans"
	asuraScansBaseURL = "https://asuracomic.net"
)

// AsuraScans scrapes asuracomic.net. The catalog listing is paginated,
// so the adapter also implements Paginator.
type AsuraScans struct {
	baseURL string
	logger  *slog.Logger
}

// NewAsuraScans creates the asurascans adapter.
func NewAsuraScans(logger *slog.Logger) *AsuraScans {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsuraScans{
		baseURL: asuraScansBaseURL,
		logger:  logger.With("source", asuraScansName),
	}
}

func (s *AsuraScans) Name() string { return asuraScansName }

func (s *AsuraScans) Domain() string {
	return hostOf(s.baseURL)
}

func (s *AsuraScans) BaseDelay() time.Duration { return 1 * time.Second }

func (s *AsuraScans) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	listURL := fmt.Sprintf("%s/series?page=1&name=%s", s.baseURL, url.QueryEscape(query))
	results, err := s.collectSeries(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("asurascans: search: %w", err)
	}
	return results, nil
}

// ListPage fetches one page of the full catalog listing.
func (s *AsuraScans) ListPage(ctx context.Context, page int) ([]models.SearchResult, error) {
	listURL := fmt.Sprintf("%s/series?page=%d", s.baseURL, page)
	results, err := s.collectSeries(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("asurascans: list page %d: %w", page, err)
	}
	return results, nil
}

func (s *AsuraScans) collectSeries(ctx context.Context, listURL string) ([]models.SearchResult, error) {
	var results []models.SearchResult
	c := newCollector(ctx)

	c.OnHTML(`a[href^="series/"], a[href^="/series/"]`, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		id := extractSeriesID(link)
		if id == "" {
			return
		}

		imageURL, _ := e.DOM.Find("img").First().Attr("src")

		var title string
		e.DOM.Find("span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if text != "" && !strings.HasPrefix(text, "Chapter") {
				title = text
				return false
			}
			return true
		})
		if title == "" {
			title = titleFromSlug(id)
		}

		results = append(results, models.SearchResult{
			ID:         id,
			Title:      title,
			ImageURL:   imageURL,
			DetailsURL: link,
			Source:     asuraScansName,
		})
	})

	if err := visit(c, listURL); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *AsuraScans) GetDetails(ctx context.Context, mangaID string) (*models.Details, error) {
	detailsURL := fmt.Sprintf("%s/series/%s", s.baseURL, url.PathEscape(mangaID))

	d := &models.Details{
		ID:         mangaID,
		Source:     asuraScansName,
		DetailsURL: detailsURL,
	}
	c := newCollector(ctx)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		d.Title = strings.TrimSpace(e.DOM.Find("h1.entry-title, h1").First().Text())
		if d.Title == "" {
			d.Title = titleFromSlug(mangaID)
		}
		d.ImageURL, _ = e.DOM.Find("div.thumb img").First().Attr("src")
		d.Description = strings.TrimSpace(e.DOM.Find("div.entry-content").First().Text())

		e.DOM.Find("div.imptdt").Each(func(_ int, sel *goquery.Selection) {
			switch {
			case sel.Find("i.fa-user").Length() > 0:
				d.Author = strings.TrimSpace(sel.Find("a").First().Text())
			case sel.Find("i.fa-book").Length() > 0:
				d.Status = strings.TrimSpace(strings.ReplaceAll(sel.Text(), "Status", ""))
			}
		})

		e.DOM.Find(`a[href*="/chapter/"]`).Each(func(_ int, sel *goquery.Selection) {
			title := strings.TrimSpace(sel.Text())
			href, _ := sel.Attr("href")
			if title == "" || href == "" {
				return
			}
			d.Chapters = append(d.Chapters, models.Chapter{
				Title: title,
				URL:   e.Request.AbsoluteURL(href),
			})
		})
	})

	if err := visit(c, detailsURL); err != nil {
		return nil, fmt.Errorf("asurascans: details: %w", err)
	}
	d.LastUpdated = time.Now()
	return d, nil
}

func (s *AsuraScans) GetChapterImages(ctx context.Context, chapterURL string) ([]string, error) {
	var images []string
	c := newCollector(ctx)

	c.OnHTML("img", func(e *colly.HTMLElement) {
		src := e.Attr("data-src")
		if src == "" {
			src = e.Attr("src")
		}
		abs := e.Request.AbsoluteURL(src)
		if isPageImage(abs) {
			images = append(images, abs)
		}
	})

	if err := visit(c, chapterURL); err != nil {
		return nil, fmt.Errorf("asurascans: chapter images: %w", err)
	}
	return images, nil
}
