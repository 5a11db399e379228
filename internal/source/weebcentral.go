package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

const (
	weebCentralName    = "weebcentral"
	weebCentralBaseURL = "https://weebcentral.com"
)

var seriesIDPattern = regexp.MustCompile(`/series/([^/]+)`)

// WeebCentral scrapes weebcentral.com.
type WeebCentral struct {
	baseURL string
	logger  *slog.Logger
}

// NewWeebCentral creates the weebcentral adapter.
func NewWeebCentral(logger *slog.Logger) *WeebCentral {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeebCentral{
		baseURL: weebCentralBaseURL,
		logger:  logger.With("source", weebCentralName),
	}
}

func (s *WeebCentral) Name() string { return weebCentralName }

func (s *WeebCentral) Domain() string {
	return hostOf(s.baseURL)
}

func (s *WeebCentral) BaseDelay() time.Duration { return 1 * time.Second }

func (s *WeebCentral) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	searchURL := fmt.Sprintf(
		"%s/search?text=%s&sort=Best+Match&order=Descending&official=Any&anime=Any&adult=Any&display_mode=Full+Display",
		s.baseURL, url.QueryEscape(query))

	var results []models.SearchResult
	c := newCollector(ctx)

	c.OnHTML("section.w-full", func(e *colly.HTMLElement) {
		card := e.DOM.Find(`a[href*="/series/"]`).First()
		if card.Length() == 0 {
			return
		}
		href, _ := card.Attr("href")
		link := e.Request.AbsoluteURL(href)
		id := extractSeriesID(link)
		if id == "" {
			return
		}

		img := card.Find("img").First()
		imageURL, _ := img.Attr("src")

		title := strings.TrimSuffix(strings.TrimSpace(img.AttrOr("alt", "")), " cover")
		if title == "" {
			title = strings.TrimSpace(card.Find("div.text-ellipsis").First().Text())
		}
		if title == "" {
			title = titleFromSlug(id)
		}

		var status string
		e.DOM.Find("div.opacity-70").Each(func(_ int, sel *goquery.Selection) {
			if strings.Contains(sel.Find("strong").Text(), "Status") {
				status = strings.TrimSpace(sel.Find("span").First().Text())
			}
		})

		results = append(results, models.SearchResult{
			ID:         id,
			Title:      title,
			Status:     status,
			ImageURL:   imageURL,
			DetailsURL: link,
			Source:     weebCentralName,
		})
	})

	if err := visit(c, searchURL); err != nil {
		return nil, fmt.Errorf("weebcentral: search: %w", err)
	}
	return results, nil
}

func (s *WeebCentral) GetDetails(ctx context.Context, mangaID string) (*models.Details, error) {
	detailsURL := fmt.Sprintf("%s/series/%s", s.baseURL, url.PathEscape(mangaID))

	d := &models.Details{
		ID:         mangaID,
		Source:     weebCentralName,
		DetailsURL: detailsURL,
	}
	c := newCollector(ctx)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		d.Title = strings.TrimSpace(e.DOM.Find("h1").First().Text())
		if d.Title == "" {
			d.Title = titleFromSlug(mangaID)
		}
		d.ImageURL, _ = e.DOM.Find(".series-cover img, .manga-cover img").First().Attr("src")
		d.Description = strings.TrimSpace(e.DOM.Find(".description, .synopsis").First().Text())
		d.Author = strings.TrimSpace(e.DOM.Find(".author, .creator").First().Text())

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
		return nil, fmt.Errorf("weebcentral: details: %w", err)
	}
	d.LastUpdated = time.Now()
	return d, nil
}

func (s *WeebCentral) GetChapterImages(ctx context.Context, chapterURL string) ([]string, error) {
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
		return nil, fmt.Errorf("weebcentral: chapter images: %w", err)
	}
	return images, nil
}

func extractSeriesID(u string) string {
	m := seriesIDPattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

func titleFromSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var imageExtPattern = regexp.MustCompile(`(?i)\.(jpe?g|png|webp)(\?.*)?$`)

// isPageImage filters chapter page images from site chrome.
func isPageImage(u string) bool {
	if u == "" || !imageExtPattern.MatchString(u) {
		return false
	}
	lower := strings.ToLower(u)
	for _, skip := range []string{"logo", "icon", "avatar", "banner"} {
		if strings.Contains(lower, skip) {
			return false
		}
	}
	return true
}

func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	return u.Host
}
