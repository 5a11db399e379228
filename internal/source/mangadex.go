package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/reiwa-dev/mangarelay/internal/models"
)

const (
	mangaDexName    = "mangadex"
	mangaDexAPIBase = "https://api.mangadex.org"
	mangaDexWebBase = "https://mangadex.org"
)

var mangaDexChapterPattern = regexp.MustCompile(`/chapter/([0-9a-zA-Z-]+)`)

// MangaDex talks to the public MangaDex API. Unlike the HTML sources
// this adapter never parses pages.
type MangaDex struct {
	apiBase string
	webBase string
	client  *http.Client
	logger  *slog.Logger
}

// NewMangaDex creates the mangadex adapter.
func NewMangaDex(logger *slog.Logger) *MangaDex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MangaDex{
		apiBase: mangaDexAPIBase,
		webBase: mangaDexWebBase,
		client:  &http.Client{Timeout: 12 * time.Second},
		logger:  logger.With("source", mangaDexName),
	}
}

func (s *MangaDex) Name() string { return mangaDexName }

func (s *MangaDex) Domain() string {
	return hostOf(s.apiBase)
}

func (s *MangaDex) BaseDelay() time.Duration { return 500 * time.Millisecond }

type mdManga struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       map[string]string `json:"title"`
		Description map[string]string `json:"description"`
		Status      string            `json:"status"`
		Year        int               `json:"year"`
		Tags        []struct {
			Attributes struct {
				Name map[string]string `json:"name"`
			} `json:"attributes"`
		} `json:"tags"`
	} `json:"attributes"`
	Relationships []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Name     string `json:"name"`
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"relationships"`
}

type mdListResponse struct {
	Data  []mdManga `json:"data"`
	Total int       `json:"total"`
}

type mdEntityResponse struct {
	Data mdManga `json:"data"`
}

type mdChapterList struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Chapter string `json:"chapter"`
			Title   string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

type mdAtHome struct {
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash string   `json:"hash"`
		Data []string `json:"data"`
	} `json:"chapter"`
}

func (s *MangaDex) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	q := url.Values{}
	q.Set("title", query)
	q.Set("limit", "10")
	q.Add("availableTranslatedLanguage[]", "en")
	q.Set("order[relevance]", "desc")
	q.Add("includes[]", "author")
	q.Add("includes[]", "cover_art")

	var list mdListResponse
	if err := s.getJSON(ctx, s.apiBase+"/manga?"+q.Encode(), &list); err != nil {
		return nil, fmt.Errorf("mangadex: search: %w", err)
	}

	results := make([]models.SearchResult, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID == "" {
			continue
		}
		r := models.SearchResult{
			ID:         m.ID,
			Title:      pickTitle(m.Attributes.Title),
			Status:     m.Attributes.Status,
			ImageURL:   s.coverURL(m),
			DetailsURL: s.webBase + "/title/" + m.ID,
			Source:     mangaDexName,
			Year:       m.Attributes.Year,
		}
		for _, rel := range m.Relationships {
			if rel.Type == "author" && rel.Attributes.Name != "" {
				r.Authors = append(r.Authors, rel.Attributes.Name)
			}
		}
		for _, tag := range m.Attributes.Tags {
			if name := pickTitle(tag.Attributes.Name); name != "" {
				r.Tags = append(r.Tags, name)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *MangaDex) GetDetails(ctx context.Context, mangaID string) (*models.Details, error) {
	q := url.Values{}
	q.Add("includes[]", "author")
	q.Add("includes[]", "cover_art")

	var entity mdEntityResponse
	if err := s.getJSON(ctx, s.apiBase+"/manga/"+url.PathEscape(mangaID)+"?"+q.Encode(), &entity); err != nil {
		return nil, fmt.Errorf("mangadex: details: %w", err)
	}
	m := entity.Data

	d := &models.Details{
		ID:          mangaID,
		Title:       pickTitle(m.Attributes.Title),
		Status:      m.Attributes.Status,
		ImageURL:    s.coverURL(m),
		DetailsURL:  s.webBase + "/title/" + mangaID,
		Source:      mangaDexName,
		Description: pickTitle(m.Attributes.Description),
		LastUpdated: time.Now(),
	}
	for _, rel := range m.Relationships {
		if rel.Type == "author" && rel.Attributes.Name != "" {
			d.Author = rel.Attributes.Name
			break
		}
	}

	cq := url.Values{}
	cq.Set("manga", mangaID)
	cq.Add("translatedLanguage[]", "en")
	cq.Set("order[chapter]", "asc")
	cq.Set("limit", "100")

	var chapters mdChapterList
	if err := s.getJSON(ctx, s.apiBase+"/chapter?"+cq.Encode(), &chapters); err != nil {
		return nil, fmt.Errorf("mangadex: chapters: %w", err)
	}
	for _, ch := range chapters.Data {
		title := "Chapter " + ch.Attributes.Chapter
		if ch.Attributes.Title != "" {
			title += ": " + ch.Attributes.Title
		}
		d.Chapters = append(d.Chapters, models.Chapter{
			Title: title,
			URL:   s.webBase + "/chapter/" + ch.ID,
		})
	}
	return d, nil
}

// GetChapterImages resolves a chapter page URL through the at-home API
// to the full-quality image list.
func (s *MangaDex) GetChapterImages(ctx context.Context, chapterURL string) ([]string, error) {
	m := mangaDexChapterPattern.FindStringSubmatch(chapterURL)
	if m == nil {
		return nil, fmt.Errorf("mangadex: not a chapter url: %s", chapterURL)
	}
	chapterID := m[1]

	var atHome mdAtHome
	if err := s.getJSON(ctx, s.apiBase+"/at-home/server/"+chapterID, &atHome); err != nil {
		return nil, fmt.Errorf("mangadex: chapter images: %w", err)
	}
	if atHome.BaseURL == "" || atHome.Chapter.Hash == "" {
		return nil, fmt.Errorf("mangadex: incomplete at-home response for chapter %s", chapterID)
	}

	images := make([]string, 0, len(atHome.Chapter.Data))
	for _, file := range atHome.Chapter.Data {
		images = append(images, fmt.Sprintf("%s/data/%s/%s", atHome.BaseURL, atHome.Chapter.Hash, file))
	}
	return images, nil
}

func (s *MangaDex) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (s *MangaDex) coverURL(m mdManga) string {
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			return fmt.Sprintf("https://uploads.mangadex.org/covers/%s/%s", m.ID, rel.Attributes.FileName)
		}
	}
	return ""
}

// pickTitle prefers the English entry, falling back to any available
// localization.
func pickTitle(localized map[string]string) string {
	if v := localized["en"]; v != "" {
		return v
	}
	for _, v := range localized {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
