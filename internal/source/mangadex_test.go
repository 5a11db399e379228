package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newMangaDexServer(t *testing.T) *MangaDex {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("title") == "" {
			http.Error(w, "missing title", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{
			"data": [{
				"id": "abc-123",
				"attributes": {
					"title": {"en": "Vagabond"},
					"description": {"en": "A swordsman's journey."},
					"status": "completed",
					"year": 1998,
					"tags": [{"attributes": {"name": {"en": "Action"}}}]
				},
				"relationships": [
					{"id": "a1", "type": "author", "attributes": {"name": "Takehiko Inoue"}},
					{"id": "c1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
				]
			}],
			"total": 1
		}`))
	})
	mux.HandleFunc("/manga/abc-123", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {
				"id": "abc-123",
				"attributes": {
					"title": {"en": "Vagabond"},
					"description": {"en": "A swordsman's journey."},
					"status": "completed"
				},
				"relationships": [
					{"id": "a1", "type": "author", "attributes": {"name": "Takehiko Inoue"}},
					{"id": "c1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
				]
			}
		}`))
	})
	mux.HandleFunc("/chapter", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "ch-1", "attributes": {"chapter": "1", "title": "The Duel"}},
				{"id": "ch-2", "attributes": {"chapter": "2", "title": ""}}
			]
		}`))
	})
	mux.HandleFunc("/at-home/server/ch-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"baseUrl": "https://node.example.net",
			"chapter": {"hash": "h4sh", "data": ["001.png", "002.png"]}
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewMangaDex(nil)
	s.apiBase = srv.URL
	s.webBase = "https://mangadex.org"
	return s
}

func TestMangaDex_Search(t *testing.T) {
	s := newMangaDexServer(t)

	results, err := s.Search(context.Background(), "vagabond")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}

	r := results[0]
	if r.Title != "Vagabond" {
		t.Errorf("Title = %s, want Vagabond", r.Title)
	}
	if r.ImageURL != "https://uploads.mangadex.org/covers/abc-123/cover.jpg" {
		t.Errorf("ImageURL = %s", r.ImageURL)
	}
	if r.DetailsURL != "https://mangadex.org/title/abc-123" {
		t.Errorf("DetailsURL = %s", r.DetailsURL)
	}
	if len(r.Authors) != 1 || r.Authors[0] != "Takehiko Inoue" {
		t.Errorf("Authors = %v", r.Authors)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "Action" {
		t.Errorf("Tags = %v", r.Tags)
	}
	if r.Year != 1998 {
		t.Errorf("Year = %d, want 1998", r.Year)
	}
}

func TestMangaDex_GetDetails(t *testing.T) {
	s := newMangaDexServer(t)

	d, err := s.GetDetails(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}
	if d.Title != "Vagabond" {
		t.Errorf("Title = %s, want Vagabond", d.Title)
	}
	if d.Author != "Takehiko Inoue" {
		t.Errorf("Author = %s", d.Author)
	}
	if len(d.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(d.Chapters))
	}
	if d.Chapters[0].Title != "Chapter 1: The Duel" {
		t.Errorf("Chapters[0].Title = %s", d.Chapters[0].Title)
	}
	if d.Chapters[1].Title != "Chapter 2" {
		t.Errorf("Chapters[1].Title = %s", d.Chapters[1].Title)
	}
	if !strings.HasSuffix(d.Chapters[0].URL, "/chapter/ch-1") {
		t.Errorf("Chapters[0].URL = %s", d.Chapters[0].URL)
	}
}

func TestMangaDex_GetChapterImages(t *testing.T) {
	s := newMangaDexServer(t)

	images, err := s.GetChapterImages(context.Background(), "https://mangadex.org/chapter/ch-1")
	if err != nil {
		t.Fatalf("GetChapterImages() error = %v", err)
	}
	want := []string{
		"https://node.example.net/data/h4sh/001.png",
		"https://node.example.net/data/h4sh/002.png",
	}
	if len(images) != 2 || images[0] != want[0] || images[1] != want[1] {
		t.Errorf("images = %v, want %v", images, want)
	}
}

func TestMangaDex_GetChapterImages_BadURL(t *testing.T) {
	s := NewMangaDex(nil)
	if _, err := s.GetChapterImages(context.Background(), "https://mangadex.org/title/abc"); err == nil {
		t.Error("expected error for non-chapter URL")
	}
}
