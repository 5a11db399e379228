package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const weebSearchPage = `<!DOCTYPE html>
<html><body>
<section class="w-full">
  <a href="/series/01J7ABC/fullmetal-alchemist">
    <img src="https://cdn.example.com/covers/fma.jpg" alt="Fullmetal Alchemist cover">
    <div class="text-ellipsis">Fullmetal Alchemist</div>
  </a>
  <div class="opacity-70"><strong>Status:</strong> <span>Complete</span></div>
</section>
<section class="w-full">
  <a href="/series/01J7DEF/berserk">
    <img src="https://cdn.example.com/covers/berserk.jpg" alt="Berserk cover">
  </a>
  <div class="opacity-70"><strong>Status:</strong> <span>Ongoing</span></div>
</section>
<section class="w-full"><p>no card here</p></section>
</body></html>`

const weebDetailsPage = `<!DOCTYPE html>
<html><body>
<h1>Berserk</h1>
<div class="series-cover"><img src="https://cdn.example.com/covers/berserk.jpg"></div>
<div class="description">A dark fantasy.</div>
<div class="author">Kentaro Miura</div>
<a href="/chapters/chapter/2">Chapter 2</a>
<a href="/chapters/chapter/1">Chapter 1</a>
</body></html>`

const weebChapterPage = `<!DOCTYPE html>
<html><body>
<img src="https://cdn.example.com/site-logo.png">
<img src="https://cdn.example.com/manga/0001-002.png">
<img data-src="https://cdn.example.com/manga/0001-001.png" src="">
</body></html>`

func newWeebCentralServer(t *testing.T) *WeebCentral {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(weebSearchPage))
	})
	mux.HandleFunc("/series/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(weebDetailsPage))
	})
	mux.HandleFunc("/chapters/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(weebChapterPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewWeebCentral(nil)
	s.baseURL = srv.URL
	return s
}

func TestWeebCentral_Search(t *testing.T) {
	s := newWeebCentralServer(t)

	results, err := s.Search(context.Background(), "berserk")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	first := results[0]
	if first.ID != "01J7ABC" {
		t.Errorf("ID = %s, want 01J7ABC", first.ID)
	}
	if first.Title != "Fullmetal Alchemist" {
		t.Errorf("Title = %s, want Fullmetal Alchemist", first.Title)
	}
	if first.Source != "weebcentral" {
		t.Errorf("Source = %s, want weebcentral", first.Source)
	}
	if first.DetailsURL == "" {
		t.Error("DetailsURL is empty")
	}
	if first.ImageURL != "https://cdn.example.com/covers/fma.jpg" {
		t.Errorf("ImageURL = %s", first.ImageURL)
	}
}

func TestWeebCentral_GetDetails(t *testing.T) {
	s := newWeebCentralServer(t)

	d, err := s.GetDetails(context.Background(), "01J7DEF")
	if err != nil {
		t.Fatalf("GetDetails() error = %v", err)
	}
	if d.Title != "Berserk" {
		t.Errorf("Title = %s, want Berserk", d.Title)
	}
	if d.Author != "Kentaro Miura" {
		t.Errorf("Author = %s, want Kentaro Miura", d.Author)
	}
	if d.Description != "A dark fantasy." {
		t.Errorf("Description = %s", d.Description)
	}
	if len(d.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(d.Chapters))
	}
	// Source-declared order is preserved.
	if d.Chapters[0].Title != "Chapter 2" {
		t.Errorf("Chapters[0].Title = %s, want Chapter 2", d.Chapters[0].Title)
	}
}

func TestWeebCentral_GetChapterImages(t *testing.T) {
	s := newWeebCentralServer(t)

	images, err := s.GetChapterImages(context.Background(), s.baseURL+"/chapters/chapter/1")
	if err != nil {
		t.Fatalf("GetChapterImages() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("len(images) = %d, want 2 (logo filtered)", len(images))
	}
	// data-src wins over src when present.
	if images[1] != "https://cdn.example.com/manga/0001-001.png" {
		t.Errorf("images[1] = %s", images[1])
	}
}

func TestWeebCentral_SearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	s := NewWeebCentral(nil)
	s.baseURL = srv.URL

	if _, err := s.Search(context.Background(), "x"); err == nil {
		t.Error("Search() error = nil, want transport error")
	}
}
