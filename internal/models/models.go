// Package models defines the domain models for the application.
package models

import (
	"strings"
	"time"
	"unicode"
)

// ========================================
// Search / Manga
// ========================================

// SearchResult is one manga entry returned by a source search.
type SearchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status,omitempty"`
	ImageURL   string   `json:"image,omitempty"`
	DetailsURL string   `json:"details_url"`
	Source     string   `json:"source"`
	Authors    []string `json:"authors,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Year       int      `json:"year,omitempty"`
	Cached     bool     `json:"cached"`
}

// Identity returns the deduplication key for a result: the details URL
// when present, otherwise source+id.
func (r SearchResult) Identity() string {
	if r.DetailsURL != "" {
		return r.DetailsURL
	}
	return r.Source + ":" + r.ID
}

// Chapter is one chapter reference in source-declared order.
type Chapter struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Details is the full metadata record for one manga from one source.
type Details struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status,omitempty"`
	ImageURL    string    `json:"image,omitempty"`
	DetailsURL  string    `json:"url"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Type        string    `json:"type,omitempty"`
	Released    string    `json:"released,omitempty"`
	Adult       bool      `json:"adult,omitempty"`
	Chapters    []Chapter `json:"chapters"`
	Cached      bool      `json:"cached"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// NormalizeQuery converts a search query to its canonical cache-key form:
// lowercase, letters and digits only, single-space separated.
func NormalizeQuery(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ========================================
// Preload Jobs
// ========================================

// PreloadJobType defines what a preload job fetches.
type PreloadJobType string

const (
	PreloadJobSearch        PreloadJobType = "search"
	PreloadJobMangaDetails  PreloadJobType = "manga_details"
	PreloadJobChapterImages PreloadJobType = "chapter_images"
	// PreloadJobFullPagination walks a source's full catalog listing.
	// Target carries the page limit as a decimal string.
	PreloadJobFullPagination PreloadJobType = "full_pagination"
)

// PreloadJobStatus is the lifecycle state of a preload job.
type PreloadJobStatus string

const (
	PreloadStatusPending   PreloadJobStatus = "pending"
	PreloadStatusRunning   PreloadJobStatus = "running"
	PreloadStatusCompleted PreloadJobStatus = "completed"
	PreloadStatusFailed    PreloadJobStatus = "failed"
)

// PreloadJob is one unit of background cache-warming work.
// Target is a query string, manga id, chapter URL or page limit
// depending on Type.
type PreloadJob struct {
	ID           string           `json:"id"`
	Type         PreloadJobType   `json:"type"`
	Source       string           `json:"source"`
	Target       string           `json:"target"`
	Status       PreloadJobStatus `json:"status"`
	Priority     int              `json:"priority"` // lower runs sooner
	ErrorMessage string           `json:"error_message,omitempty"`
	ScheduledAt  time.Time        `json:"scheduled_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// PreloadStats aggregates job outcomes per (source, job type, day).
type PreloadStats struct {
	Source          string         `json:"source"`
	JobType         PreloadJobType `json:"job_type"`
	Date            string         `json:"date"` // YYYY-MM-DD
	TotalJobs       int            `json:"total_jobs"`
	SuccessfulJobs  int            `json:"successful_jobs"`
	FailedJobs      int            `json:"failed_jobs"`
	TotalErrors     int            `json:"total_errors"`
	AvgResponseTime float64        `json:"avg_response_time"` // seconds
}

// SuccessRate returns the percentage of successful jobs.
func (s PreloadStats) SuccessRate() float64 {
	if s.TotalJobs == 0 {
		return 0
	}
	return float64(s.SuccessfulJobs) / float64(s.TotalJobs) * 100
}

// ========================================
// Robots policy
// ========================================

// RobotsPolicy is the cached crawl policy for one source domain.
type RobotsPolicy struct {
	Domain     string    `json:"domain"`
	CrawlDelay float64   `json:"crawl_delay"` // seconds
	FetchedAt  time.Time `json:"fetched_at"`
}
