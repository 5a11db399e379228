package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/ratelimit"
	"github.com/reiwa-dev/mangarelay/internal/repository"
	"github.com/reiwa-dev/mangarelay/internal/source"
)

// Priority bands per job type. Lower numbers run sooner; each job gets
// a random priority inside its band so same-type jobs interleave.
const (
	searchPriorityMax  = 10
	detailsPriorityMax = 8
	imagesPriorityMax  = 6
)

// PlannerConfig tunes daily preload planning.
type PlannerConfig struct {
	RecentQueryWindow     time.Duration
	MaxSearchJobs         int
	PopularTermsPerSource int
	MaxDetailJobs         int
	MaxChapterJobs        int
	ChaptersPerManga      int
	PaginationPages       int
	MaxPendingJobs        int
}

func (c PlannerConfig) withDefaults() PlannerConfig {
	if c.RecentQueryWindow <= 0 {
		c.RecentQueryWindow = 7 * 24 * time.Hour
	}
	if c.MaxSearchJobs <= 0 {
		c.MaxSearchJobs = 20
	}
	if c.PopularTermsPerSource <= 0 {
		c.PopularTermsPerSource = 5
	}
	if c.MaxDetailJobs <= 0 {
		c.MaxDetailJobs = 20
	}
	if c.MaxChapterJobs <= 0 {
		c.MaxChapterJobs = 10
	}
	if c.ChaptersPerManga <= 0 {
		c.ChaptersPerManga = 2
	}
	if c.PaginationPages <= 0 {
		c.PaginationPages = 5
	}
	if c.MaxPendingJobs <= 0 {
		c.MaxPendingJobs = 200
	}
	return c
}

// PlanResult summarizes one planning cycle.
type PlanResult struct {
	SearchJobs     int  `json:"search_jobs"`
	DetailJobs     int  `json:"detail_jobs"`
	ChapterJobs    int  `json:"chapter_jobs"`
	PaginationJobs int  `json:"pagination_jobs"`
	Skipped        bool `json:"skipped"`
}

// Total returns the number of jobs created.
func (r PlanResult) Total() int {
	return r.SearchJobs + r.DetailJobs + r.ChapterJobs + r.PaginationJobs
}

// PlannerService builds the daily preload job batch from cache demand
// signals: recent search queries and manga popularity.
type PlannerService struct {
	repos    *repository.Repositories
	registry *source.Registry
	governor *ratelimit.Governor
	cfg      PlannerConfig
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPlannerService creates the planner.
func NewPlannerService(
	repos *repository.Repositories,
	registry *source.Registry,
	governor *ratelimit.Governor,
	cfg PlannerConfig,
	logger *slog.Logger,
) *PlannerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlannerService{
		repos:    repos,
		registry: registry,
		governor: governor,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "planner"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PlanDaily refreshes robots policies and turns demand signals into
// pending preload jobs. Planning is skipped while the queue backlog
// exceeds the configured ceiling.
func (p *PlannerService) PlanDaily(ctx context.Context) (*PlanResult, error) {
	result := &PlanResult{}

	counts, err := p.repos.PreloadJob.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count preload jobs: %w", err)
	}
	if pending := counts[models.PreloadStatusPending]; pending >= p.cfg.MaxPendingJobs {
		p.logger.Warn("skipping preload planning, backlog too large", "pending", pending)
		result.Skipped = true
		return result, nil
	}

	p.refreshRobotsPolicies(ctx)

	now := time.Now()
	var jobs []*models.PreloadJob

	searchJobs, err := p.planSearches(ctx, now)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, searchJobs...)
	result.SearchJobs = len(searchJobs)

	detailJobs, chapterJobs, err := p.planPopular(ctx, now)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, detailJobs...)
	jobs = append(jobs, chapterJobs...)
	result.DetailJobs = len(detailJobs)
	result.ChapterJobs = len(chapterJobs)

	paginationJobs := p.planPagination(now)
	jobs = append(jobs, paginationJobs...)
	result.PaginationJobs = len(paginationJobs)

	if len(jobs) > 0 {
		if err := p.repos.PreloadJob.CreateBatch(ctx, jobs); err != nil {
			return nil, fmt.Errorf("create preload jobs: %w", err)
		}
	}

	p.logger.Info("preload plan created",
		"search_jobs", result.SearchJobs,
		"detail_jobs", result.DetailJobs,
		"chapter_jobs", result.ChapterJobs,
		"pagination_jobs", result.PaginationJobs,
	)
	return result, nil
}

// refreshRobotsPolicies re-fetches robots.txt for every source domain.
func (p *PlannerService) refreshRobotsPolicies(ctx context.Context) {
	seen := make(map[string]bool)
	for _, src := range p.registry.All() {
		domain := src.Domain()
		if seen[domain] {
			continue
		}
		seen[domain] = true
		p.governor.RefreshPolicy(ctx, domain)
	}
}

// popularSearchTerms is the built-in rotation sampled into each plan so
// well-known titles stay warm even without live demand.
var popularSearchTerms = []string{
	"one piece", "naruto", "bleach", "jujutsu kaisen", "chainsaw man",
	"solo leveling", "berserk", "attack on titan", "demon slayer",
	"my hero academia", "spy x family", "dragon ball", "tokyo ghoul",
	"hunter x hunter", "vinland saga", "blue lock", "dandadan",
	"kagurabachi", "boruto", "black clover",
}

// planSearches turns recent live queries into refresh jobs, then fills
// the remaining capacity with sampled popular terms per source. Recent
// demand always wins the cap.
func (p *PlannerService) planSearches(ctx context.Context, now time.Time) ([]*models.PreloadJob, error) {
	recent, err := p.repos.SearchCache.RecentQueries(ctx, now.Add(-p.cfg.RecentQueryWindow), p.cfg.MaxSearchJobs)
	if err != nil {
		return nil, fmt.Errorf("recent queries: %w", err)
	}

	var jobs []*models.PreloadJob
	planned := make(map[string]bool)
	for _, q := range recent {
		if len(jobs) >= p.cfg.MaxSearchJobs {
			return jobs, nil
		}
		key := q.Source + "|" + models.NormalizeQuery(q.Query)
		if planned[key] {
			continue
		}
		planned[key] = true
		jobs = append(jobs, p.newJob(models.PreloadJobSearch, q.Source, q.Query, searchPriorityMax, now))
	}

	terms := p.shuffledPopularTerms()
	for _, src := range p.registry.All() {
		taken := 0
		for _, term := range terms {
			if len(jobs) >= p.cfg.MaxSearchJobs {
				return jobs, nil
			}
			if taken >= p.cfg.PopularTermsPerSource {
				break
			}
			key := src.Name() + "|" + models.NormalizeQuery(term)
			if planned[key] {
				continue
			}
			planned[key] = true
			taken++
			jobs = append(jobs, p.newJob(models.PreloadJobSearch, src.Name(), term, searchPriorityMax, now))
		}
	}
	return jobs, nil
}

func (p *PlannerService) shuffledPopularTerms() []string {
	terms := make([]string, len(popularSearchTerms))
	copy(terms, popularSearchTerms)
	p.rngMu.Lock()
	p.rng.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })
	p.rngMu.Unlock()
	return terms
}

func (p *PlannerService) planPopular(ctx context.Context, now time.Time) (details, chapters []*models.PreloadJob, err error) {
	popular, err := p.repos.MangaCache.TopPopular(ctx, p.cfg.MaxDetailJobs)
	if err != nil {
		return nil, nil, fmt.Errorf("popular manga: %w", err)
	}

	for _, m := range popular {
		if _, srcErr := p.registry.Get(m.Source); srcErr != nil {
			continue
		}
		details = append(details, p.newJob(models.PreloadJobMangaDetails, m.Source, m.ID, detailsPriorityMax, now))

		if len(chapters) >= p.cfg.MaxChapterJobs {
			continue
		}
		for i, ch := range m.Chapters {
			if i >= p.cfg.ChaptersPerManga || len(chapters) >= p.cfg.MaxChapterJobs {
				break
			}
			if ch.URL == "" {
				continue
			}
			chapters = append(chapters, p.newJob(models.PreloadJobChapterImages, m.Source, ch.URL, imagesPriorityMax, now))
		}
	}
	return details, chapters, nil
}

func (p *PlannerService) planPagination(now time.Time) []*models.PreloadJob {
	var jobs []*models.PreloadJob
	for _, src := range p.registry.All() {
		if _, ok := src.(source.Paginator); !ok {
			continue
		}
		target := strconv.Itoa(p.cfg.PaginationPages)
		jobs = append(jobs, p.newJob(models.PreloadJobFullPagination, src.Name(), target, searchPriorityMax, now))
	}
	return jobs
}

func (p *PlannerService) newJob(jobType models.PreloadJobType, src, target string, priorityMax int, now time.Time) *models.PreloadJob {
	return &models.PreloadJob{
		ID:          ulid.Make().String(),
		Type:        jobType,
		Source:      src,
		Target:      target,
		Status:      models.PreloadStatusPending,
		Priority:    p.randPriority(priorityMax),
		ScheduledAt: now,
		CreatedAt:   now,
	}
}

func (p *PlannerService) randPriority(max int) int {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return 1 + p.rng.Intn(max)
}

// NextPlanTime picks the next planning slot: a random moment between
// 02:00 and 06:00 on the following day.
func (p *PlannerService) NextPlanTime(now time.Time) time.Time {
	p.rngMu.Lock()
	offset := time.Duration(p.rng.Int63n(int64(4 * time.Hour)))
	p.rngMu.Unlock()

	next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location()).Add(offset)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
