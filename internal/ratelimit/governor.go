// Package ratelimit paces outbound scraping per source. Delays combine
// the source's configured base delay with the crawl-delay advertised in
// the source's robots.txt, plus jitter so request timing never falls
// into a fixed cadence.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/reiwa-dev/mangarelay/internal/models"
	"github.com/reiwa-dev/mangarelay/internal/repository"
)

const (
	// DefaultCrawlDelay applies when robots.txt is missing or silent.
	DefaultCrawlDelay = 1 * time.Second
	// MinCrawlDelay is the floor under any robots.txt value.
	MinCrawlDelay = 500 * time.Millisecond
	// PolicyRefreshTTL is how long a fetched robots policy stays valid.
	PolicyRefreshTTL = 24 * time.Hour

	robotsFetchTimeout = 10 * time.Second
	userAgent          = "MangaRelayBot/1.0"
)

// Governor computes per-source request delays. It never fails: any
// robots.txt problem degrades to the default crawl delay.
type Governor struct {
	repo   repository.RobotsPolicyRepository
	client *http.Client
	logger *slog.Logger
	scheme string

	floor time.Duration

	mu       sync.RWMutex
	policies map[string]*models.RobotsPolicy

	lastMu      sync.Mutex
	lastRequest map[string]time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a governor backed by the given robots policy repository.
func New(repo repository.RobotsPolicyRepository, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		repo:        repo,
		client:      &http.Client{Timeout: robotsFetchTimeout},
		logger:      logger.With("component", "ratelimit"),
		scheme:      "https",
		policies:    make(map[string]*models.RobotsPolicy),
		lastRequest: make(map[string]time.Time),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFloor sets a minimum delay applied under every source's base
// delay, regardless of what robots.txt allows.
func (g *Governor) SetFloor(d time.Duration) {
	g.floor = d
}

// DelayFor returns the inter-request gap for domain: max(floor,
// baseDelay, crawl delay) scaled by a jitter factor drawn uniformly
// from [0.8, 1.2). Wait enforces this gap since the domain's previous
// request.
func (g *Governor) DelayFor(ctx context.Context, domain string, baseDelay time.Duration) time.Duration {
	crawl := g.crawlDelay(ctx, domain)
	d := baseDelay
	if g.floor > d {
		d = g.floor
	}
	if crawl > d {
		d = crawl
	}
	return time.Duration(float64(d) * g.jitter())
}

// Wait blocks until the domain's inter-request gap has elapsed since
// the previous request to that domain, returning early if ctx is
// cancelled. Concurrent callers are serialized per domain: each one
// reserves the next send slot before sleeping, so two racing requests
// to one source still honor the gap between them.
func (g *Governor) Wait(ctx context.Context, domain string, baseDelay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gap := g.DelayFor(ctx, domain, baseDelay)

	g.lastMu.Lock()
	slot := g.lastRequest[domain].Add(gap)
	if now := time.Now(); slot.Before(now) {
		slot = now
	}
	g.lastRequest[domain] = slot
	g.lastMu.Unlock()

	timer := time.NewTimer(time.Until(slot))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CrawlDelay exposes the effective crawl delay for a domain.
func (g *Governor) CrawlDelay(ctx context.Context, domain string) time.Duration {
	return g.crawlDelay(ctx, domain)
}

// RefreshPolicy re-fetches robots.txt for domain regardless of TTL.
func (g *Governor) RefreshPolicy(ctx context.Context, domain string) *models.RobotsPolicy {
	policy := g.fetchPolicy(ctx, domain)
	g.storePolicy(ctx, policy)
	return policy
}

func (g *Governor) jitter() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return 0.8 + g.rng.Float64()*0.4
}

func (g *Governor) crawlDelay(ctx context.Context, domain string) time.Duration {
	now := time.Now()

	g.mu.RLock()
	policy, ok := g.policies[domain]
	g.mu.RUnlock()
	if ok && now.Sub(policy.FetchedAt) < PolicyRefreshTTL {
		return secondsToDuration(policy.CrawlDelay)
	}

	// Fall back to the persisted policy before hitting the network.
	if g.repo != nil {
		stored, err := g.repo.Get(ctx, domain)
		if err != nil {
			g.logger.Warn("failed to load robots policy", "domain", domain, "error", err)
		} else if stored != nil && now.Sub(stored.FetchedAt) < PolicyRefreshTTL {
			g.mu.Lock()
			g.policies[domain] = stored
			g.mu.Unlock()
			return secondsToDuration(stored.CrawlDelay)
		}
	}

	policy = g.fetchPolicy(ctx, domain)
	g.storePolicy(ctx, policy)
	return secondsToDuration(policy.CrawlDelay)
}

// fetchPolicy retrieves and parses robots.txt. Every failure path
// yields the default policy so callers always get a usable delay.
func (g *Governor) fetchPolicy(ctx context.Context, domain string) *models.RobotsPolicy {
	policy := &models.RobotsPolicy{
		Domain:     domain,
		CrawlDelay: DefaultCrawlDelay.Seconds(),
		FetchedAt:  time.Now(),
	}

	url := fmt.Sprintf("%s://%s/robots.txt", g.scheme, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		g.logger.Warn("failed to build robots request", "domain", domain, "error", err)
		return policy
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("robots fetch failed", "domain", domain, "error", err)
		return policy
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		g.logger.Warn("robots read failed", "domain", domain, "error", err)
		return policy
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.logger.Warn("robots parse failed", "domain", domain, "error", err)
		return policy
	}

	group := data.FindGroup(userAgent)
	if group != nil && group.CrawlDelay > 0 {
		delay := group.CrawlDelay
		if delay < MinCrawlDelay {
			delay = MinCrawlDelay
		}
		policy.CrawlDelay = delay.Seconds()
	}

	g.logger.Debug("robots policy refreshed",
		"domain", domain,
		"crawl_delay", policy.CrawlDelay,
	)
	return policy
}

func (g *Governor) storePolicy(ctx context.Context, policy *models.RobotsPolicy) {
	g.mu.Lock()
	g.policies[policy.Domain] = policy
	g.mu.Unlock()

	if g.repo == nil {
		return
	}
	if err := g.repo.Upsert(ctx, policy); err != nil {
		g.logger.Warn("failed to persist robots policy", "domain", policy.Domain, "error", err)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
