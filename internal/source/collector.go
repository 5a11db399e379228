package source

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"
)

const userAgent = "MangaRelayBot/1.0"

// newCollector builds a collector with the shared defaults. Requests
// abort once ctx is cancelled.
func newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(20 * time.Second)

	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})

	return c
}

// visit runs one synchronous fetch and surfaces transport errors.
func visit(c *colly.Collector, url string) error {
	var fetchErr error
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return err
	}
	c.Wait()
	return fetchErr
}
