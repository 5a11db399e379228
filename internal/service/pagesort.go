package service

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
)

var (
	pagePairPattern = regexp.MustCompile(`(\d+)-(\d+)`)
	pageWordPattern = regexp.MustCompile(`(?i)page[_-]?(\d+)`)
	pageFilePattern = regexp.MustCompile(`(?i)(\d+)\.(?:jpe?g|png|webp)`)
)

// pageIndex extracts the page number from an image URL. URLs that
// match no known pattern sort to the front with index 0.
func pageIndex(imageURL string) int {
	name := imageURL
	if u, err := url.Parse(imageURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}

	if m := pagePairPattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return n
		}
	}
	if m := pageWordPattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := pageFilePattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// SortPageImages orders chapter images by their extracted page index.
// The sort is stable so unmatched URLs keep their fetched order.
func SortPageImages(images []string) []string {
	out := make([]string, len(images))
	copy(out, images)
	sort.SliceStable(out, func(i, j int) bool {
		return pageIndex(out[i]) < pageIndex(out[j])
	})
	return out
}
