// Package scraper reads descriptive metadata from live pages. It backs the
// explicit "enrich" action only; link ingestion never calls it.
package scraper

import "context"

// Metadata is what a page says about itself.
type Metadata struct {
	Title       string
	Description string
	Image       string
	Author      string
}

// Scraper fetches metadata for a URL.
type Scraper interface {
	ScrapeMetadata(ctx context.Context, url string) (Metadata, error)
}
