package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// ErrBrowserMissing is returned when no Chromium binary can be found.
var ErrBrowserMissing = errors.New("rod browser dependency not found")

// metaSelectors lists, per field, the tags tried in order.
var metaSelectors = map[string][]string{
	"title":       {`meta[property="og:title"]`, `meta[name="twitter:title"]`},
	"description": {`meta[name="description"]`, `meta[property="og:description"]`},
	"image":       {`meta[property="og:image"]`, `meta[name="twitter:image"]`},
	"author":      {`meta[name="author"]`, `meta[property="article:author"]`},
}

// RodScraper implements Scraper with a headless browser launched per call.
type RodScraper struct {
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewRodScraper creates a scraper. timeout bounds each page load.
func NewRodScraper(logger logrus.FieldLogger, timeout time.Duration) *RodScraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodScraper{
		log:     logger.WithField("component", "scraper"),
		timeout: timeout,
	}
}

// ScrapeMetadata loads url and reads its title and meta tags.
func (s *RodScraper) ScrapeMetadata(ctx context.Context, url string) (meta Metadata, err error) {
	log := s.log.WithField("url", url)
	log.Info("Attempting to scrape metadata")

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return Metadata{}, ErrBrowserMissing
	}
	controlURL, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return Metadata{}, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return Metadata{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return Metadata{}, fmt.Errorf("failed to create page: %w", err)
	}
	defer closeLogged(log, "page", page)

	pageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Scraping timed out")
			return Metadata{}, fmt.Errorf("scraping timed out for %s: %w", url, pageCtx.Err())
		}
		return Metadata{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	meta.Title = firstMeta(page, metaSelectors["title"])
	if meta.Title == "" {
		if el, err := page.Element("title"); err == nil {
			if text, err := el.Text(); err == nil {
				meta.Title = strings.TrimSpace(text)
			}
		}
	}
	meta.Description = firstMeta(page, metaSelectors["description"])
	meta.Image = firstMeta(page, metaSelectors["image"])
	meta.Author = firstMeta(page, metaSelectors["author"])

	log.WithFields(logrus.Fields{
		"title":     meta.Title,
		"has_image": meta.Image != "",
	}).Info("Metadata scraping completed")
	return meta, nil
}

// closeLogged closes c and logs a failure instead of returning it.
func closeLogged(log logrus.FieldLogger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Errorf("Error closing rod %s", what)
		return
	}
	log.Debugf("Rod %s closed", what)
}

// firstMeta returns the first non-empty content attribute among selectors.
func firstMeta(page *rod.Page, selectors []string) string {
	for _, selector := range selectors {
		has, el, err := page.Has(selector)
		if err != nil || !has {
			continue
		}
		content, err := el.Attribute("content")
		if err != nil || content == nil {
			continue
		}
		if v := strings.TrimSpace(*content); v != "" {
			return v
		}
	}
	return ""
}
