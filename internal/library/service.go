// Package library holds the user-facing link operations: manual entry,
// read state, edits, deletes, categories and settings.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/domain"
	"linkkeeper/internal/ingest"
	"linkkeeper/internal/scraper"
)

// ErrEnrichDisabled is returned by EnrichLink when no scraper is configured.
var ErrEnrichDisabled = errors.New("page enrichment is disabled")

// LinkRepository is the link storage the library needs.
type LinkRepository interface {
	Insert(ctx context.Context, link domain.Link) (domain.Link, error)
	Get(ctx context.Context, id string) (domain.Link, bool, error)
	ByURL(ctx context.Context, url string) (domain.Link, bool, error)
	Update(ctx context.Context, id string, mutate func(*domain.Link) error) (domain.Link, error)
	Delete(ctx context.Context, id string) error
}

// CategoryRepository is the category storage the library needs.
type CategoryRepository interface {
	Insert(ctx context.Context, c domain.Category) (domain.Category, error)
	Get(ctx context.Context, id string) (domain.Category, bool, error)
	All(ctx context.Context) ([]domain.Category, error)
	Rename(ctx context.Context, id, name string) (domain.Category, error)
	Delete(ctx context.Context, id string) error
}

// SettingsRepository is the settings storage the library needs.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (domain.Setting, bool, error)
	Put(ctx context.Context, key string, value json.RawMessage) (domain.Setting, error)
	All(ctx context.Context) ([]domain.Setting, error)
	Delete(ctx context.Context, key string) error
}

// Builder builds links from raw input.
type Builder interface {
	BuildLink(in ingest.Input) (domain.Link, error)
}

// Edit is a partial update of a link. Nil fields are left unchanged.
// An empty Category string clears the category.
type Edit struct {
	Title       *string
	Description *string
	Thumbnail   *string
	Category    *string
	Tags        *[]string
	Author      *string
	PublishDate *string
	Duration    *string
}

// Service implements the library operations on injected repositories.
type Service struct {
	links      LinkRepository
	categories CategoryRepository
	settings   SettingsRepository
	builder    Builder
	scraper    scraper.Scraper
	log        logrus.FieldLogger
	clock      func() time.Time
}

// NewService creates a library Service.
func NewService(links LinkRepository, categories CategoryRepository, settings SettingsRepository, builder Builder, logger logrus.FieldLogger) *Service {
	return &Service{
		links:      links,
		categories: categories,
		settings:   settings,
		builder:    builder,
		log:        logger.WithField("component", "library"),
		clock:      time.Now,
	}
}

// AddLink validates and saves a manually entered link. Invalid URLs fail
// with apperr.ErrInvalidURL and already saved URLs with
// apperr.ErrConstraintViolation.
func (s *Service) AddLink(ctx context.Context, rawURL, title, note string) (domain.Link, error) {
	link, err := s.builder.BuildLink(ingest.Input{
		URL:        rawURL,
		Title:      title,
		Note:       note,
		Provenance: domain.ProvenanceManual,
	})
	if err != nil {
		return domain.Link{}, err
	}
	saved, err := s.links.Insert(ctx, link)
	if errors.Is(err, apperr.ErrConstraintViolation) {
		return domain.Link{}, s.alreadySaved(ctx, link.URL, err)
	}
	if err != nil {
		s.log.WithError(err).WithField("url", link.URL).Error("Failed to save link")
		return domain.Link{}, err
	}
	return saved, nil
}

// alreadySaved names the link that owns rawURL in the constraint error.
func (s *Service) alreadySaved(ctx context.Context, rawURL string, cause error) error {
	existing, found, err := s.links.ByURL(ctx, rawURL)
	if err != nil || !found {
		return cause
	}
	return fmt.Errorf("%w: already saved as %s", cause, existing.ID)
}

// GetLink returns a link or apperr.ErrNotFound.
func (s *Service) GetLink(ctx context.Context, id string) (domain.Link, error) {
	link, found, err := s.links.Get(ctx, id)
	if err != nil {
		return domain.Link{}, err
	}
	if !found {
		return domain.Link{}, fmt.Errorf("link %s: %w", id, apperr.ErrNotFound)
	}
	return link, nil
}

// MarkRead flags the link as read and stamps ReadAt.
func (s *Service) MarkRead(ctx context.Context, id string) (domain.Link, error) {
	now := s.clock().UnixMilli()
	return s.links.Update(ctx, id, func(l *domain.Link) error {
		l.MarkRead(now)
		return nil
	})
}

// MarkUnread clears the read flag and ReadAt.
func (s *Service) MarkUnread(ctx context.Context, id string) (domain.Link, error) {
	return s.links.Update(ctx, id, func(l *domain.Link) error {
		l.MarkUnread()
		return nil
	})
}

// EditLink applies a partial update. A category must exist to be assigned.
func (s *Service) EditLink(ctx context.Context, id string, e Edit) (domain.Link, error) {
	if e.Category != nil && *e.Category != "" {
		if _, found, err := s.categories.Get(ctx, *e.Category); err != nil {
			return domain.Link{}, err
		} else if !found {
			return domain.Link{}, fmt.Errorf("category %s: %w", *e.Category, apperr.ErrNotFound)
		}
	}
	return s.links.Update(ctx, id, func(l *domain.Link) error {
		applyEdit(l, e)
		return nil
	})
}

func applyEdit(l *domain.Link, e Edit) {
	if e.Title != nil {
		l.Title = strings.TrimSpace(*e.Title)
		if l.Title == "" {
			if u, err := ingest.ParseAbsolute(l.URL); err == nil {
				l.Title = ingest.TitleFromURL(u)
			}
		}
	}
	if e.Description != nil {
		l.Description = *e.Description
	}
	if e.Thumbnail != nil {
		l.Thumbnail = optional(*e.Thumbnail)
	}
	if e.Category != nil {
		l.Category = optional(*e.Category)
	}
	if e.Tags != nil {
		l.SetTags(*e.Tags)
	}
	if e.Author != nil {
		l.Metadata.Author = optional(*e.Author)
	}
	if e.PublishDate != nil {
		l.Metadata.PublishDate = optional(*e.PublishDate)
	}
	if e.Duration != nil {
		l.Metadata.Duration = optional(*e.Duration)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DeleteLink removes a link. Deleting a missing link succeeds.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	if err := s.links.Delete(ctx, id); err != nil {
		s.log.WithError(err).WithField("id", id).Error("Failed to delete link")
		return err
	}
	return nil
}

// CreateCategory adds a category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("category name is required: %w", apperr.ErrInvalidInput)
	}
	return s.categories.Insert(ctx, domain.Category{ID: uuid.NewString(), Name: name})
}

// Categories lists all categories.
func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.All(ctx)
}

// RenameCategory changes a category's name.
func (s *Service) RenameCategory(ctx context.Context, id, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, fmt.Errorf("category name is required: %w", apperr.ErrInvalidInput)
	}
	return s.categories.Rename(ctx, id, name)
}

// DeleteCategory removes a category. Links keep their dangling reference,
// which readers treat as uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.categories.Delete(ctx, id)
}

// Setting returns the value stored under key or apperr.ErrNotFound.
func (s *Service) Setting(ctx context.Context, key string) (domain.Setting, error) {
	st, found, err := s.settings.Get(ctx, key)
	if err != nil {
		return domain.Setting{}, err
	}
	if !found {
		return domain.Setting{}, fmt.Errorf("setting %s: %w", key, apperr.ErrNotFound)
	}
	return st, nil
}

// Settings returns every setting.
func (s *Service) Settings(ctx context.Context) ([]domain.Setting, error) {
	return s.settings.All(ctx)
}

// PutSetting stores a JSON value under key.
func (s *Service) PutSetting(ctx context.Context, key string, value json.RawMessage) (domain.Setting, error) {
	if !json.Valid(value) {
		return domain.Setting{}, fmt.Errorf("setting %s: value is not valid JSON: %w", key, apperr.ErrInvalidInput)
	}
	return s.settings.Put(ctx, key, value)
}

// DeleteSetting removes a setting.
func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	return s.settings.Delete(ctx, key)
}

// SetScraper enables EnrichLink.
func (s *Service) SetScraper(sc scraper.Scraper) {
	s.scraper = sc
}

// EnrichLink fetches the page behind a saved link and fills the title,
// thumbnail and author from it. Fields the page does not provide are kept.
// This is the only operation that reaches the network, and only on request.
func (s *Service) EnrichLink(ctx context.Context, id string) (domain.Link, error) {
	if s.scraper == nil {
		return domain.Link{}, ErrEnrichDisabled
	}
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return domain.Link{}, err
	}
	meta, err := s.scraper.ScrapeMetadata(ctx, link.URL)
	if err != nil {
		s.log.WithError(err).WithField("url", link.URL).Warn("Enrichment failed")
		return domain.Link{}, fmt.Errorf("enrich %s: %w", id, err)
	}
	return s.links.Update(ctx, id, func(l *domain.Link) error {
		if meta.Title != "" {
			l.Title = meta.Title
		}
		if meta.Image != "" {
			l.Thumbnail = optional(meta.Image)
		}
		if meta.Author != "" {
			l.Metadata.Author = optional(meta.Author)
		}
		return nil
	})
}
