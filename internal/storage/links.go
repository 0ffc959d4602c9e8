package storage

import (
	"context"

	"linkkeeper/internal/domain"
)

// LinkRepository persists domain.Link records.
type LinkRepository struct {
	store *Store
}

// Insert stores a new link. A URL that is already saved fails with
// apperr.ErrConstraintViolation.
func (r *LinkRepository) Insert(ctx context.Context, link domain.Link) (domain.Link, error) {
	log := r.store.log.WithField("url", link.URL)
	if err := r.store.Insert(ctx, CollLinks, &link); err != nil {
		log.WithError(err).Debug("Link insert rejected")
		return domain.Link{}, err
	}
	log.WithField("id", link.ID).Info("Link saved")
	return link, nil
}

// Get returns the link with id.
func (r *LinkRepository) Get(ctx context.Context, id string) (domain.Link, bool, error) {
	var link domain.Link
	found, err := r.store.Get(ctx, CollLinks, id, &link)
	return link, found, err
}

// All returns every saved link in insertion order.
func (r *LinkRepository) All(ctx context.Context) ([]domain.Link, error) {
	recs, err := r.store.GetAll(ctx, CollLinks)
	if err != nil {
		return nil, err
	}
	return castAll[domain.Link](recs)
}

// Update applies mutate to the stored link and refreshes UpdatedAt.
func (r *LinkRepository) Update(ctx context.Context, id string, mutate func(*domain.Link) error) (domain.Link, error) {
	rec, err := r.store.Update(ctx, CollLinks, id, func(rec Record) error {
		return mutate(rec.(*domain.Link))
	})
	if err != nil {
		return domain.Link{}, err
	}
	return castOne[domain.Link](rec)
}

// Delete removes the link. Missing links are ignored.
func (r *LinkRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollLinks, id)
}

// ByURL looks a link up through the unique url index.
func (r *LinkRepository) ByURL(ctx context.Context, url string) (domain.Link, bool, error) {
	recs, err := r.store.FindByIndex(ctx, CollLinks, domain.LinkFieldURL, url)
	if err != nil || len(recs) == 0 {
		return domain.Link{}, false, err
	}
	link, err := castOne[domain.Link](recs[0])
	return link, err == nil, err
}

// ByReadState returns the read or unread links.
func (r *LinkRepository) ByReadState(ctx context.Context, read bool) ([]domain.Link, error) {
	recs, err := r.store.FindByIndex(ctx, CollLinks, domain.LinkFieldIsRead, domain.EncodeBool(read))
	if err != nil {
		return nil, err
	}
	return castAll[domain.Link](recs)
}

// ByDomain returns links saved from the given bare hostname.
func (r *LinkRepository) ByDomain(ctx context.Context, host string) ([]domain.Link, error) {
	recs, err := r.store.FindByIndex(ctx, CollLinks, domain.LinkFieldDomain, host)
	if err != nil {
		return nil, err
	}
	return castAll[domain.Link](recs)
}
