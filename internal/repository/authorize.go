package repository

import (
	"context"

	"github.com/alexjbarnes/sitegate/internal/models"
)

// SetDefaultAuthorize records key in the template and backfills it into
// every group that lacks it: false for ordinary groups, true for the
// reserved admins group. Existing group values are never overwritten.
// Unlike the generic group operations this does reach admins, so the
// reserved group keeps holding every permission the template defines.
func (r *Repository) SetDefaultAuthorize(ctx context.Context, key string, value bool) error {
	key, err := NormalizeName(key)
	if err != nil {
		return err
	}

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		doc.DefaultAuthorize[key] = value

		for name, g := range doc.Groups {
			if _, ok := g.Authorize[key]; ok {
				continue
			}

			g.Authorize[key] = name == models.AdminsGroup
		}

		return true, nil
	})
}

// DeleteDefaultAuthorize removes key from the template and from every
// group, admins included.
func (r *Repository) DeleteDefaultAuthorize(ctx context.Context, key string) error {
	key = Canonical(key)

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		_, changed := doc.DefaultAuthorize[key]
		delete(doc.DefaultAuthorize, key)

		for _, g := range doc.Groups {
			if _, ok := g.Authorize[key]; ok {
				delete(g.Authorize, key)

				changed = true
			}
		}

		return changed, nil
	})
}
