package repository

import (
	"context"
	"fmt"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
)

// AddGroup creates an empty group. Every key in the default-authorize
// template is seeded as false.
func (r *Repository) AddGroup(ctx context.Context, name string) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}

	if err := guardGroup(name); err != nil {
		return err
	}

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		if _, ok := doc.Groups[name]; ok {
			return false, fmt.Errorf("%q: %w", name, apperrors.ErrGroupExists)
		}

		authorize := make(map[string]bool, len(doc.DefaultAuthorize))
		for key := range doc.DefaultAuthorize {
			authorize[key] = false
		}

		doc.Groups[name] = &models.Group{
			Users:     []string{},
			Authorize: authorize,
		}

		return true, nil
	})
}

// DeleteGroup removes a group.
func (r *Repository) DeleteGroup(ctx context.Context, name string) error {
	name = Canonical(name)
	if err := guardGroup(name); err != nil {
		return err
	}

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		if _, ok := doc.Groups[name]; !ok {
			return false, fmt.Errorf("%q: %w", name, apperrors.ErrGroupNotFound)
		}

		delete(doc.Groups, name)

		return true, nil
	})
}

// SetGroupAuthorize sets one permission key on a group.
func (r *Repository) SetGroupAuthorize(ctx context.Context, group, key string, value bool) error {
	group = Canonical(group)
	if err := guardGroup(group); err != nil {
		return err
	}

	key, err := NormalizeName(key)
	if err != nil {
		return err
	}

	return r.mutateGroup(ctx, group, func(_ *models.CredentialDocument, g *models.Group) (bool, error) {
		if cur, ok := g.Authorize[key]; ok && cur == value {
			return false, nil
		}

		g.Authorize[key] = value

		return true, nil
	})
}

// SetGroupMembership adds or removes username from group. The reserved
// group and the reserved user are both off limits.
func (r *Repository) SetGroupMembership(ctx context.Context, group, username string, present bool) error {
	group, username = Canonical(group), Canonical(username)
	if err := guardGroup(group); err != nil {
		return err
	}

	if err := guardUser(username); err != nil {
		return err
	}

	return r.mutateGroup(ctx, group, func(doc *models.CredentialDocument, g *models.Group) (bool, error) {
		if !present {
			return g.RemoveMember(username), nil
		}

		if _, ok := doc.Users[username]; !ok {
			return false, fmt.Errorf("%q: %w", username, apperrors.ErrUserNotFound)
		}

		if g.HasMember(username) {
			return false, nil
		}

		g.Users = append(g.Users, username)

		return true, nil
	})
}

func (r *Repository) mutateGroup(ctx context.Context, name string, fn func(doc *models.CredentialDocument, g *models.Group) (bool, error)) error {
	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		g, ok := doc.Groups[name]
		if !ok {
			return false, fmt.Errorf("%q: %w", name, apperrors.ErrGroupNotFound)
		}

		return fn(doc, g)
	})
}
