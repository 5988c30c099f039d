package auth

import (
	"context"
	"sort"

	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/repository"
)

// Permissions is the effective authorization of one user.
type Permissions struct {
	// Groups lists the groups the user belongs to, sorted.
	Groups []string `json:"groups" yaml:"groups"`
	// Authorized is the OR-merge of the authorize maps of those groups.
	Authorized map[string]bool `json:"authorized" yaml:"authorized"`
}

// ResolvePermissions collects the groups username belongs to and
// merges their permission maps: a key granted true by any group is true.
func (c *Core) ResolvePermissions(ctx context.Context, username string) (Permissions, error) {
	groups, err := c.repo.Groups(ctx)
	if err != nil {
		return Permissions{}, err
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}

	sort.Strings(names)

	return mergePermissions(repository.Canonical(username), names, groups), nil
}

// mergePermissions visits groups in the given order.
func mergePermissions(username string, order []string, groups map[string]*models.Group) Permissions {
	p := Permissions{
		Groups:     []string{},
		Authorized: map[string]bool{},
	}

	for _, name := range order {
		g, ok := groups[name]
		if !ok || !g.HasMember(username) {
			continue
		}

		p.Groups = append(p.Groups, name)

		for key, granted := range g.Authorize {
			p.Authorized[key] = p.Authorized[key] || granted
		}
	}

	sort.Strings(p.Groups)

	return p
}

// Authorized reports whether the validated user of this request holds
// key. It is false for a request that has not passed Validate or Issue.
func (r *Request) Authorized(ctx context.Context, key string) (bool, error) {
	if r.verified == nil {
		return false, nil
	}

	p, err := r.core.ResolvePermissions(ctx, r.verified.Username)
	if err != nil {
		return false, err
	}

	return p.Authorized[key], nil
}
