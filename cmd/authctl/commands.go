package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alexjbarnes/sitegate/internal/auth"
	"gopkg.in/yaml.v3"
)

// userView is the listing shape of a user. The password hash is never
// printed.
type userView struct {
	Name             string `yaml:"name"`
	Email            string `yaml:"email"`
	PasswordAttempts int    `yaml:"password_attempts"`
	AttemptsExpire   string `yaml:"attempts_expire,omitempty"`
	Locked           bool   `yaml:"locked"`
	Disabled         bool   `yaml:"disabled"`
}

type groupView struct {
	Users     []string        `yaml:"users"`
	Authorize map[string]bool `yaml:"authorize"`
}

type sessionView struct {
	Username string `yaml:"username"`
	Expires  string `yaml:"expires"`
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return enc.Close()
}

func (c *cli) user(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	if err := c.open(); err != nil {
		return err
	}

	fs := flag.NewFlagSet("user "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")

	pos, err := parseFlags(fs, args[1:])
	if err != nil {
		return err
	}

	if args[0] == "list" {
		return c.listUsers(ctx)
	}

	if len(pos) != 1 {
		return errUsage
	}

	username := pos[0]

	switch args[0] {
	case "add":
		password, err := c.readPassword("Password for " + username + ": ")
		if err != nil {
			return err
		}

		if err := c.repo.AddUser(ctx, username, password, *name, *email); err != nil {
			return err
		}
	case "delete":
		if err := c.repo.DeleteUser(ctx, username); err != nil {
			return err
		}

		if _, err := c.core.RevokeUser(ctx, username); err != nil {
			return err
		}
	case "disable":
		if err := c.repo.SetUserState(ctx, username, true); err != nil {
			return err
		}

		if _, err := c.core.RevokeUser(ctx, username); err != nil {
			return err
		}
	case "enable":
		if err := c.repo.SetUserState(ctx, username, false); err != nil {
			return err
		}
	case "unlock":
		if err := c.repo.UnlockUser(ctx, username); err != nil {
			return err
		}
	case "passwd":
		password, err := c.readPassword("New password for " + username + ": ")
		if err != nil {
			return err
		}

		if err := c.repo.SetUserPassword(ctx, username, password); err != nil {
			return err
		}
	case "details":
		if err := c.repo.SetUserDetails(ctx, username, *name, *email); err != nil {
			return err
		}
	default:
		return errUsage
	}

	fmt.Fprintf(c.stdout, "user %s: %s ok\n", username, args[0])

	return nil
}

func (c *cli) listUsers(ctx context.Context) error {
	users, err := c.repo.Users(ctx)
	if err != nil {
		return err
	}

	out := make(map[string]userView, len(users))

	for username, u := range users {
		v := userView{
			Name:             u.Name,
			Email:            u.Email,
			PasswordAttempts: u.PasswordAttempts,
			Locked:           u.AccountLocked,
			Disabled:         u.AccountDisabled,
		}

		if u.PasswordAttemptsExpires != 0 {
			v.AttemptsExpire = time.Unix(u.PasswordAttemptsExpires, 0).UTC().Format(time.RFC3339)
		}

		out[username] = v
	}

	return writeYAML(c.stdout, out)
}

func (c *cli) group(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	if err := c.open(); err != nil {
		return err
	}

	fs := flag.NewFlagSet("group "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	remove := fs.Bool("remove", false, "remove instead of add")

	pos, err := parseFlags(fs, args[1:])
	if err != nil {
		return err
	}

	switch {
	case args[0] == "list" && len(pos) == 0:
		groups, err := c.repo.Groups(ctx)
		if err != nil {
			return err
		}

		out := make(map[string]groupView, len(groups))
		for name, g := range groups {
			out[name] = groupView{Users: g.Users, Authorize: g.Authorize}
		}

		return writeYAML(c.stdout, out)
	case args[0] == "add" && len(pos) == 1:
		err = c.repo.AddGroup(ctx, pos[0])
	case args[0] == "delete" && len(pos) == 1:
		err = c.repo.DeleteGroup(ctx, pos[0])
	case args[0] == "member" && len(pos) == 2:
		err = c.repo.SetGroupMembership(ctx, pos[0], pos[1], !*remove)
	case args[0] == "authorize" && len(pos) == 3:
		value, perr := parseBool(pos[2])
		if perr != nil {
			return perr
		}

		err = c.repo.SetGroupAuthorize(ctx, pos[0], pos[1], value)
	default:
		return errUsage
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "group %s: %s ok\n", pos[0], args[0])

	return nil
}

func (c *cli) template(ctx context.Context, args []string) error {
	if err := c.open(); err != nil {
		return err
	}

	switch {
	case len(args) == 3 && args[0] == "set":
		value, err := parseBool(args[2])
		if err != nil {
			return err
		}

		if err := c.repo.SetDefaultAuthorize(ctx, args[1], value); err != nil {
			return err
		}
	case len(args) == 2 && args[0] == "delete":
		if err := c.repo.DeleteDefaultAuthorize(ctx, args[1]); err != nil {
			return err
		}
	default:
		return errUsage
	}

	fmt.Fprintf(c.stdout, "template %s: %s ok\n", args[1], args[0])

	return nil
}

func (c *cli) permissions(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	if err := c.open(); err != nil {
		return err
	}

	perms, err := c.core.ResolvePermissions(ctx, args[0])
	if err != nil {
		return err
	}

	return writeYAML(c.stdout, perms)
}

func (c *cli) sessionsCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	if err := c.open(); err != nil {
		return err
	}

	switch {
	case args[0] == "list" && len(args) == 1:
		tokens, err := c.sessions.Tokens(ctx)
		if err != nil {
			return err
		}

		out := make([]sessionView, 0, len(tokens))

		for _, t := range tokens {
			p, err := auth.Peek(t)
			if err != nil {
				out = append(out, sessionView{Username: "(malformed)"})
				continue
			}

			out = append(out, sessionView{
				Username: p.Username,
				Expires:  time.Unix(p.Expires, 0).UTC().Format(time.RFC3339),
			})
		}

		sort.Slice(out, func(i, j int) bool {
			if out[i].Username != out[j].Username {
				return out[i].Username < out[j].Username
			}

			return out[i].Expires < out[j].Expires
		})

		return writeYAML(c.stdout, out)
	case args[0] == "gc" && len(args) == 1:
		removed, err := c.core.GarbageCollect(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.stdout, "removed %d expired sessions\n", removed)
	case args[0] == "revoke" && len(args) == 2:
		removed, err := c.core.RevokeUser(ctx, args[1])
		if err != nil {
			return err
		}

		fmt.Fprintf(c.stdout, "revoked %d sessions for %s\n", removed, args[1])
	default:
		return errUsage
	}

	return nil
}
