// Command authctl administers the sitegate credential and session
// stores from the command line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alexjbarnes/sitegate/internal/auth"
	"github.com/alexjbarnes/sitegate/internal/config"
	"github.com/alexjbarnes/sitegate/internal/logging"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/secret"
	"github.com/alexjbarnes/sitegate/internal/store"
	"golang.org/x/term"
)

const usage = `usage: authctl <command> [arguments]

commands:
  bootstrap                         create the credential and session documents
  hash-password                     print a bcrypt hash of a password read from stdin
  user list
  user add <username> [-name N] [-email E]
  user delete <username>
  user disable|enable <username>
  user unlock <username>
  user passwd <username>
  user details <username> [-name N] [-email E]
  group list
  group add|delete <group>
  group member <group> <username> [-remove]
  group authorize <group> <key> true|false
  template set <key> true|false
  template delete <key>
  permissions <username>
  sessions list
  sessions gc
  sessions revoke <username>
`

var errUsage = errors.New("invalid arguments")

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the streams and lazily opened stores for one invocation.
type cli struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	logger *slog.Logger

	// lines reads piped input when stdin is not a terminal.
	lines *bufio.Scanner

	repo     *repository.Repository
	sessions store.SessionStore
	core     *auth.Core
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	c := &cli{
		stdin:  stdin,
		stdout: stdout,
		lines:  bufio.NewScanner(stdin),
	}

	// hash-password needs no configuration.
	if args[0] == "hash-password" {
		return c.hashPassword()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel)}))

	defer c.close()

	switch args[0] {
	case "bootstrap":
		return c.bootstrap()
	case "user":
		return c.user(ctx, args[1:])
	case "group":
		return c.group(ctx, args[1:])
	case "template":
		return c.template(ctx, args[1:])
	case "permissions":
		return c.permissions(ctx, args[1:])
	case "sessions":
		return c.sessionsCmd(ctx, args[1:])
	default:
		return errUsage
	}
}

func (c *cli) open() error {
	if c.core != nil {
		return nil
	}

	creds, err := store.OpenCredentials(c.cfg.StoreType, c.cfg.CredentialsFile)
	if err != nil {
		return err
	}

	sessions, err := store.OpenSessions(c.cfg.SessionOptions())
	if err != nil {
		return err
	}

	c.repo = repository.New(creds)
	c.sessions = sessions
	c.core = auth.NewCore(c.repo, sessions, c.logger)

	return nil
}

func (c *cli) close() {
	if c.sessions != nil {
		c.sessions.Close()
	}
}

func (c *cli) bootstrap() error {
	sessionsPath := ""
	if c.cfg.SessionStore == store.TypeFile {
		sessionsPath = c.cfg.SessionsFile
	}

	createdCreds, createdSess, err := store.Bootstrap(c.cfg.CredentialsFile, sessionsPath)
	if err != nil {
		return err
	}

	report := func(created bool, path string) {
		if created {
			fmt.Fprintf(c.stdout, "created %s\n", path)
		} else if path != "" {
			fmt.Fprintf(c.stdout, "exists  %s\n", path)
		}
	}

	report(createdCreds, c.cfg.CredentialsFile)
	report(createdSess, sessionsPath)

	return nil
}

func (c *cli) hashPassword() error {
	password, err := c.readPassword("Enter password: ")
	if err != nil {
		return err
	}

	hash, err := secret.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.stdout, hash)

	return nil
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func (c *cli) readPassword(prompt string) (string, error) {
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, prompt)

		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(b), nil
	}

	if !c.lines.Scan() {
		if err := c.lines.Err(); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return "", fmt.Errorf("no password on stdin")
	}

	password := strings.TrimRight(c.lines.Text(), "\r")
	if password == "" {
		return "", fmt.Errorf("empty password")
	}

	return password, nil
}

// parseBool accepts true/false and a few common spellings.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean: %w", s, errUsage)
	}
}

// parseFlags parses fs against args, allowing flags after positional
// arguments, and returns the positionals.
func parseFlags(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string

	for {
		if err := fs.Parse(args); err != nil {
			return nil, errUsage
		}

		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}

		positional = append(positional, rest[0])
		args = rest[1:]
	}
}
