// Package authctl implements the operator command line: creating principals
// with an explicit role, switching accounts on or off, running the expiry
// sweep on demand and listing the configured roles.
package authctl

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dascribs/authcore/internal/server/rbac"
	"github.com/dascribs/authcore/internal/server/services"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// ErrUsage is returned for unknown commands or bad flags.
var ErrUsage = errors.New("usage")

const usage = `usage: authctl [-c config.json] <command> [flags]

commands:
  register -email ADDR [-name NAME] [-role ROLE]   create a principal (password read from the terminal)
  deactivate -email ADDR                           disable an account and end its sessions
  activate -email ADDR                             re-enable an account
  sweep                                            remove expired sessions and one-time tokens
  roles                                            list roles and their permissions
`

// Backend is what the commands operate on.
type Backend struct {
	Auth    *services.AuthService
	Sweeper *services.Sweeper
	Roles   *rbac.Registry
}

type CLI struct {
	backend Backend
	out     io.Writer
}

// New constructs a CLI that operates on b and writes to out.
func New(b Backend, out io.Writer) *CLI {
	return &CLI{backend: b, out: out}
}

// Run executes the command named by the first non-config argument.
func (c *CLI) Run(ctx context.Context, args []string) error {
	args = commandArgs(args)
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "register":
		return c.register(ctx, args[1:])
	case "activate":
		return c.setActive(ctx, "activate", true, args[1:])
	case "deactivate":
		return c.setActive(ctx, "deactivate", false, args[1:])
	case "sweep":
		return c.sweep(ctx)
	case "roles":
		return c.roles()
	case "help":
		fmt.Fprint(c.out, usage)
		return nil
	}
	fmt.Fprint(c.out, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
}

func (c *CLI) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.out)
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "display name")
	role := fs.String("role", rbac.DefaultRole, "role")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *email == "" {
		return fmt.Errorf("%w: -email is required", ErrUsage)
	}

	pw, err := c.promptPassword()
	if err != nil {
		return err
	}
	defer clear(pw)

	p, err := c.backend.Auth.Register(ctx, services.RegisterInput{
		Email:       *email,
		Password:    string(pw),
		DisplayName: *name,
		Role:        *role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %s (%s) id=%s, verification message sent\n", p.Email, p.Role, p.ID)
	return nil
}

func (c *CLI) promptPassword() ([]byte, error) {
	fmt.Fprint(c.out, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(c.out)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(c.out, "Repeat password: ")
	again, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(c.out)
	if err != nil {
		clear(pw)
		return nil, err
	}
	defer clear(again)

	if !bytes.Equal(pw, again) {
		clear(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func (c *CLI) setActive(ctx context.Context, cmd string, active bool, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(c.out)
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *email == "" {
		return fmt.Errorf("%w: -email is required", ErrUsage)
	}

	p, err := c.backend.Auth.SetActiveByEmail(ctx, *email, active)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s active=%t\n", p.Email, p.Active)
	return nil
}

func (c *CLI) sweep(ctx context.Context) error {
	res, err := c.backend.Sweeper.RunOnce(ctx)
	fmt.Fprintf(c.out, "removed %d sessions, %d one-time tokens\n", res.Sessions, res.Tokens)
	return err
}

func (c *CLI) roles() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tPERMISSIONS")
	for _, r := range c.backend.Roles.Roles() {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, strings.Join(r.Permissions, ","))
	}
	return tw.Flush()
}

// commandArgs skips the global flags before the command name; those were
// already consumed by config.LoadConfig.
func commandArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			return args[i:]
		}
		if !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
		}
	}
	return nil
}
