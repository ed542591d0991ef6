// Package cli implements the stockctl commands on top of the auth store and
// the inventory service.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"stockroom/internal/auth"
	"stockroom/internal/backend"
	"stockroom/internal/inventory"
	"stockroom/internal/models"
)

var ErrNotSignedIn = errors.New("not signed in, run: stockctl login -email <email> -password <password>")

// Account is a backend that can also create and open sessions.
type Account interface {
	backend.Client
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	UpdatePassword(ctx context.Context, password string) (*models.User, error)
	RefreshSession(ctx context.Context) (*models.Session, error)
}

type App struct {
	Account   Account
	Store     *auth.Store
	Inventory *inventory.Service
	Out       io.Writer
	Err       io.Writer
}

const usage = `usage: stockctl <command> [flags]

commands:
  signup -email <email> -password <password>
  login  -email <email> -password <password>
  logout
  refresh
  passwd -password <new password>
  whoami
  list
  add <name>
  remove <id>
  watch
`

// Run executes the command named by args[0].
func Run(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(app.Err, usage)
		return errors.New("no command given")
	}

	dispose := app.Store.Initialize(ctx)
	defer dispose()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup", "login":
		return runCredentials(ctx, app, cmd, rest)
	case "logout":
		if err := app.Store.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(app.Out, "Signed out")
		return nil
	case "refresh":
		return runRefresh(ctx, app)
	case "passwd":
		return runPasswd(ctx, app, rest)
	case "whoami":
		user := app.Store.User()
		if user == nil {
			fmt.Fprintln(app.Out, "Not signed in")
			return nil
		}
		fmt.Fprintf(app.Out, "%s (%s)\n", user.Email, user.ID)
		return nil
	case "list":
		return runList(ctx, app)
	case "add":
		return runAdd(ctx, app, rest)
	case "remove":
		return runRemove(ctx, app, rest)
	case "watch":
		return runWatch(ctx, app)
	case "help", "-h", "--help":
		fmt.Fprint(app.Out, usage)
		return nil
	default:
		fmt.Fprint(app.Err, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type credentials struct {
	Email    string
	Password string
}

func parseCredentials(fs *flag.FlagSet, args []string) (credentials, error) {
	var c credentials
	fs.StringVar(&c.Email, "email", "", "account email")
	fs.StringVar(&c.Password, "password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return credentials{}, err
	}
	if c.Email == "" || c.Password == "" {
		return credentials{}, errors.New("-email and -password are required")
	}
	return c, nil
}

func runCredentials(ctx context.Context, app *App, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(app.Err)
	c, err := parseCredentials(fs, args)
	if err != nil {
		return err
	}

	var session *models.Session
	if cmd == "signup" {
		session, err = app.Account.SignUp(ctx, c.Email, c.Password)
	} else {
		session, err = app.Account.SignInWithPassword(ctx, c.Email, c.Password)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd, err)
	}

	fmt.Fprintf(app.Out, "Signed in as %s\n", session.User.Email)
	return nil
}

func runRefresh(ctx context.Context, app *App) error {
	if _, err := currentUser(app); err != nil {
		return err
	}

	session, err := app.Account.RefreshSession(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if session == nil {
		return ErrNotSignedIn
	}
	fmt.Fprintf(app.Out, "Session refreshed, expires %s\n", time.Unix(session.ExpiresAt, 0).Local().Format(time.DateTime))
	return nil
}

func runPasswd(ctx context.Context, app *App, args []string) error {
	if _, err := currentUser(app); err != nil {
		return err
	}

	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	fs.SetOutput(app.Err)
	password := fs.String("password", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		return errors.New("-password is required")
	}

	if _, err := app.Account.UpdatePassword(ctx, *password); err != nil {
		return fmt.Errorf("passwd failed: %w", err)
	}
	fmt.Fprintln(app.Out, "Password updated")
	return nil
}

func currentUser(app *App) (*models.User, error) {
	user := app.Store.User()
	if user == nil {
		return nil, ErrNotSignedIn
	}
	return user, nil
}

// runList degrades to an empty listing when the backend fails.
func runList(ctx context.Context, app *App) error {
	user, err := currentUser(app)
	if err != nil {
		return err
	}

	items := app.Inventory.ListItems(ctx, user.ID)
	if len(items) == 0 {
		fmt.Fprintln(app.Out, "No items")
		return nil
	}

	w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\n", item.ID, item.Name, item.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runAdd(ctx context.Context, app *App, args []string) error {
	user, err := currentUser(app)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(strings.Join(args, " "))
	item, err := app.Inventory.Add(ctx, models.NewInventoryItem{Name: name, UserID: user.ID})
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Added %q (id %d)\n", item.Name, item.ID)
	return nil
}

func runRemove(ctx context.Context, app *App, args []string) error {
	if _, err := currentUser(app); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: stockctl remove <id>")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}

	if err := app.Inventory.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Removed %d\n", id)
	return nil
}

// runWatch prints every auth state change until ctx is cancelled.
func runWatch(ctx context.Context, app *App) error {
	unsubscribe := app.Store.Subscribe(func(snap auth.Snapshot) {
		if snap.User != nil {
			fmt.Fprintf(app.Out, "%s %s %s\n", time.Now().Format(time.TimeOnly), snap.State, snap.User.Email)
			return
		}
		fmt.Fprintf(app.Out, "%s %s\n", time.Now().Format(time.TimeOnly), snap.State)
	})
	defer unsubscribe()

	<-ctx.Done()
	return nil
}
