package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/client"
	"github.com/ArionMiles/trackmanager/pkg/export"
)

// call runs one API operation, prints its payload as JSON when the success
// callback fires, and reports the request's error.
func (a *app) call(ctx context.Context, op func(onSuccess api.SuccessFunc) <-chan api.Result) error {
	var printErr error
	ch := op(func(payload any) {
		printErr = printJSON(os.Stdout, payload)
	})

	select {
	case res := <-ch:
		if !res.OK() {
			return res.Err
		}
		return printErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	loading := fs.String("loading", "Loading "+strings.ReplaceAll(name, "-", " "), "text shown while the request runs")
	return fs, loading
}

// parseIDs parses a comma separated list like "1,2,3".
func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("at least one id is required")
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (a *app) runAccounts(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.GetUserAccounts(ctx, *loading, onSuccess)
	})
}

func (a *app) runBookings(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("bookings")
	accounts := fs.String("accounts", "", "comma separated account ids")
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*accounts)
	if err != nil {
		return fmt.Errorf("-accounts: %w", err)
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.GetBookings(ctx, *loading, ids, *start, *end, onSuccess)
	})
}

// bookingFlags registers the booking fields on fs.
func bookingFlags(fs *flag.FlagSet) *api.Booking {
	b := &api.Booking{}
	fs.IntVar(&b.ID, "id", 0, "booking id; 0 creates a new booking")
	fs.IntVar(&b.AccountID, "account", 0, "account id")
	fs.IntVar(&b.MainCategoryID, "main-category", 0, "main category id")
	fs.IntVar(&b.SubCategoryID, "sub-category", 0, "sub category id")
	fs.StringVar(&b.Date, "date", "", "booking date, YYYY-MM-DD")
	fs.StringVar(&b.Description, "description", "", "description")
	fs.IntVar(&b.Frequency, "frequency", 0, "booking frequency")
	fs.IntVar(&b.Type, "type", 0, "booking type")
	fs.Float64Var(&b.Value, "value", 0, "amount")
	return b
}

func (a *app) runAddBooking(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("add-booking")
	b := bookingFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.AddBooking(ctx, *loading, *b, onSuccess)
	})
}

func (a *app) runSetBooking(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("set-booking")
	b := bookingFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.SetBooking(ctx, *loading, *b, onSuccess)
	})
}

func (a *app) runCategories(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("categories")
	accounts := fs.String("accounts", "", "comma separated account ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*accounts)
	if err != nil {
		return fmt.Errorf("-accounts: %w", err)
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.GetCategories(ctx, *loading, ids, onSuccess)
	})
}

func (a *app) runAdminUsers(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("admin-users")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.GetAdminUsers(ctx, *loading, onSuccess)
	})
}

func (a *app) runSetAdminUser(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("set-admin-user")
	u := api.AdminUser{}
	fs.IntVar(&u.ID, "id", 0, "user id; 0 creates a new user")
	fs.StringVar(&u.FirstName, "first-name", "", "first name")
	fs.StringVar(&u.LastName, "last-name", "", "last name")
	fs.StringVar(&u.LoginName, "login", "", "login name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.SetAdminUser(ctx, *loading, u, onSuccess)
	})
}

func (a *app) userIDFlag(name string, args []string) (int, string, error) {
	fs, loading := newFlagSet(name)
	id := fs.Int("id", 0, "user id")
	if err := fs.Parse(args); err != nil {
		return 0, "", err
	}
	if *id == 0 {
		return 0, "", errors.New("-id is required")
	}
	return *id, *loading, nil
}

func (a *app) runDeleteAdminUser(ctx context.Context, args []string) error {
	id, loading, err := a.userIDFlag("delete-admin-user", args)
	if err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.DeleteAdminUser(ctx, loading, id, onSuccess)
	})
}

func (a *app) runToggleAdminUser(ctx context.Context, args []string) error {
	id, loading, err := a.userIDFlag("toggle-admin-user", args)
	if err != nil {
		return err
	}
	return a.call(ctx, func(onSuccess api.SuccessFunc) <-chan api.Result {
		return a.svc.SetAdminActiveUser(ctx, loading, id, onSuccess)
	})
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs, loading := newFlagSet("export")
	accounts := fs.String("accounts", "", "comma separated account ids")
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	sinkName := fs.String("sink", a.cfg.Export.Sink, "json, csv, postgres or sheets")
	path := fs.String("out", a.cfg.Export.Path, "output file of the json and csv sinks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*accounts)
	if err != nil {
		return fmt.Errorf("-accounts: %w", err)
	}

	a.cfg.Export.Sink = *sinkName
	a.cfg.Export.Path = *path
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	registry := export.DefaultRegistry()
	sink, err := registry.Get(*sinkName)
	if err != nil {
		return err
	}

	var httpClient *http.Client
	if len(sink.Scopes) > 0 {
		httpClient, err = client.New(ctx, client.Config{
			SecretFile: a.cfg.Sheets.ClientSecretFile,
			TokenFile:  a.cfg.Sheets.TokenFile,
			Scopes:     sink.Scopes,
		}, a.logger.With("component", "oauth"))
		if err != nil {
			return fmt.Errorf("creating oauth client: %w", err)
		}
	}

	n, err := export.New(a.svc, a.logger).Export(ctx, export.Request{
		LoadingText: *loading,
		AccountIDs:  ids,
		StartDate:   *start,
		EndDate:     *end,
	}, func(ctx context.Context) (api.Writer, error) {
		return registry.Create(ctx, *sinkName, a.cfg, httpClient, a.logger)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d bookings to %s\n", n, *sinkName)
	return nil
}

func (a *app) runSession(args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	remove := fs.Bool("clear", false, "remove the saved session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *remove {
		if err := os.Remove(a.cfg.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing session file: %w", err)
		}
		fmt.Println("Session cleared.")
		return nil
	}

	if fs.NArg() != 1 {
		return errors.New("usage: trackmanager session <PHPSESSID> | -clear")
	}
	if err := a.session.Save(strings.TrimSpace(fs.Arg(0))); err != nil {
		return err
	}
	fmt.Printf("Session saved to %s\n", a.cfg.SessionFile)
	return nil
}
