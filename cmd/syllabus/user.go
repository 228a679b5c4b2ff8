package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/alex65536/syllabus/internal/account"
	"github.com/alex65536/syllabus/internal/database"
	"github.com/alex65536/syllabus/internal/userauth"
	"github.com/alex65536/syllabus/internal/util/slogx"
	"github.com/alex65536/syllabus/internal/util/sliceutil"
	"github.com/alex65536/syllabus/internal/util/style"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Args:  cobra.ExactArgs(0),
	Short: "Manage users of the built-in auth provider",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Args:  cobra.ExactArgs(0),
	Short: "Add a new user with a profile",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Args:  cobra.ExactArgs(0),
	Short: "List all users",
}

func openLocalDB(optsPath string) (*database.DB, *Options, error) {
	opts, err := loadOptions(optsPath)
	if err != nil {
		return nil, nil, err
	}
	opts.FillDefaults()
	if opts.Backend != BackendLocal {
		return nil, nil, fmt.Errorf("users are managed by the %q backend", opts.Backend)
	}
	db, err := database.New(slogx.DiscardLogger(), opts.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return db, &opts, nil
}

type newUser struct {
	Email    string
	Password string
	Username string
	Syllabus string
}

// addUser creates a user together with its profile. The username is checked first,
// so a taken username does not leave a user without a profile.
func addUser(ctx context.Context, db *database.DB, mgr *userauth.Manager, u newUser) (userauth.User, error) {
	if err := userauth.ValidateUsername(u.Username); err != nil {
		return userauth.User{}, fmt.Errorf("bad username: %w", err)
	}
	taken, err := db.UsernameTaken(ctx, u.Username)
	if err != nil {
		return userauth.User{}, err
	}
	if taken {
		return userauth.User{}, fmt.Errorf("username %q is already taken", u.Username)
	}

	user, err := mgr.CreateUser(ctx, u.Email, u.Password)
	if err != nil {
		return userauth.User{}, fmt.Errorf("create user: %w", err)
	}
	profile := account.Profile{ID: user.ID, Username: &u.Username}
	if u.Syllabus != "" {
		profile.SelectedSyllabus = &u.Syllabus
	}
	if err := db.SaveProfile(ctx, profile); err != nil {
		return userauth.User{}, fmt.Errorf("create profile: %w", err)
	}
	return user, nil
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	optsPath := userCmd.PersistentFlags().StringP(
		"options", "o", "",
		"options file",
	)
	if err := userCmd.MarkPersistentFlagRequired("options"); err != nil {
		panic(err)
	}

	p := userAddCmd.Flags()
	email := p.StringP("email", "e", "", "user email")
	password := p.StringP("password", "p", "", "user password (read from SYLLABUS_PASSWORD if empty)")
	username := p.StringP("username", "u", "", "profile username (random if empty)")
	syllabus := p.String("syllabus", "", "selected syllabus")
	if err := userAddCmd.MarkFlagRequired("email"); err != nil {
		panic(err)
	}

	userAddCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		ctx := context.Background()
		db, opts, err := openLocalDB(*optsPath)
		if err != nil {
			return err
		}
		defer db.Close()

		pass := *password
		if pass == "" {
			pass = os.Getenv("SYLLABUS_PASSWORD")
		}
		name := *username
		if name == "" {
			name = petname.Generate(2, "-")
		}

		log := newLogger("warn")
		mgr := userauth.NewManager(log.With(slog.String("comp", "userauth")), db, opts.Users)
		defer mgr.Close()
		user, err := addUser(ctx, db, mgr, newUser{
			Email:    *email,
			Password: pass,
			Username: name,
			Syllabus: *syllabus,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(style.Stdout(), "created user %v (%v) with id %v\n", style.WithS(name, 1), user.Email, user.ID)
		return nil
	}

	userListCmd.RunE = func(cmd *cobra.Command, _args []string) error {
		db, _, err := openLocalDB(*optsPath)
		if err != nil {
			return err
		}
		defer db.Close()

		users, err := db.ListUsers(context.Background())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		rows := sliceutil.Map(users, func(u userauth.User) string {
			return fmt.Sprintf("%v\t%v\t%v", u.ID, u.Email, u.CreatedAt.Local().Format("2006-01-02 15:04"))
		})
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tCREATED")
		for _, r := range rows {
			fmt.Fprintln(w, r)
		}
		return w.Flush()
	}
}
