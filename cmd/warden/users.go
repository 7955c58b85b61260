// ABOUTME: Operator subcommands for creating, resetting and locking users
// ABOUTME: Talk to the store directly and record their actions in the activity log

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/2389/warden/internal/activity"
	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/server"
	"github.com/2389/warden/internal/store"
)

// cliMetadata identifies operator actions in the activity log.
var cliMetadata = auth.Metadata{IP: "local", UserAgent: "warden-cli"}

// adminEnv is the subset of a server needed for offline user management.
type adminEnv struct {
	store    *store.SQLiteStore
	redis    *redis.Client
	recorder *activity.Recorder
	auth     *auth.Authenticator
}

func openAdmin(ctx context.Context) (*adminEnv, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAdminWithConfig(ctx, cfg)
}

func openAdminWithConfig(ctx context.Context, cfg *config.Config) (*adminEnv, error) {
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}, os.Stderr)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	attempts, redisClient, err := server.OpenAttemptStore(ctx, cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	recorder := activity.NewRecorder(s, logger)
	return &adminEnv{
		store:    s,
		redis:    redisClient,
		recorder: recorder,
		auth: &auth.Authenticator{
			Credentials: auth.NewCredentialVerifier(s, logger),
			Guard:       auth.NewLoginAttemptGuard(attempts, cfg.Auth.MaxAttempts, cfg.Auth.LockDuration, logger),
			Users:       s,
			Hasher:      auth.Hasher{Algorithm: cfg.Auth.PasswordHash},
			Activity:    recorder,
			Logger:      logger,
		},
	}, nil
}

// Close flushes the activity log and closes backends.
func (e *adminEnv) Close() {
	_ = e.recorder.Close(context.Background())
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.store.Close()
}

// readPassword prompts on a terminal without echo. Non-terminal input is read
// as one line so passwords can be piped in.
func readPassword(prompt string, in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// promptNewPassword asks for a password, confirming it on terminals.
func promptNewPassword() (string, error) {
	pw, err := readPassword("Password: ", os.Stdin, os.Stderr)
	if err != nil {
		return "", err
	}
	if len(pw) < auth.MinPasswordLength {
		return "", auth.ErrPasswordTooShort
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		confirm, err := readPassword("Confirm:  ", os.Stdin, os.Stderr)
		if err != nil {
			return "", err
		}
		if confirm != pw {
			return "", errors.New("passwords do not match")
		}
	}
	return pw, nil
}

// splitTeams parses a comma-separated team list.
func splitTeams(s string) []string {
	teams := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			teams = append(teams, t)
		}
	}
	return teams
}

func usernameFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	username := fs.String("username", "", "account username")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*username) == "" {
		return "", errors.New("--username is required")
	}
	return *username, nil
}

func runUserAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	username := fs.String("username", "", "account username")
	role := fs.String("role", string(store.RoleStaff), "admin or staff")
	teams := fs.String("teams", "", "comma-separated team names")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	env, err := openAdmin(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.auth.CreateUser(ctx, nil, auth.NewUser{
		Username: *username,
		Password: password,
		Role:     store.Role(strings.ToLower(*role)),
		Teams:    splitTeams(*teams),
	}, cliMetadata)
	if errors.Is(err, store.ErrUsernameExists) {
		return fmt.Errorf("user %q already exists", *username)
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created %s user %s\n", user.Role, user.Username)
	fmt.Printf("    ID:    %s\n", user.ID)
	fmt.Printf("    Teams: %s\n", strings.Join(user.Teams, ", "))
	return nil
}

func runPasswd(ctx context.Context, args []string) error {
	username, err := usernameFlag("passwd", args)
	if err != nil {
		return err
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}

	env, err := openAdmin(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up %q: %w", username, err)
	}

	hash, err := env.auth.Hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := env.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}
	revoked, err := env.store.DeleteUserSessions(ctx, user.ID)
	if err != nil {
		return err
	}

	env.recorder.Record(store.ActivityRecord{
		UserID:    user.ID,
		Action:    store.ActivityPasswordChange,
		Detail:    fmt.Sprintf("operator reset, revoked=%d", revoked),
		IP:        cliMetadata.IP,
		UserAgent: cliMetadata.UserAgent,
	})

	color.Green("  ✓ Password updated for %s (%d session(s) ended)\n", user.Username, revoked)
	return nil
}

func runSetLocked(ctx context.Context, args []string, locked bool) error {
	name := "unlock"
	if locked {
		name = "lock"
	}
	username, err := usernameFlag(name, args)
	if err != nil {
		return err
	}

	env, err := openAdmin(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("looking up %q: %w", username, err)
	}

	if err := env.auth.SetLocked(ctx, nil, user.ID, locked, cliMetadata); err != nil {
		return err
	}

	if locked {
		color.Yellow("  ✓ Locked %s\n", user.Username)
	} else {
		color.Green("  ✓ Unlocked %s\n", user.Username)
	}
	return nil
}
