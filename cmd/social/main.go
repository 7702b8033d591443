// Command social is the terminal client: account, profiles, chats and the post feed.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	u "github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sociallink/internal/app"
	"github.com/and161185/sociallink/internal/config"
	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/logging"
	"github.com/and161185/sociallink/internal/migrate"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "sociallink")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sociallink")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time, uid u.UUID) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp, UserID: uid.String()})
}

var errLoginRequired = errors.New("no valid session (login required)")

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errLoginRequired
		}
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errLoginRequired
	}
	return tf.AccessToken, nil
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// describe turns well-known failures into a short user-facing line.
func describe(err error) string {
	switch {
	case errors.Is(err, errLoginRequired):
		return err.Error()
	case errors.Is(err, errFeedStopped):
		return err.Error() + "; run the command again to reconnect"
	case errors.Is(err, errs.ErrUnauthorized):
		return "not authorized: check your credentials or log in again"
	case errors.Is(err, errs.ErrRateLimited):
		return "too many failed sign-in attempts, try again later"
	case errors.Is(err, errs.ErrPasswordMismatch):
		return "passwords do not match"
	case errors.Is(err, errs.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, errs.ErrAlreadyExists):
		return "already exists: " + err.Error()
	case errors.Is(err, errs.ErrNotFound):
		return "not found: " + err.Error()
	case errors.Is(err, errs.ErrValidation):
		return "invalid input: " + err.Error()
	default:
		return err.Error()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `social CLI
Usage:
  social [-v] [-dsn <dsn>] <cmd> [args]

Configuration comes from SOCIAL_* environment variables.

Commands:
  version
  migrate         [-down]
  register        -email <e> -username <u> [-p <password>]
  login           -email <e> [-p <password>]            (saves token)
  logout
  whoami
  reset-password  -email <e>
  reset-confirm   -token <t> [-p <password>]
  profiles        [-q <username fragment>]
  profile         [-id <uuid>]
  edit-profile    [-name] [-username] [-bio] [-website] [-location]
  avatar          -file <image> [-type <content type>]
  chats
  chat-with       -user <uuid>
  open            -chat <uuid>                          (live; type to send)
  send            -chat <uuid> -text <t>
  posts
  post            -content <t> [-media <url>] [-type image|video|text]
  like            -post <uuid>
  comment         -post <uuid> -text <t> [-parent <uuid>]
  comments        -post <uuid>
  watch-chats
  watch-posts
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	verbose := flag.Bool("v", false, "log at SOCIAL_LOG_LEVEL instead of warn")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides SOCIAL_DSN)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("social %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	if _, set := os.LookupEnv(config.EnvPrefix + "LOG_LEVEL"); !set && !*verbose {
		cfg.LogLevel = "warn"
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fail(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd == "migrate" {
		if err := cmdMigrate(ctx, cfg.DSN, args); err != nil {
			fail(err)
		}
		return
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}
	c := &cli{app: a, in: bufio.NewReader(os.Stdin), out: os.Stdout, loc: time.Local, now: time.Now}
	err = c.run(ctx, cmd, args)
	a.Close()
	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fail(err)
	}
}

func cmdMigrate(ctx context.Context, dsn string, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	down := fs.Bool("down", false, "roll back the last migration")
	_ = fs.Parse(args)
	if *down {
		return migrate.Down(ctx, dsn)
	}
	v, err := migrate.Up(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, describe(err))
	os.Exit(1)
}
