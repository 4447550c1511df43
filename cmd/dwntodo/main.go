package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/idilsaglam/dwntodo/internal/cli"
	"github.com/idilsaglam/dwntodo/internal/config"
	"github.com/idilsaglam/dwntodo/internal/identity"
	"github.com/idilsaglam/dwntodo/internal/logging"
	"github.com/idilsaglam/dwntodo/internal/todo"
	"github.com/idilsaglam/dwntodo/internal/tui"
	"github.com/idilsaglam/dwntodo/internal/ui"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

// envPassphrase seals and opens the identity file.
const envPassphrase = "DWNTODO_PASSPHRASE"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	var (
		configPath, endpoint, schema string
		theme, color, logLevel       string
		timeout                      time.Duration
		passphrasePrompt, plain      bool
	)
	flagSet := pflag.NewFlagSet("dwntodo", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&configPath, "config", "c", "", "config file (YAML, or JSON with comments)")
	flagSet.StringVar(&endpoint, "endpoint", "", "DWN node URL")
	flagSet.StringVar(&schema, "schema", "", "schema tagging todo records")
	flagSet.StringVar(&theme, "theme", "", "classic, neon or mono")
	flagSet.StringVar(&color, "color", "", "auto, always or never")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.DurationVar(&timeout, "timeout", 0, "per-request timeout (0 waits forever)")
	flagSet.BoolVar(&passphrasePrompt, "passphrase-prompt", false, "ask for the identity passphrase")
	flagSet.BoolVar(&plain, "plain", false, "never start the list view")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cli.PrintHelp(os.Stdout)
			return cli.ExitOK
		}
		ui.Fail(os.Stderr, err.Error())
		return cli.ExitUsage
	}
	if help, _ := flagSet.GetBool("help"); help {
		cli.PrintHelp(os.Stdout)
		fmt.Fprintln(os.Stdout, "\nFlags:")
		flagSet.SetOutput(os.Stdout)
		flagSet.PrintDefaults()
		return cli.ExitOK
	}

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		ui.Fail(os.Stderr, err.Error())
		return cli.ExitUsage
	}
	// Flags beat file and environment.
	set := func(name string, dst *string, v string) {
		if flagSet.Changed(name) {
			*dst = v
		}
	}
	set("endpoint", &cfg.Endpoint, endpoint)
	set("schema", &cfg.Schema, schema)
	set("theme", &cfg.Theme, theme)
	set("color", &cfg.Color, color)
	set("log-level", &cfg.LogLevel, logLevel)
	if flagSet.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		ui.Fail(os.Stderr, err.Error())
		return cli.ExitUsage
	}

	ui.SetColorMode(cfg.Color)
	ui.SetTheme(cfg.Theme)

	passphrase := os.Getenv(envPassphrase)
	if passphrasePrompt && passphrase == "" {
		if passphrase, err = promptPassphrase(); err != nil {
			ui.Fail(os.Stderr, err.Error())
			return cli.ExitUsage
		}
	}

	env := &cli.Env{
		Out:    os.Stdout,
		Err:    os.Stderr,
		Logger: logging.NewText(os.Stderr, cfg.Level()),
		Config: cfg,
		Identities: &identity.Store{
			Dir:        cfg.Dir,
			Passphrase: passphrase,
		},
		Plain:   plain || !term.IsTerminal(int(os.Stdout.Fd())),
		Version: version,
	}
	env.Interactive = func(ctx context.Context, backend todo.Backend, did string) error {
		return runListView(ctx, cfg, backend, did)
	}
	return cli.Run(ctx, flagSet.Args(), env)
}

// runListView sends the diagnostic log to the log file while the list
// view owns the terminal.
func runListView(ctx context.Context, cfg *config.Config, backend todo.Backend, did string) error {
	handler, closeLog, err := logging.OpenFile(cfg.LogPath(), cfg.Level())
	if err != nil {
		return err
	}
	defer closeLog()
	return tui.Run(ctx, backend, tui.RunOptions{
		DID:         did,
		LogHandler:  handler,
		StatusLevel: slog.LevelWarn,
	})
}

func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for the passphrase prompt (set %s)", envPassphrase)
	}
	fmt.Fprint(os.Stderr, "Identity passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
