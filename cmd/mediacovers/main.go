package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/mediacovers/internal/adapter"
	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/fetch"
	"github.com/mmcdole/mediacovers/internal/listing"
	"github.com/mmcdole/mediacovers/internal/service"
	"github.com/mmcdole/mediacovers/internal/store"
	"github.com/mmcdole/mediacovers/internal/tui"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

// args holds the command line, parsed by go-arg
type args struct {
	Config  string `arg:"-c,--config" help:"config file (default: search ~/.config/mediacovers and .)"`
	Server  string `arg:"-s,--server" help:"listing host URL, overrides server.url"`
	Dir     string `arg:"-d,--dir" help:"directory to open, overrides server.dir"`
	User    string `arg:"-u,--user" help:"basic auth username; the password is prompted"`
	Plain   bool   `arg:"-p,--plain" help:"resolve the directory once and print name, state and url"`
	Filter  string `arg:"-f,--filter" help:"plain mode only: keep entries fuzzy matching this text"`
	Version bool   `arg:"-v,--version" help:"print version"`
}

func (args) Description() string {
	return "Browse a file server and resolve cover art for its media files.\n"
}

func main() {
	var a args
	arg.MustParse(&a)

	if a.Version {
		fmt.Printf("mediacovers %s\n", Version)
		return
	}

	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg, err := adapter.LoadConfig(a.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyArgs(cfg, a)

	logger, logFile, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	} else {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	logger.Info("starting mediacovers", "version", Version, "server", cfg.Server.URL)

	if !cfg.IsConfigured() {
		return errors.New("no server configured: pass --server or set server.url in config.yaml")
	}
	if err := promptPassword(cfg); err != nil {
		return err
	}

	outcomes, err := store.NewOutcomeStore(cfg.StorePath(), cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open outcome store: %w", err)
	}
	defer outcomes.Close()

	fetcher, err := fetch.NewClient(cfg.Server.URL, logger,
		fetch.WithBasicAuth(cfg.Server.Username, cfg.Server.Password))
	if err != nil {
		return fmt.Errorf("failed to create cover client: %w", err)
	}
	lister := listing.NewClient(cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, logger)
	resolver := cover.NewResolver(cfg.PathConfig(), outcomes, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := service.CoverOptions{
		Scheduler: cfg.SchedulerConfig(),
		Gate:      cfg.GateConfig(),
	}

	if a.Plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		covers := service.NewCoverService(resolver, fetcher, outcomes, opts, logger)
		defer covers.Close()
		browse := service.NewBrowseService(lister, covers, logger)
		return runPlain(ctx, os.Stdout, browse, covers, cfg.Server.Dir, a.Filter)
	}

	view := tui.NewViewState()
	opts.Viewport = view.Viewport()
	covers := service.NewCoverService(resolver, fetcher, outcomes, opts, logger)
	defer covers.Close()
	covers.StartMaintenance(ctx)
	browse := service.NewBrowseService(lister, covers, logger)
	playback := service.NewPlaybackService(
		adapter.NewPlayer(cfg.Launch.PlayerCommand, cfg.Launch.PlayerArgs, logger),
		adapter.NewCoverViewer(cfg.Launch.ViewerCommand, cfg.Launch.ViewerArgs, logger),
		covers,
		func(path string) (string, error) {
			return adapter.ServerURL(cfg.Server.URL, path, cfg.Server.Username, cfg.Server.Password)
		},
		logger,
	)

	model := tui.NewModel(browse, covers, playback, cfg.ReadinessConfig(), view, cfg.Server.Dir)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	logger.Info("starting TUI")
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down", "stats", covers.Stats())
	return nil
}

// applyArgs lets flags override the loaded configuration.
func applyArgs(cfg *adapter.Config, a args) {
	if a.Server != "" {
		cfg.Server.URL = a.Server
	}
	if a.Dir != "" {
		cfg.Server.Dir = a.Dir
	}
	if a.User != "" {
		cfg.Server.Username = a.User
	}
}

// promptPassword asks for the basic auth password when a username is set
// without one.
func promptPassword(cfg *adapter.Config) error {
	if cfg.Server.Username == "" || cfg.Server.Password != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Server.Username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Server.Password = string(password)
	return nil
}
