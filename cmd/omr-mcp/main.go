package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/ironsheep/omr-scan-mcp/internal/config"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/keystore"
	"github.com/ironsheep/omr-scan-mcp/internal/omr"
	"github.com/ironsheep/omr-scan-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type args struct {
	Config     string `arg:"-c,--config" help:"JSON configuration file" placeholder:"FILE"`
	Layout     string `arg:"-l,--layout" help:"built-in layout name (fiducial-a4, table-3x15)"`
	LayoutFile string `arg:"--layout-file" help:"JSON layout file merged over the built-in layout" placeholder:"FILE"`
	Backend    string `arg:"-b,--backend" help:"image backend: native, or gocv when built with -tags gocv"`
	KeyPath    string `arg:"--key" help:"answer key file (default: XDG data directory)" placeholder:"FILE"`
	LogLevel   string `arg:"--log-level,env:OMR_MCP_LOG_LEVEL" help:"debug, info, warn or error"`

	WriteConfig string `arg:"--write-config" help:"write the effective configuration to FILE and exit" placeholder:"FILE"`

	Watch *watchCmd `arg:"subcommand:watch" help:"read sheets from a camera folder or the screen and print results"`
}

func (args) Version() string {
	return fmt.Sprintf("omr-scan-mcp %s (built %s, commit %s)", Version, BuildTime, GitCommit)
}

func (args) Description() string {
	return "omr-scan-mcp - MCP server that reads and grades photographed answer sheets.\n" +
		"Without a subcommand it speaks MCP over stdin/stdout; configure it in your MCP client."
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := loadConfig(a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "omr-scan-mcp: %v\n", err)
		os.Exit(2)
	}

	if a.WriteConfig != "" {
		if err := cfg.Save(a.WriteConfig); err != nil {
			fmt.Fprintf(os.Stderr, "omr-scan-mcp: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Logging goes to stderr; stdout is for MCP protocol.
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, a.Watch, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(a args) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if a.Config != "" {
		var err error
		if cfg, err = config.Load(a.Config); err != nil {
			return nil, err
		}
	}
	if a.Layout != "" {
		cfg.Layout = a.Layout
	}
	if a.LayoutFile != "" {
		cfg.LayoutFile = a.LayoutFile
	}
	if a.Backend != "" {
		cfg.Backend = a.Backend
	}
	if a.KeyPath != "" {
		cfg.KeyPath = a.KeyPath
	}
	if a.LogLevel != "" {
		cfg.LogLevel = a.LogLevel
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config, w *watchCmd, logger *slog.Logger) error {
	l, err := cfg.ResolveLayout()
	if err != nil {
		return err
	}
	backend, err := imaging.NewBackend(cfg.Backend)
	if err != nil {
		return err
	}
	store, err := keystore.New(cfg.KeyPath)
	if err != nil {
		return err
	}
	logger.Debug("answer key store", "path", store.Path())

	session, err := omr.NewSession(l, backend, omr.WithLogger(logger), omr.WithKeyStore(store))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if w != nil {
		src, err := w.source()
		if err != nil {
			return err
		}
		return watch(ctx, session, cfg.Live, src, w, os.Stdout, logger)
	}

	srv := server.New(session, cfg, Version)
	return srv.Run(ctx, os.Stdin, os.Stdout)
}
