package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aanand-mishra/student-crud/internal/config"
	"github.com/aanand-mishra/student-crud/internal/controller"
	"github.com/aanand-mishra/student-crud/internal/logger"
	"github.com/aanand-mishra/student-crud/internal/querycache"
	"github.com/aanand-mishra/student-crud/internal/recordstore"
	"github.com/aanand-mishra/student-crud/internal/types"
)

const (
	FlagConfig  = "config"
	FlagBaseURL = "base-url"
	FlagVerbose = "verbose"
)

// rootCmd is a base command.
var rootCmd = &cobra.Command{
	Use:           "students",
	Short:         "Student records client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String(FlagConfig, "", "(optional) client config YAML path")
	rootCmd.PersistentFlags().String(FlagBaseURL, "", "(optional) record store base URL, overrides config")
	rootCmd.PersistentFlags().Bool(FlagVerbose, false, "(optional) log requests and cache activity to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatalf("students: %v", err)
	}
}

// app bundles the wired components for one command run.
type app struct {
	log   *slog.Logger
	store *recordstore.Client
	cache *querycache.Cache[[]types.Record]
	ctrl  *controller.Controller
}

// newApp loads the client config and wires store, cache and controller.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	configPath, err := cmd.Flags().GetString(FlagConfig)
	if err != nil {
		return nil, fmt.Errorf("%s flag: %w", FlagConfig, err)
	}
	baseURL, err := cmd.Flags().GetString(FlagBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s flag: %w", FlagBaseURL, err)
	}
	verbose, err := cmd.Flags().GetBool(FlagVerbose)
	if err != nil {
		return nil, fmt.Errorf("%s flag: %w", FlagVerbose, err)
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	lg := logger.Quiet(os.Stderr)
	if verbose {
		lg = logger.Setup(cfg.Env, os.Stderr)
	}

	store, err := recordstore.New(cfg.BaseURL,
		recordstore.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		recordstore.WithLogger(lg),
	)
	if err != nil {
		return nil, err
	}
	cache := querycache.New[[]types.Record](ctx, querycache.WithLogger(lg))
	ctrl := controller.New(cache, store, controller.WithLogger(lg))

	return &app{log: lg, store: store, cache: cache, ctrl: ctrl}, nil
}

// Close tears the cache down, discarding its snapshots.
func (a *app) Close() {
	a.cache.Close()
}
