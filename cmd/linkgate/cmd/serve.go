package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/khamel/linkgate/internal/adapter/inbound/http"
	"github.com/khamel/linkgate/internal/config"
	"github.com/khamel/linkgate/internal/domain/auth"
	"github.com/khamel/linkgate/internal/domain/identity"
	"github.com/khamel/linkgate/internal/domain/route"
	"github.com/khamel/linkgate/internal/domain/session"
	"github.com/khamel/linkgate/internal/kv"
	"github.com/khamel/linkgate/internal/kv/memory"
	"github.com/khamel/linkgate/internal/kv/rediskv"
	"github.com/khamel/linkgate/internal/kv/sqlitekv"
	"github.com/khamel/linkgate/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the linkgate server.

The store backend is selected by store.backend (memory, redis or sqlite).
The memory backend loses all routes and sessions on restart; use it for
development only.

Examples:
  # Start with config file settings
  linkgate serve

  # Start with a specific config file
  linkgate --config /path/to/linkgate.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("linkgate stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sessions := session.NewManager(store, session.Config{TTL: cfg.SessionTTL()})
	routes := route.NewTable(store)
	access := auth.NewAccessControl(sessions, cfg.Auth.APISecretHash, cfg.Auth.AdminTenant)
	gateway := identity.NewGateway(identity.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		ProfileURL:   cfg.OAuth.ProfileURL,
		RedirectURL:  cfg.OAuth.RedirectURL,
		AllowedEmail: cfg.OAuth.AllowedEmail,
		Tenant:       cfg.OAuth.Tenant,
		HTTPTimeout:  cfg.OAuthHTTPTimeout(),
	}, store)

	views := service.NewViewCounter(store, logger)
	defer views.Wait()

	handler := httpadapter.NewHandler(httpadapter.HandlerConfig{
		Routes:        routes,
		Sessions:      sessions,
		Access:        access,
		Gateway:       gateway,
		Views:         views,
		Domain:        cfg.Server.Domain,
		DefaultTenant: cfg.Server.DefaultTenant,
	})

	opts := []httpadapter.Option{
		httpadapter.WithAddr(cfg.Server.Addr),
		httpadapter.WithLogger(logger),
		httpadapter.WithHealthChecker(httpadapter.NewHealthChecker(store, version)),
	}
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		opts = append(opts, httpadapter.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}
	transport := httpadapter.NewTransport(handler, access, opts...)

	if cfg.Status.Enabled {
		poller := service.NewStatusPoller(store, logger, service.StatusConfig{
			Interval:     cfg.StatusInterval(),
			ProbeTimeout: cfg.StatusProbeTimeout(),
			Probes:       transport.Metrics().ProbesTotal,
		})
		poller.Start(ctx)
		defer poller.Stop()
		logger.Info("status poller started", "interval", cfg.Status.Interval)
	}

	logger.Info("linkgate starting",
		"addr", cfg.Server.Addr,
		"domain", cfg.Server.Domain,
		"store", cfg.Store.Backend,
	)
	return transport.Start(ctx)
}

// buildStore constructs the configured kv backend and returns a cleanup
// function releasing it.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kv.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		s := memory.NewStore()
		s.StartSweeper(ctx)
		return s, s.Stop, nil

	case "redis":
		s, err := rediskv.NewStore(ctx, rediskv.Config{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close redis store", "error", err)
			}
		}, nil

	case "sqlite":
		s, err := sqlitekv.NewStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.StartSweeper(ctx)
		return s, func() {
			if err := s.Stop(); err != nil {
				logger.Warn("failed to close sqlite store", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// parseLogLevel maps the configured level to slog. Unknown values fall back
// to info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
