package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/c360studio/provreg/api"
	"github.com/c360studio/provreg/backbone"
	"github.com/c360studio/provreg/config"
	"github.com/c360studio/provreg/constraint"
	"github.com/c360studio/provreg/ingest"
	"github.com/c360studio/provreg/metaprov"
	"github.com/c360studio/provreg/pipeline"
	"github.com/c360studio/provreg/refcheck"
	"github.com/c360studio/provreg/storage"
	"github.com/c360studio/provreg/token"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		watchDir   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry node",
		Long: `Serve starts the registry: the HTTP API, the connector reference
resolver, and optionally a drop-directory watcher that ingests document
files as they appear.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, watchDir)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Drop directory to watch for documents (enables watching)")

	return cmd
}

func runServe(configPath, watchDir string) error {
	logger := slog.Default()

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if watchDir != "" {
		cfg.Watch.Enabled = true
		cfg.Watch.Dir = watchDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ownHost, err := hostOf(cfg.Node.BaseURL)
	if err != nil {
		return fmt.Errorf("node.base_url: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsClient, err := connectToNATS(ctx, cfg.NATS.URL, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get JetStream context: %w", err)
	}
	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	var cache *refcheck.ProbeCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()
		cache = refcheck.NewProbeCache(rdb, cfg.Redis.ProbeTTL, logger)
		logger.Info("Probe cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.ProbeTTL)
	}

	tokenClient := token.NewClient(cfg.TrustedParty.URL,
		&http.Client{Timeout: cfg.TrustedParty.Timeout}, logger)

	prober := refcheck.NewHTTPProber(&http.Client{Timeout: cfg.Resolver.Timeout})
	resolver := refcheck.NewResolver(ownHost, prober,
		token.RefFetcher{Client: tokenClient}, store, cache, cfg.Resolver.Timeout, logger)

	pipe := pipeline.New(ownHost, backbone.NewClassifier(nil), resolver,
		constraint.NewChecker(), nil, logger)
	builder := metaprov.NewBuilder(store, logger)

	var lineageClient *natsclient.Client
	if cfg.NATS.LineageStream {
		lineageClient = natsClient
	}

	handler := api.NewHandler(pipe, tokenClient, builder, store, lineageClient, logger)

	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(mux)
	mux.Handle("/metrics", promhttp.Handler())

	if cfg.Watch.Enabled {
		watcher, err := ingest.NewWatcher(cfg.Watch, cfg.Watch.Dir, logger)
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() { _ = watcher.Stop() }()

		submit := ingest.SubmitFunc(func(ctx context.Context, orgID, name string, body []byte) error {
			_, err := handler.StoreDocument(ctx, orgID, name, body)
			return err
		})
		ingester := ingest.NewIngester(watcher, submit, cfg.Node.DefaultOrg, logger)
		go ingester.Run(ctx)
	}

	server := &http.Server{
		Addr:              cfg.Node.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Registry listening",
			"addr", cfg.Node.Listen,
			"base_url", cfg.Node.BaseURL,
			"version", Version)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// loadConfig loads from an explicit file when given, otherwise through the
// layered loader.
func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.NewLoader(logger).Load()
}

// hostOf extracts the authority (host[:port]) from a base URL.
func hostOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", baseURL)
	}
	return u.Host, nil
}

// connectToNATS establishes the NATS connection used for storage and
// lineage publishing.
func connectToNATS(ctx context.Context, natsURL string, logger *slog.Logger) (*natsclient.Client, error) {
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURL = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, natsURL string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf("NATS connection failed: %w\n\nNATS is not running at %s.\nStart it with: nats-server -js", err, natsURL)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}
