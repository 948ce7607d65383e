// Command gateway serves a ledger node's RPC interface as a typed JSON API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/urfave/cli"

	"github.com/R3E-Network/ledger_gateway/internal/chain"
	"github.com/R3E-Network/ledger_gateway/internal/codecs"
	"github.com/R3E-Network/ledger_gateway/internal/config"
	"github.com/R3E-Network/ledger_gateway/internal/flowcache"
	"github.com/R3E-Network/ledger_gateway/internal/httpapi"
	"github.com/R3E-Network/ledger_gateway/internal/ledger/catalog"
	"github.com/R3E-Network/ledger_gateway/internal/metrics"
	"github.com/R3E-Network/ledger_gateway/internal/middleware"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
	"github.com/R3E-Network/ledger_gateway/internal/system"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

var (
	configFlag = cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to a YAML or TOML configuration file",
		EnvVar: "GATEWAY_CONFIG",
	}
	envFileFlag = cli.StringFlag{
		Name:  "env-file",
		Usage: "dotenv file loaded before the environment is read",
		Value: ".env",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen, l",
		Usage: "override server.listen_addr",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "override logging.level",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "gateway"
	app.Usage = "typed JSON gateway for a ledger node"
	app.Version = "v0.1.0"
	app.Flags = []cli.Flag{configFlag, envFileFlag, listenFlag, logLevelFlag}
	app.Action = serve
	app.Commands = []cli.Command{
		{
			Name:   "schemas",
			Usage:  "print the JSON schema of every catalog type and exit",
			Action: printSchemas,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if err := config.LoadEnvFile(c.GlobalString(envFileFlag.Name)); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(c.GlobalString(configFlag.Name))
	if err != nil {
		return config.Config{}, err
	}
	if v := c.GlobalString(listenFlag.Name); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := c.GlobalString(logLevelFlag.Name); v != "" {
		cfg.Logging.Level = v
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := serialization.NewRegistry(
		serialization.WithLogger(log.Named("codecs")),
		serialization.WithObserver(metrics.CodecObserver{}),
	)
	cat := catalog.IOU()
	client, err := chain.NewClient(cfg.Node, registry,
		chain.WithCatalog(cat),
		chain.WithLogger(log.Named("chain")),
	)
	if err != nil {
		return err
	}
	codecs.Register(registry, codecs.Deps{Identities: client, States: client})

	store, err := flowcache.Open(ctx, cfg.FlowCache)
	if err != nil {
		return fmt.Errorf("open flow cache: %w", err)
	}
	defer store.Close()

	tracker := flowcache.NewTracker(client, registry, store, cfg.FlowCache, log.Named("flow-tracker"))
	if err := metrics.RegisterTrackedFlows(tracker.Tracked); err != nil {
		return err
	}

	mws := []mux.MiddlewareFunc{
		middleware.Logging(log.Named("http")),
		middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler,
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.Named("ratelimit"))
		if cfg.RateLimit.CleanupInterval > 0 {
			limiter.StartCleanup(ctx, cfg.RateLimit.CleanupInterval)
		}
		mws = append(mws, limiter.Handler)
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Node:     client,
		Registry: registry,
		Catalog:  cat,
		Tracker:  tracker,
		Log:      log.Named("httpapi"),
	}, mws...)
	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.Server.ListenAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handler, log.Named("http-server"))

	manager := system.NewManager(log.Named("system"))
	for _, svc := range []system.Service{tracker, server} {
		if err := manager.Register(svc); err != nil {
			return err
		}
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	log.WithField("node", cfg.Node.RPCURL).Info("gateway started")

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return manager.Stop(shutdownCtx)
}

// printSchemas resolves every catalog type without contacting the node.
func printSchemas(c *cli.Context) error {
	registry := serialization.NewRegistry(serialization.WithLogger(logger.NewDiscard()))
	cat := catalog.IOU()
	codecs.Register(registry, codecs.Deps{States: cat})

	schemas := make(map[string]*serialization.Schema)
	for _, key := range cat.Keys() {
		codec, err := registry.Resolve(key)
		if err != nil {
			return err
		}
		schemas[key.String()] = codec.Schema()
	}
	out, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
