package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradefleet/fleetd/internal/engine"
	"github.com/tradefleet/fleetd/internal/fleet"
	"github.com/tradefleet/fleetd/internal/oplog"
	"github.com/tradefleet/fleetd/internal/server"
	"github.com/tradefleet/fleetd/pkg/config"
	"github.com/tradefleet/fleetd/pkg/logger"
	"github.com/tradefleet/fleetd/pkg/secretstore"
	"github.com/tradefleet/fleetd/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "fleetd.yaml", "config file path")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	sd := shutdown.NewManager()

	authToken, err := resolveAuthToken(cfg, sd)
	if err != nil {
		logger.Errorf("resolve engine token failed: %v", err)
		os.Exit(1)
	}

	api := engine.NewClient(engine.ClientOptions{
		BaseURL:    cfg.Engine.BaseURL,
		AuthToken:  authToken,
		Timeout:    time.Duration(cfg.Engine.TimeoutSeconds) * time.Second,
		RetryCount: cfg.Engine.RetryCount,
	})

	ops, err := oplog.Open(cfg.OplogPath)
	if err != nil {
		logger.Errorf("open oplog failed: %v", err)
		os.Exit(1)
	}
	sd.OnShutdown(func(ctx context.Context) { _ = ops.Close() })

	store := fleet.NewStore()
	resolver := fleet.NewResolver(logger.WithField("component", "resolver"))
	coordinator := fleet.NewCoordinator(api, store, ops, logger.WithField("component", "coordinator"))
	refresher := fleet.NewRefresher(api, resolver, store,
		time.Duration(cfg.Poll.ActiveSeconds)*time.Second,
		time.Duration(cfg.Poll.InactiveSeconds)*time.Second,
		logger.WithField("component", "refresher"))

	srv := server.New(server.Options{
		Store:       store,
		Coordinator: coordinator,
		Refresher:   refresher,
		Oplog:       ops,
		Plan:        cfg.Plan,
		Log:         logger.WithField("component", "server"),
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	go refresher.Run(runCtx)
	sd.OnShutdown(func(ctx context.Context) { cancelRun() })

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sd.OnShutdown(func(ctx context.Context) { _ = httpSrv.Shutdown(ctx) })

	go func() {
		logger.Infof("fleetd listening on %s (engine=%s)", cfg.Listen, cfg.Engine.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sd.Shutdown(ctx)
}

// resolveAuthToken prefers the literal token; otherwise reads the named key
// from the badger secret store.
func resolveAuthToken(cfg *config.Config, sd *shutdown.Manager) (string, error) {
	if cfg.Engine.AuthToken != "" {
		return cfg.Engine.AuthToken, nil
	}
	if cfg.Engine.AuthTokenKey == "" {
		return "", nil
	}
	key, err := secretstore.ParseKey(cfg.SecretStore.EncryptionKey)
	if err != nil {
		return "", err
	}
	st, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.SecretStore.Path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return "", err
	}
	sd.OnShutdown(func(ctx context.Context) { _ = st.Close() })
	token, found, err := st.GetString(cfg.Engine.AuthTokenKey)
	if err != nil {
		return "", err
	}
	if !found {
		logger.Warnf("secretstore key %q not found, engine calls go unauthenticated", cfg.Engine.AuthTokenKey)
	}
	return token, nil
}
