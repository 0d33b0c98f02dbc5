package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jal-shakti/jal-shakti-api/internal/cache"
	"github.com/jal-shakti/jal-shakti-api/internal/config"
	"github.com/jal-shakti/jal-shakti-api/internal/events"
	"github.com/jal-shakti/jal-shakti-api/internal/events/handlers"
	"github.com/jal-shakti/jal-shakti-api/internal/service"
	"github.com/jal-shakti/jal-shakti-api/internal/storage/mongo"
	"github.com/jal-shakti/jal-shakti-api/internal/token"
	apihttp "github.com/jal-shakti/jal-shakti-api/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting jal-shakti-api", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

// run поднимает зависимости, HTTP-сервер и ждёт сигнала завершения.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Подключения с таймаутом.
	connCtx, connCancel := context.WithTimeout(ctx, cfg.Timeouts.Connect)
	defer connCancel()

	db, err := mongo.New(connCtx, cfg.DB)
	if err != nil {
		log.Error("mongo_connect_failed", slog.String("err", err.Error()))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			log.Warn("mongo_close_failed", slog.String("err", err.Error()))
		}
	}()
	log.Info("mongo_connected")

	store, transport, err := setupCache(connCtx, cfg.Redis, log)
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("cache_close_failed", slog.String("err", err.Error()))
		}
	}()
	log.Info("cache_initialized", slog.Bool("in_memory", cfg.Redis.InMemory))

	bus := events.New(transport, events.Options{
		ChannelPrefix: cfg.Events.ChannelPrefix,
		Logger:        log,
	})
	if err := bus.Initialize(connCtx); err != nil {
		log.Error("event_bus_init_failed", slog.String("err", err.Error()))
		return err
	}
	defer func() {
		if err := bus.Disconnect(context.Background()); err != nil {
			log.Warn("event_bus_disconnect_failed", slog.String("err", err.Error()))
		}
	}()

	metrics, err := handlers.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	if err := handlers.RegisterAuthHandlers(connCtx, bus, handlers.NewAuthAudit(log), metrics); err != nil {
		log.Error("auth_handlers_register_failed", slog.String("err", err.Error()))
		return err
	}
	log.Info("event_bus_ready", slog.String("prefix", cfg.Events.ChannelPrefix))

	tokens := token.New(store, cfg.Auth)
	srvc := service.New(db, tokens, bus, cfg.Auth)
	log.Info("service_initialized")

	apiHandler := apihttp.NewRouter(srvc, apihttp.Options{
		Logger:   log,
		Timeout:  cfg.Timeouts.Request,
		BasePath: cfg.HTTP.BasePath,
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 || bus.State() != events.StateInitialized {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		return err
	}
	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("api_ready")

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		if serveErr != nil {
			log.Error("http_serve_failed", slog.String("err", serveErr.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	return serveErr
}

// setupCache выбирает реализацию хранилища и транспорта шины: Redis или
// процессные (redis.in_memory).
func setupCache(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (cache.Store, events.Transport, error) {
	if cfg.InMemory {
		return cache.NewMemoryStore(cfg.KeyPrefix), events.NewMemoryTransport(0), nil
	}

	opts := cache.Options{
		URL:      cfg.URL,
		Password: cfg.Password,
		Prefix:   cfg.KeyPrefix,
	}

	store, err := cache.NewRedisStore(ctx, opts)
	if err != nil {
		return nil, nil, err
	}

	clientOpts, err := cache.ClientOptions(opts)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return store, events.NewRedisTransport(clientOpts, log), nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
