package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"diary-sync-server/internal/config"
	"diary-sync-server/internal/handler"
	"diary-sync-server/internal/metrics"
	"diary-sync-server/internal/middleware"
	"diary-sync-server/internal/repository"
	"diary-sync-server/internal/service"
	"diary-sync-server/internal/stream"
	"diary-sync-server/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout  = 30 * time.Second
	storeOpenTimeout = 15 * time.Second
)

type serveFlags struct {
	addr  string
	store string
}

var defaultServeFlags = &serveFlags{}

func init() {
	flags := &serveFlags{}

	serveCmd := &cobra.Command{
		Use:   "serve [--addr host:port] [--store couch|sqlite|memory]",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	serveCmd.Flags().StringVar(&flags.addr, "addr", "", "listen address, overrides HOST and PORT")
	serveCmd.Flags().StringVar(&flags.store, "store", "", "store driver, overrides STORE_DRIVER")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, flags *serveFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.store != "" {
		if err := config.ValidateDriver(flags.store); err != nil {
			return err
		}
		cfg.Store.Driver = flags.store
	}
	addr := cfg.Server.Addr()
	if flags.addr != "" {
		addr = flags.addr
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	openCtx, cancelOpen := context.WithTimeout(ctx, storeOpenTimeout)
	store, err := repository.Open(openCtx, cfg, log)
	cancelOpen()
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	m := metrics.New()
	store.Instrument(m)

	if cfg.Diary.WritePass == "" {
		log.Warn("DIARY_PASS not set; every write will be rejected")
	}

	diaryService := service.NewDiaryService(store.Entries, store.Versions, cfg.Diary, log)
	unlockService, err := service.NewUnlockService(cfg.Session, log)
	if err != nil {
		return err
	}

	watcher := stream.NewWatcher(diaryService, cfg.Stream.Interval).WithObserver(m)

	r := handler.NewRouter(handler.RouterDeps{
		Diary:    handler.NewDiaryHandler(diaryService, m, log),
		Stream:   handler.NewStreamHandler(watcher, m, log),
		Unlock:   handler.NewUnlockHandler(unlockService),
		Health:   handler.NewHealthHandler(store, store.Driver, log),
		Sessions: unlockService,
		Limiter:  middleware.NewLimiter(cfg.RateLimit),
		Metrics:  m,
		CORS:     cfg.CORS,
		Logger:   log,
	})

	// Streams derive their context from baseCtx, so cancelling it at
	// shutdown ends them instead of letting Shutdown wait on them.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting diary sync server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String(logger.FieldDriver, store.Driver),
			zap.Duration("stream_interval", cfg.Stream.Interval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info("shutting down server")
	cancelStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
