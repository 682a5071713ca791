// Package main initializes and starts the kosync server, setting up
// configuration, logging, the storage backend, repositories, services,
// handlers, metrics and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/kosync/internal/config"
	"github.com/atinyakov/kosync/internal/db"
	"github.com/atinyakov/kosync/internal/logger"
	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/password"
	"github.com/atinyakov/kosync/internal/repository"
	"github.com/atinyakov/kosync/internal/server/handler/http"
	"github.com/atinyakov/kosync/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	if options.Version {
		fmt.Printf("kosync %s (built %s)\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log.Log, os.Stdout); err != nil {
		log.Log.Fatal("server stopped", zap.Error(err))
	}
}

// store is an opened storage backend.
type store struct {
	auth     service.AuthRepository
	progress service.ProgressRepository
	stats    db.StatsSource
	close    func() error
}

// openStore opens the backend selected by options.
func openStore(options *config.Options, log *zap.Logger) (*store, error) {
	switch options.Storage {
	case config.StorageFS:
		layout, err := repository.InitFilesystem(options.DataPath, options.NoAuth)
		if err != nil {
			return nil, err
		}
		progress := repository.NewFileProgressRepository(layout, log)
		return &store{
			auth:     repository.NewFileAuthRepository(layout),
			progress: progress,
			stats:    progress,
			close:    func() error { return nil },
		}, nil
	case config.StorageSQLite, config.StoragePostgres:
		var (
			conn *sql.DB
			err  error
		)
		if options.Storage == config.StorageSQLite {
			if err := os.MkdirAll(options.DataPath, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
			conn, err = db.InitSQLite(options.DatabaseDSN)
		} else {
			conn, err = db.InitPostgres(options.DatabaseDSN)
		}
		if err != nil {
			return nil, err
		}
		progress := repository.NewSQLProgressRepository(conn, log)
		return &store{
			auth:     repository.NewSQLAuthRepository(conn),
			progress: progress,
			stats:    progress,
			close:    conn.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", options.Storage)
	}
}

// run serves until ctx is cancelled or a listener fails.
func run(ctx context.Context, options *config.Options, log *zap.Logger, banner io.Writer) error {
	st, err := openStore(options, log)
	if err != nil {
		return fmt.Errorf("cannot init storage: %w", err)
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	hasher, err := password.NewHasher(options.PasswordHash)
	if err != nil {
		return err
	}

	// Initialize business-logic services.
	authService := service.NewAuthService(st.auth,
		service.WithHasher(hasher),
		service.WithAnonymous(options.NoAuth),
		service.WithLogger(log),
	)
	if err := authService.Bootstrap(ctx); err != nil {
		return fmt.Errorf("cannot prepare anonymous identity: %w", err)
	}
	syncService := service.NewSyncService(st.progress, authService)

	var m *metrics.Metrics
	if options.MetricsAddress != "" {
		m = metrics.New()
		db.StartStatsCollector(ctx, st.stats, time.Duration(options.StatsInterval), m.SetStoreStats, log)
	}

	// Create HTTP handlers and the router.
	authHandler := &http.AuthHandler{AuthService: authService, Log: log, Metrics: m}
	syncHandler := &http.SyncHandler{SyncService: syncService, Log: log, Metrics: m}
	router := http.NewRouter(authHandler, syncHandler, log, m)

	server := newServer(options.Address, router)
	if options.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load server TLS cert/key: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	printBanner(banner, options)

	g, gctx := errgroup.WithContext(ctx)
	servers := []*nethttp.Server{server}
	g.Go(func() error {
		log.Info("starting sync server",
			zap.String("addr", options.Address),
			zap.String("storage", options.Storage),
			zap.Bool("tls", options.TLSEnabled()),
			zap.Bool("noauth", options.NoAuth),
		)
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		return ignoreClosed(err)
	})

	if m != nil {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer := newServer(options.MetricsAddress, mux)
		servers = append(servers, metricsServer)
		g.Go(func() error {
			log.Info("starting metrics server", zap.String("addr", options.MetricsAddress))
			return ignoreClosed(metricsServer.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		log.Info("servers stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newServer(addr string, h nethttp.Handler) *nethttp.Server {
	return &nethttp.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, nethttp.ErrServerClosed) {
		return nil
	}
	return err
}

func printBanner(w io.Writer, options *config.Options) {
	fmt.Fprintf(w, "kosync %s\n", cmp.Or(version, "N/A"))
	fmt.Fprintf(w, "Build date: %s\n", cmp.Or(buildDate, "N/A"))
	switch options.Storage {
	case config.StorageFS:
		fmt.Fprintf(w, "Data directory is %s\n", options.DataPath)
	case config.StorageSQLite:
		fmt.Fprintf(w, "SQLite database is %s\n", options.DatabaseDSN)
	default:
		fmt.Fprintln(w, "Storing data in PostgreSQL")
	}
	if options.NoAuth {
		fmt.Fprintln(w, "Authentication will be ignored, noauth is enabled")
	}
	fmt.Fprintf(w, "Serving on %s\n", options.Address)
}
