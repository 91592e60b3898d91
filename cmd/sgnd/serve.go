package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sgn-project/sgnd/config"
	"github.com/sgn-project/sgnd/db"
	"github.com/sgn-project/sgnd/fanout"
	"github.com/sgn-project/sgnd/ingest"
	"github.com/sgn-project/sgnd/internal/version"
	"github.com/sgn-project/sgnd/kustore"
	"github.com/sgn-project/sgnd/logger"
	"github.com/sgn-project/sgnd/metrics"
	"github.com/sgn-project/sgnd/outbox"
	"github.com/sgn-project/sgnd/seencache"
	"github.com/sgn-project/sgnd/trust"
)

var jsonLogs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon's HTTP and WebSocket surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of console output")
}

func printBanner() {
	pterm.Info.Printfln("sgnd %s -- gossip daemon for signed, content-addressed knowledge units", version.Get().Short())
}

func runServe() error {
	if err := logger.Initialize(jsonLogs); err != nil {
		exitWith(1, "logger init failed: %v", err)
	}
	defer logger.Cleanup()

	cfg, err := config.Load()
	if err != nil {
		exitWith(1, "config error: %v", err)
	}

	if !jsonLogs {
		printBanner()
	}

	sqlDB, err := db.OpenWithMigrations(cfg.DB.Path, logger.Logger)
	if err != nil {
		exitWith(3, "db open failed: %v", err)
	}
	defer sqlDB.Close()

	kuStore, err := kustore.Open(sqlDB, cfg.DB.BlobDir)
	if err != nil {
		exitWith(3, "kustore open failed: %v", err)
	}
	obStore := outbox.Open(sqlDB)

	trustStore, err := trust.Open(cfg.Trust.Path, logger.Logger)
	if err != nil {
		exitWith(1, "trust store open failed: %v", err)
	}
	watcher, err := trust.NewWatcher(trustStore, logger.Logger)
	if err != nil {
		exitWith(1, "trust watcher failed: %v", err)
	}
	defer watcher.Stop()

	seen := seencache.New(seencache.DefaultSize, seencache.DefaultTTL)
	mx := metrics.New()
	hub := fanout.NewHub(obStore, kuStore, mx)

	metricsStop := make(chan struct{})
	defer close(metricsStop)
	go runMetricsTicker(obStore, mx, metricsStop)

	srv := &ingest.Server{
		DB:        sqlDB,
		KUs:       kuStore,
		Outbox:    obStore,
		Trust:     trustStore,
		Seen:      seen,
		Metrics:   mx,
		Hub:       hub,
		StartedAt: time.Now(),
	}

	addr := ":" + strconv.Itoa(cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.RequestTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		exitWith(2, "port in use: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", addr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return waitForShutdown(httpServer, errCh)
}

// runMetricsTicker is the dedicated metric-maintenance task called for by
// the scheduling model in §5: gauges like outbox_queue_len reflect store
// state rather than request counters, so nothing on the request path
// updates them directly.
func runMetricsTicker(obStore *outbox.Store, mx *metrics.Registry, stop <-chan struct{}) {
	ticker := time.NewTicker(fanout.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			latest, err := obStore.LatestSeq()
			if err != nil {
				logger.Errorw("failed to read outbox depth for metrics", "error", err)
				continue
			}
			mx.OutboxQueueLen.Set(float64(latest))
		}
	}
}

func waitForShutdown(httpServer *http.Server, errCh chan error) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")
	}

	// A second signal forces an immediate exit, for operators who don't
	// want to wait out the graceful drain.
	go func() {
		<-sigCh
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}

func exitWith(code int, format string, args ...interface{}) {
	logger.Errorf(format, args...)
	os.Exit(code)
}
