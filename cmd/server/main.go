package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/config"
	"github.com/eternalApril/mixedds/internal/logger"
	"github.com/eternalApril/mixedds/internal/metrics"
	metricsprom "github.com/eternalApril/mixedds/internal/metrics/prometheus"
	"github.com/eternalApril/mixedds/internal/server"
	"github.com/eternalApril/mixedds/internal/shard"
)

const shutdownTimeout = 5 * time.Second

var cli struct {
	ConfigDir string `help:"Directory holding config.yaml." default:"." type:"path"`
	LogLevel  string `help:"Overrides the configured log level (debug, info, warn, error)."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("mixedds"),
		kong.Description("In-memory cache serving the RESP and memcache text protocols from one keyspace."),
	)

	if err := run(); err != nil {
		// the logger may not exist yet
		os.Stderr.WriteString("mixedds: " + err.Error() + "\n") //nolint:errcheck
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(cli.ConfigDir)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	log.Info("mixedds starting",
		zap.String("version", server.Version),
		zap.String("resp_port", cfg.Server.RESPPort),
		zap.String("memcache_port", cfg.Server.MemcachePort),
		zap.Uint("shards", cfg.Storage.Shards),
		zap.Int("max_entries", cfg.Storage.MaxEntries),
	)

	cache := metrics.Nop()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		cache = metricsprom.NewCacheMetrics(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("address", cfg.Metrics.Addr))
	}

	pool, err := shard.New(shard.Config{
		Shards:     cfg.Storage.Shards,
		MaxEntries: cfg.Storage.MaxEntries,
		Interval:   cfg.GC.SweepInterval(),
	}, cache, log)
	if err != nil {
		return pkgerrors.Wrap(err, "initialize storage")
	}
	defer pool.Close()

	srv := server.New(pool, cache, log)

	respAddr := net.JoinHostPort(cfg.Server.Host, cfg.Server.RESPPort)
	respLn, err := net.Listen("tcp", respAddr)
	if err != nil {
		return pkgerrors.Wrapf(err, "listen on %s", respAddr)
	}
	log.Info("listening on", zap.String("address", respAddr), zap.String("protocol", "resp"))

	errs := make(chan error, 2)
	go func() { errs <- srv.ServeRESP(respLn) }()

	if cfg.Server.MemcachePort != "" {
		mcAddr := net.JoinHostPort(cfg.Server.Host, cfg.Server.MemcachePort)
		mcLn, err := net.Listen("tcp", mcAddr)
		if err != nil {
			respLn.Close() //nolint:errcheck
			return pkgerrors.Wrapf(err, "listen on %s", mcAddr)
		}
		log.Info("listening on", zap.String("address", mcAddr), zap.String("protocol", "memcache"))
		go func() { errs <- srv.ServeMemcache(mcLn) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			log.Error("listener stopped", zap.Error(err))
		}
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
	} else {
		log.Info("All connections closed gracefully")
	}

	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}

	log.Info("mixedds stopped")
	return nil
}
