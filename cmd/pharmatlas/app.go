package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pharmatlas/internal/config"
	"pharmatlas/internal/engine"
	"pharmatlas/internal/gene"
	"pharmatlas/internal/journal"
	"pharmatlas/internal/kg"
	"pharmatlas/internal/metrics"
	"pharmatlas/internal/server"
	"pharmatlas/internal/upstream"
)

const (
	serviceNCBI           = "ncbi"
	serviceKnowledgeGraph = "knowledge_graph"
)

// app holds the wired components for one process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	journal *journal.Journal
	guards  []*upstream.Guard
	engine  *engine.Engine
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	observers := upstream.Observers{metrics.Upstream{}}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.MaxRows, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		a.journal = j
		observers = append(observers, j)
	}

	ncbiGuard := upstream.New(guardSettings(serviceNCBI, cfg.Breaker, cfg.NCBI.RequestsPerSecond, cfg.NCBI.Burst), observers, logger)
	kgGuard := upstream.New(guardSettings(serviceKnowledgeGraph, cfg.Breaker, cfg.KnowledgeGraph.RequestsPerSecond, cfg.KnowledgeGraph.Burst), observers, logger)
	a.guards = []*upstream.Guard{ncbiGuard, kgGuard}

	resolver := gene.NewResolver(gene.Options{
		Endpoint: cfg.NCBI.URL,
		APIKey:   cfg.NCBI.APIKey,
		Timeout:  cfg.NCBI.Timeout,
		Guard:    ncbiGuard,
		Logger:   logger.Named("gene"),
	})
	client := kg.NewClient(kg.Options{
		Endpoint: cfg.KnowledgeGraph.URL,
		Timeout:  cfg.KnowledgeGraph.Timeout,
		Guard:    kgGuard,
		Logger:   logger.Named("kg"),
	})

	a.engine = engine.New(resolver, client, engine.Options{
		DisplayCap:     cfg.Engine.DisplayCap,
		TopK:           cfg.Engine.TopK,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		Logger:         logger.Named("engine"),
	})
	return a, nil
}

func guardSettings(service string, b config.BreakerConfig, rps float64, burst int) upstream.Settings {
	return upstream.Settings{
		Service:           service,
		RequestsPerSecond: rps,
		Burst:             burst,
		FailureThreshold:  b.FailureThreshold,
		MinRequests:       b.MinRequests,
		MaxRequests:       b.MaxRequests,
		Interval:          b.Interval,
		Timeout:           b.Timeout,
	}
}

func (a *app) mcpServer() *server.Server {
	return server.New(a.engine, server.Options{
		Name:                   server.DefaultName,
		Version:                version,
		DefaultLimit:           a.cfg.Engine.DefaultLimit,
		KnowledgeGraphEndpoint: a.cfg.KnowledgeGraph.URL,
		NCBIEndpoint:           a.cfg.NCBI.URL,
		Guards:                 a.guards,
		Journal:                a.journal,
		Logger:                 a.logger.Named("server"),
	})
}

// startMetrics serves /metrics until ctx is done. It is a no-op when no
// address is configured.
func (a *app) startMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		a.logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := serveHTTP(ctx, addr, mux); err != nil {
			a.logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close journal", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// serveHTTP runs an HTTP server on addr and shuts it down gracefully once ctx
// is done.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
