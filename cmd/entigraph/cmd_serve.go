package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"entigraph/internal/entity"
	v1 "entigraph/internal/infrastructure/http/v1"
	"entigraph/internal/infrastructure/metrics"
	"entigraph/internal/infrastructure/storage/postgres"
	"entigraph/pkg/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithLogger(cmd.Context(), log)

			domain, err := loadDomain(cfg.Schema.Path)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Infow("schema loaded", "path", cfg.Schema.Path, "entities", len(domain.List()))

			observer := metrics.NewObserver()
			routerCfg := v1.RouterConfig{
				Domain:  domain,
				Format:  cfg.Format,
				Logger:  log,
				Metrics: observer,
			}

			if cfg.Database.URL != "" {
				pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Database))
				if err != nil {
					return fmt.Errorf("serve: connecting to database: %w", err)
				}
				defer func() {
					pool.LogStats(ctx)
					pool.Close()
				}()
				log.Infow("database connection established", "database", cfg.Database)

				txm := postgres.NewTxManager(pool)
				repo := postgres.NewRepository(txm, entity.WithObserver(observer))
				routerCfg.Store = repo
				routerCfg.Resolver = postgres.NewResolver(domain, repo, txm)
				routerCfg.DB = pool
			} else {
				log.Warn("database.url is empty; entity storage endpoints are disabled")
			}

			httpSrv := &http.Server{
				Addr:              cfg.HTTP.ListenAddr,
				Handler:           v1.NewRouter(routerCfg),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.HTTP.ReadTimeout,
				WriteTimeout:      cfg.HTTP.WriteTimeout,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infow("server starting", "addr", cfg.HTTP.ListenAddr)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			select {
			case <-cmd.Context().Done():
				log.Info("shutting down server...")
			case startErr := <-errCh:
				return startErr
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", err)
			}

			// Drain errCh in case ListenAndServe returned after Shutdown.
			if startErr := <-errCh; startErr != nil {
				return startErr
			}
			log.Info("server stopped")
			return nil
		},
	}
}
