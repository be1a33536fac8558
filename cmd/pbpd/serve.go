package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/mind-engage/pbpd/internal/api/http"
	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/config"
	"github.com/mind-engage/pbpd/internal/db"
	"github.com/mind-engage/pbpd/internal/history"
	"github.com/mind-engage/pbpd/internal/metrics"
	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/rbac"
	"github.com/mind-engage/pbpd/internal/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, log)
		},
	}
	f := cmd.Flags()
	f.String("http.addr", "", "listen address")
	f.String("mode", "", "offline|online")
	f.String("db.driver", "", "sqlite|postgres")
	f.String("db.dsn", "", "database DSN")
	f.String("blob.base_path", "", "directory for stored reports and batch outputs")
	return cmd
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()
	hist := history.NewSQLStore(dbh)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}
	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}
	m := metrics.New()
	svc := predict.NewService(reg,
		predict.WithHistory(hist),
		predict.WithMetrics(m),
		predict.WithLogger(log.Named("predict")),
	)

	deps := api.Deps{
		Service:       svc,
		Blobs:         bs,
		History:       hist,
		Metrics:       m,
		Log:           log.Named("http"),
		AnonymousRole: rbac.RoleAdmin,
		CORSOrigins:   cfg.CORSOrigins,
		Timeout:       30*time.Second + cfg.ModelsTimeout,
		Ready:         dbh.PingContext,
	}
	if cfg.EnableAuth {
		deps.Auth = auth.NewAuthService(cfg.HMACSecret)
		deps.Credentials = auth.Credentials{User: cfg.AdminUser, PassHash: cfg.AdminPassHash, Role: rbac.RoleAdmin}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.Bool("auth", cfg.EnableAuth))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
