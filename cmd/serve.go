package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"chat-server/config"
	"chat-server/models"
	"chat-server/routes"
	"chat-server/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and push socket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, loadConfig())
	},
}

func init() {
	serveCmd.Flags().Int("port", 8082, "HTTP listen port")
	_ = viper.BindPFlag("app_port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(reg)

	registry := services.NewRegistry(metrics)
	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.DBTimeout)
	storage := services.NewStorage(afero.NewOsFs(), cfg.StorageDir, cfg.StoragePublicURL)
	messages := services.NewMessageService(db, registry, storage, metrics, cfg.DBTimeout)
	calls := services.NewCallService(db, registry, metrics, cfg.DBTimeout)

	handler := routes.RegisterRoutes(routes.Deps{
		Auth:          auth,
		Users:         services.NewUserService(db, cfg.DBTimeout),
		Contacts:      services.NewContactService(db, cfg.DBTimeout),
		Groups:        services.NewGroupService(db, cfg.DBTimeout),
		Conversations: services.NewConversationService(db, messages, cfg.DBTimeout),
		Messages:      messages,
		Calls:         calls,
		Storage:       storage,
		Push:          services.NewPushServer(registry, auth, cfg.PushPingInterval, cfg.PushPongTimeout),
		Gatherer:      reg,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		return calls.RunExpiry(gctx, cfg.RingTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		registry.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}
