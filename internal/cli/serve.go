package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/config"
	"github.com/example/appointment-store/internal/events"
	httptransport "github.com/example/appointment-store/internal/http"
	"github.com/example/appointment-store/internal/logging"
	"github.com/example/appointment-store/internal/telemetry"
)

func serveCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the appointment API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port, _ = cmd.Flags().GetInt("port")
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			if rt.verbose {
				level = slog.LevelDebug
			}
			logger := logging.New(cmd.OutOrStdout(), logging.Format(cfg.Log.Format), level)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, rt, cfg, logger)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "listen port (overrides configuration)")
	return cmd
}

func runServer(ctx context.Context, rt *runtime, cfg config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "apptstore",
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("failed to flush telemetry", "error", err)
		}
	}()

	b, err := openServerBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	opts := []application.StoreOption{
		application.WithLogger(logger),
		application.WithLocation(loc),
	}
	if cfg.Kafka.Brokers != "" {
		publisher, err := events.NewKafkaPublisher(events.PublisherConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := publisher.Close(); cerr != nil {
				logger.Error("failed to close event publisher", "error", cerr)
			}
		}()
		opts = append(opts, application.WithPublisher(publisher))
	}

	store := application.NewAppointmentStore(b.repo, rt.newID, rt.clock(), opts...)
	if _, err := store.LoadAll(ctx); err != nil {
		logger.Warn("initial load failed, starting with an empty working set", "backend", b.name, "error", err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Appointments: httptransport.NewAppointmentHandler(store, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.WithCORS(httptransport.DefaultCORSPolicy(cfg.HTTP.CORSOrigins)),
		},
		Ready: func(r *http.Request) error {
			if b.ready == nil {
				return nil
			}
			return b.ready(r.Context())
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(router, "apptstore"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("appointment API listening", "addr", server.Addr, "backend", b.name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server encountered error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout.String())
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
