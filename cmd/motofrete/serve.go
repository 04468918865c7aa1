package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"motofrete/internal/alerts"
	"motofrete/internal/api"
	"motofrete/internal/auth"
	"motofrete/internal/dispatch"
	"motofrete/internal/events"
	"motofrete/internal/geo"
	"motofrete/internal/geocode"
	"motofrete/internal/metrics"
	"motofrete/internal/predict"
	"motofrete/internal/routing"
	"motofrete/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// deps is everything the server and the train command share.
type deps struct {
	store     *store.Store
	predictor *predict.Predictor
	publisher events.Publisher
	server    *api.Server
}

func (d *deps) close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func buildDeps() (*deps, error) {
	driver, dsn := cfg.DatabaseDSN()
	st, err := store.Open(driver, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("storage ready", zap.String("driver", driver))

	ttl, err := time.ParseDuration(cfg.Auth.TokenTTL)
	if err != nil {
		ttl = 0
	}
	tokens := auth.NewManager(cfg.Auth.JWTSecret, ttl)

	var cache geocode.Cache = geocode.NewMemoryCache()
	if cfg.Geocode.RedisURL != "" {
		rc, err := geocode.NewRedisCache(cfg.Geocode.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		cache = rc
		logger.Info("geocode cache on redis")
	}
	geocodeTimeout, _ := time.ParseDuration(cfg.Geocode.Timeout)
	geocoder := geocode.NewGoogle(cfg.Geocode.APIKey, cfg.Geocode.BaseURL,
		cfg.Geocode.City, cfg.Geocode.State, cfg.Geocode.Country,
		geocodeTimeout, cache, logger)

	routingTimeout, _ := time.ParseDuration(cfg.Routing.Timeout)
	router := routing.NewGoogle(cfg.Routing.APIKey, cfg.Routing.BaseURL,
		routingTimeout, logger)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("event stream on kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	base := geo.Point{Lat: cfg.Dispatch.DefaultBaseLat, Lng: cfg.Dispatch.DefaultBaseLng}
	dispatcher := dispatch.New(st, router, publisher, base,
		cfg.Dispatch.DistanceWorkers, logger)
	predictor := predict.New(st, logger)

	server := api.New(st, tokens, geocoder, router, dispatcher,
		metrics.New(st), predictor, alerts.New(st), publisher, logger)

	return &deps{
		store:     st,
		predictor: predictor,
		publisher: publisher,
		server:    server,
	}, nil
}

func runServe(ctx context.Context) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve")
	}

	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	var scheduler *cron.Cron
	if expr := cfg.Predictor.RefreshCron; expr != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(expr, func() {
			d.predictor.TrainAll(context.Background(), time.Now().UTC())
		})
		if err != nil {
			return fmt.Errorf("invalid refresh_cron %q: %w", expr, err)
		}
		scheduler.Start()
		logger.Info("pattern training scheduled", zap.String("cron", expr))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: d.server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
