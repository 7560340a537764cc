package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/config"
	"github.com/gosight/gosight/gaze/internal/consumer"
	"github.com/gosight/gosight/gaze/internal/dwell"
	"github.com/gosight/gosight/gaze/internal/handler"
	"github.com/gosight/gosight/gaze/internal/layout"
	"github.com/gosight/gosight/gaze/internal/pointer"
	"github.com/gosight/gosight/gaze/internal/processor"
	"github.com/gosight/gosight/gaze/internal/producer"
	"github.com/gosight/gosight/gaze/internal/session"
	"github.com/gosight/gosight/gaze/internal/settings"
	"github.com/gosight/gosight/gaze/internal/storage"
	"github.com/gosight/gosight/gaze/internal/target"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/gaze-processor.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Str("clickhouse_addr", cfg.ClickHouse.Addr).
		Str("redis_addr", cfg.Redis.Addr).
		Str("layout", cfg.Layout.Path).
		Str("filter", cfg.Gaze.Filter).
		Msg("Configuration loaded")

	// Initialize ClickHouse
	ch, err := storage.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer ch.Close()
	log.Info().Msg("Connected to ClickHouse")

	// Initialize attention aggregator and settings overrides
	bag := settings.Bag(cfg.Gaze.Settings)
	var attentionAgg *session.Aggregator
	if cfg.Redis.Addr != "" {
		attentionAgg = session.NewAggregator(ch, cfg.Redis)
		defer attentionAgg.Close()
		log.Info().Msg("Attention aggregator initialized")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		overrides, err := settings.LoadRedis(ctx, attentionAgg.Client(), cfg.Redis.SettingsKey)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Using file settings only")
		} else {
			bag = bag.Merge(overrides)
		}
	}

	// Load layout
	var tree *layout.Layout
	if cfg.Layout.Path != "" {
		tree, err = layout.Load(cfg.Layout.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Layout.Path).Msg("Failed to load layout")
		}
		log.Info().Int("elements", tree.Len()).Msg("Layout loaded")
	}

	// Kafka producer for interactions and activation commands
	kafkaProducer, err := producer.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka producer")
	}
	defer kafkaProducer.Close()

	activator := target.NewActivator()
	activator.HandleAll(func(id target.ID, c target.Capability) error {
		return kafkaProducer.PublishCommand(context.Background(), producer.Command{
			CommandID:  uuid.New().String(),
			Type:       producer.CommandActivate,
			TargetID:   string(id),
			Capability: c.String(),
			Timestamp:  time.Now().UnixMilli(),
		})
	})

	device := consumer.NewKafkaDevice(cfg.Kafka, func(ctx context.Context, deviceID string) error {
		return kafkaProducer.PublishCommand(ctx, producer.Command{
			CommandID: uuid.New().String(),
			Type:      producer.CommandCalibrate,
			DeviceID:  deviceID,
			Timestamp: time.Now().UnixMilli(),
		})
	})

	defaultMode, err := target.ParseMode(cfg.Gaze.DefaultInteraction)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid default interaction")
	}

	dwellCfg := dwell.DefaultConfig()
	dwellCfg.HistoryMaxEntries = cfg.Gaze.HistoryMaxEntries

	opts := pointer.Options{
		Executor:        pointer.NewLoop(cfg.Gaze.QueueSize),
		Device:          device,
		Activator:       activator,
		FilterKind:      cfg.Gaze.Filter,
		Settings:        bag,
		Dwell:           dwellCfg,
		DefaultMode:     defaultMode,
		AlwaysActivated: cfg.Gaze.AlwaysActivated,
	}
	if tree != nil {
		opts.Tree = tree
	}

	gaze, err := pointer.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gaze pointer")
	}
	if tree != nil {
		gaze.SetLayout(tree, tree.Overrides())
	}

	// Interaction sink
	var agg processor.Aggregator
	if attentionAgg != nil {
		agg = attentionAgg
	}
	interactionProcessor := processor.NewInteractionProcessor(ch, kafkaProducer, agg, cfg.Batch)
	gaze.OnStateChanged(interactionProcessor.Observe)
	gaze.OnAvailabilityChanged(func(available bool) {
		log.Info().Bool("available", available).Msg("Gaze device availability changed")
	})

	// Start pipeline
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := gaze.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Gaze loop stopped")
		}
	}()

	gaze.DeviceAdded(device.ID())
	daemonRoot := gaze.AddRoot("daemon")

	// Create HTTP server
	httpHandler := handler.NewHTTPHandler(gaze)
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handler.CORSMiddleware)
	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	log.Info().Msg("Gaze processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	gaze.RemoveRoot(daemonRoot)
	// Wait for the teardown to run on the loop before stopping it
	if _, err := gaze.Roots(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Gaze loop did not drain")
	}
	cancel()
	// Writes remaining interactions and attention totals
	interactionProcessor.Stop()

	log.Info().Msg("Shutdown complete")
}
