package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/config"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/eventloop"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/positioning"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/service_registry"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/utils"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/bus"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file, falling back to defaults when it does not exist
	cfg := config.Default()
	if exists, _ := fileClient.IsFileExists(*configPath); exists {
		loaded, err := config.Load(*configPath, fileClient)
		if err != nil {
			bootLog.Fatal().Err(err).Msg("Failed to load configuration")
		}
		cfg = loaded
	}

	log, err := utils.NewLogger(cfg.Logging, os.Stdout, "positioning")
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to set up logging")
	}

	// Generate a unique MQTT Client ID by appending a UUID
	clientID := cfg.Bus.ClientID + "-" + uuid.NewString()
	log.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(log)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:         cfg.Bus.Broker,
		ClientID:       clientID,
		CACertificate:  cfg.Bus.CACertificate,
		Username:       cfg.Bus.Username,
		Password:       cfg.Bus.Password,
		ConnectTimeout: cfg.Bus.ConnectTimeout,
	}, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loop := eventloop.New()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(loopCtx)
	}()

	// The adapter is owned by the event loop; every call into it goes through Invoke.
	var adapter *positioning.Adapter
	err = loop.Invoke(ctx, func() {
		adapter = positioning.NewAdapter(
			loop,
			positioning.BusRegistrar(mqttClient, log, bus.WithQoS(byte(cfg.Bus.QOS))),
			positioning.AdapterConfig{
				ApplicationName: cfg.Positioning.ApplicationName,
				ServiceURI:      cfg.Positioning.ServiceURI,
			},
			log.With().Str("module", "adapter").Logger(),
			location.ListenerFuncs{
				OnError: func(kind location.ErrorKind) {
					log.Warn().Stringer("error", kind).Msg("Position source error")
				},
			},
		)
		adapter.SetUpdateInterval(cfg.Positioning.UpdateInterval)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create position source")
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, nil, log)

	// Register all services based on the configuration
	sourceName := positioning.ServiceName(cfg.Positioning.ApplicationName)
	if err := serviceRegistry.RegisterServices(cfg, sourceName, adapter, loop); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Strs("services", serviceRegistry.Services()).Msg("All services started successfully")

	// Handle graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Failed to stop services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := loop.Invoke(shutdownCtx, adapter.Destroy); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy position source")
	}
	cancel()

	loop.Close()
	stopLoop()
	<-loopDone
	mqttClient.Disconnect(250)
}
