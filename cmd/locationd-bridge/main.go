package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/bridge"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/config"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/constants"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/service_registry"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/utils"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/bus"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	device := flag.String("device", "", "serial port of the GPS receiver, overrides the configuration")
	flag.Parse()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fileClient := file.NewFileService()

	cfg := config.Default()
	if exists, _ := fileClient.IsFileExists(*configPath); exists {
		loaded, err := config.Load(*configPath, fileClient)
		if err != nil {
			bootLog.Fatal().Err(err).Msg("Failed to load configuration")
		}
		cfg = loaded
	}
	if *device != "" {
		cfg.Bridge.Device = *device
	}

	log, err := utils.NewLogger(cfg.Logging, os.Stdout, "locationd-bridge")
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to set up logging")
	}

	clientID := cfg.Bus.ClientID + "-bridge-" + uuid.NewString()
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

	handle, err := bus.RegisterService(mqttClient, cfg.Bridge.ServiceName, log, bus.WithQoS(byte(cfg.Bus.QOS)))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register bridge on the bus")
	}

	bridgeLog := log.With().Str("service", constants.BridgeServiceName).Logger()
	tracker := bridge.NewFixTracker(clock.New())
	responder := bridge.NewResponder(handle, tracker, cfg.Bridge.MaxFixAge, bridgeLog)
	service := bridge.NewService(
		bridge.SerialOpener(cfg.Bridge.Device, cfg.Bridge.BaudRate, cfg.Bridge.ReadTimeout),
		responder,
		tracker,
		bridgeLog,
	)

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, nil, log)
	serviceRegistry.RegisterService(constants.BridgeServiceName, service)
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Str("device", cfg.Bridge.Device).Str("service_name", handle.Name()).Msg("Bridge is serving")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case <-service.Done():
		log.Error().Err(service.Err()).Msg("GPS receiver stream ended")
	}

	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Failed to stop services")
	}
	if err := handle.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to unregister bridge")
	}
	mqttClient.Disconnect(250)
}
