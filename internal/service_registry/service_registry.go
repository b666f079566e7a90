package service_registry

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/config"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/constants"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/metrics_collectors"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/registry"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/services"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	started     []string
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	clock       clock.Clock
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, clk clock.Clock, logger zerolog.Logger) *ServiceRegistry {
	if clk == nil {
		clk = clock.New()
	}
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		clock:      clk,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in start order.
func (sr *ServiceRegistry) Services() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	sr.started = startedServices
	return nil
}

// StopServices stops all started services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers the enabled agent services based on configuration.
func (sr *ServiceRegistry) RegisterServices(cfg *config.Config, sourceName string, source services.RunningSource, loop services.Invoker) error {
	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    constants.LocationServiceName,
			enabled: cfg.Republish.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewLocationService(
					sourceName,
					cfg.Republish,
					source,
					loop,
					sr.mqttClient,
					sr.fileClient,
					sr.clock,
					sr.Logger.With().Str("service", constants.LocationServiceName).Logger(),
				), nil
			},
		},
		{
			name:    constants.HeartbeatServiceName,
			enabled: cfg.Heartbeat.Enabled,
			constructor: func() (registry.Service, error) {
				if cfg.Heartbeat.Interval <= 0 {
					return nil, fmt.Errorf("invalid heartbeat interval %s", cfg.Heartbeat.Interval)
				}
				logger := sr.Logger.With().Str("service", constants.HeartbeatServiceName).Logger()
				heartbeat := services.NewHeartbeatService(
					cfg.Heartbeat.Topic,
					sourceName,
					cfg.Heartbeat.Interval,
					cfg.Heartbeat.QOS,
					source,
					loop,
					sr.mqttClient,
					sr.clock,
					logger,
				)
				if cfg.Heartbeat.Metrics {
					heartbeat.Metrics = metrics_collectors.NewDefaultRegistry(logger)
				}
				return heartbeat, nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if !svc.enabled {
			sr.Logger.Debug().Str("service", svc.name).Msg("Service is disabled, skipping")
			continue
		}
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return err
		}
		sr.RegisterService(svc.name, serviceInstance)
		registeredServices = append(registeredServices, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
