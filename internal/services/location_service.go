package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/config"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/models"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

const (
	publishQueueSize = 16
	publishTimeout   = 5 * time.Second
)

// Invoker runs functions on the goroutine owning the position source.
type Invoker interface {
	Invoke(ctx context.Context, fn func()) error
}

// LocationService publishes every position the source reports to an MQTT topic. In stream mode it
// keeps the source's updates running; in poll mode it requests a single update every interval.
type LocationService struct {
	// Configuration fields
	sourceName     string
	topic          string
	qos            int
	mode           string
	interval       time.Duration
	requestTimeout time.Duration
	stateFile      string

	// Dependencies
	source     location.Source
	loop       Invoker
	mqttClient mqtt.MQTTClient
	fileClient file.FileOperations
	clock      clock.Clock
	logger     zerolog.Logger

	// Internal state management
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	reports     chan location.PositionReport
	unsubscribe func()
}

// NewLocationService creates a new LocationService instance with the provided configuration.
func NewLocationService(sourceName string, cfg config.RepublishConfig, source location.Source, loop Invoker,
	mqttClient mqtt.MQTTClient, fileClient file.FileOperations, clk clock.Clock, logger zerolog.Logger) *LocationService {
	if clk == nil {
		clk = clock.New()
	}
	return &LocationService{
		sourceName:     sourceName,
		topic:          cfg.Topic,
		qos:            cfg.QOS,
		mode:           cfg.Mode,
		interval:       cfg.Interval,
		requestTimeout: cfg.RequestTimeout,
		stateFile:      cfg.StateFile,
		source:         source,
		loop:           loop,
		mqttClient:     mqttClient,
		fileClient:     fileClient,
		clock:          clk,
		logger:         logger,
	}
}

// Start subscribes to the source and begins publishing.
func (l *LocationService) Start() error {
	if l.ctx != nil {
		l.logger.Warn().Msg("LocationService is already running")
		return errors.New("location service is already running")
	}
	if l.mode == config.ModePoll && l.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", l.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan location.PositionReport, publishQueueSize)

	listener := location.ListenerFuncs{
		OnPositionUpdated: func(report location.PositionReport) {
			select {
			case reports <- report:
			default:
				l.logger.Warn().Msg("Publish queue full, dropping position")
			}
		},
		OnError: func(kind location.ErrorKind) {
			l.logger.Error().Str("error", kind.String()).Msg("Position source reported an error")
		},
		OnUpdateTimeout: func() {
			l.logger.Warn().Msg("Position request timed out")
		},
	}

	err := l.loop.Invoke(ctx, func() {
		l.unsubscribe = l.source.Subscribe(listener)
		if l.mode == config.ModeStream {
			l.source.StartUpdates()
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start location service: %w", err)
	}

	l.ctx, l.cancel, l.reports = ctx, cancel, reports

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.runPublishLoop()
	}()

	if l.mode == config.ModePoll {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.runPollLoop()
		}()
	}

	l.logger.Info().
		Str("topic", l.topic).
		Str("mode", l.mode).
		Dur("interval", l.interval).
		Int("qos", l.qos).
		Msg("LocationService started")
	return nil
}

// Stop stops updates started by the service and waits for its goroutines.
func (l *LocationService) Stop() error {
	if l.ctx == nil {
		l.logger.Warn().Msg("LocationService is not running")
		return errors.New("location service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := l.loop.Invoke(ctx, func() {
		if l.unsubscribe != nil {
			l.unsubscribe()
			l.unsubscribe = nil
		}
		if l.mode == config.ModeStream {
			l.source.StopUpdates()
		}
	})
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to detach from position source")
	}

	l.cancel()
	l.wg.Wait()
	l.ctx, l.cancel = nil, nil

	l.logger.Info().Msg("LocationService stopped")
	return err
}

// runPollLoop requests one position update every interval.
func (l *LocationService) runPollLoop() {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := l.loop.Invoke(l.ctx, func() {
				l.source.RequestUpdate(l.requestTimeout)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error().Err(err).Msg("Failed to request position update")
			}
		case <-l.ctx.Done():
			return
		}
	}
}

// runPublishLoop publishes queued positions until the service stops.
func (l *LocationService) runPublishLoop() {
	for {
		select {
		case report := <-l.reports:
			if err := l.publishLocation(report); err != nil {
				l.logger.Error().Err(err).Msg("Failed to publish location")
			}
		case <-l.ctx.Done():
			l.logger.Info().Msg("LocationService is stopping")
			return
		}
	}
}

// publishLocation publishes one report and records it in the state file when configured.
func (l *LocationService) publishLocation(report location.PositionReport) error {
	message := NewLocationMessage(l.sourceName, report)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to serialize location message: %w", err)
	}

	token := l.mqttClient.Publish(l.topic, byte(l.qos), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", l.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", l.topic, err)
	}

	if l.stateFile != "" {
		if err := l.fileClient.WriteJsonFile(l.stateFile, message); err != nil {
			l.logger.Warn().Err(err).Str("file", l.stateFile).Msg("Failed to store last location")
		}
	}

	l.logger.Debug().
		Float64("latitude", message.Latitude).
		Float64("longitude", message.Longitude).
		Str("topic", l.topic).
		Msg("Location published successfully")
	return nil
}

// NewLocationMessage converts a position report into its published form.
func NewLocationMessage(sourceName string, report location.PositionReport) models.Location {
	message := models.Location{
		Source:    sourceName,
		Timestamp: report.Timestamp.UTC(),
		Latitude:  report.Coordinate.Latitude,
		Longitude: report.Coordinate.Longitude,
	}
	if report.Coordinate.HasAltitude() {
		altitude := report.Coordinate.Altitude
		message.Altitude = &altitude
	}

	optional := []struct {
		attr   location.Attribute
		target **float64
	}{
		{location.HorizontalAccuracy, &message.HorizontalAccuracy},
		{location.VerticalAccuracy, &message.VerticalAccuracy},
		{location.GroundSpeed, &message.GroundSpeed},
		{location.Direction, &message.Direction},
	}
	for _, o := range optional {
		if v, ok := report.Attribute(o.attr); ok {
			*o.target = &v
		}
	}
	return message
}
