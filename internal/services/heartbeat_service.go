package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/constants"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/metrics_collectors"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/models"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/location"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/mqtt"
)

// RunningSource is a position source that can report whether its updates are running.
type RunningSource interface {
	location.Source
	IsRunning() bool
}

// HeartbeatService manages periodic status messages about the position source.
type HeartbeatService struct {
	PubTopic   string
	SourceName string
	Interval   time.Duration
	QOS        int
	Source     RunningSource
	Loop       Invoker
	MqttClient mqtt.MQTTClient
	Clock      clock.Clock
	Logger     zerolog.Logger
	Metrics    *metrics_collectors.MetricsRegistry // Optional process metrics added to each heartbeat

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService.
func NewHeartbeatService(pubTopic, sourceName string, interval time.Duration, qos int, source RunningSource,
	loop Invoker, mqttClient mqtt.MQTTClient, clk clock.Clock, logger zerolog.Logger) *HeartbeatService {
	if clk == nil {
		clk = clock.New()
	}

	return &HeartbeatService{
		PubTopic:   pubTopic,
		SourceName: sourceName,
		Interval:   interval,
		QOS:        qos,
		Source:     source,
		Loop:       loop,
		MqttClient: mqttClient,
		Clock:      clk,
		Logger:     logger,
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}
	if h.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().Str("topic", h.PubTopic).Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// runHeartbeatLoop continuously sends heartbeat messages at the specified interval.
func (h *HeartbeatService) runHeartbeatLoop() {
	ticker := h.Clock.Ticker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			heartbeatMessage, err := h.snapshot()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.Logger.Error().Err(err).Msg("Failed to read source status")
				}
				continue
			}
			if h.Metrics != nil {
				heartbeatMessage.Metrics = h.Metrics.CollectAll(h.ctx)
			}

			payload, err := json.Marshal(heartbeatMessage)
			if err != nil {
				h.Logger.Error().Err(err).Msg("Failed to serialize heartbeat message")
				continue
			}

			token := h.MqttClient.Publish(h.PubTopic, byte(h.QOS), false, payload)
			token.Wait()

			if err := token.Error(); err != nil {
				h.Logger.Error().Err(err).Msg("Failed to publish heartbeat message")
			} else {
				h.Logger.Debug().Str("status", heartbeatMessage.Status).Msg("Heartbeat published successfully")
			}

		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

// snapshot reads the source state on the loop.
func (h *HeartbeatService) snapshot() (models.Heartbeat, error) {
	message := models.Heartbeat{
		Source:    h.SourceName,
		Timestamp: h.Clock.Now().UTC(),
	}

	err := h.Loop.Invoke(h.ctx, func() {
		kind := h.Source.Error()
		switch {
		case kind != location.NoError:
			message.Status = constants.StatusError
			message.Error = kind.String()
		case h.Source.IsRunning():
			message.Status = constants.StatusTracking
		default:
			message.Status = constants.StatusAlive
		}

		if last := h.Source.LastKnownPosition(false); last.IsValid() {
			ts := last.Timestamp.UTC()
			message.LastFix = &ts
		}
	})
	return message, err
}
