// Package config loads the YAML configuration shared by the positioning agent and the bridge daemon.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
)

// Republish modes.
const (
	ModeStream = "stream"
	ModePoll   = "poll"
)

// Config represents the structure of the configuration file.
type Config struct {
	Bus         BusConfig         `yaml:"bus"`
	Positioning PositioningConfig `yaml:"positioning"`
	Republish   RepublishConfig   `yaml:"republish"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BusConfig configures the MQTT connection carrying bus traffic.
type BusConfig struct {
	Broker         string        `yaml:"broker"`          // MQTT broker address
	ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix, a random suffix is appended
	CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate
	Username       string        `yaml:"username"`        // Broker username
	Password       string        `yaml:"password"`        // Broker password
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the initial connection
	QOS            int           `yaml:"qos"`             // MQTT QoS level for bus messages
}

// PositioningConfig configures the position source adapter.
type PositioningConfig struct {
	ApplicationName string        `yaml:"application_name"` // Name the adapter registers as, defaults to the executable
	ServiceURI      string        `yaml:"service_uri"`      // Location daemon URI
	UpdateInterval  time.Duration `yaml:"update_interval"`  // Requested update interval
}

// RepublishConfig configures the service publishing positions to MQTT.
type RepublishConfig struct {
	Enabled        bool          `yaml:"enabled"`         // Enable/disable republishing
	Topic          string        `yaml:"topic"`           // MQTT topic for position messages
	QOS            int           `yaml:"qos"`             // MQTT QoS level for position messages
	Mode           string        `yaml:"mode"`            // stream or poll
	Interval       time.Duration `yaml:"interval"`        // Poll interval
	RequestTimeout time.Duration `yaml:"request_timeout"` // Timeout of each poll request
	StateFile      string        `yaml:"state_file"`      // Optional path storing the last published position
}

// HeartbeatConfig configures the periodic source status message.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`  // Enable/disable heartbeat service
	Topic    string        `yaml:"topic"`    // MQTT topic for heartbeat messages
	Interval time.Duration `yaml:"interval"` // Interval between heartbeats
	QOS      int           `yaml:"qos"`      // MQTT QoS level for heartbeat messages
	Metrics  bool          `yaml:"metrics"`  // Attach process metrics to each heartbeat
}

// BridgeConfig configures the NMEA bridge daemon.
type BridgeConfig struct {
	ServiceName string        `yaml:"service_name"` // Bus name the bridge answers on
	Device      string        `yaml:"device"`       // Serial port of the GPS receiver
	BaudRate    int           `yaml:"baud_rate"`    // Baud rate of the GPS receiver
	ReadTimeout time.Duration `yaml:"read_timeout"` // Serial read timeout
	MaxFixAge   time.Duration `yaml:"max_fix_age"`  // Fixes older than this are not served
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`   // zerolog level name
	Console bool   `yaml:"console"` // Human readable console output
}

// Load loads the YAML configuration from the specified file and fills in defaults.
// It returns a pointer to the Config struct and an error if loading fails.
func Load(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Bus.Broker == "" {
		c.Bus.Broker = "tcp://localhost:1883"
	}
	if c.Bus.ClientID == "" {
		c.Bus.ClientID = "qtpositioning"
	}
	if c.Bus.ConnectTimeout == 0 {
		c.Bus.ConnectTimeout = 10 * time.Second
	}
	if c.Bus.QOS == 0 {
		c.Bus.QOS = 1
	}

	if c.Positioning.ServiceURI == "" {
		c.Positioning.ServiceURI = "luna://org.webosports.service.location"
	}

	if c.Republish.Topic == "" {
		c.Republish.Topic = "positioning/location"
	}
	if c.Republish.Mode == "" {
		c.Republish.Mode = ModeStream
	}
	if c.Republish.Interval == 0 {
		c.Republish.Interval = 30 * time.Second
	}
	if c.Republish.RequestTimeout == 0 {
		c.Republish.RequestTimeout = 10 * time.Second
	}

	if c.Heartbeat.Topic == "" {
		c.Heartbeat.Topic = "positioning/heartbeat"
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = time.Minute
	}

	if c.Bridge.ServiceName == "" {
		c.Bridge.ServiceName = "org.webosports.service.location"
	}
	if c.Bridge.Device == "" {
		c.Bridge.Device = "/dev/ttyUSB0"
	}
	if c.Bridge.BaudRate == 0 {
		c.Bridge.BaudRate = 9600
	}
	if c.Bridge.ReadTimeout == 0 {
		c.Bridge.ReadTimeout = time.Second
	}
	if c.Bridge.MaxFixAge == 0 {
		c.Bridge.MaxFixAge = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Bus.QOS < 0 || c.Bus.QOS > 2 {
		errs = append(errs, fmt.Errorf("bus.qos must be 0, 1 or 2, got %d", c.Bus.QOS))
	}
	if c.Republish.QOS < 0 || c.Republish.QOS > 2 {
		errs = append(errs, fmt.Errorf("republish.qos must be 0, 1 or 2, got %d", c.Republish.QOS))
	}
	if c.Heartbeat.QOS < 0 || c.Heartbeat.QOS > 2 {
		errs = append(errs, fmt.Errorf("heartbeat.qos must be 0, 1 or 2, got %d", c.Heartbeat.QOS))
	}
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, errors.New("heartbeat.interval must not be negative"))
	}
	if c.Republish.Mode != ModeStream && c.Republish.Mode != ModePoll {
		errs = append(errs, fmt.Errorf("republish.mode must be %q or %q, got %q", ModeStream, ModePoll, c.Republish.Mode))
	}
	if c.Republish.Interval < 0 || c.Republish.RequestTimeout < 0 {
		errs = append(errs, errors.New("republish durations must not be negative"))
	}
	if c.Bridge.BaudRate < 0 {
		errs = append(errs, fmt.Errorf("bridge.baud_rate must be positive, got %d", c.Bridge.BaudRate))
	}
	return errors.Join(errs...)
}
