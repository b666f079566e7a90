package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/config"
	"github.com/webOS-ports/qtlocation-luneos-plugin/internal/mocks"
	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad_Success tests that values from the file win over defaults.
func TestLoad_Success(t *testing.T) {
	// Setup
	path := writeConfig(t, `
bus:
  broker: tls://broker.local:8883
  client_id: maps
  qos: 2
positioning:
  application_name: org.example.maps
  update_interval: 5s
republish:
  enabled: true
  mode: poll
  interval: 1m
bridge:
  device: /dev/ttyACM0
  baud_rate: 4800
logging:
  level: debug
  console: true
`)

	// Execute
	cfg, err := config.Load(path, file.NewFileService())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "tls://broker.local:8883", cfg.Bus.Broker)
	assert.Equal(t, "maps", cfg.Bus.ClientID)
	assert.Equal(t, 2, cfg.Bus.QOS)
	assert.Equal(t, 10*time.Second, cfg.Bus.ConnectTimeout)
	assert.Equal(t, "org.example.maps", cfg.Positioning.ApplicationName)
	assert.Equal(t, 5*time.Second, cfg.Positioning.UpdateInterval)
	assert.Equal(t, "luna://org.webosports.service.location", cfg.Positioning.ServiceURI)
	assert.True(t, cfg.Republish.Enabled)
	assert.Equal(t, config.ModePoll, cfg.Republish.Mode)
	assert.Equal(t, time.Minute, cfg.Republish.Interval)
	assert.Equal(t, 10*time.Second, cfg.Republish.RequestTimeout)
	assert.Equal(t, "/dev/ttyACM0", cfg.Bridge.Device)
	assert.Equal(t, 4800, cfg.Bridge.BaudRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

// TestLoad_Invalid tests that impossible settings are rejected.
func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, `
bus:
  qos: 3
republish:
  mode: sometimes
`)

	cfg, err := config.Load(path, file.NewFileService())

	assert.Nil(t, cfg)
	assert.ErrorContains(t, err, "bus.qos")
	assert.ErrorContains(t, err, "republish.mode")
}

// TestLoad_ReadError tests that read failures are wrapped with the file name.
func TestLoad_ReadError(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadYamlFile", "missing.yaml", mock.Anything).Return(os.ErrNotExist)

	cfg, err := config.Load("missing.yaml", fileClient)

	assert.Nil(t, cfg)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "missing.yaml")
	fileClient.AssertExpectations(t)
}

// TestDefault tests the configuration used without a file.
func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "tcp://localhost:1883", cfg.Bus.Broker)
	assert.Equal(t, 1, cfg.Bus.QOS)
	assert.Equal(t, config.ModeStream, cfg.Republish.Mode)
	assert.False(t, cfg.Republish.Enabled)
	assert.Equal(t, "org.webosports.service.location", cfg.Bridge.ServiceName)
	assert.Equal(t, 9600, cfg.Bridge.BaudRate)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestLoad_SampleConfig tests that the shipped configuration file is valid.
func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/config.yaml", file.NewFileService())

	require.NoError(t, err)
	assert.True(t, cfg.Republish.Enabled)
	assert.Equal(t, config.ModeStream, cfg.Republish.Mode)
	assert.Equal(t, 5*time.Second, cfg.Positioning.UpdateInterval)
	assert.Equal(t, time.Minute, cfg.Heartbeat.Interval)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Bridge.Device)
}
