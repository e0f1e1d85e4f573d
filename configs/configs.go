package configs

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mgray/tempest/pkg/logs"
)

const (
	DefaultMaxFrameSize      = 1024 * 1024
	DefaultReceiveBufferSize = 4096
	DefaultSendQueueSize     = 1024
	DefaultDialTimeout       = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
)

type TransportConfig struct {
	MaxFrameSize      uint32
	ReceiveBufferSize int
	SendQueueSize     int
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	WorkerPoolSize    int
	LogFolder         string
	LogLevel          string
}

func Default() TransportConfig {
	return TransportConfig{
		MaxFrameSize:      DefaultMaxFrameSize,
		ReceiveBufferSize: DefaultReceiveBufferSize,
		SendQueueSize:     DefaultSendQueueSize,
		DialTimeout:       DefaultDialTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
}

// Normalize replaces unset or invalid values with defaults.
func (c TransportConfig) Normalize() TransportConfig {
	d := Default()
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = d.ReceiveBufferSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

func (c TransportConfig) LogConfig() logs.LogConfig {
	return logs.LogConfig{
		Level:  c.LogLevel,
		Folder: c.LogFolder,
	}
}

// ReadConfigFromFile reads a JSON TransportConfig. Fields missing from the
// file keep their defaults.
func ReadConfigFromFile(filePath string) (TransportConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return TransportConfig{}, err
	}

	config := Default()
	if err := json.Unmarshal(data, &config); err != nil {
		return TransportConfig{}, err
	}
	return config.Normalize(), nil
}
