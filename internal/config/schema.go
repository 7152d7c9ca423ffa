// Package config loads sasctl settings from a YAML file with environment
// variable overrides.
package config

import (
	"time"

	"github.com/coral-mesh/sas-client/pkg/sas"
)

// Config is the sasctl configuration file.
//
// Example sasctl.yaml:
//
//	client:
//	  system_name: sprout-1
//	  system_type: sprout
//	  resource_identifier: org.projectclearwater.20151201
//	connection:
//	  address: sas.example.com:6761
//	  send_timeout: 30s
//	logging:
//	  level: debug
type Config struct {
	Client     ClientConfig     `yaml:"client"`
	Connection ConnectionConfig `yaml:"connection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Listen     ListenConfig     `yaml:"listen"`
}

// ClientConfig identifies this system to the SAS server.
type ClientConfig struct {
	SystemName         string `yaml:"system_name" env:"SAS_SYSTEM_NAME"`
	SystemType         string `yaml:"system_type" env:"SAS_SYSTEM_TYPE"`
	ResourceIdentifier string `yaml:"resource_identifier" env:"SAS_RESOURCE_ID"`
}

// ConnectionConfig controls the connection to the SAS server.
type ConnectionConfig struct {
	Address              string        `yaml:"address" env:"SAS_ADDRESS"`
	QueueCapacity        int           `yaml:"queue_capacity" env:"SAS_QUEUE_CAPACITY"`
	SendTimeout          time.Duration `yaml:"send_timeout" env:"SAS_SEND_TIMEOUT"`
	DialTimeout          time.Duration `yaml:"dial_timeout" env:"SAS_DIAL_TIMEOUT"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval" env:"SAS_RECONNECT_INTERVAL"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval" env:"SAS_MAX_RECONNECT_INTERVAL"`
}

// LoggingConfig controls sasctl's own log output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"SAS_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"SAS_LOG_PRETTY"`
}

// ListenConfig configures the mock server run by sasctl listen.
type ListenConfig struct {
	Address string `yaml:"address" env:"SAS_LISTEN_ADDR"`
}

// SASConfig converts c into a client configuration.
func (c *Config) SASConfig(cb sas.LogCallback) sas.Config {
	return sas.Config{
		SystemName:           c.Client.SystemName,
		SystemType:           c.Client.SystemType,
		ResourceIdentifier:   c.Client.ResourceIdentifier,
		Address:              c.Connection.Address,
		LogCallback:          cb,
		QueueCapacity:        c.Connection.QueueCapacity,
		SendTimeout:          c.Connection.SendTimeout,
		DialTimeout:          c.Connection.DialTimeout,
		ReconnectInterval:    c.Connection.ReconnectInterval,
		MaxReconnectInterval: c.Connection.MaxReconnectInterval,
	}
}
