package config

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/coral-mesh/sas-client/internal/constants"
)

// Default returns a configuration with every field set. The system name
// comes from the host name and the resource identifier is a fresh UUID.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			SystemName:         hostname(),
			SystemType:         constants.DefaultSystemType,
			ResourceIdentifier: uuid.New().String(),
		},
		Connection: ConnectionConfig{
			Address:              net.JoinHostPort("127.0.0.1", constants.DefaultSASPort),
			QueueCapacity:        constants.DefaultQueueCapacity,
			SendTimeout:          constants.DefaultSendTimeout,
			DialTimeout:          constants.DefaultDialTimeout,
			ReconnectInterval:    constants.DefaultReconnectInterval,
			MaxReconnectInterval: constants.DefaultMaxReconnectInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Listen: ListenConfig{
			Address: constants.DefaultListenAddr,
		},
	}
}

func hostname() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil || info.Hostname == "" {
		return "sasctl"
	}
	return info.Hostname
}
