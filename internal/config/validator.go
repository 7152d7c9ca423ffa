package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/coral-mesh/sas-client/internal/constants"
)

var logLevels = []string{"trace", "debug", "info", "warn", "warning", "error"}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error

	identity := []struct{ field, value string }{
		{"client.system_name", c.Client.SystemName},
		{"client.system_type", c.Client.SystemType},
		{"client.resource_identifier", c.Client.ResourceIdentifier},
	}
	for _, id := range identity {
		switch {
		case id.value == "":
			errs = append(errs, fmt.Errorf("%s is required", id.field))
		case len(id.value) > constants.MaxIdentityLength:
			errs = append(errs, fmt.Errorf("%s must be at most %d bytes, got %d",
				id.field, constants.MaxIdentityLength, len(id.value)))
		}
	}

	if err := validateAddress(c.Connection.Address, false); err != nil {
		errs = append(errs, fmt.Errorf("connection.address: %w", err))
	}
	if err := validateAddress(c.Listen.Address, true); err != nil {
		errs = append(errs, fmt.Errorf("listen.address: %w", err))
	}

	conn := c.Connection
	if conn.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("connection.queue_capacity must be positive, got %d", conn.QueueCapacity))
	}
	durations := []struct {
		field string
		value int64
	}{
		{"connection.send_timeout", int64(conn.SendTimeout)},
		{"connection.dial_timeout", int64(conn.DialTimeout)},
		{"connection.reconnect_interval", int64(conn.ReconnectInterval)},
		{"connection.max_reconnect_interval", int64(conn.MaxReconnectInterval)},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.field))
		}
	}
	if conn.MaxReconnectInterval < conn.ReconnectInterval {
		errs = append(errs, fmt.Errorf("connection.max_reconnect_interval (%s) is below reconnect_interval (%s)",
			conn.MaxReconnectInterval, conn.ReconnectInterval))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of %s", c.Logging.Level, strings.Join(logLevels, ", ")))
	}

	return errors.Join(errs...)
}

// validateAddress accepts host or host:port. A listen address may omit
// the host.
func validateAddress(addr string, listen bool) error {
	if addr == "" {
		return errors.New("is required")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if listen {
			return fmt.Errorf("%q must be [host]:port", addr)
		}
		// A bare host takes the default port.
		if strings.Contains(addr, "/") || strings.ContainsAny(addr, " \t") {
			return fmt.Errorf("%q is not a host name", addr)
		}
		return nil
	}
	if host == "" && !listen {
		return fmt.Errorf("%q has no host", addr)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("%q has invalid port %q", addr, port)
	}
	return nil
}
