// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Ports - Service port defaults.
const (
	// DefaultSASPort is the port used when the configured SAS address has none.
	DefaultSASPort = "6761"
)

// Timeouts - Default timeout values.
const (
	// DefaultSendTimeout bounds a single frame write on the SAS socket.
	DefaultSendTimeout = 30 * time.Second

	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 10 * time.Second
)

// Intervals - Default interval values.
const (
	// DefaultReconnectInterval is the delay between failed connection attempts.
	// Initial and max are equal, so the cadence is fixed unless overridden.
	DefaultReconnectInterval = 10 * time.Second

	// DefaultMaxReconnectInterval caps the reconnect backoff.
	DefaultMaxReconnectInterval = 10 * time.Second
)

// Limits - Default sizes.
const (
	// DefaultQueueCapacity is the maximum depth of the delivery queue.
	DefaultQueueCapacity = 1000

	// MaxStaticParams is the per-message limit on fixed 32-bit parameters.
	MaxStaticParams = 20

	// MaxVarParams is the per-message limit on variable-length parameters.
	MaxVarParams = 20

	// MaxIdentityLength is the longest system name, type or resource id
	// the init handshake can carry.
	MaxIdentityLength = 255
)
