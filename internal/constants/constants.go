// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "sasctl.yaml"

	DefaultDir = ".sas"

	// DefaultSystemType is reported in the init handshake when none is configured.
	DefaultSystemType = "go-client"

	// ProtocolVersion is the version string sent in the init handshake.
	ProtocolVersion = "v0.1"

	DefaultListenAddr = ":6761"
)
