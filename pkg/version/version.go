// Package version provides build version information.
package version

import (
	"runtime"

	"github.com/coral-mesh/sas-client/internal/constants"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// ProtocolVersion is the SAS protocol version sent in the handshake.
var ProtocolVersion = constants.ProtocolVersion
