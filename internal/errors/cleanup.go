// Package errors provides utilities for error handling in the SAS client.
package errors

import (
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
// Errors from closing an already closed connection are not logged.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && !IsClosed(err) {
		logger.Warn().Err(err).Msg(msg)
	}
}

// IsClosed reports whether err signals an orderly end of a connection:
// EOF or use of a closed network connection.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
