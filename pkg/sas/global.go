package sas

import (
	"sync"

	"github.com/coral-mesh/sas-client/internal/logging"
)

// Result codes returned by InitCode.
const (
	InitOK  = 0
	InitErr = 1
)

var (
	defaultMu     sync.RWMutex
	defaultClient *Client
	defaultLog    = logging.NewLogger(nil, "sas")
)

// Init creates the process-wide client used by the package-level report
// functions. Calling Init again replaces and closes the previous client.
// cb becomes the process-wide log callback even when Init fails.
func Init(systemName, systemType, resourceIdentifier, address string, cb LogCallback) error {
	c, err := New(Config{
		SystemName:         systemName,
		SystemType:         systemType,
		ResourceIdentifier: resourceIdentifier,
		Address:            address,
		LogCallback:        cb,
	})

	log := logging.NewLogger(cb, "sas")

	defaultMu.Lock()
	defaultLog = log
	if err != nil {
		defaultMu.Unlock()
		log.Errorf("SAS initialization failed: %v", err)
		return err
	}
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()

	if prev != nil {
		log.Warningf("SAS re-initialized, closing previous connection to %s", prev.Address())
		_ = prev.Close()
	}
	return nil
}

// InitCode is Init returning InitOK or InitErr instead of an error.
func InitCode(systemName, systemType, resourceIdentifier, address string, cb LogCallback) int {
	if err := Init(systemName, systemType, resourceIdentifier, address, cb); err != nil {
		return InitErr
	}
	return InitOK
}

// Term closes the process-wide client. Safe to call more than once, and
// before Init.
func Term() {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()

	if c != nil {
		_ = c.Close()
	}
}

// Default returns the process-wide client, or nil before Init.
func Default() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}

// NewTrail allocates a trail ID. It works whether or not Init was called.
func NewTrail(instance uint32) TrailID {
	if c := Default(); c != nil {
		return c.NewTrail(instance)
	}
	return trails.Next()
}

// ReportEvent sends e through the process-wide client.
func ReportEvent(e *Event) {
	if c := current("event"); c != nil {
		c.ReportEvent(e)
	}
}

// ReportMarker sends m through the process-wide client.
func ReportMarker(m *Marker, scope Scope) {
	if c := current("marker"); c != nil {
		c.ReportMarker(m, scope)
	}
}

func current(kind string) *Client {
	defaultMu.RLock()
	c, log := defaultClient, defaultLog
	defaultMu.RUnlock()
	if c == nil {
		log.Warningf("SAS not initialized, %s not reported", kind)
	}
	return c
}
