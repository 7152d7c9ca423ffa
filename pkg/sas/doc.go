// Package sas reports trace events and markers to a Service Assurance
// Server (SAS).
//
// A Client owns one TCP connection to the server. Reporting calls encode
// the message on the caller's goroutine and hand the frame to a bounded
// queue; a single writer goroutine drains the queue onto the socket,
// reconnecting whenever the connection fails. Reporting never waits for
// the network unless the queue is full.
//
// Basic usage with the process-wide client:
//
//	if err := sas.Init("sprout-1", "sprout", "org.projectclearwater.20151201",
//	    "sas.example.com", sas.LogToStdout); err != nil {
//	    log.Fatal(err)
//	}
//	defer sas.Term()
//
//	trail := sas.NewTrail(0)
//	ev := sas.NewEvent(trail, 0x000001, 0)
//	ev.AddStaticParam(200)
//	ev.AddVarParamString("INVITE")
//	sas.ReportEvent(ev)
//
//	m := sas.NewMarker(trail, sas.MarkerIDSIPCallID, 0)
//	m.AddVarParamString(callID)
//	sas.ReportMarker(m, sas.ScopeTrace)
//
// Clients can also be created directly with New for finer control over
// queue size, timeouts and reconnect behavior.
//
// Delivery is best effort. A frame whose write fails is dropped and the
// connection re-established; frames still queued when the client closes
// are discarded.
package sas
