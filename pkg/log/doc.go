// Package log captures LWM2M protocol events for later analysis.
//
// It is separate from operational logging (slog): a protocol log is a
// machine-readable trace of every datagram, decoded frame and state change
// seen by a client, written as a stream of CBOR-encoded events.
//
// # Basic Usage
//
//	// Console output while developing
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// Binary file for the lwm2m-log tool
//	file, _ := log.NewFileLogger("/var/log/lwm2m/client.llog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), file)
//
// # Event Types
//
//   - Transport: raw datagrams (DatagramEvent)
//   - Wire: decoded frames (MessageEvent)
//   - Service: client, server and object state changes (StateChangeEvent)
//
// Errors at any layer are recorded as ErrorEventData.
package log
