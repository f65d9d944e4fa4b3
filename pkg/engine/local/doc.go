// Package local is an in-process LWM2M management engine.
//
// It implements engine.Engine over pkg/wire CBOR frames carried in
// datagrams: registration, registration updates, deregistration, request
// dispatch to bound objects, observation and notification. CoAP framing
// is not implemented; peers are expected to speak the same frames.
//
// Notifications are paced per observation by pkg/subscription: changes
// inside the minimum period are coalesced, a heartbeat follows the maximum
// period, and unchanged values can be suppressed (see WithNotifyConfig).
//
// The engine is not safe for concurrent use. Like the objects it drives,
// it must only be called from the goroutine that owns the script runtime.
package local
