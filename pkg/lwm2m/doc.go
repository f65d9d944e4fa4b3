// Package lwm2m is the lifecycle owner of a script-defined LWM2M client.
//
// Init binds a list of Lua object tables, builds a management engine over
// them and keeps the outbound send handler. The returned Client forwards
// server configuration, registration, scheduling ticks, inbound packets
// and value-change notices to the engine until Close.
//
// A Client is not safe for concurrent use. Every method, and every script
// handler the engine calls back into, runs on the caller's goroutine; the
// caller must be the goroutine that owns the Lua state.
package lwm2m
