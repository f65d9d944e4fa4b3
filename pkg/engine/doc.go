// Package engine defines the contract between bound objects and an LWM2M
// management engine.
//
// The engine drives the protocol: it registers with servers, decodes
// inbound packets, dispatches them to objects and sends responses through
// a SendFunc. Objects never call the engine; the engine calls them from
// Step or HandlePacket on the goroutine that owns the script runtime.
package engine
