// Package transport provides the datagram transport used by the LWM2M client.
//
// The client exchanges one frame per UDP datagram with each configured
// server. There is no framing, fragmentation or security at this layer:
//
//	┌────────────────────────────────┐
//	│      CBOR frames (wire)        │
//	├────────────────────────────────┤
//	│           UDP                  │
//	└────────────────────────────────┘
//
// A UDP socket is not safe for concurrent receives. Send may be called
// concurrently with Receive.
package transport
