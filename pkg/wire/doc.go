// Package wire defines the status vocabulary and the CBOR frame format
// exchanged between the object adapter, the management engine and servers.
//
// # Status Codes
//
// Status values are CoAP response codes (class<<5 | detail). Codes returned
// by script handlers are carried verbatim; the adapter never translates them.
//
// # Frames
//
// The reference engine exchanges CBOR (RFC 8949) maps with integer keys.
// Key 1 always holds the frame kind so a receiver can peek before decoding:
//
//	{1: kind, 2: messageId, ...}
//
// Frames are a development transport for the local engine only; CoAP
// framing and TLV encoding belong to a production engine.
package wire
