// Package discovery advertises LWM2M clients on the local network with
// mDNS/DNS-SD and browses for them.
//
// # Client Service (_lwm2m._udp)
//
// A running client advertises one instance named after its endpoint. The
// port is the client's UDP port.
// TXT records include: ep (endpoint name), objs (comma separated object
// ids, ascending) and optionally srv (number of configured servers).
package discovery
