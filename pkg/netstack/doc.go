// Package netstack defines the shared wire-level constants used across the
// Ethernet, ARP, IPv4, and UDP codecs and the kernel network stack built on
// top of them.
//
// Layer structure:
//   - Layer 2 (Link): Ethernet frames, ARP
//   - Layer 3 (Network): IPv4 only, fixed 20-byte header
//   - Layer 4 (Transport): UDP only
//
// There is exactly one link type, one network protocol, and one transport
// protocol; TCP, IPv6, fragmentation, and general routing are out of scope.
package netstack
