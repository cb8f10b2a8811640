// Package ipv4 provides the fixed 20-byte IPv4 header codec used by the
// kernel network stack. There are no options, no fragmentation, and no
// checksum verification: the NIC computes the outbound checksum via its
// TCP/IP context descriptor, and an inbound checksum is trusted as the
// hardware would trust it.
package ipv4

import (
	"encoding/binary"
	"fmt"
	network "net"
)

// HeaderLength is the IPv4 header length in bytes. This stack never emits
// or accepts IP options, so it is always exactly 20.
const HeaderLength = 20

// ProtocolUDP is the only IPv4 payload protocol this stack forwards
// anywhere; anything else is dropped by the demultiplexer.
const ProtocolUDP uint8 = 17

// Header represents a fixed-form IPv4 header (IHL = 5, no options).
type Header struct {
	Version    uint8
	IHL        uint8
	TOS        uint8
	Length     uint16
	ID         uint16
	Flags      uint8
	FragOffset uint16
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      network.IP
	DstIP      network.IP
}

// ParseHeader parses an IPv4 header from raw bytes. Total on any input of
// at least HeaderLength bytes; an IHL greater than 5 (options present) is
// rejected, since this stack never accepts options.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("ipv4: header too short: %d bytes", len(data))
	}

	h := &Header{
		Version:    data[0] >> 4,
		IHL:        data[0] & 0x0F,
		TOS:        data[1],
		Length:     binary.BigEndian.Uint16(data[2:4]),
		ID:         binary.BigEndian.Uint16(data[4:6]),
		Flags:      data[6] >> 5,
		FragOffset: binary.BigEndian.Uint16(data[6:8]) & 0x1FFF,
		TTL:        data[8],
		Protocol:   data[9],
		Checksum:   binary.BigEndian.Uint16(data[10:12]),
		SrcIP:      network.IP(append([]byte{}, data[12:16]...)),
		DstIP:      network.IP(append([]byte{}, data[16:20]...)),
	}

	if h.IHL != 5 {
		return nil, fmt.Errorf("ipv4: options present (ihl=%d), not supported", h.IHL)
	}

	return h, nil
}

// Serialize serializes the IPv4 header to bytes.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderLength)

	buf[0] = (h.Version << 4) | (h.IHL & 0x0F)
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	frag := (uint16(h.Flags) << 13) | (h.FragOffset & 0x1FFF)
	binary.BigEndian.PutUint16(buf[6:8], frag)
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], h.Checksum)
	copy(buf[12:16], h.SrcIP.To4())
	copy(buf[16:20], h.DstIP.To4())

	return buf
}

// CalcChecksum computes the IPv4 header checksum over the header as it
// would be serialized with a zero checksum field. It is never consulted on
// the send or receive hot path — the NIC computes the outbound checksum,
// and an inbound checksum is never verified (matching real E1000 behaviour:
// a bad frame would never have reached software). It exists only as a
// diagnostic used by offline capture verification.
func (h *Header) CalcChecksum() uint16 {
	buf := h.Serialize()
	buf[10] = 0
	buf[11] = 0

	sum := uint32(0)
	for i := 0; i < len(buf); i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}
	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return ^uint16(sum)
}

// Payload returns the packet payload (data after the header).
func (h *Header) Payload(data []byte) []byte {
	if HeaderLength > len(data) {
		return nil
	}
	return data[HeaderLength:]
}

// Datagram represents a complete IPv4 datagram: header plus payload.
type Datagram struct {
	Header  *Header
	Payload []byte
}

// ParseDatagram parses an IPv4 datagram from raw bytes.
func ParseDatagram(data []byte) (*Datagram, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	payload := header.Payload(data)
	if payload == nil {
		return nil, fmt.Errorf("ipv4: invalid payload")
	}

	return &Datagram{Header: header, Payload: payload}, nil
}

// Serialize serializes the datagram to bytes. The checksum field is left
// at whatever the header carries; callers building an outbound frame leave
// it zero and rely on NIC offload (see the e1000 package's context
// descriptor), per this stack's non-verification policy.
func (d *Datagram) Serialize() []byte {
	d.Header.Length = uint16(HeaderLength + len(d.Payload))

	buf := make([]byte, HeaderLength+len(d.Payload))
	copy(buf, d.Header.Serialize())
	copy(buf[HeaderLength:], d.Payload)
	return buf
}

// NewDatagram creates a new IPv4 datagram with the canonical fixed-header
// field values this stack always emits: IHL=5, TOS=0, ID=0, no fragment
// flags, TTL=64, checksum left zero for NIC offload.
func NewDatagram(srcIP, dstIP network.IP, protocol uint8, payload []byte) *Datagram {
	h := &Header{
		Version:    4,
		IHL:        5,
		TOS:        0,
		Length:     uint16(HeaderLength + len(payload)),
		ID:         0,
		Flags:      0,
		FragOffset: 0,
		TTL:        64,
		Protocol:   protocol,
		Checksum:   0,
		SrcIP:      srcIP,
		DstIP:      dstIP,
	}

	return &Datagram{Header: h, Payload: payload}
}
