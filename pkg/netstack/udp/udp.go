// Package udp provides the 8-byte UDP header codec used by the kernel
// network stack. There is no socket type here: blocking connection
// semantics live in the conntable package, which owns the receive buffer
// this codec's payload ends up in.
package udp

import (
	"encoding/binary"
	"fmt"
	network "net"
)

// HeaderLength is the UDP header length in bytes.
const HeaderLength = 8

// ProtocolUDP is the IPv4 protocol number for UDP, used in the pseudo-header.
const ProtocolUDP = 17

// Header represents a UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// Payload returns the datagram payload (data after the header).
func (h *Header) Payload(data []byte) []byte {
	if HeaderLength > len(data) {
		return nil
	}
	return data[HeaderLength:]
}

// ParseHeader parses a UDP header from raw bytes. Total on any input of at
// least HeaderLength bytes.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("udp: header too short: %d bytes", len(data))
	}

	return &Header{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
	}, nil
}

// Serialize serializes the UDP header to bytes.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderLength)
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	return buf
}

// CalcChecksum computes the UDP checksum over the IPv4 pseudo-header, this
// header, and the payload. Like ipv4.Header.CalcChecksum, this is never
// consulted on the send or receive hot path — outbound checksums are left
// zero for the NIC's TCP/IP context descriptor to compute, and inbound
// checksums are never verified. It is a diagnostic helper; `netctl
// verify` does not call it, and only this package's tests do.
func (h *Header) CalcChecksum(srcIP, dstIP network.IP, payload []byte) uint16 {
	src := srcIP.To4()
	dst := dstIP.To4()
	if src == nil || dst == nil {
		return 0
	}

	sum := uint32(0)
	sum += uint32(src[0])<<8 | uint32(src[1])
	sum += uint32(src[2])<<8 | uint32(src[3])
	sum += uint32(dst[0])<<8 | uint32(dst[1])
	sum += uint32(dst[2])<<8 | uint32(dst[3])
	sum += uint32(ProtocolUDP)
	sum += uint32(HeaderLength + len(payload))

	data := append(h.Serialize(), payload...)
	for i := 0; i < len(data); i += 2 {
		if i+1 < len(data) {
			sum += uint32(data[i])<<8 | uint32(data[i+1])
		} else {
			sum += uint32(data[i]) << 8
		}
	}

	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}

	if sum == 0xFFFF {
		return 0xFFFF
	}
	return ^uint16(sum)
}

// Datagram represents a complete UDP datagram.
type Datagram struct {
	Header  *Header
	SrcIP   network.IP
	DstIP   network.IP
	Payload []byte
}

// ParseDatagram parses a UDP datagram from raw bytes.
func ParseDatagram(data []byte, srcIP, dstIP network.IP) (*Datagram, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	payload := header.Payload(data)
	if payload == nil {
		return nil, fmt.Errorf("udp: invalid payload")
	}

	return &Datagram{
		Header:  header,
		SrcIP:   srcIP,
		DstIP:   dstIP,
		Payload: payload,
	}, nil
}

// Serialize serializes the datagram to bytes. The checksum field is left
// at whatever the header carries; NewDatagram leaves it zero.
func (d *Datagram) Serialize() []byte {
	d.Header.Length = uint16(HeaderLength + len(d.Payload))

	buf := make([]byte, HeaderLength+len(d.Payload))
	copy(buf, d.Header.Serialize())
	copy(buf[HeaderLength:], d.Payload)
	return buf
}

// NewDatagram creates a new UDP datagram with a zero checksum, left for
// NIC offload.
func NewDatagram(srcPort, dstPort uint16, srcIP, dstIP network.IP, payload []byte) *Datagram {
	return &Datagram{
		Header: &Header{
			SrcPort:  srcPort,
			DstPort:  dstPort,
			Length:   uint16(HeaderLength + len(payload)),
			Checksum: 0,
		},
		SrcIP:   srcIP,
		DstIP:   dstIP,
		Payload: payload,
	}
}
