package ethernet

import (
	"encoding/binary"
	"fmt"
	network "net"

	"netkern/pkg/netstack"
)

// ARP operation types.
const (
	ARPOperationRequest uint16 = 1
	ARPOperationReply   uint16 = 2
)

// ARPPacketSize is the size of an ARP packet in bytes.
const ARPPacketSize = 28

// ARPPacket represents an ARP packet for Ethernet/IPv4.
type ARPPacket struct {
	HardwareType uint16
	ProtocolType uint16
	HardwareSize uint8
	ProtocolSize uint8
	Operation    uint16
	SenderMAC    network.HardwareAddr
	SenderIP     network.IP
	TargetMAC    network.HardwareAddr
	TargetIP     network.IP
}

// ParseARPPacket parses an ARP packet from raw bytes. Total on any input of
// at least ARPPacketSize bytes.
func ParseARPPacket(data []byte) (*ARPPacket, error) {
	if len(data) < ARPPacketSize {
		return nil, fmt.Errorf("arp: packet too short: %d bytes", len(data))
	}

	p := &ARPPacket{
		HardwareType: binary.BigEndian.Uint16(data[0:2]),
		ProtocolType: binary.BigEndian.Uint16(data[2:4]),
		HardwareSize: data[4],
		ProtocolSize: data[5],
		Operation:    binary.BigEndian.Uint16(data[6:8]),
		SenderMAC:    network.HardwareAddr(append([]byte{}, data[8:14]...)),
		TargetMAC:    network.HardwareAddr(append([]byte{}, data[18:24]...)),
	}
	p.SenderIP = network.IP(append([]byte{}, data[14:18]...))
	p.TargetIP = network.IP(append([]byte{}, data[24:28]...))

	return p, nil
}

// Serialize converts the ARP packet to raw bytes.
func (p *ARPPacket) Serialize() []byte {
	buf := make([]byte, ARPPacketSize)
	binary.BigEndian.PutUint16(buf[0:2], p.HardwareType)
	binary.BigEndian.PutUint16(buf[2:4], p.ProtocolType)
	buf[4] = p.HardwareSize
	buf[5] = p.ProtocolSize
	binary.BigEndian.PutUint16(buf[6:8], p.Operation)
	copy(buf[8:14], p.SenderMAC)
	copy(buf[14:18], p.SenderIP.To4())
	copy(buf[18:24], p.TargetMAC)
	copy(buf[24:28], p.TargetIP.To4())
	return buf
}

// NewARPRequest creates an ARP request packet with a zeroed target MAC,
// since the sender doesn't know it yet.
func NewARPRequest(senderMAC network.HardwareAddr, senderIP, targetIP network.IP) *ARPPacket {
	return &ARPPacket{
		HardwareType: 1,
		ProtocolType: uint16(netstack.EtherTypeIPv4),
		HardwareSize: 6,
		ProtocolSize: 4,
		Operation:    ARPOperationRequest,
		SenderMAC:    senderMAC,
		SenderIP:     senderIP,
		TargetMAC:    ZeroMAC(),
		TargetIP:     targetIP,
	}
}

// NewARPReply creates an ARP reply packet.
func NewARPReply(senderMAC network.HardwareAddr, senderIP network.IP, targetMAC network.HardwareAddr, targetIP network.IP) *ARPPacket {
	return &ARPPacket{
		HardwareType: 1,
		ProtocolType: uint16(netstack.EtherTypeIPv4),
		HardwareSize: 6,
		ProtocolSize: 4,
		Operation:    ARPOperationReply,
		SenderMAC:    senderMAC,
		SenderIP:     senderIP,
		TargetMAC:    targetMAC,
		TargetIP:     targetIP,
	}
}

// IsValid reports whether the ARP packet has the hardware/protocol field
// values this stack understands (Ethernet over IPv4).
func (p *ARPPacket) IsValid() bool {
	return p.HardwareType == 1 &&
		p.ProtocolType == uint16(netstack.EtherTypeIPv4) &&
		p.HardwareSize == 6 &&
		p.ProtocolSize == 4
}
