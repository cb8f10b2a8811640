package ethernet

import (
	"net"
	"testing"

	"netkern/pkg/netstack"
)

func TestNewARPRequest(t *testing.T) {
	senderMAC := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	senderIP := net.ParseIP("192.168.1.100")
	targetIP := net.ParseIP("192.168.1.1")

	packet := NewARPRequest(senderMAC, senderIP, targetIP)

	if packet.HardwareType != 1 {
		t.Errorf("HardwareType = %d, want 1", packet.HardwareType)
	}
	if packet.ProtocolType != uint16(netstack.EtherTypeIPv4) {
		t.Errorf("ProtocolType = %d, want %d", packet.ProtocolType, netstack.EtherTypeIPv4)
	}
	if packet.Operation != ARPOperationRequest {
		t.Errorf("Operation = %d, want %d", packet.Operation, ARPOperationRequest)
	}
	if packet.SenderMAC.String() != senderMAC.String() {
		t.Errorf("SenderMAC = %s, want %s", packet.SenderMAC, senderMAC)
	}
	if packet.TargetMAC.String() != ZeroMAC().String() {
		t.Errorf("TargetMAC = %s, want zero", packet.TargetMAC)
	}
}

func TestARPPacketSerialization(t *testing.T) {
	senderMAC := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	senderIP := net.ParseIP("192.168.1.100")
	targetIP := net.ParseIP("192.168.1.1")

	packet := NewARPRequest(senderMAC, senderIP, targetIP)
	serialized := packet.Serialize()

	if len(serialized) != ARPPacketSize {
		t.Errorf("Serialized length = %d, want %d", len(serialized), ARPPacketSize)
	}

	parsed, err := ParseARPPacket(serialized)
	if err != nil {
		t.Fatalf("ParseARPPacket failed: %v", err)
	}

	if parsed.Operation != packet.Operation {
		t.Errorf("Parsed Operation = %d, want %d", parsed.Operation, packet.Operation)
	}
	if !parsed.SenderIP.Equal(senderIP) {
		t.Errorf("Parsed SenderIP = %s, want %s", parsed.SenderIP, senderIP)
	}
}

func TestARPReplyRoundTrip(t *testing.T) {
	senderMAC := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	senderIP := net.ParseIP("10.0.0.1")
	targetMAC := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	targetIP := net.ParseIP("10.0.0.2")

	packet := NewARPReply(senderMAC, senderIP, targetMAC, targetIP)
	parsed, err := ParseARPPacket(packet.Serialize())
	if err != nil {
		t.Fatalf("ParseARPPacket failed: %v", err)
	}
	if parsed.Operation != ARPOperationReply {
		t.Errorf("Operation = %d, want reply", parsed.Operation)
	}
	if !parsed.IsValid() {
		t.Errorf("parsed reply should be valid")
	}
}
