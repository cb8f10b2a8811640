// Package ethernet provides Ethernet II frame parsing and generation, and
// the ARP codec used for IPv4-over-Ethernet address resolution.
package ethernet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"netkern/pkg/netstack"
)

// HeaderLength is the length in bytes of an Ethernet II header: destination
// MAC, source MAC, EtherType.
const HeaderLength = 14

// Frame represents an Ethernet II frame. The NIC inserts and strips the
// trailing frame check sequence; it never appears here.
type Frame struct {
	DstMAC    net.HardwareAddr
	SrcMAC    net.HardwareAddr
	EtherType netstack.EtherType
	Payload   []byte
}

// ParseFrame parses an Ethernet frame from raw bytes. Total on any input of
// at least HeaderLength bytes.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderLength {
		return nil, fmt.Errorf("ethernet: frame too short: %d bytes", len(data))
	}

	frame := &Frame{
		DstMAC:    net.HardwareAddr(append([]byte{}, data[0:6]...)),
		SrcMAC:    net.HardwareAddr(append([]byte{}, data[6:12]...)),
		EtherType: netstack.EtherType(binary.BigEndian.Uint16(data[12:14])),
		Payload:   data[14:],
	}
	return frame, nil
}

// Serialize serializes the Ethernet frame to bytes.
func (f *Frame) Serialize() []byte {
	buf := make([]byte, HeaderLength+len(f.Payload))
	copy(buf[0:6], f.DstMAC)
	copy(buf[6:12], f.SrcMAC)
	binary.BigEndian.PutUint16(buf[12:14], uint16(f.EtherType))
	copy(buf[14:], f.Payload)
	return buf
}

// IsBroadcast reports whether the destination MAC is the all-ones broadcast
// address.
func (f *Frame) IsBroadcast() bool {
	for _, b := range f.DstMAC {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// IsMulticast reports whether the destination MAC has the multicast bit
// set.
func (f *Frame) IsMulticast() bool {
	return f.DstMAC[0]&0x01 == 0x01
}

// IsUnicast reports whether the frame is neither broadcast nor multicast.
func (f *Frame) IsUnicast() bool {
	return !f.IsBroadcast() && !f.IsMulticast()
}

// NewFrame builds a Frame from its fields.
func NewFrame(dstMAC, srcMAC net.HardwareAddr, etherType netstack.EtherType, payload []byte) *Frame {
	return &Frame{
		DstMAC:    dstMAC,
		SrcMAC:    srcMAC,
		EtherType: etherType,
		Payload:   payload,
	}
}

// BroadcastMAC returns the Ethernet broadcast address.
func BroadcastMAC() net.HardwareAddr {
	return net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
}

// ZeroMAC returns the all-zero hardware address used as the target MAC of
// an ARP request, since the sender doesn't know it yet.
func ZeroMAC() net.HardwareAddr {
	return net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// ParseMAC parses a colon-separated hex MAC address such as "aa:bb:cc:dd:ee:ff".
func ParseMAC(s string) (net.HardwareAddr, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("ethernet: invalid MAC address: %s", s)
	}
	mac := make(net.HardwareAddr, 6)
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil || len(b) != 1 {
			return nil, fmt.Errorf("ethernet: invalid MAC address: %s", s)
		}
		mac[i] = b[0]
	}
	return mac, nil
}
