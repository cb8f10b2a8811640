package e1000

import (
	"sync"

	"golang.org/x/sys/unix"
)

// SimBus is a Bus backed by an anonymous mmap'd region, standing in for
// real PCI configuration space and BAR0 MMIO. It behaves enough like an
// 82540EM for the driver to initialise and run its TX path: a fixed
// vendor/device identifier at config offset 0, a writable command
// register, and a register file that simply holds whatever was last
// written, except for EERD where a read flips the DONE bit on immediately
// (there is no real EEPROM latency to simulate). Nothing advances RDH, so
// RxPoll never finds a completed receive descriptor on a SimBus.
type SimBus struct {
	mu sync.Mutex

	config [256]byte
	mmio   []byte

	mac            [3]uint16
	lastEEPROMWord int
}

// NewSimBus allocates the MMIO region via unix.Mmap and seeds PCI
// configuration space with the one device this driver looks for.
func NewSimBus(mac [6]byte) (*SimBus, error) {
	mmio, err := unix.Mmap(-1, 0, 1<<20, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	b := &SimBus{mmio: mmio}
	b.config[0] = byte(VendorID & 0xff)
	b.config[1] = byte(VendorID >> 8)
	b.config[2] = byte(DeviceID & 0xff)
	b.config[3] = byte(DeviceID >> 8)
	b.mac[0] = uint16(mac[0]) | uint16(mac[1])<<8
	b.mac[1] = uint16(mac[2]) | uint16(mac[3])<<8
	b.mac[2] = uint16(mac[4]) | uint16(mac[5])<<8
	return b, nil
}

// Close releases the mmap'd region.
func (b *SimBus) Close() error {
	return unix.Munmap(b.mmio)
}

func (b *SimBus) ConfigRead32(addr uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	off := addr & 0x7FF
	if int(off)+4 > len(b.config) {
		return 0
	}
	return uint32(b.config[off]) | uint32(b.config[off+1])<<8 |
		uint32(b.config[off+2])<<16 | uint32(b.config[off+3])<<24
}

func (b *SimBus) ConfigWrite32(addr, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	off := addr & 0x7FF
	if int(off)+4 > len(b.config) {
		return
	}
	b.config[off] = byte(value)
	b.config[off+1] = byte(value >> 8)
	b.config[off+2] = byte(value >> 16)
	b.config[off+3] = byte(value >> 24)
}

func (b *SimBus) MMIORead32(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e1000reg(offset) == EERD {
		part := uint32(b.mac[b.lastEEPROMWord]) << 16
		return part | eepromDone
	}

	return uint32(b.mmio[offset]) | uint32(b.mmio[offset+1])<<8 |
		uint32(b.mmio[offset+2])<<16 | uint32(b.mmio[offset+3])<<24
}

func (b *SimBus) MMIOWrite32(offset, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e1000reg(offset) == EERD {
		b.lastEEPROMWord = int((value >> 8) & 0xFF)
		return
	}

	b.mmio[offset] = byte(value)
	b.mmio[offset+1] = byte(value >> 8)
	b.mmio[offset+2] = byte(value >> 16)
	b.mmio[offset+3] = byte(value >> 24)
}
