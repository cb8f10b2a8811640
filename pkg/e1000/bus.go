package e1000

// Bus is how the driver talks to "the card": PCI configuration space for
// discovery, and the BAR0 MMIO region for everything after. The driver
// never does pointer arithmetic on a raw address directly; it always goes
// through a Bus, so the hardware underneath can be swapped for a
// simulated one in tests or a TAP-bridged one in demos.
type Bus interface {
	ConfigRead32(addr uint32) uint32
	ConfigWrite32(addr, value uint32)
	MMIORead32(offset uint32) uint32
	MMIOWrite32(offset, value uint32)
}

// configAddr builds the PCI configuration-space address for a bus/device
// register pair, matching the original driver's 0x80000000|dev<<11|reg
// addressing scheme (bus is always 0 here).
func configAddr(dev int, reg uint32) uint32 {
	return 0x80000000 | uint32(dev)<<11 | reg
}
