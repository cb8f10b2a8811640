package e1000

import (
	"sync"

	"github.com/songgao/water"
)

// TapBus is a Bus that behaves like a real 82540EM attached to a real
// link: configuration space and general registers are simulated the
// same way SimBus simulates them, but every transmitted frame is
// forwarded to a TAP device. Frames read off that TAP device are returned
// by ReadFrame for the caller to hand to Device.DeliverFrame, which
// passes them to the packet handler without going through the RX ring. This
// lets a demo run the genuine driver and connection-table code against
// real host UDP traffic without any actual E1000 hardware.
type TapBus struct {
	*SimBus

	iface *water.Interface

	injectMu sync.Mutex
	pending  [][]byte
}

// NewTapBus opens a TAP device with the given name (or lets the OS pick
// one if empty) and wraps it around a SimBus for register emulation.
func NewTapBus(mac [6]byte, ifaceName string) (*TapBus, error) {
	sim, err := NewSimBus(mac)
	if err != nil {
		return nil, err
	}

	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = ifaceName
	iface, err := water.New(cfg)
	if err != nil {
		sim.Close()
		return nil, err
	}

	return &TapBus{SimBus: sim, iface: iface}, nil
}

// TransmitFrame is called by Device.TxEnqueue, which finds it through a
// type assertion on the Bus, to forward an outbound Ethernet frame onto
// the TAP device, standing in for the NIC putting bits on the wire.
func (b *TapBus) TransmitFrame(frame []byte) error {
	_, err := b.iface.Write(frame)
	return err
}

// ReadFrame blocks until a frame arrives from the TAP device. Callers
// run this in a background goroutine and feed the result to
// Device.DeliverFrame.
func (b *TapBus) ReadFrame(buf []byte) (int, error) {
	return b.iface.Read(buf)
}

// Close releases the TAP device and the underlying SimBus.
func (b *TapBus) Close() error {
	b.iface.Close()
	return b.SimBus.Close()
}
