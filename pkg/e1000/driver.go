package e1000

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"netkern/pkg/hostos"
)

// ErrNoDevice is returned by Open when no PCI device matches the
// Intel 82540EM vendor/device identifier.
var ErrNoDevice = fmt.Errorf("e1000: no matching device found")

// PacketHandler is the upcall rx_poll invokes for every completed receive
// descriptor. buf is the descriptor's data page contents, already
// trimmed to length; eop reports whether this descriptor carries the end
// of its packet (always true in practice, since this driver's buffers
// are large enough that a frame never spans two descriptors).
type PacketHandler func(buf []byte, eop bool)

// Stats are the cumulative counters the original driver's TPT/GPTC
// registers only partially cover; netctl stats reports these directly.
// This package updates the frame and byte counters only; nothing
// increments ARPRepliesTX or DropsTrunc, so both stay zero.
type Stats struct {
	FramesIn     uint64
	BytesIn      uint64
	FramesOut    uint64
	BytesOut     uint64
	ARPRepliesTX uint64
	DropsTrunc   uint64
}

// Device is one initialised E1000 card: its Bus, its MAC, and its RX/TX
// ring bookkeeping. There is no package-level singleton; callers own a
// Device and pass it by reference.
type Device struct {
	mu  sync.Mutex
	bus Bus

	pages hostos.PageAllocator
	xlate hostos.AddressTranslator
	irq   hostos.IRQLine

	log *logrus.Entry

	MAC net.HardwareAddr

	rxRing    *hostos.Page
	rxHead    uint32
	rxBufs    [NRx]*hostos.Page

	txRing    *hostos.Page
	txTail    uint32
	txCtxDone bool

	handler PacketHandler

	Stats Stats
}

// Open discovers an 82540EM on the given bus, reads its MAC, and brings
// up the RX and TX rings. handler is called synchronously from RxPoll
// for every completed receive descriptor, with that descriptor's
// end-of-packet flag.
func Open(bus Bus, pages hostos.PageAllocator, xlate hostos.AddressTranslator, irq hostos.IRQLine, log *logrus.Entry, handler PacketHandler) (*Device, error) {
	if _, err := discover(bus); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	d := &Device{
		bus:     bus,
		pages:   pages,
		xlate:   xlate,
		irq:     irq,
		log:     log,
		handler: handler,
	}
	d.MAC = readMAC(bus)

	if err := d.initRx(); err != nil {
		return nil, fmt.Errorf("e1000: rx init: %w", err)
	}
	if err := d.initTx(); err != nil {
		return nil, fmt.Errorf("e1000: tx init: %w", err)
	}
	d.initIntr()

	d.log.WithField("mac", d.MAC.String()).Info("e1000 device initialised")
	return d, nil
}

// discover scans PCI devices 0..3 on bus 0 for the first 82540EM match
// and sets the bus-master bit in its command register.
func discover(bus Bus) (int, error) {
	for devNum := 0; devNum < 4; devNum++ {
		idReg := bus.ConfigRead32(configAddr(devNum, pciRegVendorDevice))
		vendor := uint16(idReg & 0xFFFF)
		device := uint16(idReg >> 16)
		if vendor != VendorID || device != DeviceID {
			continue
		}

		cmd := bus.ConfigRead32(configAddr(devNum, pciRegCommand))
		cmd |= pciCommandBusMaster
		bus.ConfigWrite32(configAddr(devNum, pciRegCommand), cmd)

		return devNum, nil
	}
	return -1, ErrNoDevice
}

// readMAC issues three serial EEPROM reads (words 0, 1, 2), polling the
// DONE bit, and concatenates the high 16 bits of each result.
func readMAC(bus Bus) net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	for i := 0; i < 3; i++ {
		bus.MMIOWrite32(uint32(EERD), 0x00000001|uint32(i)<<8)
		var result uint32
		for result&eepromDone == 0 {
			result = bus.MMIORead32(uint32(EERD))
		}
		part := uint16(result >> 16)
		mac[i*2] = byte(part)
		mac[i*2+1] = byte(part >> 8)
	}
	return mac
}

func (d *Device) initRx() error {
	macLow := uint32(d.MAC[0]) | uint32(d.MAC[1])<<8 | uint32(d.MAC[2])<<16 | uint32(d.MAC[3])<<24
	macHigh := uint32(d.MAC[4]) | uint32(d.MAC[5])<<8
	d.bus.MMIOWrite32(uint32(RAL), macLow)
	d.bus.MMIOWrite32(uint32(RAH), macHigh)

	ring, err := d.pages.Alloc()
	if err != nil {
		return err
	}
	d.rxRing = ring
	if reg, ok := d.xlate.(registerer); ok {
		reg.Register(ring)
	}

	d.bus.MMIOWrite32(uint32(RDBAL), uint32(d.xlate.V2P(ring)))
	d.bus.MMIOWrite32(uint32(RDBAH), 0)
	d.bus.MMIOWrite32(uint32(RDLEN), NRx*DescSize)
	d.bus.MMIOWrite32(uint32(RDH), 0)

	for i := 0; i < NRx; i++ {
		buf, err := d.pages.Alloc()
		if err != nil {
			return err
		}
		d.rxBufs[i] = buf
		if reg, ok := d.xlate.(registerer); ok {
			reg.Register(buf)
		}
		encodeRxDescAddr(ring.Data[i*DescSize:(i+1)*DescSize], uint64(d.xlate.V2P(buf)))
	}
	d.bus.MMIOWrite32(uint32(RDT), NRx-1)

	rctl := rctlEnable | rctlStoreBadPkts | rctlUnicastAll | rctlMulticastAll |
		rctlLongPkts | rctlBroadcastAccept | rctlBufSize4096 | rctlBufSizeExt
	d.bus.MMIOWrite32(uint32(RCTL), rctl)
	return nil
}

// registerer is implemented by AddressTranslator implementations (such as
// hostos.IdentityTranslator) that need to be told about a page before
// V2P/P2V can resolve it.
type registerer interface {
	Register(*hostos.Page)
}

func (d *Device) initTx() error {
	ring, err := d.pages.Alloc()
	if err != nil {
		return err
	}
	d.txRing = ring
	if reg, ok := d.xlate.(registerer); ok {
		reg.Register(ring)
	}

	d.bus.MMIOWrite32(uint32(TDBAL), uint32(d.xlate.V2P(ring)))
	d.bus.MMIOWrite32(uint32(TDBAH), 0)
	d.bus.MMIOWrite32(uint32(TDLEN), hostosPageSize)
	d.bus.MMIOWrite32(uint32(TDH), 0)
	d.bus.MMIOWrite32(uint32(TDT), 0)

	tctl := tctlEnable | tctlPadShort | tctlCollThresh | tctlCollDist
	d.bus.MMIOWrite32(uint32(TCTL), tctl)
	d.bus.MMIOWrite32(uint32(TIPG), tipgDefault)
	return nil
}

func (d *Device) initIntr() {
	d.bus.MMIOWrite32(uint32(IMS), imsDefault)
	d.irq.Enable(11, 0)
}

// frameTransmitter is implemented by a Bus that bridges transmitted
// frames onto a real link (TapBus). SimBus alone does not implement it,
// so plain simulated runs never pay for the type assertion's failure
// path beyond the check itself.
type frameTransmitter interface {
	TransmitFrame(frame []byte) error
}

// DeliverFrame hands a frame read from a bridged link (see TapBus)
// straight to the packet handler, bypassing the descriptor-ring
// simulation entirely: there is no simulated hardware head pointer for
// a real external frame to advance. Callers run this from the
// goroutine that reads the TAP device. The handler runs without the
// device lock held, so it may transmit through TxEnqueue.
func (d *Device) DeliverFrame(frame []byte) {
	d.mu.Lock()
	d.Stats.FramesIn++
	d.Stats.BytesIn += uint64(len(frame))
	handler := d.handler
	d.mu.Unlock()

	if handler != nil {
		handler(frame, true)
	}
}

// SetHandler installs (or replaces) the packet handler RxPoll invokes.
// It exists because the handler often needs the Device itself (as a
// Transmitter, to send ARP replies), creating a construction-order
// cycle that's easiest to break by wiring the handler after Open
// returns rather than threading it through the constructor.
func (d *Device) SetHandler(handler PacketHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// HandleInterrupt reads ICR (which clears it) and dispatches. TXDW is
// acknowledged but has no handler: transmit descriptors are never
// reclaimed and their pages leak. This is a known, deliberately
// preserved bug; fixing it would mean tracking descriptor completion,
// which the original driver never does.
func (d *Device) HandleInterrupt() {
	mask := d.bus.MMIORead32(uint32(ICR))
	if mask&icrRXT0 != 0 {
		d.RxPoll()
	}
	// TODO: reclaim TX descriptor pages on TXDW instead of leaking them.
}

// RxPoll drains every completed receive descriptor between the
// software head and the hardware head, invoking the packet handler
// synchronously for each before advancing, then writes back RDT so the
// NIC may reuse the descriptors. The device lock is released while the
// handler runs, so the handler may transmit through TxEnqueue.
func (d *Device) RxPoll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	hwHead := d.bus.MMIORead32(uint32(RDH))
	for d.rxHead != hwHead {
		buf := d.rxBufs[d.rxHead]
		descOff := int(d.rxHead) * DescSize
		desc := decodeRxDesc(d.rxRing.Data[descOff : descOff+DescSize])

		length := int(desc.Length)
		if length > hostosPageSize {
			length = hostosPageSize
		}
		eop := desc.Status&rxStatusEOP != 0

		d.Stats.FramesIn++
		d.Stats.BytesIn += uint64(length)

		if handler := d.handler; handler != nil {
			d.mu.Unlock()
			handler(buf.Data[:length], eop)
			d.mu.Lock()
		}

		d.rxHead = (d.rxHead + 1) % NRx
	}
	rdt := (d.rxHead + NRx - 1) % NRx
	d.bus.MMIOWrite32(uint32(RDT), rdt)
}

// TxEnqueue transmits payload, installing a one-time TCP/IP context
// descriptor first if one has not yet been installed since the last
// reset. A fresh page is allocated for every call and never reclaimed,
// matching the preserved transmit-page leak.
func (d *Device) TxEnqueue(payload []byte, wantOffload bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(payload) > hostosPageSize {
		payload = payload[:hostosPageSize]
	}

	if !d.txCtxDone {
		tail := d.bus.MMIORead32(uint32(TDT))
		off := int(tail) * DescSize
		encodeContextDesc(d.txRing.Data[off : off+DescSize])
		d.bus.MMIOWrite32(uint32(TDT), (tail+1)%NTx)
		d.txCtxDone = true
	}

	buf, err := d.pages.Alloc()
	if err != nil {
		return err
	}
	if reg, ok := d.xlate.(registerer); ok {
		reg.Register(buf)
	}
	copy(buf.Data[:], payload)

	var popts uint16
	if wantOffload {
		popts = txPoptsIXSM
	}
	cmd := txCmdEOP | txCmdRS | txCmdIFCS

	tail := d.bus.MMIORead32(uint32(TDT))
	off := int(tail) * DescSize
	encodeTxDataDesc(d.txRing.Data[off:off+DescSize], uint64(d.xlate.V2P(buf)), uint32(len(payload)), cmd, popts)
	d.bus.MMIOWrite32(uint32(TDT), (tail+1)%NTx)

	if tx, ok := d.bus.(frameTransmitter); ok {
		if err := tx.TransmitFrame(payload); err != nil {
			d.log.WithError(err).Warn("e1000: bridged transmit failed")
		}
	}

	d.Stats.FramesOut++
	d.Stats.BytesOut += uint64(len(payload))
	return nil
}
