// Package stack wires the E1000 driver, packet demultiplexer, and
// connection table into one top-level NetStack value: the thing
// net_init constructs once at boot and every syscall entry point is
// passed by reference, rather than reaching for package-level globals.
package stack

import (
	"net"

	"github.com/sirupsen/logrus"

	"netkern/pkg/conntable"
	"netkern/pkg/e1000"
	"netkern/pkg/hostos"
	"netkern/pkg/netstack"
	"netkern/pkg/netstack/demux"
)

// NetStack is the fully wired network stack: driver, demultiplexer, and
// connection table, plus the host collaborators they were built from.
type NetStack struct {
	Driver *e1000.Device
	Demux  *demux.Demux
	Table  *conntable.Table

	Pages hostos.PageAllocator
	Xlate hostos.AddressTranslator
	IRQ   hostos.IRQLine

	log *logrus.Entry
}

// Boot brings up the stack on the given Bus: discovers and initialises
// the E1000 device, wires its packet handler to the demultiplexer, and
// binds the connection table's transmit functions to the
// demultiplexer's ARP-request and UDP-send helpers. This is the
// rewrite's net_init: everything that must happen in order before the
// first syscall.
func Boot(bus e1000.Bus, log *logrus.Entry) (*NetStack, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	pages := hostos.NewFreeListAllocator(2*e1000.NRx + conntable.NCONN + 16)
	xlate := hostos.NewIdentityTranslator()
	irq := &hostos.RecordingIRQLine{}

	table := conntable.New(pages, log.WithField("component", "conntable"))

	ns := &NetStack{
		Table: table,
		Pages: pages,
		Xlate: xlate,
		IRQ:   irq,
		log:   log,
	}

	dev, err := e1000.Open(bus, pages, xlate, irq, log.WithField("component", "e1000"), nil)
	if err != nil {
		return nil, err
	}
	ns.Driver = dev

	d := demux.New(dev.MAC, netstack.LocalIP, dev, table, log.WithField("component", "demux"))
	ns.Demux = d
	dev.SetHandler(d.HandlePacket)

	table.Bind(d.SendUDP, d.SendARPRequest)

	log.WithField("mac", dev.MAC.String()).Info("netstack booted")
	return ns, nil
}

// LocalMAC returns the stack's hardware address, read from the device's
// EEPROM at boot.
func (ns *NetStack) LocalMAC() net.HardwareAddr { return ns.Driver.MAC }

// LocalIP returns the stack's one and only local IPv4 address.
func (ns *NetStack) LocalIP() net.IP { return netstack.LocalIP }
