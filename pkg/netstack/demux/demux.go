// Package demux implements packet classification and ARP handling for
// inbound frames: parse the Ethernet header, dispatch by ether-type,
// answer ARP requests and apply ARP replies entirely within the stack,
// and route IPv4/UDP datagrams to the connection table entry matching
// their destination port.
package demux

import (
	"net"

	"github.com/sirupsen/logrus"

	"netkern/pkg/conntable"
	"netkern/pkg/netstack"
	"netkern/pkg/netstack/ethernet"
	ipv4 "netkern/pkg/netstack/ip"
	"netkern/pkg/netstack/udp"
)

// Transmitter is the one thing the demultiplexer needs from the driver:
// the ability to put a fully-built Ethernet frame on the wire. It is
// satisfied directly by *e1000.Device. ARP frames are sent with
// wantOffload false, since they carry no IP/UDP header to offload.
type Transmitter interface {
	TxEnqueue(frame []byte, wantOffload bool) error
}

// Demux holds what's needed to classify inbound frames and answer or
// route them: the local MAC/IP identity, a Transmitter for replies, and
// the connection table UDP datagrams get routed into.
type Demux struct {
	LocalMAC net.HardwareAddr
	LocalIP  net.IP

	tx    Transmitter
	table *conntable.Table
	log   *logrus.Entry
}

// New builds a Demux bound to a transmitter and connection table.
func New(localMAC net.HardwareAddr, localIP net.IP, tx Transmitter, table *conntable.Table, log *logrus.Entry) *Demux {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Demux{LocalMAC: localMAC, LocalIP: localIP, tx: tx, table: table, log: log}
}

// HandlePacket is the upcall the driver's rx_poll invokes for every
// completed receive descriptor; a descriptor without end-of-packet is
// ignored. It never panics on malformed input: anything it can't parse
// is logged and dropped.
func (d *Demux) HandlePacket(buf []byte, eop bool) {
	if !eop {
		// A frame split across descriptors never happens with this
		// driver's 4 KiB buffers; nothing to reassemble.
		return
	}

	frame, err := ethernet.ParseFrame(buf)
	if err != nil {
		d.log.WithError(err).Debug("dropping truncated ethernet frame")
		return
	}

	switch frame.EtherType {
	case netstack.EtherTypeARP:
		d.handleARP(frame.Payload)
	case netstack.EtherTypeIPv4:
		d.handleIPv4(frame.Payload)
	default:
		d.log.WithField("ethertype", frame.EtherType).Debug("dropping unknown ethertype")
	}
}

func (d *Demux) handleARP(payload []byte) {
	pkt, err := ethernet.ParseARPPacket(payload)
	if err != nil {
		d.log.WithError(err).Debug("dropping truncated arp packet")
		return
	}
	if !pkt.IsValid() {
		d.log.Debug("dropping arp packet with unsupported hw/proto fields")
		return
	}
	if !pkt.TargetIP.Equal(d.LocalIP) {
		return
	}

	switch pkt.Operation {
	case ethernet.ARPOperationReply:
		d.table.ApplyARPReply(pkt.SenderIP, pkt.SenderMAC)

	case ethernet.ARPOperationRequest:
		reply := ethernet.NewARPReply(d.LocalMAC, d.LocalIP, pkt.SenderMAC, pkt.SenderIP)
		frame := ethernet.NewFrame(pkt.SenderMAC, d.LocalMAC, netstack.EtherTypeARP, reply.Serialize())
		if err := d.tx.TxEnqueue(frame.Serialize(), false); err != nil {
			d.log.WithError(err).Warn("failed to send arp reply")
		}

	default:
		d.log.WithField("op", pkt.Operation).Debug("dropping arp packet with unknown operation")
	}
}

func (d *Demux) handleIPv4(payload []byte) {
	dgram, err := ipv4.ParseDatagram(payload)
	if err != nil {
		d.log.WithError(err).Debug("dropping truncated ipv4 datagram")
		return
	}
	if !dgram.Header.DstIP.Equal(d.LocalIP) {
		return
	}
	if dgram.Header.Protocol != ipv4.ProtocolUDP {
		d.log.WithField("protocol", dgram.Header.Protocol).Debug("dropping non-udp ipv4 datagram")
		return
	}

	udpDgram, err := udp.ParseDatagram(dgram.Payload, dgram.Header.SrcIP, dgram.Header.DstIP)
	if err != nil {
		d.log.WithError(err).Debug("dropping truncated udp datagram")
		return
	}
	payloadLen := int(udpDgram.Header.Length) - udp.HeaderLength
	if payloadLen < 0 || payloadLen > len(udpDgram.Payload) {
		d.log.WithField("length", udpDgram.Header.Length).Debug("dropping truncated udp datagram")
		return
	}

	conn, ok := d.table.LookupByLocalPort(udpDgram.Header.DstPort)
	if !ok {
		d.log.WithField("port", udpDgram.Header.DstPort).Debug("dropping udp datagram for unknown port")
		return
	}
	d.table.Deliver(conn, udpDgram.Payload[:payloadLen])
}

// SendARPRequest builds and transmits an ARP request for remoteAddr,
// broadcasting it since the local peer's MAC is not yet known. It is
// wired into conntable.Table.Bind by the top-level stack.
func (d *Demux) SendARPRequest(remoteAddr net.IP) error {
	req := ethernet.NewARPRequest(d.LocalMAC, d.LocalIP, remoteAddr)
	frame := ethernet.NewFrame(ethernet.BroadcastMAC(), d.LocalMAC, netstack.EtherTypeARP, req.Serialize())
	return d.tx.TxEnqueue(frame.Serialize(), false)
}

// SendUDP builds an Ethernet+IPv4+UDP frame carrying payload to c's
// configured remote peer and hands it to the transmitter. It is wired
// into conntable.Table.Bind by the top-level stack.
func (d *Demux) SendUDP(c *conntable.Connection, payload []byte) error {
	mac, valid := c.RemoteMAC()
	if !valid {
		return errNotResolved
	}

	dgram := udp.NewDatagram(c.LocalPort(), c.RemotePort(), d.LocalIP, c.RemoteAddr(), payload)
	ipDgram := ipv4.NewDatagram(d.LocalIP, c.RemoteAddr(), ipv4.ProtocolUDP, dgram.Serialize())
	frame := ethernet.NewFrame(mac, d.LocalMAC, netstack.EtherTypeIPv4, ipDgram.Serialize())

	return d.tx.TxEnqueue(frame.Serialize(), true)
}

var errNotResolved = &notResolvedError{}

type notResolvedError struct{}

func (*notResolvedError) Error() string { return "demux: remote MAC not yet resolved" }
