// netstack-demo runs the kernel network stack end to end against a
// simulated bus: it opens a connection, answers the ARP reply itself
// (standing in for the remote host), exchanges a UDP datagram in both
// directions, and prints the driver counters netctl stats would report.
package main

import (
	"context"
	"fmt"
	network "net"
	"time"

	"github.com/sirupsen/logrus"

	"netkern/pkg/conntable"
	"netkern/pkg/e1000"
	"netkern/pkg/netstack"
	"netkern/pkg/netstack/ethernet"
	ipv4 "netkern/pkg/netstack/ip"
	"netkern/pkg/netstack/udp"
	"netkern/pkg/stack"
	nksyscall "netkern/pkg/syscall"
)

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	bus, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0xAB, 0xCD, 0xEF})
	if err != nil {
		fmt.Printf("opening bus: %v\n", err)
		return
	}
	defer bus.Close()

	ns, err := stack.Boot(bus, log)
	if err != nil {
		fmt.Printf("boot: %v\n", err)
		return
	}

	fmt.Printf("local mac=%s ip=%s\n", ns.LocalMAC(), ns.LocalIP())

	remote := network.IPv4(10, 0, 0, 1)
	remoteMAC := network.HardwareAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

	var fd int
	opened := make(chan struct{})
	go func() {
		var err error
		fd, err = nksyscall.Netopen(ns, remote, 7000, 0)
		if err != nil {
			fmt.Printf("netopen: %v\n", err)
		}
		close(opened)
	}()

	// Stand in for the remote host answering the ARP request the demux
	// just broadcast: wait for the request to land, then resolve it.
	time.Sleep(20 * time.Millisecond)
	ns.Table.ApplyARPReply(remote, remoteMAC)

	select {
	case <-opened:
	case <-time.After(time.Second):
		fmt.Println("netopen never resolved")
		return
	}
	fmt.Printf("opened fd=%d\n", fd)

	n, err := nksyscall.Netwrite(ns, fd, []byte("hello from netstack-demo"))
	if err != nil {
		fmt.Printf("netwrite: %v\n", err)
		return
	}
	fmt.Printf("wrote %d bytes\n", n)

	conn, ok := ns.Table.LookupByLocalPort(uint16(conntable.PortOffset))
	if !ok {
		fmt.Println("connection vanished before reply could be delivered")
		return
	}
	ns.Demux.HandlePacket(buildReplyFrame(ns, conn, remoteMAC), true)

	readCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	buf := make([]byte, 64)
	n, err = netreadContext(readCtx, ns, fd, buf)
	if err != nil {
		fmt.Printf("netread: %v\n", err)
		return
	}
	fmt.Printf("read back: %q\n", string(buf[:n]))

	if err := nksyscall.Netclose(ns, fd); err != nil {
		fmt.Printf("netclose: %v\n", err)
	}

	fmt.Printf("driver stats: %+v\n", ns.Driver.Stats)
}

// buildReplyFrame constructs the Ethernet/IPv4/UDP frame the remote
// host in this demo would have sent back, so HandlePacket can deliver
// it through the real demultiplexing path instead of poking the
// connection table directly.
func buildReplyFrame(ns *stack.NetStack, conn *conntable.Connection, remoteMAC network.HardwareAddr) []byte {
	dgram := udp.NewDatagram(conn.RemotePort(), conn.LocalPort(), conn.RemoteAddr(), ns.LocalIP(),
		[]byte("echo: hello from netstack-demo"))
	ipDgram := ipv4.NewDatagram(conn.RemoteAddr(), ns.LocalIP(), ipv4.ProtocolUDP, dgram.Serialize())
	frame := ethernet.NewFrame(ns.LocalMAC(), remoteMAC, netstack.EtherTypeIPv4, ipDgram.Serialize())
	return frame.Serialize()
}

func netreadContext(ctx context.Context, ns *stack.NetStack, fd int, dst []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := nksyscall.Netread(ns, fd, dst)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
