package conntable_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netkern/pkg/conntable"
	"netkern/pkg/hostos"
)

func newTestTable(t *testing.T) *conntable.Table {
	t.Helper()
	pages := hostos.NewFreeListAllocator(conntable.NCONN + 8)
	return conntable.New(pages, nil)
}

func openAndResolve(t *testing.T, table *conntable.Table, addr net.IP, port uint16, mac net.HardwareAddr) int {
	t.Helper()

	var fd int
	var openErr error
	done := make(chan struct{})
	go func() {
		fd, openErr = table.Open(addr, port, 0)
		close(done)
	}()

	// Give Open a chance to reach its wait loop before we reply.
	time.Sleep(10 * time.Millisecond)
	table.ApplyARPReply(addr, mac)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Open did not return after ARP reply")
	}
	require.NoError(t, openErr)
	return fd
}

func TestOpenAssignsPortOffset(t *testing.T) {
	table := newTestTable(t)
	mac := net.HardwareAddr{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

	fd := openAndResolve(t, table, net.IPv4(10, 0, 0, 1), 4444, mac)
	require.Equal(t, 0, fd)

	var got *conntable.Connection
	table.ForEach(func(i int, c *conntable.Connection) {
		if i == fd {
			got = c
		}
	})
	require.NotNil(t, got)
	require.EqualValues(t, conntable.PortOffset, got.LocalPort())

	gotMAC, valid := got.RemoteMAC()
	require.True(t, valid)
	require.Equal(t, mac.String(), gotMAC.String())
}

func TestTableFullReturnsError(t *testing.T) {
	table := newTestTable(t)
	table.Bind(nil, func(net.IP) error { return nil })

	mac := net.HardwareAddr{0, 0, 0, 0, 0, 1}
	for i := 0; i < conntable.NCONN; i++ {
		addr := net.IPv4(10, 0, 0, byte(i+1))
		openAndResolve(t, table, addr, 1000, mac)
	}

	_, err := table.Open(net.IPv4(10, 0, 1, 1), 1000, 0)
	require.ErrorIs(t, err, conntable.ErrTableFull)
}

func TestReadSlidesBufferOnPartialRead(t *testing.T) {
	table := newTestTable(t)
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	fd := openAndResolve(t, table, net.IPv4(10, 0, 0, 1), 53, mac)

	var target *conntable.Connection
	table.ForEach(func(i int, c *conntable.Connection) {
		if i == fd {
			target = c
		}
	})
	require.NotNil(t, target)

	table.Deliver(target, []byte("helloworld"))

	buf := make([]byte, 5)
	n, err := table.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))

	n, err = table.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))
}

// Property 4 — byte conservation: several datagrams arriving before
// any netread come back concatenated in arrival order on one read.
func TestReadConcatenatesMultipleDeliversInArrivalOrder(t *testing.T) {
	table := newTestTable(t)
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	fd := openAndResolve(t, table, net.IPv4(10, 0, 0, 1), 53, mac)

	var target *conntable.Connection
	table.ForEach(func(i int, c *conntable.Connection) {
		if i == fd {
			target = c
		}
	})
	require.NotNil(t, target)

	table.Deliver(target, []byte("hel"))
	table.Deliver(target, []byte("lo"))
	table.Deliver(target, []byte(" world"))

	buf := make([]byte, 64)
	n, err := table.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf[:n]))
}

func TestDeliverTruncatesAtPageBoundary(t *testing.T) {
	table := newTestTable(t)
	mac := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	fd := openAndResolve(t, table, net.IPv4(10, 0, 0, 1), 53, mac)

	var target *conntable.Connection
	table.ForEach(func(i int, c *conntable.Connection) {
		if i == fd {
			target = c
		}
	})

	table.Deliver(target, make([]byte, 3000))
	table.Deliver(target, make([]byte, 2000))

	buf := make([]byte, 8192)
	n, err := table.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, hostos.PageSize, n)
}

func TestCloseThenReopenDifferentAddressRejectsStaleReply(t *testing.T) {
	table := newTestTable(t)
	macA := net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	macB := net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}

	fd := openAndResolve(t, table, net.IPv4(10, 0, 0, 1), 4444, macA)
	require.NoError(t, table.Close(fd))

	fdB := openAndResolve(t, table, net.IPv4(10, 0, 0, 2), 5555, macB)
	require.Equal(t, fd, fdB)

	// A stale reply for the original peer must not touch the reopened slot.
	table.ApplyARPReply(net.IPv4(10, 0, 0, 1), net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	var got *conntable.Connection
	table.ForEach(func(i int, c *conntable.Connection) {
		if i == fdB {
			got = c
		}
	})
	mac, _ := got.RemoteMAC()
	require.Equal(t, macB.String(), mac.String())
}
