package syscall_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netkern/pkg/e1000"
	nksyscall "netkern/pkg/syscall"
	"netkern/pkg/stack"
)

func bootTestStack(t *testing.T) *stack.NetStack {
	t.Helper()
	bus, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0xaa, 0xbb, 0xcc})
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	ns, err := stack.Boot(bus, nil)
	require.NoError(t, err)
	return ns
}

// S3 — netopen blocks until an ARP reply arrives.
func TestNetopenBlocksUntilARPReply(t *testing.T) {
	ns := bootTestStack(t)

	peerMAC := net.HardwareAddr{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	peerIP := net.IPv4(10, 0, 0, 1).To4()

	var fd int
	var openErr error
	done := make(chan struct{})
	go func() {
		fd, openErr = nksyscall.Netopen(ns, peerIP, 4444, 0)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("netopen returned before any ARP reply was injected")
	case <-time.After(20 * time.Millisecond):
	}

	ns.Table.ApplyARPReply(peerIP, peerMAC)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("netopen did not return after ARP reply")
	}

	require.NoError(t, openErr)
	require.Equal(t, 0, fd)
}

func TestNetreadRejectsNilBuffer(t *testing.T) {
	ns := bootTestStack(t)
	_, err := nksyscall.Netread(ns, 0, nil)
	require.ErrorIs(t, err, nksyscall.ErrBadArg)
}

func TestNetcloseIsIdempotent(t *testing.T) {
	ns := bootTestStack(t)
	require.NoError(t, nksyscall.Netclose(ns, 0))
	require.NoError(t, nksyscall.Netclose(ns, 0))
}
