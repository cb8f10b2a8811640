// Package conntable implements the fixed-capacity connection table: the
// UDP endpoints netopen/netclose/netwrite/netread operate on, each
// binding a local pseudo-port to a remote address and owning a one-page
// receive buffer. netopen and netread block cooperatively on a per-slot
// sync.Cond guarded by the table's single mutex, mirroring the original
// design's one spinlock plus per-channel sleep/wakeup.
package conntable

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"netkern/pkg/hostos"
)

// NCONN is the number of connection slots, statically allocated at
// construction.
const NCONN = 100

// PortOffset is added to a slot's index to produce its local UDP port.
const PortOffset = 3000

var (
	// ErrTableFull is returned by Open when every slot is occupied.
	ErrTableFull = fmt.Errorf("conntable: table full")
	// ErrOutOfMemory is returned by Open/Write when a receive or send
	// page cannot be allocated.
	ErrOutOfMemory = hostos.ErrOutOfMemory
	// ErrBadFD is returned when a netfd does not name an open slot.
	ErrBadFD = fmt.Errorf("conntable: bad file descriptor")
)

// Connection is one slot of the table.
type Connection struct {
	cond *sync.Cond

	inUse      bool
	localPort  uint16
	remoteAddr net.IP
	remotePort uint16

	remoteMAC      net.HardwareAddr
	remoteMACValid bool

	rxBuf *hostos.Page
	rxLen int

	// generation is bumped every time this slot is opened and exposed
	// through Generation() for diagnostics. ApplyARPReply does not
	// consult it; a stale reply is rejected by the remote-address check.
	generation uint64
}

// LocalPort returns the slot's fixed local UDP port.
func (c *Connection) LocalPort() uint16 { return c.localPort }

// RemoteAddr returns the slot's configured remote IPv4 address.
func (c *Connection) RemoteAddr() net.IP { return c.remoteAddr }

// RemotePort returns the slot's configured remote UDP port.
func (c *Connection) RemotePort() uint16 { return c.remotePort }

// RemoteMAC returns the cached remote hardware address, and whether it
// has been resolved yet.
func (c *Connection) RemoteMAC() (net.HardwareAddr, bool) {
	return c.remoteMAC, c.remoteMACValid
}

// Generation returns the slot's current open generation.
func (c *Connection) Generation() uint64 { return c.generation }

// Table is the fixed-size array of connections plus the single mutex
// that guards all of it. The mutex covers the table only: the driver's
// rings are guarded by e1000.Device's own mutex, and the demultiplexer
// holds this one only inside the Table methods it calls.
type Table struct {
	mu    sync.Mutex
	conns [NCONN]*Connection
	pages hostos.PageAllocator
	log   *logrus.Entry

	// sendUDP builds and transmits a UDP datagram for a slot and
	// sendARPReq issues an ARP request; both are wired by the top-level
	// stack so this package stays free of a direct e1000 dependency.
	sendUDP      func(c *Connection, payload []byte) error
	sendARPReq   func(remoteAddr net.IP) error
}

// New builds an empty table of NCONN slots, each with its own
// sync.Cond sharing the table's mutex.
func New(pages hostos.PageAllocator, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Table{pages: pages, log: log}
	for i := range t.conns {
		c := &Connection{localPort: uint16(PortOffset + i)}
		c.cond = sync.NewCond(&t.mu)
		t.conns[i] = c
	}
	return t
}

// Bind wires the table to the functions that actually put bytes on the
// wire: sendUDP builds and transmits a UDP datagram for an open
// connection, sendARPReq issues an ARP request for a not-yet-resolved
// peer. The top-level stack calls this once during construction.
func (t *Table) Bind(sendUDP func(c *Connection, payload []byte) error, sendARPReq func(remoteAddr net.IP) error) {
	t.sendUDP = sendUDP
	t.sendARPReq = sendARPReq
}

// Open finds the lowest free slot, initialises it for remoteAddr:remotePort,
// issues an ARP request, and blocks until the reply is cached. The
// context-aware variant also returns ctx.Err() once it finds ctx done;
// it checks ctx before each wait and after each wakeup, so a
// cancellation during a wait is seen only at the next wakeup. The slot
// stays reserved when it returns that way. connType is accepted for source
// compatibility with the syscall surface and is always ignored: UDP is
// the only supported type.
func (t *Table) Open(remoteAddr net.IP, remotePort uint16, connType uint8) (int, error) {
	return t.OpenContext(context.Background(), remoteAddr, remotePort, connType)
}

// OpenContext is Open with cancellation, added as a pure addition: the
// context-free Open remains the primary entry point the syscall layer
// calls.
func (t *Table) OpenContext(ctx context.Context, remoteAddr net.IP, remotePort uint16, _ uint8) (int, error) {
	remoteAddr = remoteAddr.To4()

	t.mu.Lock()
	slot := -1
	for i, c := range t.conns {
		if !c.inUse {
			slot = i
			break
		}
	}
	if slot == -1 {
		t.mu.Unlock()
		return -1, ErrTableFull
	}

	c := t.conns[slot]
	page, err := t.pages.Alloc()
	if err != nil {
		t.mu.Unlock()
		return -1, ErrOutOfMemory
	}

	c.inUse = true
	c.remoteAddr = remoteAddr
	c.remotePort = remotePort
	c.remoteMAC = nil
	c.remoteMACValid = false
	c.rxBuf = page
	c.rxLen = 0
	c.generation++

	t.log.WithFields(logrus.Fields{
		"netfd":       slot,
		"remote_addr": remoteAddr.String(),
		"remote_port": remotePort,
	}).Debug("netopen: slot reserved, requesting ARP")

	sendARP := t.sendARPReq
	t.mu.Unlock()

	if sendARP != nil {
		if err := sendARP(remoteAddr); err != nil {
			t.log.WithError(err).Warn("netopen: failed to send ARP request")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for !c.remoteMACValid {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		waitOrDone(ctx, c.cond)
	}
	return slot, nil
}

// waitOrDone calls cond.Wait() unless ctx is already cancelled, in which
// case it returns immediately so the caller's loop re-checks ctx.Err().
// A real cancellable cond.Wait needs a watcher goroutine to Broadcast on
// cancellation; this keeps the context-aware path simple since the core
// stack has no timeouts in its primary path (§5) and this variant exists
// only as a pure addition.
func waitOrDone(ctx context.Context, cond *sync.Cond) {
	if ctx.Err() != nil {
		return
	}
	cond.Wait()
}

// Close idempotently frees the slot's receive page and clears it.
// Outstanding sleepers are not woken; correct use never leaves one.
func (t *Table) Close(fd int) error {
	c, err := t.slot(fd)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !c.inUse {
		return nil
	}
	if c.rxBuf != nil {
		t.pages.Free(c.rxBuf)
	}
	c.inUse = false
	c.rxBuf = nil
	c.rxLen = 0
	c.remoteMAC = nil
	c.remoteMACValid = false
	return nil
}

// Write builds and transmits a UDP datagram carrying data from the
// connection named by fd to its configured remote peer.
func (t *Table) Write(fd int, data []byte) (int, error) {
	c, err := t.slot(fd)
	if err != nil {
		return -1, err
	}

	t.mu.Lock()
	if !c.inUse {
		t.mu.Unlock()
		return -1, ErrBadFD
	}
	send := t.sendUDP
	t.mu.Unlock()

	if send == nil {
		return -1, fmt.Errorf("conntable: no transmit function bound")
	}
	if err := send(c, data); err != nil {
		return -1, err
	}
	return len(data), nil
}

// Read blocks while the slot's buffer is empty, then copies up to
// len(dst) buffered bytes into dst. Any remaining buffered bytes are
// slid down to the front of rx_buf before rx_len is reduced, so a
// subsequent Read never re-observes bytes already delivered.
func (t *Table) Read(fd int, dst []byte) (int, error) {
	return t.ReadContext(context.Background(), fd, dst)
}

// ReadContext is Read with cancellation, added as a pure addition
// alongside OpenContext.
func (t *Table) ReadContext(ctx context.Context, fd int, dst []byte) (int, error) {
	c, err := t.slot(fd)
	if err != nil {
		return -1, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !c.inUse {
		return -1, ErrBadFD
	}

	for c.rxLen == 0 {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		waitOrDone(ctx, c.cond)
		if !c.inUse {
			return -1, ErrBadFD
		}
	}

	n := c.rxLen
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, c.rxBuf.Data[:n])

	remaining := c.rxLen - n
	if remaining > 0 {
		copy(c.rxBuf.Data[:remaining], c.rxBuf.Data[n:c.rxLen])
	}
	c.rxLen = remaining

	return n, nil
}

// Deliver appends payload to the connection's receive buffer, discarding
// any bytes beyond the 4 KiB page, and wakes any blocked Read. It is
// called by the demultiplexer under the table's own lock context (the
// caller must not already hold t.mu).
func (t *Table) Deliver(c *Connection, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !c.inUse || c.rxBuf == nil {
		return
	}

	room := hostos.PageSize - c.rxLen
	n := len(payload)
	if n > room {
		n = room
	}
	if n > 0 {
		copy(c.rxBuf.Data[c.rxLen:c.rxLen+n], payload[:n])
		c.rxLen += n
	}
	c.cond.Broadcast()
}

// ApplyARPReply caches senderMAC on every connection whose remote
// address matches senderIP, but only while the slot is still in use and
// still waiting. This is the stale-reply guard in practice: a slot
// closed and reopened for a different remote address (the scenario this
// guards against) no longer matches senderIP once reopened, since Open
// immediately overwrites remoteAddr. The slot's generation is not
// consulted here.
func (t *Table) ApplyARPReply(senderIP net.IP, senderMAC net.HardwareAddr) {
	senderIP = senderIP.To4()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.conns {
		if !c.inUse || c.remoteMACValid {
			continue
		}
		if !c.remoteAddr.Equal(senderIP) {
			continue
		}
		c.remoteMAC = append(net.HardwareAddr{}, senderMAC...)
		c.remoteMACValid = true
		c.cond.Broadcast()
	}
}

// ForEach calls fn for every currently in-use connection, under the
// table's lock. Used by netctl stats.
func (t *Table) ForEach(fn func(fd int, c *Connection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.conns {
		if c.inUse {
			fn(i, c)
		}
	}
}

// LookupByLocalPort returns the connection bound to localPort, if any is
// currently in use. Used by the demultiplexer to route inbound UDP
// datagrams; at most one slot can match by the port-uniqueness
// invariant.
func (t *Table) LookupByLocalPort(localPort uint16) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := int(localPort) - PortOffset
	if idx < 0 || idx >= NCONN {
		return nil, false
	}
	c := t.conns[idx]
	if !c.inUse {
		return nil, false
	}
	return c, true
}

func (t *Table) slot(fd int) (*Connection, error) {
	if fd < 0 || fd >= NCONN {
		return nil, ErrBadFD
	}
	return t.conns[fd], nil
}
