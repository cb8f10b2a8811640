// Package syscall exposes the six network system calls
// (netopen/netclose/netwrite/netread plus their BSD-named aliases) on
// top of a stack.NetStack. Arguments are modelled as ordinary Go
// parameters rather than marshaled out of a separate userspace address
// space — there is no such boundary inside a single process — but the
// validation a real marshaling layer would perform (rejecting a nil
// buffer or an out-of-range netfd before taking any lock) is still
// exercised here via a thin shim, so the bad_arg error kind in the
// taxonomy remains meaningful.
package syscall

import (
	"net"

	"netkern/pkg/conntable"
	"netkern/pkg/stack"
)

// Err is the sentinel error type every entry point returns on failure,
// alongside the conventional negative integer a real syscall would
// return to userland.
type Err struct {
	Kind string
}

func (e *Err) Error() string { return "netkern: " + e.Kind }

var (
	ErrBadArg    = &Err{Kind: "bad_arg"}
	ErrTableFull = &Err{Kind: "table_full"}
	ErrNoMemory  = &Err{Kind: "out_of_memory"}
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case err == conntable.ErrTableFull:
		return ErrTableFull
	case err == conntable.ErrOutOfMemory:
		return ErrNoMemory
	case err == conntable.ErrBadFD:
		return ErrBadArg
	default:
		return err
	}
}

// Netopen opens a UDP endpoint to remoteAddr:remotePort. connType is
// accepted and ignored, matching the original's double-read argument
// bug's effect (UDP is the only supported type) without reproducing
// its mechanism — there is no argument-marshaling layer left to have
// that bug in once arguments are ordinary Go parameters.
func Netopen(ns *stack.NetStack, remoteAddr net.IP, remotePort uint16, connType uint8) (int, error) {
	if remoteAddr == nil {
		return -1, ErrBadArg
	}
	fd, err := ns.Table.Open(remoteAddr, remotePort, connType)
	if err != nil {
		return -1, translate(err)
	}
	return fd, nil
}

// Netclose closes fd. Idempotent.
func Netclose(ns *stack.NetStack, fd int) error {
	if fd < 0 {
		return ErrBadArg
	}
	return translate(ns.Table.Close(fd))
}

// Netwrite writes data to fd's configured remote peer.
func Netwrite(ns *stack.NetStack, fd int, data []byte) (int, error) {
	if data == nil {
		return -1, ErrBadArg
	}
	n, err := ns.Table.Write(fd, data)
	if err != nil {
		return -1, translate(err)
	}
	return n, nil
}

// Netread reads buffered bytes from fd into dst, blocking until at
// least one byte is available.
func Netread(ns *stack.NetStack, fd int, dst []byte) (int, error) {
	if dst == nil {
		return -1, ErrBadArg
	}
	n, err := ns.Table.Read(fd, dst)
	if err != nil {
		return -1, translate(err)
	}
	return n, nil
}

// Socket, Bind, Connect, Listen, Accept, Send, and Recv are the BSD-named
// alias layer, retained for source compatibility with userland code
// written against the conventional socket API. listen/accept are
// no-ops: the connection table has no notion of a passive listening
// socket, UDP's only receiver-side state being the port itself.

// Socket is a no-op that returns a placeholder descriptor; the real
// connection is established by Connect, matching the alias layer's
// description in the original notes as "same semantics" with
// listen/accept collapsed to no-ops.
func Socket() int { return 0 }

// Bind is a no-op; UDP source ports are assigned deterministically by
// Netopen, not chosen by the caller.
func Bind(int) error { return nil }

// Connect is Netopen under its BSD name.
func Connect(ns *stack.NetStack, remoteAddr net.IP, remotePort uint16) (int, error) {
	return Netopen(ns, remoteAddr, remotePort, 0)
}

// Listen is a no-op.
func Listen(int) error { return nil }

// Accept is a no-op returning the same fd, since there is no separate
// passive-socket/active-socket distinction in this stack.
func Accept(fd int) (int, error) { return fd, nil }

// Send is Netwrite under its BSD name.
func Send(ns *stack.NetStack, fd int, data []byte) (int, error) {
	return Netwrite(ns, fd, data)
}

// Recv is Netread under its BSD name.
func Recv(ns *stack.NetStack, fd int, dst []byte) (int, error) {
	return Netread(ns, fd, dst)
}
