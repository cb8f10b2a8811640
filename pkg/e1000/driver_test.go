package e1000_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"netkern/pkg/e1000"
	"netkern/pkg/hostos"
)

func newTestDevice(t *testing.T, handler e1000.PacketHandler) *e1000.Device {
	t.Helper()

	bus, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56})
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	pages := hostos.NewFreeListAllocator(4 * e1000.NRx)
	xlate := hostos.NewIdentityTranslator()
	irq := &hostos.RecordingIRQLine{}

	dev, err := e1000.Open(bus, pages, xlate, irq, nil, handler)
	require.NoError(t, err)
	return dev
}

func TestOpenReadsMACFromEEPROM(t *testing.T) {
	dev := newTestDevice(t, nil)
	require.Equal(t, "52:54:00:12:34:56", dev.MAC.String())
}

func TestTxEnqueueBumpsStats(t *testing.T) {
	dev := newTestDevice(t, nil)

	payload := []byte("hello, wire")
	require.NoError(t, dev.TxEnqueue(payload, true))

	require.EqualValues(t, 1, dev.Stats.FramesOut)
	require.EqualValues(t, len(payload), dev.Stats.BytesOut)
}

func TestTxEnqueueWrapsRingPastCapacity(t *testing.T) {
	dev := newTestDevice(t, nil)

	for i := 0; i < e1000.NTx*2+5; i++ {
		require.NoError(t, dev.TxEnqueue([]byte("wraps the tx ring"), false))
	}

	require.EqualValues(t, e1000.NTx*2+5, dev.Stats.FramesOut)
}

func TestRxPollWithNothingPendingIsNoop(t *testing.T) {
	var seen [][]byte
	dev := newTestDevice(t, func(buf []byte, eop bool) {
		seen = append(seen, append([]byte{}, buf...))
	})

	// RxPoll with nothing pending at the hardware head is a no-op.
	dev.RxPoll()
	require.Empty(t, seen)
}

func TestDeliverFrameInvokesHandlerDirectly(t *testing.T) {
	var seen []byte
	dev := newTestDevice(t, func(buf []byte, eop bool) {
		seen = append([]byte{}, buf...)
		require.True(t, eop)
	})

	dev.DeliverFrame([]byte("a bridged frame"))

	require.Equal(t, "a bridged frame", string(seen))
	require.EqualValues(t, 1, dev.Stats.FramesIn)
}

// bridgedBus wraps SimBus with a TransmitFrame method, standing in for
// TapBus without requiring an actual TAP device in a unit test.
type bridgedBus struct {
	*e1000.SimBus
	sent [][]byte
}

func (b *bridgedBus) TransmitFrame(frame []byte) error {
	b.sent = append(b.sent, append([]byte{}, frame...))
	return nil
}

func TestTxEnqueueBridgesToFrameTransmitter(t *testing.T) {
	sim, err := e1000.NewSimBus([6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56})
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	bridge := &bridgedBus{SimBus: sim}

	pages := hostos.NewFreeListAllocator(4 * e1000.NRx)
	xlate := hostos.NewIdentityTranslator()
	irq := &hostos.RecordingIRQLine{}
	dev, err := e1000.Open(bridge, pages, xlate, irq, nil, nil)
	require.NoError(t, err)

	require.NoError(t, dev.TxEnqueue([]byte("onto the wire"), false))
	require.Len(t, bridge.sent, 1)
	require.Equal(t, "onto the wire", string(bridge.sent[0]))
}
