package e1000

import "encoding/binary"

// DescSize is the size in bytes of every descriptor type on this card:
// receive, transmit, and context descriptors are all 16 bytes.
const DescSize = 16

// NRx is the number of receive descriptors, sized so the ring fits
// exactly in one 4 KiB page (4096 / 16).
const NRx = hostosPageSize / DescSize

// NTx is the number of transmit descriptors; TDLEN is set to one page
// the same way RDLEN is, so the ring is the same size as the RX ring.
const NTx = hostosPageSize / DescSize

const hostosPageSize = 4096

// rxDesc mirrors the hardware receive descriptor layout (manual section
// 3.2.3): a 64-bit buffer address followed by a status/length word pair.
type rxDesc struct {
	Addr   uint64
	Length uint16
	CSum   uint16
	Status uint8
	Errors uint8
	Special uint16
}

const rxStatusDD uint8 = 1 << 0
const rxStatusEOP uint8 = 1 << 1

func decodeRxDesc(buf []byte) rxDesc {
	return rxDesc{
		Addr:    binary.LittleEndian.Uint64(buf[0:8]),
		Length:  binary.LittleEndian.Uint16(buf[8:10]),
		CSum:    binary.LittleEndian.Uint16(buf[10:12]),
		Status:  buf[12],
		Errors:  buf[13],
		Special: binary.LittleEndian.Uint16(buf[14:16]),
	}
}

func encodeRxDescAddr(buf []byte, addr uint64) {
	binary.LittleEndian.PutUint64(buf[0:8], addr)
	for i := 8; i < DescSize; i++ {
		buf[i] = 0
	}
}

// txDesc mirrors the hardware legacy transmit descriptor layout (manual
// section 3.3.3).
type txDesc struct {
	Addr   uint64
	Length uint32 // low 20 bits length, dtyp and dcmd packed above it
	Status uint8
	CSS    uint8
	Popts  uint16
}

const (
	txDtypData uint32 = 1 << 0

	txCmdEOP uint32 = 1 << 0
	txCmdRS  uint32 = 1 << 3
	txCmdIFCS uint32 = 1 << 5
)

const txPoptsIXSM uint16 = 1 << 0

func encodeTxDataDesc(buf []byte, addr uint64, length uint32, cmd uint32, popts uint16) {
	binary.LittleEndian.PutUint64(buf[0:8], addr)
	opts0 := length | (txDtypData << 20) | (cmd << 24)
	binary.LittleEndian.PutUint32(buf[8:12], opts0)
	buf[12] = 0 // status, written back by hardware
	buf[13] = 0
	binary.LittleEndian.PutUint16(buf[14:16], popts)
}

// Context-descriptor offsets for the canonical Ethernet(14)+IPv4(20)+UDP(8)
// layout this driver always uses: IP checksum covers bytes [14,33], UDP
// checksum covers from byte 14 through the end of the segment (TUCSE=0
// meaning "to the end of the packet").
const (
	ipcss uint8 = 14
	ipcso uint8 = 24
	ipcse uint16 = 33

	tucss uint8 = 14
	tucso uint8 = 40
	tucse uint16 = 0

	tucmdUDP uint32 = 1 << 5
)

func encodeContextDesc(buf []byte) {
	low := uint32(ipcss) | uint32(ipcso)<<8 | uint32(ipcse)<<16
	high := uint32(tucss) | uint32(tucso)<<8 | uint32(tucse)<<16
	binary.LittleEndian.PutUint32(buf[0:4], low)
	binary.LittleEndian.PutUint32(buf[4:8], high)
	binary.LittleEndian.PutUint32(buf[8:12], tucmdUDP<<24)
	binary.LittleEndian.PutUint32(buf[12:16], 0)
}
