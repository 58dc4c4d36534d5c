// Package pcap writes a libpcap-format mirror of UDP/IPv4 traffic, the Go
// equivalent of q_pcap.c. Only the UDP/IPv4 path is implemented: tracing
// is gated on the transport being UDP, with no code path for anything
// else, exactly as the upstream leaves it.
package pcap

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/ddsfabric/ddscore/clock"
	"github.com/ddsfabric/ddscore/locator"
)

const (
	linkTypeRaw = 101 // LINKTYPE_RAW: raw IP, no link-layer header

	pcapMagic   = 0xa1b2c3d4
	ipv4HdrSize = 20
	udpHdrSize  = 8

	// ttlReceived/ttlSent match write_pcap_received/write_pcap_sent's fixed
	// TTLs: received frames are stamped 128, sent frames 255. Neither is a
	// real observed TTL; both are placeholders the upstream never bothered
	// to make accurate, since the capture exists for protocol debugging,
	// not network path analysis.
	ttlReceived = 128
	ttlSent     = 255
)

// Writer appends pcap-format records to an underlying io.Writer, guarded
// by a single mutex (matching gv.pcap_lock: one lock covers both the
// "received" and "sent" write paths, since they share one file).
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// New writes the pcap global header (magic, version 2.4, snaplen 65535,
// network=LINKTYPE_RAW) to w and returns a Writer, matching new_pcap_file.
func New(w io.Writer) (*Writer, error) {
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], 2)
	binary.LittleEndian.PutUint16(hdr[6:8], 4)
	// thiszone, sigfigs left zero
	binary.LittleEndian.PutUint32(hdr[16:20], 65535)
	binary.LittleEndian.PutUint32(hdr[20:24], linkTypeRaw)
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w}, nil
}

func ipv4Addr(l locator.Locator) uint32 {
	return binary.BigEndian.Uint32(l.Address[12:16])
}

func calcIPv4Checksum(words [10]uint16) uint16 {
	var s uint32
	for _, w := range words {
		s += uint32(w)
	}
	s = (s & 0xffff) + (s >> 16)
	return ^uint16(s)
}

// buildIPv4UDP assembles the 20-byte IPv4 header followed by the 8-byte
// UDP header, with the checksum computed over the IPv4 header words (the
// UDP checksum is always zeroed, exactly matching write_pcap_received/sent:
// "don't have to compute a checksum for UDPv4").
func buildIPv4UDP(src, dst locator.Locator, payloadLen int, ttl byte) [ipv4HdrSize + udpHdrSize]byte {
	var buf [ipv4HdrSize + udpHdrSize]byte
	totalLen := uint16(ipv4HdrSize + udpHdrSize + payloadLen)
	udpLen := uint16(udpHdrSize + payloadLen)

	buf[0] = (4 << 4) | 5
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], totalLen)
	binary.BigEndian.PutUint16(buf[4:6], 0)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	buf[8] = ttl
	buf[9] = 17 // UDP
	binary.BigEndian.PutUint16(buf[10:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], ipv4Addr(src))
	binary.BigEndian.PutUint32(buf[16:20], ipv4Addr(dst))

	var words [10]uint16
	for i := 0; i < 10; i++ {
		words[i] = binary.BigEndian.Uint16(buf[i*2 : i*2+2])
	}
	checksum := calcIPv4Checksum(words)
	binary.BigEndian.PutUint16(buf[10:12], checksum)

	binary.BigEndian.PutUint16(buf[20:22], uint16(src.Port))
	binary.BigEndian.PutUint16(buf[22:24], uint16(dst.Port))
	binary.BigEndian.PutUint16(buf[24:26], udpLen)
	binary.BigEndian.PutUint16(buf[26:28], 0) // UDP checksum always zero

	return buf
}

func (w *Writer) writeRecord(ts clock.Timestamp, header [ipv4HdrSize + udpHdrSize]byte, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rec [16]byte
	sec := int64(ts) / int64(clock.Second)
	usec := (int64(ts) % int64(clock.Second)) / int64(clock.Microsecond)
	inclLen := uint32(len(header) + len(payload))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(sec))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(usec))
	binary.LittleEndian.PutUint32(rec[8:12], inclLen)
	binary.LittleEndian.PutUint32(rec[12:16], inclLen)

	if _, err := w.w.Write(rec[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}

// WriteReceived appends a received-frame record, stamped with TTL 128,
// matching write_pcap_received. Only UDPv4 src/dst are supported; callers
// must gate on their own transport selection before calling this, matching
// the upstream's `config.transport_selector == TRANS_UDP` guard.
func (w *Writer) WriteReceived(ts clock.Timestamp, src, dst locator.Locator, payload []byte) error {
	hdr := buildIPv4UDP(src, dst, len(payload), ttlReceived)
	return w.writeRecord(ts, hdr, payload)
}

// WriteSent appends a sent-frame record, stamped with TTL 255, matching
// write_pcap_sent.
func (w *Writer) WriteSent(ts clock.Timestamp, src, dst locator.Locator, payload []byte) error {
	hdr := buildIPv4UDP(src, dst, len(payload), ttlSent)
	return w.writeRecord(ts, hdr, payload)
}
