package pcap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddsfabric/ddscore/clock"
	"github.com/ddsfabric/ddscore/locator"
)

func TestNewWritesGlobalHeader(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(&buf)
	require.NoError(t, err)
	require.Equal(t, 24, buf.Len())

	hdr := buf.Bytes()
	assert.EqualValues(t, pcapMagic, binary.LittleEndian.Uint32(hdr[0:4]))
	assert.EqualValues(t, 2, binary.LittleEndian.Uint16(hdr[4:6]))
	assert.EqualValues(t, 4, binary.LittleEndian.Uint16(hdr[6:8]))
	assert.EqualValues(t, 65535, binary.LittleEndian.Uint32(hdr[16:20]))
	assert.EqualValues(t, linkTypeRaw, binary.LittleEndian.Uint32(hdr[20:24]))
}

func TestWriteReceivedUsesTTL128AndZeroUDPChecksum(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf)
	require.NoError(t, err)

	src := locator.NewUDPv4(10, 0, 0, 1, 7400)
	dst := locator.NewUDPv4(10, 0, 0, 2, 7401)
	payload := []byte("hello")
	require.NoError(t, w.WriteReceived(clock.Now(), src, dst, payload))

	rec := buf.Bytes()[24:]
	ipv4 := rec[16 : 16+ipv4HdrSize]
	udp := rec[16+ipv4HdrSize : 16+ipv4HdrSize+udpHdrSize]

	assert.EqualValues(t, ttlReceived, ipv4[8])
	assert.EqualValues(t, 17, ipv4[9])
	assert.EqualValues(t, 0, binary.BigEndian.Uint16(udp[6:8]), "UDP checksum must always be zero")
}

func TestWriteSentUsesTTL255(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf)
	require.NoError(t, err)

	src := locator.NewUDPv4(10, 0, 0, 1, 7400)
	dst := locator.NewUDPv4(10, 0, 0, 2, 7401)
	require.NoError(t, w.WriteSent(clock.Now(), src, dst, []byte("hi")))

	rec := buf.Bytes()[24:]
	ipv4 := rec[16 : 16+ipv4HdrSize]
	assert.EqualValues(t, ttlSent, ipv4[8])
}

func TestIPv4ChecksumValidatesToAllOnes(t *testing.T) {
	src := locator.NewUDPv4(192, 168, 1, 1, 7400)
	dst := locator.NewUDPv4(192, 168, 1, 2, 7401)
	hdr := buildIPv4UDP(src, dst, 5, ttlReceived)

	// Summing the header words, including the checksum field the encoder
	// already filled in, must fold to all-ones: the standard IPv4 checksum
	// self-validation property.
	var words [10]uint16
	for i := 0; i < 10; i++ {
		words[i] = binary.BigEndian.Uint16(hdr[i*2 : i*2+2])
	}
	var s uint32
	for _, w := range words {
		s += uint32(w)
	}
	s = (s & 0xffff) + (s >> 16)
	assert.EqualValues(t, 0xffff, s)
}

func TestRecordLengthMatchesHeaderPlusPayload(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf)
	require.NoError(t, err)

	src := locator.NewUDPv4(10, 0, 0, 1, 7400)
	dst := locator.NewUDPv4(10, 0, 0, 2, 7401)
	payload := []byte("0123456789")
	require.NoError(t, w.WriteReceived(clock.Now(), src, dst, payload))

	rec := buf.Bytes()[24:]
	inclLen := binary.LittleEndian.Uint32(rec[8:12])
	origLen := binary.LittleEndian.Uint32(rec[12:16])
	want := uint32(ipv4HdrSize + udpHdrSize + len(payload))
	assert.Equal(t, want, inclLen)
	assert.Equal(t, want, origLen)
}

func TestWriterSerializesConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf)
	require.NoError(t, err)

	src := locator.NewUDPv4(10, 0, 0, 1, 7400)
	dst := locator.NewUDPv4(10, 0, 0, 2, 7401)

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = w.WriteReceived(clock.Now(), src, dst, []byte("x"))
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, 24+20*(16+ipv4HdrSize+udpHdrSize+1), buf.Len())
}
