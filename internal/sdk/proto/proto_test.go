package proto

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	*bytes.Buffer
}

func (fakeConn) SetReadDeadline(time.Time) error { return nil }

func TestWriteReadFrameRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(buf)
	require.NoError(t, w.WriteFrame(3, RGBControllerUpdateLEDs, []byte{1, 2, 3}))

	r := NewReader(fakeConn{buf}, 0)
	h, data, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, uint32(3), h.DeviceIdx)
	require.Equal(t, RGBControllerUpdateLEDs, h.PacketType)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestReadFrameBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX" + "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	r := NewReader(fakeConn{buf}, 0)
	_, _, err := r.ReadFrame()
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestReadFrameOversize(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write(Magic[:])
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[8:12], MaxDataSize+1)
	buf.Write(hdr[:])

	r := NewReader(fakeConn{buf}, 0)
	_, _, err := r.ReadFrame()
	require.ErrorIs(t, err, ErrOversizeFrame)
}

func TestReadFrameShortRead(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write(Magic[:])
	buf.Write([]byte{1, 2, 3})

	r := NewReader(fakeConn{buf}, 0)
	_, _, err := r.ReadFrame()
	require.Error(t, err)
	require.True(t, err == io.ErrUnexpectedEOF || err == io.EOF)
}

func TestDefaultRecvTimeoutApplied(t *testing.T) {
	r := NewReader(fakeConn{&bytes.Buffer{}}, 0)
	require.Equal(t, DefaultRecvTimeout, r.recvTimeout)
}
