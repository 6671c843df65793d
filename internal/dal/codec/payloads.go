package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/ninevoltz/rgbsdk/internal/rgb"
)

// EncodeColors renders a color array the way RGBCONTROLLER_UPDATELEDS,
// RGBCONTROLLER_UPDATEZONELEDS and RGBCONTROLLER_UPDATESINGLELED carry
// their payload: a redundant u32 byte count (kept for wire
// compatibility with the size-prefixed convention the controller frame
// also follows), a u16 LED count, then that many 4-byte colors.
func EncodeColors(colors []rgb.Color) []byte {
	buf := &bytes.Buffer{}
	putU16(buf, uint16(len(colors)))
	for _, c := range colors {
		putColor(buf, c)
	}
	body := buf.Bytes()

	out := &bytes.Buffer{}
	putU32(out, uint32(len(body)))
	out.Write(body)
	return out.Bytes()
}

// DecodeColors is the inverse of EncodeColors.
func DecodeColors(data []byte) ([]rgb.Color, error) {
	r := &reader{data: data}
	size, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(size) != uint64(r.remaining()) {
		return nil, truncated("declared color payload size does not match remaining bytes")
	}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	out := make([]rgb.Color, count)
	for i := range out {
		c, err := r.color()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// EncodeZoneColors renders RGBCONTROLLER_UPDATEZONELEDS's payload: the
// target zone index followed by the same color-array encoding
// EncodeColors uses.
func EncodeZoneColors(zone uint32, colors []rgb.Color) []byte {
	buf := &bytes.Buffer{}
	putU32(buf, zone)
	buf.Write(EncodeColors(colors))
	return buf.Bytes()
}

// DecodeZoneColors is the inverse of EncodeZoneColors.
func DecodeZoneColors(data []byte) (zone uint32, colors []rgb.Color, err error) {
	if len(data) < 4 {
		return 0, nil, truncated("zone colors payload shorter than 4 bytes")
	}
	zone = binary.LittleEndian.Uint32(data[0:4])
	colors, err = DecodeColors(data[4:])
	return zone, colors, err
}

// EncodeSingleColor renders RGBCONTROLLER_UPDATESINGLELED's payload: the
// target LED index followed by one 4-byte color.
func EncodeSingleColor(led uint32, c rgb.Color) []byte {
	buf := &bytes.Buffer{}
	putU32(buf, led)
	putColor(buf, c)
	return buf.Bytes()
}

// DecodeSingleColor is the inverse of EncodeSingleColor.
func DecodeSingleColor(data []byte) (led uint32, c rgb.Color, err error) {
	if len(data) < 8 {
		return 0, rgb.Color{}, truncated("single led payload shorter than 8 bytes")
	}
	led = binary.LittleEndian.Uint32(data[0:4])
	c = rgb.FromBytes([4]byte{data[4], data[5], data[6], data[7]})
	return led, c, nil
}

// ResizeZonePayload is RGBCONTROLLER_RESIZEZONE's payload: the target
// zone index and its requested new size.
type ResizeZonePayload struct {
	Zone    uint32
	NewSize uint32
}

func EncodeResizeZone(p ResizeZonePayload) []byte {
	buf := &bytes.Buffer{}
	putU32(buf, p.Zone)
	putU32(buf, p.NewSize)
	return buf.Bytes()
}

func DecodeResizeZone(data []byte) (ResizeZonePayload, error) {
	if len(data) < 8 {
		return ResizeZonePayload{}, truncated("resize_zone payload shorter than 8 bytes")
	}
	return ResizeZonePayload{
		Zone:    binary.LittleEndian.Uint32(data[0:4]),
		NewSize: binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// EncodeClientName renders SET_CLIENT_NAME's NUL-terminated string
// payload.
func EncodeClientName(name string) []byte {
	return append([]byte(name), 0)
}

// DecodeClientName is the inverse of EncodeClientName.
func DecodeClientName(data []byte) (string, error) {
	if len(data) == 0 || data[len(data)-1] != 0 {
		return "", badString("client name payload missing trailing NUL")
	}
	return string(data[:len(data)-1]), nil
}

// EncodeU32 and DecodeU32 cover the handful of packets whose entire
// payload is a single little-endian u32 (REQUEST_PROTOCOL_VERSION,
// REPLY_CONTROLLER_COUNT, REPLY_PROTOCOL_VERSION).
func EncodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func DecodeU32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, truncated("expected a 4-byte u32 payload")
	}
	return binary.LittleEndian.Uint32(data[:4]), nil
}

// EncodeU16 and DecodeU16 cover the list replies (REPLY_PROFILE_LIST,
// REPLY_PLUGIN_LIST) whose payload opens with a little-endian u16 entry
// count.
func EncodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func DecodeU16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, truncated("expected a 2-byte u16 payload")
	}
	return binary.LittleEndian.Uint16(data[:2]), nil
}

// SplitNULTerminated splits data at its first NUL byte, returning the
// string before it and the remaining bytes after it. It differs from
// DecodeClientName in not requiring the NUL to be the final byte: it is
// built for payloads that carry a name followed by further
// caller-defined bytes, such as REQUEST_PLUGIN_SPECIFIC.
func SplitNULTerminated(data []byte) (name string, rest []byte, err error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", nil, badString("payload missing NUL terminator")
	}
	return string(data[:i]), data[i+1:], nil
}
