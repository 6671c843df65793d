// Package codec implements the versioned binary wire format for
// controller/mode/zone/segment/LED/color descriptions, plus a
// symmetric JSON representation.
//
// Every encode/decode pair is a pure function of (model, protocol
// version): encoders never mutate their input, and decoders never read
// past the declared length prefix of the object they are decoding, so
// that fields added by a newer protocol version are silently skipped by
// an older decoder.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/rgb"
)

// Version is a protocol version number; it gates which optional fields
// are present on the wire.
type Version uint32

// MaxVersion is the highest protocol version this codec speaks.
const MaxVersion Version = 4

// ErrKind enumerates the DecodeError taxonomy.
type ErrKind int

const (
	ErrTruncated ErrKind = iota
	ErrBadLengthPrefix
	ErrBadString
	ErrInvariantViolation
)

func (k ErrKind) String() string {
	switch k {
	case ErrTruncated:
		return "TRUNCATED"
	case ErrBadLengthPrefix:
		return "BAD_LENGTH_PREFIX"
	case ErrBadString:
		return "BAD_STRING"
	case ErrInvariantViolation:
		return "INVARIANT_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// DecodeError reports why a decode failed.
type DecodeError struct {
	Kind   ErrKind
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Kind, e.Detail)
}

func truncated(detail string) error     { return &DecodeError{Kind: ErrTruncated, Detail: detail} }
func badString(detail string) error     { return &DecodeError{Kind: ErrBadString, Detail: detail} }
func badInvariant(detail string) error  { return &DecodeError{Kind: ErrInvariantViolation, Detail: detail} }
func badLengthPrefix(detail string) error {
	return &DecodeError{Kind: ErrBadLengthPrefix, Detail: detail}
}

// ControllerSnapshot is the plain data-transfer shape the codec
// encodes/decodes; it mirrors dal.Controller's fields without the
// mutex/driver/callback machinery, since those never cross the wire.
// Vendor is carried for the JSON codec path only: the binary wire
// frame (EncodeController/DecodeController) omits it, matching the
// on-wire controller object, but JSON is expected to mirror every
// field of the full model.
type ControllerSnapshot struct {
	Flags       dal.ControllerFlags
	DeviceType  dal.DeviceType
	ActiveMode  int32
	Name        string
	Vendor      string
	Description string
	Version     string
	Serial      string
	Location    string
	Modes       []dal.Mode
	Zones       []dal.Zone
	LEDs        []dal.LED
	Colors      []rgb.Color
}

// --- primitive helpers ---

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putI32(buf *bytes.Buffer, v int32) { putU32(buf, uint32(v)) }

func putU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putString(buf *bytes.Buffer, s string) {
	b := append([]byte(s), 0)
	putU16(buf, uint16(len(b)))
	buf.Write(b)
}

func putColor(buf *bytes.Buffer, c rgb.Color) {
	b := c.Bytes()
	buf.Write(b[:])
}

// reader tracks an offset into a fixed byte slice and never advances past
// its end, so truncated input surfaces as ErrTruncated rather than a
// panic.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, truncated(fmt.Sprintf("need %d bytes, have %d", n, r.remaining()))
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) string() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if len(b) == 0 || b[len(b)-1] != 0 {
		return "", badString("string field missing trailing NUL")
	}
	return string(b[:len(b)-1]), nil
}

func (r *reader) color() (rgb.Color, error) {
	b, err := r.take(4)
	if err != nil {
		return rgb.Color{}, err
	}
	return rgb.FromBytes([4]byte{b[0], b[1], b[2], b[3]}), nil
}

// --- mode ---

func encodeMode(buf *bytes.Buffer, m dal.Mode, v Version) {
	putString(buf, m.Name)
	putI32(buf, m.Value)
	putU32(buf, uint32(m.Flags))
	putU32(buf, m.SpeedMin)
	putU32(buf, m.SpeedMax)
	if v >= 3 {
		putU32(buf, m.ColorsMin)
		putU32(buf, m.ColorsMax)
	}
	putU32(buf, m.Speed)
	if v >= 3 {
		putU32(buf, m.BrightnessMin)
		putU32(buf, m.BrightnessMax)
		putU32(buf, m.Brightness)
	}
	putU32(buf, uint32(m.Direction))
	putU32(buf, uint32(m.ColorMode))
	putU16(buf, uint16(len(m.Colors)))
	for _, c := range m.Colors {
		putColor(buf, c)
	}
}

func decodeMode(r *reader, v Version) (dal.Mode, error) {
	var m dal.Mode
	var err error
	if m.Name, err = r.string(); err != nil {
		return m, err
	}
	if m.Value, err = r.i32(); err != nil {
		return m, err
	}
	flags, err := r.u32()
	if err != nil {
		return m, err
	}
	m.Flags = dal.ModeFlags(flags)
	if m.SpeedMin, err = r.u32(); err != nil {
		return m, err
	}
	if m.SpeedMax, err = r.u32(); err != nil {
		return m, err
	}
	if v >= 3 {
		if m.ColorsMin, err = r.u32(); err != nil {
			return m, err
		}
		if m.ColorsMax, err = r.u32(); err != nil {
			return m, err
		}
	}
	if m.Speed, err = r.u32(); err != nil {
		return m, err
	}
	if v >= 3 {
		if m.BrightnessMin, err = r.u32(); err != nil {
			return m, err
		}
		if m.BrightnessMax, err = r.u32(); err != nil {
			return m, err
		}
		if m.Brightness, err = r.u32(); err != nil {
			return m, err
		}
	}
	dir, err := r.u32()
	if err != nil {
		return m, err
	}
	m.Direction = dal.ModeDirection(dir)
	cm, err := r.u32()
	if err != nil {
		return m, err
	}
	m.ColorMode = dal.ColorMode(cm)
	count, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Colors = make([]rgb.Color, count)
	for i := range m.Colors {
		if m.Colors[i], err = r.color(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// --- zone / segment ---

func encodeSegment(buf *bytes.Buffer, s dal.Segment) {
	putString(buf, s.Name)
	putI32(buf, int32(s.Type))
	putU32(buf, s.StartIdx)
	putU32(buf, s.LEDsCount)
}

func decodeSegment(r *reader) (dal.Segment, error) {
	var s dal.Segment
	var err error
	if s.Name, err = r.string(); err != nil {
		return s, err
	}
	t, err := r.i32()
	if err != nil {
		return s, err
	}
	s.Type = dal.ZoneType(t)
	if s.StartIdx, err = r.u32(); err != nil {
		return s, err
	}
	if s.LEDsCount, err = r.u32(); err != nil {
		return s, err
	}
	return s, nil
}

func encodeZone(buf *bytes.Buffer, z dal.Zone, v Version) {
	putString(buf, z.Name)
	putI32(buf, int32(z.Type))
	putU32(buf, z.LEDsMin)
	putU32(buf, z.LEDsMax)
	putU32(buf, z.LEDsCount)
	if z.MatrixMap == nil {
		putU16(buf, 0)
	} else {
		size := 8 + 4*z.MatrixMap.Height*z.MatrixMap.Width
		putU16(buf, uint16(size))
		putU32(buf, z.MatrixMap.Height)
		putU32(buf, z.MatrixMap.Width)
		for _, cell := range z.MatrixMap.Cells {
			putU32(buf, cell)
		}
	}
	if v >= 4 {
		putU16(buf, uint16(len(z.Segments)))
		for _, s := range z.Segments {
			encodeSegment(buf, s)
		}
	}
}

func decodeZone(r *reader, v Version) (dal.Zone, error) {
	var z dal.Zone
	var err error
	if z.Name, err = r.string(); err != nil {
		return z, err
	}
	t, err := r.i32()
	if err != nil {
		return z, err
	}
	z.Type = dal.ZoneType(t)
	if z.LEDsMin, err = r.u32(); err != nil {
		return z, err
	}
	if z.LEDsMax, err = r.u32(); err != nil {
		return z, err
	}
	if z.LEDsCount, err = r.u32(); err != nil {
		return z, err
	}
	matrixSize, err := r.u16()
	if err != nil {
		return z, err
	}
	if matrixSize != 0 {
		height, err := r.u32()
		if err != nil {
			return z, err
		}
		width, err := r.u32()
		if err != nil {
			return z, err
		}
		want := 8 + 4*int(height)*int(width)
		if int(matrixSize) != want {
			return z, badLengthPrefix("zone matrix_size disagrees with height*width")
		}
		cells := make([]uint32, height*width)
		for i := range cells {
			if cells[i], err = r.u32(); err != nil {
				return z, err
			}
		}
		z.MatrixMap = &dal.MatrixMap{Height: height, Width: width, Cells: cells}
	}
	if v >= 4 {
		segCount, err := r.u16()
		if err != nil {
			return z, err
		}
		z.Segments = make([]dal.Segment, segCount)
		for i := range z.Segments {
			if z.Segments[i], err = decodeSegment(r); err != nil {
				return z, err
			}
		}
	}
	return z, nil
}

// --- LED ---

func encodeLED(buf *bytes.Buffer, l dal.LED) {
	putString(buf, l.Name)
	putU32(buf, l.Value)
}

func decodeLED(r *reader) (dal.LED, error) {
	var l dal.LED
	var err error
	if l.Name, err = r.string(); err != nil {
		return l, err
	}
	if l.Value, err = r.u32(); err != nil {
		return l, err
	}
	return l, nil
}

// --- controller ---

// EncodeController serializes s at protocol version v
// "Controller frame". The returned bytes begin with a u32 length prefix
// equal to the number of bytes that follow it.
func EncodeController(s ControllerSnapshot, v Version) []byte {
	var body bytes.Buffer
	if v >= 3 {
		putU32(&body, uint32(s.Flags))
	}
	putI32(&body, int32(s.DeviceType))
	if v >= 1 {
		putU32(&body, uint32(s.ActiveMode))
	}
	putString(&body, s.Name)
	putString(&body, s.Description)
	putString(&body, s.Version)
	putString(&body, s.Serial)
	putString(&body, s.Location)

	putU16(&body, uint16(len(s.Modes)))
	for _, m := range s.Modes {
		encodeMode(&body, m, v)
	}
	putU16(&body, uint16(len(s.Zones)))
	for _, z := range s.Zones {
		encodeZone(&body, z, v)
	}
	putU16(&body, uint16(len(s.LEDs)))
	for _, l := range s.LEDs {
		encodeLED(&body, l)
	}
	putU16(&body, uint16(len(s.Colors)))
	for _, c := range s.Colors {
		putColor(&body, c)
	}

	var out bytes.Buffer
	putU32(&out, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// DecodeController parses data at protocol version v. Decoding never
// reads past the declared length prefix even if the
// object appears to continue; any bytes beyond what the known fields at
// version v consume are silently skipped for forward compatibility.
func DecodeController(data []byte, v Version) (ControllerSnapshot, error) {
	var s ControllerSnapshot
	top := &reader{data: data}
	length, err := top.u32()
	if err != nil {
		return s, truncated("missing length prefix")
	}
	if top.remaining() < int(length) {
		return s, badLengthPrefix(fmt.Sprintf("declared length %d exceeds %d remaining bytes", length, top.remaining()))
	}
	// Decode strictly within the declared body, so unknown trailing
	// fields from a newer version never leak into the next frame.
	body := &reader{data: data[top.off : top.off+int(length)]}

	if v >= 3 {
		flags, err := body.u32()
		if err != nil {
			return s, err
		}
		s.Flags = dal.ControllerFlags(flags)
	}
	deviceType, err := body.i32()
	if err != nil {
		return s, err
	}
	s.DeviceType = dal.DeviceType(deviceType)
	if v >= 1 {
		am, err := body.u32()
		if err != nil {
			return s, err
		}
		s.ActiveMode = int32(am)
	}
	if s.Name, err = body.string(); err != nil {
		return s, err
	}
	if s.Description, err = body.string(); err != nil {
		return s, err
	}
	if s.Version, err = body.string(); err != nil {
		return s, err
	}
	if s.Serial, err = body.string(); err != nil {
		return s, err
	}
	if s.Location, err = body.string(); err != nil {
		return s, err
	}

	modeCount, err := body.u16()
	if err != nil {
		return s, err
	}
	s.Modes = make([]dal.Mode, modeCount)
	for i := range s.Modes {
		if s.Modes[i], err = decodeMode(body, v); err != nil {
			return s, err
		}
	}

	zoneCount, err := body.u16()
	if err != nil {
		return s, err
	}
	s.Zones = make([]dal.Zone, zoneCount)
	for i := range s.Zones {
		if s.Zones[i], err = decodeZone(body, v); err != nil {
			return s, err
		}
	}

	ledCount, err := body.u16()
	if err != nil {
		return s, err
	}
	s.LEDs = make([]dal.LED, ledCount)
	for i := range s.LEDs {
		if s.LEDs[i], err = decodeLED(body); err != nil {
			return s, err
		}
	}

	colorCount, err := body.u16()
	if err != nil {
		return s, err
	}
	s.Colors = make([]rgb.Color, colorCount)
	for i := range s.Colors {
		if s.Colors[i], err = body.color(); err != nil {
			return s, err
		}
	}

	if len(s.LEDs) != len(s.Colors) {
		return s, badInvariant("LED count does not match color count")
	}
	var sum int
	for _, z := range s.Zones {
		sum += int(z.LEDsCount)
	}
	if sum != len(s.LEDs) {
		return s, badInvariant("LED count does not match sum of zone LED counts")
	}

	return s, nil
}

// ProjectToVersion drops fields that don't exist below protocol version
// v, so a round-trip decode at an older version compares like with like.
func ProjectToVersion(s ControllerSnapshot, v Version) ControllerSnapshot {
	out := s
	if v < 3 {
		out.Flags = 0
	}
	if v < 1 {
		out.ActiveMode = 0
	}
	modes := make([]dal.Mode, len(s.Modes))
	for i, m := range s.Modes {
		m = m.Clone()
		if v < 3 {
			m.ColorsMin, m.ColorsMax = 0, 0
			m.BrightnessMin, m.BrightnessMax, m.Brightness = 0, 0, 0
		}
		modes[i] = m
	}
	out.Modes = modes

	zones := make([]dal.Zone, len(s.Zones))
	for i, z := range s.Zones {
		z = z.Clone()
		if v < 4 {
			z.Segments = nil
		}
		zones[i] = z
	}
	out.Zones = zones
	return out
}
