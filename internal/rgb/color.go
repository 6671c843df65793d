// Package rgb implements the RGBColor type shared by the device model and
// the wire codec: a 24-bit color packed little-endian
// in memory as 0x00BBGGRR, carried on the wire as R,G,B plus a padding
// byte.
package rgb

// Color is a 24-bit RGB color. The zero value is black.
type Color struct {
	R, G, B uint8
}

// Pack returns the in-memory little-endian 0x00BBGGRR representation.
func (c Color) Pack() uint32 {
	return uint32(c.B)<<16 | uint32(c.G)<<8 | uint32(c.R)
}

// Unpack builds a Color from a packed 0x00BBGGRR value.
func Unpack(v uint32) Color {
	return Color{
		R: uint8(v),
		G: uint8(v >> 8),
		B: uint8(v >> 16),
	}
}

// Bytes returns the four wire bytes: R, G, B, and a trailing 0 pad byte.
func (c Color) Bytes() [4]byte {
	return [4]byte{c.R, c.G, c.B, 0}
}

// FromBytes reads a Color from its four wire bytes, ignoring the pad byte.
func FromBytes(b [4]byte) Color {
	return Color{R: b[0], G: b[1], B: b[2]}
}

// Lerp linearly interpolates between c and other by t in [0, 1].
func (c Color) Lerp(other Color, t float64) Color {
	if t <= 0 {
		return c
	}
	if t >= 1 {
		return other
	}
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t)
	}
	return Color{
		R: lerp(c.R, other.R),
		G: lerp(c.G, other.G),
		B: lerp(c.B, other.B),
	}
}
