// Package dal implements the device abstraction layer: the polymorphic
// representation of an RGB controller with zones, LEDs, modes, segments
// and matrix maps, plus the controller-level invariants and
// query/mutation surface.
package dal

import "github.com/ninevoltz/rgbsdk/internal/rgb"

// DeviceType enumerates the kind of hardware a controller represents.
// Order matches original_source/RGBController/RGBController.h exactly;
// DeviceUnknown must stay last so new types can be appended before it
// without shifting existing wire values.
type DeviceType int32

const (
	DeviceMotherboard DeviceType = iota
	DeviceDRAM
	DeviceGPU
	DeviceCooler
	DeviceLEDStrip
	DeviceKeyboard
	DeviceMouse
	DeviceMouseMat
	DeviceHeadset
	DeviceHeadsetStand
	DeviceGamepad
	DeviceLight
	DeviceSpeaker
	DeviceVirtual
	DeviceStorage
	DeviceCase
	DeviceMicrophone
	DeviceAccessory
	DeviceKeypad
	DeviceLaptop
	DeviceMonitor
	DeviceUnknown
)

// ControllerFlags is the controller-level bitset.
type ControllerFlags uint32

const (
	FlagLocal ControllerFlags = 1 << iota
	FlagRemote
	FlagVirtual
	FlagHidden
	_
	_
	_
	_
	FlagResetBeforeUpdate // bit 8, matches CONTROLLER_FLAG_RESET_BEFORE_UPDATE
)

// Has reports whether every bit in want is set in f.
func (f ControllerFlags) Has(want ControllerFlags) bool { return f&want == want }

// ZoneType enumerates the spatial layout of a zone's LEDs.
type ZoneType int32

const (
	ZoneSingle ZoneType = iota
	ZoneLinear
	ZoneMatrix
	ZoneLinearLoop
	ZoneMatrixLoopX
	ZoneMatrixLoopY
	ZoneSegmented
)

// IsMatrix reports whether z carries a MatrixMap.
func (z ZoneType) IsMatrix() bool {
	switch z {
	case ZoneMatrix, ZoneMatrixLoopX, ZoneMatrixLoopY:
		return true
	default:
		return false
	}
}

// ZoneFlags is the zone-level bitset.
type ZoneFlags uint32

const (
	// ZoneFlagResizeEffectsOnly marks a zone that is logically a single
	// LED for direct color writes:
	// SetAllZoneColors still paints every physical LED, but effects and
	// segmentation treat the zone's size as LEDsCount.
	ZoneFlagResizeEffectsOnly ZoneFlags = 1 << 0
	// ZoneFlagManuallyConfigured mirrors ZONE_FLAG_MANUALLY_CONFIGURED in
	// original_source; carried for wire compatibility though nothing in
	// this package currently reads it.
	ZoneFlagManuallyConfigured ZoneFlags = 1 << 15
)

// NoLED is the MatrixMap cell sentinel meaning "no LED at this grid
// position".
const NoLED uint32 = 0xFFFFFFFF

// MatrixMap overlays a 2D grid on a zone's linear LED index space.
// Cells are row-major; each entry is an index into the owning zone's LED
// array, or NoLED.
type MatrixMap struct {
	Height uint32
	Width  uint32
	Cells  []uint32
}

// Clone returns a deep copy of m, or nil if m is nil.
func (m *MatrixMap) Clone() *MatrixMap {
	if m == nil {
		return nil
	}
	cells := make([]uint32, len(m.Cells))
	copy(cells, m.Cells)
	return &MatrixMap{Height: m.Height, Width: m.Width, Cells: cells}
}

// LED is one addressable LED; Value is an opaque device-specific token
// the framework never interprets.
type LED struct {
	Name  string
	Value uint32
}

// Segment is a named contiguous sub-range of a zone.
// StartIdx is relative to the containing zone, not to the controller's
// LED array.
type Segment struct {
	Name      string
	Type      ZoneType
	StartIdx  uint32
	LEDsCount uint32
	MatrixMap *MatrixMap
}

// Clone returns a deep copy of s.
func (s Segment) Clone() Segment {
	s.MatrixMap = s.MatrixMap.Clone()
	return s
}

// Zone is a spatially or semantically coherent group of LEDs within a
// controller. StartIdx is the zone's offset into the
// owning controller's LED/color buffers and is maintained internally by
// Controller; it is not part of the wire frame.
type Zone struct {
	Name      string
	Type      ZoneType
	StartIdx  uint32
	LEDsCount uint32
	LEDsMin   uint32
	LEDsMax   uint32
	MatrixMap *MatrixMap
	Segments  []Segment
	Flags     ZoneFlags
}

// Resizable reports whether the zone's size can change.
func (z Zone) Resizable() bool { return z.LEDsMin != z.LEDsMax }

// Clone returns a deep copy of z.
func (z Zone) Clone() Zone {
	z.MatrixMap = z.MatrixMap.Clone()
	if z.Segments != nil {
		segs := make([]Segment, len(z.Segments))
		for i, s := range z.Segments {
			segs[i] = s.Clone()
		}
		z.Segments = segs
	}
	return z
}

// ModeFlags gates which of a Mode's parameter fields are meaningful:
// direction/speed/brightness fields only matter when their corresponding
// flag bit is set.
type ModeFlags uint32

const (
	ModeHasSpeed ModeFlags = 1 << iota
	ModeHasDirectionLR
	ModeHasDirectionUD
	ModeHasDirectionHV
	ModeHasBrightness
	ModeHasPerLEDColor
	ModeHasModeSpecificColor
	ModeHasRandomColor
	ModeManualSave
	ModeAutomaticSave
)

func (f ModeFlags) Has(want ModeFlags) bool { return f&want == want }

// ModeDirection enumerates the direction parameter values.
type ModeDirection uint32

const (
	DirectionLeft ModeDirection = iota
	DirectionRight
	DirectionUp
	DirectionDown
	DirectionHorizontal
	DirectionVertical
)

// ColorMode enumerates how a mode's colors are selected.
type ColorMode uint32

const (
	ColorModeNone ColorMode = iota
	ColorModePerLED
	ColorModeModeSpecific
	ColorModeRandom
)

// requiredFlag returns the ModeFlags bit color_mode requires to be set,
// or 0 if color_mode needs none.
func (cm ColorMode) requiredFlag() ModeFlags {
	switch cm {
	case ColorModePerLED:
		return ModeHasPerLEDColor
	case ColorModeModeSpecific:
		return ModeHasModeSpecificColor
	case ColorModeRandom:
		return ModeHasRandomColor
	default:
		return 0
	}
}

// Mode is a lighting program with parameters.
type Mode struct {
	Name           string
	Value          int32 // device-specific, opaque
	Flags          ModeFlags
	SpeedMin       uint32
	SpeedMax       uint32
	Speed          uint32
	BrightnessMin  uint32
	BrightnessMax  uint32
	Brightness     uint32
	ColorsMin      uint32
	ColorsMax      uint32
	Colors         []rgb.Color
	Direction      ModeDirection
	ColorMode      ColorMode
}

// Clone returns a deep copy of m.
func (m Mode) Clone() Mode {
	colors := make([]rgb.Color, len(m.Colors))
	copy(colors, m.Colors)
	m.Colors = colors
	return m
}

// Validate checks the Mode invariants .
func (m Mode) Validate() error {
	if uint32(len(m.Colors)) < m.ColorsMin || uint32(len(m.Colors)) > m.ColorsMax {
		return &InvariantError{Op: "Mode.Colors", Reason: "colors_min <= |colors| <= colors_max violated"}
	}
	if need := m.ColorMode.requiredFlag(); need != 0 && !m.Flags.Has(need) {
		return &InvariantError{Op: "Mode.ColorMode", Reason: "color_mode has no corresponding flag bit set"}
	}
	return nil
}

// UpdateReason identifies why a controller's registered callbacks fired.
type UpdateReason int

const (
	ReasonUpdateLEDs UpdateReason = iota
	ReasonUpdateMode
	ReasonSaveMode
	ReasonResizeZone
	ReasonClearSegments
	ReasonAddSegment
	ReasonHidden
	ReasonUnhidden
)

func (r UpdateReason) String() string {
	switch r {
	case ReasonUpdateLEDs:
		return "UPDATE_LEDS"
	case ReasonUpdateMode:
		return "UPDATE_MODE"
	case ReasonSaveMode:
		return "SAVE_MODE"
	case ReasonResizeZone:
		return "RESIZE_ZONE"
	case ReasonClearSegments:
		return "CLEAR_SEGMENTS"
	case ReasonAddSegment:
		return "ADD_SEGMENT"
	case ReasonHidden:
		return "HIDDEN"
	case ReasonUnhidden:
		return "UNHIDDEN"
	default:
		return "UNKNOWN"
	}
}
