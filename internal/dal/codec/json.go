package codec

import (
	"encoding/json"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/rgb"
)

// jsonColor, jsonMatrixMap, jsonSegment, jsonZone, jsonMode and
// jsonController are the nested JSON shapes  "JSON
// representation". They exist as a separate mirror of the dal/rgb types
// (rather than json tags on those types directly) so that the wire shape
// can evolve independently of the in-memory model, the same separation
// the binary codec keeps between dal.Controller and ControllerSnapshot.

type jsonColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type jsonMatrixMap struct {
	Height uint32   `json:"height"`
	Width  uint32   `json:"width"`
	Cells  []uint32 `json:"cells"`
}

type jsonSegment struct {
	Name      string         `json:"name"`
	Type      int32          `json:"type"`
	StartIdx  uint32         `json:"start_idx"`
	LEDsCount uint32         `json:"leds_count"`
	MatrixMap *jsonMatrixMap `json:"matrix_map,omitempty"`
}

type jsonZone struct {
	Name      string         `json:"name"`
	Type      int32          `json:"type"`
	LEDsCount uint32         `json:"leds_count"`
	LEDsMin   uint32         `json:"leds_min"`
	LEDsMax   uint32         `json:"leds_max"`
	MatrixMap *jsonMatrixMap `json:"matrix_map,omitempty"`
	Segments  []jsonSegment  `json:"segments"`
	Flags     uint32         `json:"flags"`
}

type jsonMode struct {
	Name          string      `json:"name"`
	Value         int32       `json:"value"`
	Flags         uint32      `json:"flags"`
	SpeedMin      uint32      `json:"speed_min"`
	SpeedMax      uint32      `json:"speed_max"`
	Speed         uint32      `json:"speed"`
	BrightnessMin uint32      `json:"brightness_min"`
	BrightnessMax uint32      `json:"brightness_max"`
	Brightness    uint32      `json:"brightness"`
	ColorsMin     uint32      `json:"colors_min"`
	ColorsMax     uint32      `json:"colors_max"`
	Colors        []jsonColor `json:"colors"`
	Direction     uint32      `json:"direction"`
	ColorMode     uint32      `json:"color_mode"`
}

type jsonLED struct {
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

type jsonController struct {
	Name        string      `json:"name"`
	Vendor      string      `json:"vendor,omitempty"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Serial      string      `json:"serial"`
	Location    string      `json:"location"`
	DeviceType  int32       `json:"type"`
	Flags       uint32      `json:"flags"`
	ActiveMode  int32       `json:"active_mode"`
	Modes       []jsonMode  `json:"modes"`
	Zones       []jsonZone  `json:"zones"`
	LEDs        []jsonLED   `json:"leds"`
	Colors      []jsonColor `json:"colors"`
}

func toJSONMatrixMap(m *dal.MatrixMap) *jsonMatrixMap {
	if m == nil {
		return nil
	}
	cells := make([]uint32, len(m.Cells))
	copy(cells, m.Cells)
	return &jsonMatrixMap{Height: m.Height, Width: m.Width, Cells: cells}
}

func fromJSONMatrixMap(m *jsonMatrixMap) *dal.MatrixMap {
	if m == nil {
		return nil
	}
	cells := make([]uint32, len(m.Cells))
	copy(cells, m.Cells)
	return &dal.MatrixMap{Height: m.Height, Width: m.Width, Cells: cells}
}

func toJSONColor(c rgb.Color) jsonColor { return jsonColor{R: c.R, G: c.G, B: c.B} }
func fromJSONColor(c jsonColor) rgb.Color {
	return rgb.Color{R: c.R, G: c.G, B: c.B}
}

func toJSONColors(cs []rgb.Color) []jsonColor {
	out := make([]jsonColor, len(cs))
	for i, c := range cs {
		out[i] = toJSONColor(c)
	}
	return out
}

func fromJSONColors(cs []jsonColor) []rgb.Color {
	out := make([]rgb.Color, len(cs))
	for i, c := range cs {
		out[i] = fromJSONColor(c)
	}
	return out
}

func toJSON(s ControllerSnapshot) jsonController {
	out := jsonController{
		Name:        s.Name,
		Vendor:      s.Vendor,
		Description: s.Description,
		Version:     s.Version,
		Serial:      s.Serial,
		Location:    s.Location,
		DeviceType:  int32(s.DeviceType),
		Flags:       uint32(s.Flags),
		ActiveMode:  s.ActiveMode,
		Modes:       make([]jsonMode, len(s.Modes)),
		Zones:       make([]jsonZone, len(s.Zones)),
		LEDs:        make([]jsonLED, len(s.LEDs)),
		Colors:      toJSONColors(s.Colors),
	}
	for i, m := range s.Modes {
		out.Modes[i] = jsonMode{
			Name: m.Name, Value: m.Value, Flags: uint32(m.Flags),
			SpeedMin: m.SpeedMin, SpeedMax: m.SpeedMax, Speed: m.Speed,
			BrightnessMin: m.BrightnessMin, BrightnessMax: m.BrightnessMax, Brightness: m.Brightness,
			ColorsMin: m.ColorsMin, ColorsMax: m.ColorsMax,
			Colors:    toJSONColors(m.Colors),
			Direction: uint32(m.Direction), ColorMode: uint32(m.ColorMode),
		}
	}
	for i, z := range s.Zones {
		segs := make([]jsonSegment, len(z.Segments))
		for j, seg := range z.Segments {
			segs[j] = jsonSegment{
				Name: seg.Name, Type: int32(seg.Type), StartIdx: seg.StartIdx,
				LEDsCount: seg.LEDsCount, MatrixMap: toJSONMatrixMap(seg.MatrixMap),
			}
		}
		out.Zones[i] = jsonZone{
			Name: z.Name, Type: int32(z.Type), LEDsCount: z.LEDsCount,
			LEDsMin: z.LEDsMin, LEDsMax: z.LEDsMax,
			MatrixMap: toJSONMatrixMap(z.MatrixMap), Segments: segs, Flags: uint32(z.Flags),
		}
	}
	for i, l := range s.LEDs {
		out.LEDs[i] = jsonLED{Name: l.Name, Value: l.Value}
	}
	return out
}

func fromJSON(j jsonController) ControllerSnapshot {
	out := ControllerSnapshot{
		Name: j.Name, Vendor: j.Vendor, Description: j.Description, Version: j.Version,
		Serial: j.Serial, Location: j.Location,
		DeviceType: dal.DeviceType(j.DeviceType), Flags: dal.ControllerFlags(j.Flags),
		ActiveMode: j.ActiveMode,
		Modes:      make([]dal.Mode, len(j.Modes)),
		Zones:      make([]dal.Zone, len(j.Zones)),
		LEDs:       make([]dal.LED, len(j.LEDs)),
		Colors:     fromJSONColors(j.Colors),
	}
	for i, m := range j.Modes {
		out.Modes[i] = dal.Mode{
			Name: m.Name, Value: m.Value, Flags: dal.ModeFlags(m.Flags),
			SpeedMin: m.SpeedMin, SpeedMax: m.SpeedMax, Speed: m.Speed,
			BrightnessMin: m.BrightnessMin, BrightnessMax: m.BrightnessMax, Brightness: m.Brightness,
			ColorsMin: m.ColorsMin, ColorsMax: m.ColorsMax,
			Colors:    fromJSONColors(m.Colors),
			Direction: dal.ModeDirection(m.Direction), ColorMode: dal.ColorMode(m.ColorMode),
		}
	}
	// StartIdx is not carried in JSON; it is rebuilt as the running sum
	// of zone sizes, the same layout Controller maintains.
	var start uint32
	for i, z := range j.Zones {
		segs := make([]dal.Segment, len(z.Segments))
		for k, seg := range z.Segments {
			segs[k] = dal.Segment{
				Name: seg.Name, Type: dal.ZoneType(seg.Type), StartIdx: seg.StartIdx,
				LEDsCount: seg.LEDsCount, MatrixMap: fromJSONMatrixMap(seg.MatrixMap),
			}
		}
		out.Zones[i] = dal.Zone{
			Name: z.Name, Type: dal.ZoneType(z.Type), StartIdx: start, LEDsCount: z.LEDsCount,
			LEDsMin: z.LEDsMin, LEDsMax: z.LEDsMax,
			MatrixMap: fromJSONMatrixMap(z.MatrixMap), Segments: segs, Flags: dal.ZoneFlags(z.Flags),
		}
		start += z.LEDsCount
	}
	for i, l := range j.LEDs {
		out.LEDs[i] = dal.LED{Name: l.Name, Value: l.Value}
	}
	return out
}

// EncodeJSON renders s as the nested JSON object described .
func EncodeJSON(s ControllerSnapshot) ([]byte, error) {
	return json.Marshal(toJSON(s))
}

// DecodeJSON is the inverse of EncodeJSON; json_decode(json_encode(c)) is
// the identity for every field present at the current version.
func DecodeJSON(data []byte) (ControllerSnapshot, error) {
	var j jsonController
	if err := json.Unmarshal(data, &j); err != nil {
		return ControllerSnapshot{}, err
	}
	return fromJSON(j), nil
}
