package dal

import (
	"fmt"
	"sync"

	"github.com/ninevoltz/rgbsdk/internal/rgb"
	"github.com/tevino/abool"
)

// HardwareDriver is the inbound plugin surface a device driver implements
//. Every method is called by the
// per-controller worker with that controller's writer lock already held,
// so implementations must not call back into the Controller's own
// locking methods.
type HardwareDriver interface {
	DeviceUpdateLEDs(c *Controller) error
	DeviceUpdateZoneLEDs(c *Controller, zone int) error
	DeviceUpdateSingleLED(c *Controller, led int) error
	DeviceUpdateMode(c *Controller) error
	DeviceSaveMode(c *Controller) error
	DeviceResizeZone(c *Controller, zone int, newSize int) error
}

// NopDriver is a HardwareDriver that does nothing; useful for virtual
// controllers (FlagVirtual) and tests.
type NopDriver struct{}

func (NopDriver) DeviceUpdateLEDs(*Controller) error                  { return nil }
func (NopDriver) DeviceUpdateZoneLEDs(*Controller, int) error         { return nil }
func (NopDriver) DeviceUpdateSingleLED(*Controller, int) error        { return nil }
func (NopDriver) DeviceUpdateMode(*Controller) error                  { return nil }
func (NopDriver) DeviceSaveMode(*Controller) error                    { return nil }
func (NopDriver) DeviceResizeZone(*Controller, int, int) error        { return nil }

// Controller is one physical or virtual RGB device. All mutable state is guarded by mu; resize, segment
// edits, and mode writes take the writer side, reads take the reader
// side "Lifecycle". The capability-typed-handle redesign
// called for  ("friend-class access... redesigned as an
// explicit mutator trait exposed only to trusted collaborators") is
// realized here the idiomatic Go way: the mutable fields are unexported,
// every mutation goes through an exported method on *Controller, and the
// pointer itself is the capability — it is handed only to the registry,
// the per-controller worker, and the SDK session layer, never to
// arbitrary callers. See DESIGN.md.
type Controller struct {
	mu sync.RWMutex

	name        string
	vendor      string
	description string
	version     string
	serial      string
	location    string
	deviceType  DeviceType
	flags       ControllerFlags

	modes []Mode
	zones []Zone
	leds  []LED
	// colors is the single contiguous buffer the controller owns; zones
	// hold (StartIdx, LEDsCount) views into it.
	colors []rgb.Color

	activeMode int32

	driver    HardwareDriver
	callbacks *callbackRegistry

	// pendingUpdate is set (via MarkPending) by the SDK session when it
	// enqueues an LED update packet, and cleared here, before the
	// hardware call, when FlagResetBeforeUpdate is set.
	pendingUpdate *abool.AtomicBool
}

// Config describes a controller at construction time.
type Config struct {
	Name        string
	Vendor      string
	Description string
	Version     string
	Serial      string
	Location    string
	DeviceType  DeviceType
	Flags       ControllerFlags
	Modes       []Mode
	Zones       []Zone
	Driver      HardwareDriver
}

// NewController builds a Controller from cfg, deriving the LED and color
// buffers from the zones' LEDsCount.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Driver == nil {
		cfg.Driver = NopDriver{}
	}
	c := &Controller{
		name:          cfg.Name,
		vendor:        cfg.Vendor,
		description:   cfg.Description,
		version:       cfg.Version,
		serial:        cfg.Serial,
		location:      cfg.Location,
		deviceType:    cfg.DeviceType,
		flags:         cfg.Flags,
		modes:         cfg.Modes,
		driver:        cfg.Driver,
		callbacks:     newCallbackRegistry(),
		pendingUpdate: abool.New(),
	}
	zones := make([]Zone, len(cfg.Zones))
	copy(zones, cfg.Zones)
	if err := c.rebuildFromZones(zones); err != nil {
		return nil, err
	}
	if c.activeMode < 0 || (len(c.modes) > 0 && int(c.activeMode) >= len(c.modes)) {
		c.activeMode = 0
	}
	return c, nil
}

// rebuildFromZones recomputes zone StartIdx values and the LED/color
// buffers from scratch. Caller must hold the writer lock (or be in the
// constructor, before c is shared).
func (c *Controller) rebuildFromZones(zones []Zone) error {
	var total uint32
	for i := range zones {
		if zones[i].LEDsMin > zones[i].LEDsCount || zones[i].LEDsCount > zones[i].LEDsMax {
			return &InvariantError{Op: "Zone", Reason: fmt.Sprintf("zone %d: leds_min <= leds_count <= leds_max violated", i)}
		}
		if zones[i].Type.IsMatrix() != (zones[i].MatrixMap != nil) {
			return &InvariantError{Op: "Zone", Reason: fmt.Sprintf("zone %d: matrix_map presence disagrees with zone type", i)}
		}
		if err := validateSegments(zones[i]); err != nil {
			return err
		}
		zones[i].StartIdx = total
		total += zones[i].LEDsCount
	}

	leds := make([]LED, total)
	colors := make([]rgb.Color, total)
	for i := range zones {
		for j := uint32(0); j < zones[i].LEDsCount; j++ {
			leds[zones[i].StartIdx+j] = LED{Name: fmt.Sprintf("%s LED %d", zones[i].Name, j)}
		}
	}
	// Preserve any existing color values zone by zone (up to the smaller
	// of the old and new size), so a resize doesn't blank out unrelated
	// zones.
	for i := range zones {
		if i < len(c.zones) {
			old := c.zones[i]
			n := min(old.LEDsCount, zones[i].LEDsCount)
			copy(colors[zones[i].StartIdx:zones[i].StartIdx+n], c.colors[old.StartIdx:old.StartIdx+n])
		}
	}
	for i, old := range c.leds {
		if i < len(leds) && old.Name == leds[i].Name {
			leds[i].Value = old.Value
		}
	}

	c.zones = zones
	c.leds = leds
	c.colors = colors
	return nil
}

// validateSegments checks "sum of segment leds_count equals the
// zone's leds_count... segments cover [0, leds_count) contiguously".
func validateSegments(z Zone) error {
	if len(z.Segments) == 0 {
		return nil
	}
	var sum uint32
	var expectStart uint32
	for i, s := range z.Segments {
		if s.StartIdx != expectStart {
			return &InvariantError{Op: "Zone.Segments", Reason: fmt.Sprintf("segment %d does not start contiguously", i)}
		}
		sum += s.LEDsCount
		expectStart += s.LEDsCount
	}
	if sum != z.LEDsCount {
		return &InvariantError{Op: "Zone.Segments", Reason: "segment leds_count does not sum to zone leds_count"}
	}
	return nil
}

// --- Read-only metadata ---

func (c *Controller) Name() string        { c.mu.RLock(); defer c.mu.RUnlock(); return c.name }
func (c *Controller) Vendor() string      { c.mu.RLock(); defer c.mu.RUnlock(); return c.vendor }
func (c *Controller) Description() string { c.mu.RLock(); defer c.mu.RUnlock(); return c.description }
func (c *Controller) Version() string     { c.mu.RLock(); defer c.mu.RUnlock(); return c.version }
func (c *Controller) Serial() string      { c.mu.RLock(); defer c.mu.RUnlock(); return c.serial }
func (c *Controller) Location() string    { c.mu.RLock(); defer c.mu.RUnlock(); return c.location }
func (c *Controller) DeviceType() DeviceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceType
}
func (c *Controller) Flags() ControllerFlags { c.mu.RLock(); defer c.mu.RUnlock(); return c.flags }

func (c *Controller) Hidden() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags.Has(FlagHidden)
}

// SetHidden toggles FlagHidden and signals ReasonHidden/ReasonUnhidden.
func (c *Controller) SetHidden(hidden bool) {
	c.mu.Lock()
	was := c.flags.Has(FlagHidden)
	if hidden {
		c.flags |= FlagHidden
	} else {
		c.flags &^= FlagHidden
	}
	c.mu.Unlock()

	if hidden && !was {
		c.callbacks.Signal(ReasonHidden)
	} else if !hidden && was {
		c.callbacks.Signal(ReasonUnhidden)
	}
}

// --- Zones ---

func (c *Controller) ZoneCount() int { c.mu.RLock(); defer c.mu.RUnlock(); return len(c.zones) }

// Zone returns a deep copy of the i'th zone.
func (c *Controller) Zone(i int) (Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.zones) {
		return Zone{}, &InvariantError{Op: "Zone", Reason: "index out of range"}
	}
	return c.zones[i].Clone(), nil
}

// Zones returns a deep copy of every zone.
func (c *Controller) Zones() []Zone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Zone, len(c.zones))
	for i, z := range c.zones {
		out[i] = z.Clone()
	}
	return out
}

// ZoneColors returns a copy of the colors belonging to zone i.
func (c *Controller) ZoneColors(i int) ([]rgb.Color, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.zones) {
		return nil, &InvariantError{Op: "ZoneColors", Reason: "index out of range"}
	}
	z := c.zones[i]
	out := make([]rgb.Color, z.LEDsCount)
	copy(out, c.colors[z.StartIdx:z.StartIdx+z.LEDsCount])
	return out, nil
}

// SetAllZoneColors sets every physical LED of zone i to color, in memory
// only.
func (c *Controller) SetAllZoneColors(i int, color rgb.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.zones) {
		return &InvariantError{Op: "SetAllZoneColors", Reason: "index out of range"}
	}
	z := c.zones[i]
	for j := uint32(0); j < z.LEDsCount; j++ {
		c.colors[z.StartIdx+j] = color
	}
	return nil
}

// ResizeZone changes zone i's size, requiring leds_min <= newSize <=
// leds_max, and rebuilds the LED list, color
// buffer, and every subsequent zone's StartIdx.
// ResizeZone releases c.mu before signaling callbacks, matching SetHidden:
// a callback that reads the controller's own state back (Zones, Colors,
// ...) would deadlock against a held write lock, since sync.RWMutex is
// not reentrant.
func (c *Controller) ResizeZone(i int, newSize uint32) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.zones) {
		c.mu.Unlock()
		return &InvariantError{Op: "ResizeZone", Reason: "index out of range"}
	}
	z := c.zones[i]
	if newSize < z.LEDsMin || newSize > z.LEDsMax {
		c.mu.Unlock()
		return &InvariantError{Op: "ResizeZone", Reason: "newSize outside [leds_min, leds_max]"}
	}
	zones := make([]Zone, len(c.zones))
	copy(zones, c.zones)
	zones[i].LEDsCount = newSize
	if !zones[i].Flags.Has(ZoneFlagResizeEffectsOnly) {
		zones[i].Segments = nil
	}
	if err := c.rebuildFromZones(zones); err != nil {
		c.mu.Unlock()
		return err
	}
	err := c.driver.DeviceResizeZone(c, i, int(newSize))
	c.mu.Unlock()

	c.callbacks.Signal(ReasonResizeZone)
	return err
}

// ClearSegments removes every segment from zone i.
func (c *Controller) ClearSegments(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.zones) {
		c.mu.Unlock()
		return &InvariantError{Op: "ClearSegments", Reason: "index out of range"}
	}
	c.zones[i].Segments = nil
	c.mu.Unlock()

	c.callbacks.Signal(ReasonClearSegments)
	return nil
}

// AddSegment appends seg to zone i, validating that the zone's segments
// still cover [0, leds_count) contiguously afterward.
func (c *Controller) AddSegment(i int, seg Segment) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.zones) {
		c.mu.Unlock()
		return &InvariantError{Op: "AddSegment", Reason: "index out of range"}
	}
	z := c.zones[i]
	z.Segments = append(append([]Segment{}, z.Segments...), seg)
	if err := validateSegments(z); err != nil {
		c.mu.Unlock()
		return err
	}
	c.zones[i] = z
	c.mu.Unlock()

	c.callbacks.Signal(ReasonAddSegment)
	return nil
}

// --- Modes ---

func (c *Controller) ModeCount() int { c.mu.RLock(); defer c.mu.RUnlock(); return len(c.modes) }

// Mode returns a deep copy of the i'th mode.
func (c *Controller) Mode(i int) (Mode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.modes) {
		return Mode{}, &InvariantError{Op: "Mode", Reason: "index out of range"}
	}
	return c.modes[i].Clone(), nil
}

// Modes returns a deep copy of every mode.
func (c *Controller) Modes() []Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Mode, len(c.modes))
	for i, m := range c.modes {
		out[i] = m.Clone()
	}
	return out
}

func (c *Controller) ActiveMode() int32 { c.mu.RLock(); defer c.mu.RUnlock(); return c.activeMode }

// SetActiveMode changes which mode is active, requiring
// active_mode in [0, |modes|).
func (c *Controller) SetActiveMode(i int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || int(i) >= len(c.modes) {
		return &InvariantError{Op: "SetActiveMode", Reason: "active_mode out of range"}
	}
	c.activeMode = i
	return nil
}

// SetCustomMode looks for a mode named "Direct", then "Custom", and
// makes that the active mode. If neither exists it is a documented
// no-op that returns ErrNoCustomMode, leaving the current active mode
// untouched.
func (c *Controller) SetCustomMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, want := range []string{"Direct", "Custom"} {
		for i, m := range c.modes {
			if m.Name == want {
				c.activeMode = int32(i)
				return nil
			}
		}
	}
	return ErrNoCustomMode
}

func (c *Controller) mutateMode(i int, fn func(*Mode) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.modes) {
		return &InvariantError{Op: "Mode", Reason: "index out of range"}
	}
	m := c.modes[i]
	if err := fn(&m); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	c.modes[i] = m
	return nil
}

func (c *Controller) SetModeSpeed(i int, speed uint32) error {
	return c.mutateMode(i, func(m *Mode) error { m.Speed = speed; return nil })
}

func (c *Controller) SetModeBrightness(i int, brightness uint32) error {
	return c.mutateMode(i, func(m *Mode) error { m.Brightness = brightness; return nil })
}

func (c *Controller) SetModeDirection(i int, dir ModeDirection) error {
	return c.mutateMode(i, func(m *Mode) error { m.Direction = dir; return nil })
}

func (c *Controller) SetModeColorMode(i int, cm ColorMode) error {
	return c.mutateMode(i, func(m *Mode) error { m.ColorMode = cm; return nil })
}

func (c *Controller) SetModeColor(i, colorIdx int, color rgb.Color) error {
	return c.mutateMode(i, func(m *Mode) error {
		if colorIdx < 0 || colorIdx >= len(m.Colors) {
			return &InvariantError{Op: "SetModeColor", Reason: "color index out of range"}
		}
		m.Colors[colorIdx] = color
		return nil
	})
}

func (c *Controller) SetModeColorsCount(i int, count int) error {
	return c.mutateMode(i, func(m *Mode) error {
		colors := make([]rgb.Color, count)
		copy(colors, m.Colors)
		m.Colors = colors
		return nil
	})
}

// --- LEDs / colors ---

func (c *Controller) LEDCount() int { c.mu.RLock(); defer c.mu.RUnlock(); return len(c.leds) }

func (c *Controller) LED(i int) (LED, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.leds) {
		return LED{}, &InvariantError{Op: "LED", Reason: "index out of range"}
	}
	return c.leds[i], nil
}

func (c *Controller) LEDs() []LED {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LED, len(c.leds))
	copy(out, c.leds)
	return out
}

func (c *Controller) Color(i int) (rgb.Color, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.colors) {
		return rgb.Color{}, &InvariantError{Op: "Color", Reason: "index out of range"}
	}
	return c.colors[i], nil
}

// Colors returns a copy of the full color buffer.
func (c *Controller) Colors() []rgb.Color {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]rgb.Color, len(c.colors))
	copy(out, c.colors)
	return out
}

// SetColor sets one LED's color in memory only.
func (c *Controller) SetColor(i int, color rgb.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.colors) {
		return &InvariantError{Op: "SetColor", Reason: "index out of range"}
	}
	c.colors[i] = color
	return nil
}

// SetAllColors sets every LED in the controller to color.
func (c *Controller) SetAllColors(color rgb.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.colors {
		c.colors[i] = color
	}
}

// --- Callbacks ---

func (c *Controller) RegisterCallback(fn UpdateCallback) CallbackToken {
	return c.callbacks.Register(fn)
}

func (c *Controller) UnregisterCallback(token CallbackToken) {
	c.callbacks.Unregister(token)
}

func (c *Controller) ClearCallbacks() {
	c.callbacks.Clear()
}

// --- Hardware-touching operations ---

// MarkPending records that an update is queued for this controller but
// not yet applied; the SDK session calls it when it enqueues an LED
// update packet for this controller.
func (c *Controller) MarkPending() { c.pendingUpdate.Set() }

// PendingUpdate reports whether MarkPending was called since the last
// clear.
func (c *Controller) PendingUpdate() bool { return c.pendingUpdate.IsSet() }

// resetBeforeUpdate clears the pending marker before a hardware call iff
// FlagResetBeforeUpdate is set, so a write that lands concurrently with
// this hardware call is not silently swallowed.
func (c *Controller) resetBeforeUpdate() {
	if c.flags.Has(FlagResetBeforeUpdate) {
		c.pendingUpdate.UnSet()
	}
}

// UpdateLEDs replaces the entire color buffer and calls the driver.
// Caller (the per-controller worker) is expected to have already decoded
// the wire payload into colors. The lock is released before Signal, the
// same pattern SetHidden uses, so a callback reading the controller's
// own state back does not deadlock against c.mu.
func (c *Controller) UpdateLEDs(colors []rgb.Color) error {
	c.mu.Lock()
	if len(colors) != len(c.colors) {
		c.mu.Unlock()
		return &InvariantError{Op: "UpdateLEDs", Reason: "colors length does not match controller LED count"}
	}
	copy(c.colors, colors)
	c.resetBeforeUpdate()
	err := c.driver.DeviceUpdateLEDs(c)
	c.mu.Unlock()

	c.callbacks.Signal(ReasonUpdateLEDs)
	return err
}

// UpdateZoneLEDs replaces zone i's colors and calls the driver.
func (c *Controller) UpdateZoneLEDs(i int, colors []rgb.Color) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.zones) {
		c.mu.Unlock()
		return &InvariantError{Op: "UpdateZoneLEDs", Reason: "index out of range"}
	}
	z := c.zones[i]
	if uint32(len(colors)) != z.LEDsCount {
		c.mu.Unlock()
		return &InvariantError{Op: "UpdateZoneLEDs", Reason: "colors length does not match zone LED count"}
	}
	copy(c.colors[z.StartIdx:z.StartIdx+z.LEDsCount], colors)
	c.resetBeforeUpdate()
	err := c.driver.DeviceUpdateZoneLEDs(c, i)
	c.mu.Unlock()

	c.callbacks.Signal(ReasonUpdateLEDs)
	return err
}

// UpdateSingleLED sets one LED's color and calls the driver.
func (c *Controller) UpdateSingleLED(i int, color rgb.Color) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.colors) {
		c.mu.Unlock()
		return &InvariantError{Op: "UpdateSingleLED", Reason: "index out of range"}
	}
	c.colors[i] = color
	c.resetBeforeUpdate()
	err := c.driver.DeviceUpdateSingleLED(c, i)
	c.mu.Unlock()

	c.callbacks.Signal(ReasonUpdateLEDs)
	return err
}

// UpdateMode pushes the active mode's current parameters to hardware.
func (c *Controller) UpdateMode() error {
	c.mu.Lock()
	err := c.driver.DeviceUpdateMode(c)
	c.mu.Unlock()

	c.callbacks.Signal(ReasonUpdateMode)
	return err
}

// SaveMode asks the driver to persist the active mode to onboard memory.
func (c *Controller) SaveMode() error {
	c.mu.Lock()
	err := c.driver.DeviceSaveMode(c)
	c.mu.Unlock()

	c.callbacks.Signal(ReasonSaveMode)
	return err
}
