package codec

import "github.com/ninevoltz/rgbsdk/internal/dal"

// SnapshotOf copies c's current state into a ControllerSnapshot suitable
// for EncodeController/EncodeJSON. It takes one reader-side pass per
// field via c's exported accessors rather than reaching into c's
// unexported state, the same boundary every other caller of *dal.
// Controller is held to.
func SnapshotOf(c *dal.Controller) ControllerSnapshot {
	return ControllerSnapshot{
		Flags:       c.Flags(),
		DeviceType:  c.DeviceType(),
		ActiveMode:  c.ActiveMode(),
		Name:        c.Name(),
		Vendor:      c.Vendor(),
		Description: c.Description(),
		Version:     c.Version(),
		Serial:      c.Serial(),
		Location:    c.Location(),
		Modes:       c.Modes(),
		Zones:       c.Zones(),
		LEDs:        c.LEDs(),
		Colors:      c.Colors(),
	}
}
