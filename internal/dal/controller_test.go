package dal

import (
	"testing"
	"time"

	"github.com/ninevoltz/rgbsdk/internal/rgb"
	"github.com/stretchr/testify/require"
)

func newResizableController(t *testing.T) *Controller {
	t.Helper()
	c, err := NewController(Config{
		Name: "test",
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 4, LEDsMin: 1, LEDsMax: 8},
			{Name: "Zone 2", Type: ZoneLinear, LEDsCount: 2, LEDsMin: 2, LEDsMax: 2},
		},
	})
	require.NoError(t, err)
	return c
}

func TestResizeZoneUpdatesCountAndContiguousStartIdx(t *testing.T) {
	c := newResizableController(t)
	require.NoError(t, c.ResizeZone(0, 6))

	z0, err := c.Zone(0)
	require.NoError(t, err)
	require.EqualValues(t, 6, z0.LEDsCount)
	require.EqualValues(t, 0, z0.StartIdx)

	z1, err := c.Zone(1)
	require.NoError(t, err)
	require.EqualValues(t, 6, z1.StartIdx)

	require.Equal(t, c.LEDCount(), len(c.Colors()))
	require.Equal(t, int(z0.LEDsCount+z1.LEDsCount), c.LEDCount())
}

func TestResizeZoneRejectsOutOfRange(t *testing.T) {
	c := newResizableController(t)
	err := c.ResizeZone(0, 100)
	require.Error(t, err)
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)

	z0, _ := c.Zone(0)
	require.EqualValues(t, 4, z0.LEDsCount)
}

func TestSetAllColorsSetsEveryElement(t *testing.T) {
	c := newResizableController(t)
	c.SetAllColors(rgb.Color{R: 10, G: 20, B: 30})
	for _, col := range c.Colors() {
		require.Equal(t, rgb.Color{R: 10, G: 20, B: 30}, col)
	}
}

func TestSetColorIdempotent(t *testing.T) {
	c := newResizableController(t)
	require.NoError(t, c.SetColor(0, rgb.Color{R: 1, G: 2, B: 3}))
	require.NoError(t, c.SetColor(0, rgb.Color{R: 1, G: 2, B: 3}))
	col, err := c.Color(0)
	require.NoError(t, err)
	require.Equal(t, rgb.Color{R: 1, G: 2, B: 3}, col)
}

func TestModeColorsMustRespectMinMax(t *testing.T) {
	c, err := NewController(Config{
		Name: "test",
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 1, LEDsMin: 1, LEDsMax: 1},
		},
		Modes: []Mode{
			{Name: "Static", ColorsMin: 1, ColorsMax: 2, Colors: []rgb.Color{{R: 1}}},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.SetModeColorsCount(0, 2))
	err = c.SetModeColorsCount(0, 3)
	require.Error(t, err)

	m, _ := c.Mode(0)
	require.Len(t, m.Colors, 2)
}

func TestSegmentsMustCoverZoneContiguously(t *testing.T) {
	c := newResizableController(t)
	// Zone 0 has 4 LEDs: a segment covering only part of it is rejected.
	require.Error(t, c.AddSegment(0, Segment{Name: "A", StartIdx: 0, LEDsCount: 2}))
	require.NoError(t, c.AddSegment(0, Segment{Name: "B", StartIdx: 0, LEDsCount: 4}))

	err := c.AddSegment(0, Segment{Name: "C", StartIdx: 5, LEDsCount: 1})
	require.Error(t, err)

	z0, err := c.Zone(0)
	require.NoError(t, err)
	require.Len(t, z0.Segments, 1)
}

func TestClearSegmentsRemovesAll(t *testing.T) {
	c := newResizableController(t)
	require.NoError(t, c.AddSegment(0, Segment{Name: "A", StartIdx: 0, LEDsCount: 4}))
	require.NoError(t, c.ClearSegments(0))

	z0, err := c.Zone(0)
	require.NoError(t, err)
	require.Empty(t, z0.Segments)
}

func TestSetCustomModePrefersDirectThenCustom(t *testing.T) {
	c, err := NewController(Config{
		Name: "test",
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 1, LEDsMin: 1, LEDsMax: 1},
		},
		Modes: []Mode{
			{Name: "Static"},
			{Name: "Custom"},
			{Name: "Direct"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.SetCustomMode())
	require.EqualValues(t, 2, c.ActiveMode())
}

func TestSetCustomModeFallsBackToCustom(t *testing.T) {
	c, err := NewController(Config{
		Name: "test",
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 1, LEDsMin: 1, LEDsMax: 1},
		},
		Modes: []Mode{
			{Name: "Static"},
			{Name: "Custom"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.SetCustomMode())
	require.EqualValues(t, 1, c.ActiveMode())
}

func TestSetCustomModeNoMatchIsNoopError(t *testing.T) {
	c, err := NewController(Config{
		Name: "test",
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 1, LEDsMin: 1, LEDsMax: 1},
		},
		Modes: []Mode{{Name: "Static"}, {Name: "Rainbow"}},
	})
	require.NoError(t, err)
	require.NoError(t, c.SetActiveMode(1))

	err = c.SetCustomMode()
	require.ErrorIs(t, err, ErrNoCustomMode)
	require.EqualValues(t, 1, c.ActiveMode())
}

func TestCallbackFanOutReceivesReasonOnUpdateLEDs(t *testing.T) {
	c := newResizableController(t)
	var got UpdateReason
	var calls int
	c.RegisterCallback(func(reason UpdateReason) {
		calls++
		got = reason
	})

	require.NoError(t, c.UpdateLEDs(make([]rgb.Color, c.LEDCount())))
	require.Equal(t, 1, calls)
	require.Equal(t, ReasonUpdateLEDs, got)
}

// TestCallbacksMayReadControllerStateWithoutDeadlock exercises the
// pattern an observer callback naturally reaches for: reading the
// controller's own state back while handling a Signal. c.mu must
// already be released by the time Signal fires, or this hangs forever.
func TestCallbacksMayReadControllerStateWithoutDeadlock(t *testing.T) {
	c := newResizableController(t)
	var reads int
	c.RegisterCallback(func(UpdateReason) {
		_ = c.Colors()
		_, _ = c.Mode(0)
		_ = c.Zones()
		reads++
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, c.UpdateLEDs(make([]rgb.Color, c.LEDCount())))
		require.NoError(t, c.UpdateMode())
		require.NoError(t, c.SaveMode())
		require.NoError(t, c.UpdateZoneLEDs(0, make([]rgb.Color, 4)))
		require.NoError(t, c.UpdateSingleLED(0, rgb.Color{}))
		require.NoError(t, c.ResizeZone(0, uint32(c.LEDCount())))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback reading controller state deadlocked against the mutation's own lock")
	}
	require.Equal(t, 6, reads)
}

func TestUnregisterCallbackStopsDelivery(t *testing.T) {
	c := newResizableController(t)
	calls := 0
	token := c.RegisterCallback(func(UpdateReason) { calls++ })
	c.UnregisterCallback(token)

	require.NoError(t, c.UpdateLEDs(make([]rgb.Color, c.LEDCount())))
	require.Equal(t, 0, calls)
}

func TestResetBeforeUpdateClearsPendingMarkerBeforeHardwareCall(t *testing.T) {
	c, err := NewController(Config{
		Name:  "test",
		Flags: FlagResetBeforeUpdate,
		Zones: []Zone{
			{Name: "Zone 1", Type: ZoneLinear, LEDsCount: 2, LEDsMin: 2, LEDsMax: 2},
		},
	})
	require.NoError(t, err)

	c.MarkPending()
	require.True(t, c.PendingUpdate())

	require.NoError(t, c.UpdateLEDs(make([]rgb.Color, c.LEDCount())))
	require.False(t, c.PendingUpdate())
}

func TestWithoutResetBeforeUpdatePendingMarkerSurvivesHardwareCall(t *testing.T) {
	c := newResizableController(t)

	c.MarkPending()
	require.NoError(t, c.UpdateLEDs(make([]rgb.Color, c.LEDCount())))
	require.True(t, c.PendingUpdate())
}

func TestUpdateLEDsRejectsWrongLength(t *testing.T) {
	c := newResizableController(t)
	err := c.UpdateLEDs(make([]rgb.Color, c.LEDCount()+1))
	require.Error(t, err)
}
