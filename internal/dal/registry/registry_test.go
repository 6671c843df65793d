package registry

import (
	"testing"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, name string) *dal.Controller {
	t.Helper()
	c, err := dal.NewController(dal.Config{
		Name:       name,
		DeviceType: dal.DeviceGPU,
		Zones: []dal.Zone{
			{Name: "Zone 1", Type: dal.ZoneLinear, LEDsCount: 1, LEDsMin: 1, LEDsMax: 1},
		},
	})
	require.NoError(t, err)
	return c
}

func TestAddAssignsStableIndices(t *testing.T) {
	r := New()
	a := r.Add(newTestController(t, "A"))
	b := r.Add(newTestController(t, "B"))
	require.Equal(t, 0, a)
	require.Equal(t, 1, b)
	require.Equal(t, 2, r.Count())
}

func TestRemoveDoesNotShiftIndices(t *testing.T) {
	r := New()
	first := r.Add(newTestController(t, "A"))
	second := r.Add(newTestController(t, "B"))

	require.True(t, r.Remove(first))
	require.Nil(t, r.At(first))
	require.NotNil(t, r.At(second))
	require.Equal(t, 2, r.Count())
}

func TestRemoveUnknownIndex(t *testing.T) {
	r := New()
	require.False(t, r.Remove(0))
	r.Add(newTestController(t, "A"))
	require.False(t, r.Remove(5))
}

func TestAllSkipsRemoved(t *testing.T) {
	r := New()
	first := r.Add(newTestController(t, "A"))
	r.Add(newTestController(t, "B"))
	r.Remove(first)

	all := r.All()
	require.Len(t, all, 1)
	require.Equal(t, "B", all[0].Controller.Name())
}

func TestWatchNotifiesOnChange(t *testing.T) {
	r := New()
	ch := r.Watch()
	defer r.Unwatch(ch)

	r.Add(newTestController(t, "A"))
	select {
	case <-ch:
	default:
		t.Fatal("expected a notification after Add")
	}
}

func TestUnwatchClosesChannel(t *testing.T) {
	r := New()
	ch := r.Watch()
	r.Unwatch(ch)
	_, ok := <-ch
	require.False(t, ok)
}
