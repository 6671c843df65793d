package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopProfileLifecycle(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	_, err := n.ListProfiles(ctx)
	require.NoError(t, err)

	require.NoError(t, n.SaveProfile(ctx, "gaming"))
	profiles, err := n.ListProfiles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"gaming"}, profiles)

	require.NoError(t, n.LoadProfile(ctx, "gaming"))
	require.Error(t, n.LoadProfile(ctx, "missing"))

	require.NoError(t, n.DeleteProfile(ctx, "gaming"))
	require.Error(t, n.LoadProfile(ctx, "gaming"))
}

func TestNoopSettings(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	_, err := n.Get(ctx, "display")
	require.Error(t, err)

	require.NoError(t, n.Set(ctx, "display", []byte("{}")))
	doc, err := n.Get(ctx, "display")
	require.NoError(t, err)
	require.Equal(t, []byte("{}"), doc)
	require.NoError(t, n.Save(ctx))
}

func TestNoopPluginDispatch(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	n.RegisterPlugin(Plugin{
		Name: "echo",
		Callback: func(_ context.Context, data []byte) ([]byte, error) {
			return data, nil
		},
	})

	plugins, err := n.List(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 1)

	out, err := n.Dispatch(ctx, "echo", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), out)

	_, err = n.Dispatch(ctx, "missing", nil)
	require.Error(t, err)
}
