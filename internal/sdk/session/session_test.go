package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/dal/codec"
	"github.com/ninevoltz/rgbsdk/internal/dal/registry"
	"github.com/ninevoltz/rgbsdk/internal/rgb"
	"github.com/ninevoltz/rgbsdk/internal/sdk/bridge"
	"github.com/ninevoltz/rgbsdk/internal/sdk/proto"
	"github.com/ninevoltz/rgbsdk/internal/sdk/worker"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (client net.Conn, reg *registry.Registry, cancel func()) {
	t.Helper()
	client, reg, _, cancel = newTestSessionWithBridge(t, nil, nil)
	return client, reg, cancel
}

func newTestSessionWithBridge(t *testing.T, profiles bridge.ProfileManager, plugins bridge.PluginRegistry) (client net.Conn, reg *registry.Registry, w *worker.Worker, cancel func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	reg = registry.New()
	c, err := dal.NewController(dal.Config{
		Name: "GPU 0",
		Zones: []dal.Zone{
			{Name: "Zone 1", Type: dal.ZoneLinear, LEDsCount: 2, LEDsMin: 2, LEDsMax: 2},
		},
	})
	require.NoError(t, err)
	reg.Add(c)

	w = worker.New(c, 4, nil)

	ctx, stop := context.WithCancel(context.Background())
	s := New(Config{
		Conn:     serverConn,
		SendMu:   &sync.Mutex{},
		Registry: reg,
		Workers: func(idx int) *worker.Worker {
			if idx == 0 {
				return w
			}
			return nil
		},
		Profiles: profiles,
		Plugins:  plugins,
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	return clientConn, reg, w, func() {
		stop()
		w.Stop()
		clientConn.Close()
		serverConn.Close()
		<-done
	}
}

func readFrame(t *testing.T, conn net.Conn) (proto.Header, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := proto.NewReader(conn, 2*time.Second)
	h, data, err := r.ReadFrame()
	require.NoError(t, err)
	return h, data
}

func TestSessionControllerCount(t *testing.T) {
	client, _, cleanup := newTestSession(t)
	defer cleanup()

	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestControllerCount, nil))

	_, data := readFrame(t, client)
	v, err := codec.DecodeU32(data)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestSessionProtocolVersionNegotiation(t *testing.T) {
	client, _, cleanup := newTestSession(t)
	defer cleanup()

	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestProtocolVersion, codec.EncodeU32(99)))

	_, data := readFrame(t, client)
	v, err := codec.DecodeU32(data)
	require.NoError(t, err)
	require.EqualValues(t, codec.MaxVersion, v)
}

func TestSessionControllerData(t *testing.T) {
	client, _, cleanup := newTestSession(t)
	defer cleanup()

	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestControllerData, nil))

	h, data := readFrame(t, client)
	require.Equal(t, proto.ReplyControllerData, h.PacketType)

	decoded, err := codec.DecodeController(data, 0)
	require.NoError(t, err)
	require.Equal(t, "GPU 0", decoded.Name)
}

func TestSessionUpdateLEDsReachesController(t *testing.T) {
	client, reg, cleanup := newTestSession(t)
	defer cleanup()

	w := proto.NewWriter(client)
	payload := codec.EncodeColors([]rgb.Color{{R: 42}, {R: 42}})
	require.NoError(t, w.WriteFrame(0, proto.RGBControllerUpdateLEDs, payload))

	require.Eventually(t, func() bool {
		colors := reg.At(0).Colors()
		return len(colors) == 2 && colors[0].R == 42
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionProfileListCarriesU16CountPrefix(t *testing.T) {
	profiles := bridge.NewNoop()
	require.NoError(t, profiles.SaveProfile(context.Background(), "Gaming"))
	require.NoError(t, profiles.SaveProfile(context.Background(), "Quiet"))

	client, _, _, cleanup := newTestSessionWithBridge(t, profiles, nil)
	defer cleanup()

	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestProfileList, nil))

	h, data := readFrame(t, client)
	require.Equal(t, proto.ReplyProfileList, h.PacketType)

	count, err := codec.DecodeU16(data)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	rest := data[2:]
	for i := 0; i < int(count); i++ {
		name, err := codec.DecodeClientName(rest)
		require.NoError(t, err)
		require.Contains(t, []string{"Gaming", "Quiet"}, name)
		rest = rest[len(name)+1:]
	}
	require.Empty(t, rest)
}

func TestSessionPluginListCarriesFullDescriptors(t *testing.T) {
	plugins := bridge.NewNoop()
	plugins.RegisterPlugin(bridge.Plugin{
		ProtocolVersion: 1,
		Name:            "Effects",
		Description:     "Per-LED effects engine",
		Version:         "2.0",
		Callback:        func(context.Context, []byte) ([]byte, error) { return nil, nil },
	})

	client, _, _, cleanup := newTestSessionWithBridge(t, nil, plugins)
	defer cleanup()

	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestPluginList, nil))

	h, data := readFrame(t, client)
	require.Equal(t, proto.ReplyPluginList, h.PacketType)

	count, err := codec.DecodeU16(data)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	rest := data[2:]
	protoVersion, err := codec.DecodeU32(rest)
	require.NoError(t, err)
	require.EqualValues(t, 1, protoVersion)
	rest = rest[4:]

	name, err := codec.DecodeClientName(rest)
	require.NoError(t, err)
	require.Equal(t, "Effects", name)
	rest = rest[len(name)+1:]

	desc, err := codec.DecodeClientName(rest)
	require.NoError(t, err)
	require.Equal(t, "Per-LED effects engine", desc)
	rest = rest[len(desc)+1:]

	version, err := codec.DecodeClientName(rest)
	require.NoError(t, err)
	require.Equal(t, "2.0", version)
	rest = rest[len(version)+1:]
	require.Empty(t, rest)
}

func TestSessionPluginSpecificSplitsNameFromBinaryPayload(t *testing.T) {
	var gotPayload []byte
	plugins := bridge.NewNoop()
	plugins.RegisterPlugin(bridge.Plugin{
		Name: "Effects",
		Callback: func(_ context.Context, data []byte) ([]byte, error) {
			gotPayload = append([]byte{}, data...)
			return []byte{0xAA, 0xBB}, nil
		},
	})

	client, _, _, cleanup := newTestSessionWithBridge(t, nil, plugins)
	defer cleanup()

	// The plugin-specific payload tail is free-form binary that does not
	// end in a NUL byte; only the name prefix is NUL-terminated.
	payload := append([]byte("Effects\x00"), 0x01, 0x02, 0x03)
	w := proto.NewWriter(client)
	require.NoError(t, w.WriteFrame(0, proto.RequestPluginSpecific, payload))

	h, data := readFrame(t, client)
	require.Equal(t, proto.ReplyPluginSpecific, h.PacketType)
	require.Equal(t, []byte{0xAA, 0xBB}, data)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, gotPayload)
}
