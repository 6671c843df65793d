package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/dal/codec"
	"github.com/ninevoltz/rgbsdk/internal/sdk/proto"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) *dal.Controller {
	t.Helper()
	c, err := dal.NewController(dal.Config{
		Name: "GPU 0",
		Zones: []dal.Zone{
			{Name: "Zone 1", Type: dal.ZoneLinear, LEDsCount: 2, LEDsMin: 2, LEDsMax: 2},
		},
	})
	require.NoError(t, err)
	return c
}

func TestServerStartAcceptsConnections(t *testing.T) {
	s := New(Config{ListenAddrs: []string{"127.0.0.1:0"}})
	s.RegisterController(newTestController(t))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer func() {
		cancel()
		s.Stop()
	}()

	addr := s.listeners[0].Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	w := proto.NewWriter(conn)
	require.NoError(t, w.WriteFrame(0, proto.RequestControllerCount, nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := proto.NewReader(conn, 2*time.Second)
	_, data, err := r.ReadFrame()
	require.NoError(t, err)

	v, err := codec.DecodeU32(data)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestServerBindFailureReported(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	s := New(Config{ListenAddrs: []string{occupied.Addr().String()}})
	err = s.Start(context.Background())
	require.Error(t, err)
	s.Stop()
}

func TestServerClientInfoNotifiedOnConnect(t *testing.T) {
	s := New(Config{ListenAddrs: []string{"127.0.0.1:0"}})
	s.RegisterController(newTestController(t))

	events := make(chan ClientInfo, 4)
	s.OnClientInfoChanged(func(info ClientInfo) { events <- info })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer func() {
		cancel()
		s.Stop()
	}()

	conn, err := net.Dial("tcp", s.listeners[0].Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case ev := <-events:
		require.True(t, ev.Connected)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a CLIENT_INFO_CHANGED event")
	}
}

func TestServerBroadcastsDeviceListUpdatedOnRegistryChange(t *testing.T) {
	s := New(Config{ListenAddrs: []string{"127.0.0.1:0"}})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	defer func() {
		cancel()
		s.Stop()
	}()

	conn, err := net.Dial("tcp", s.listeners[0].Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Let the server register this connection as a live session before
	// the registry change that should trigger a broadcast to it.
	require.Eventually(t, func() bool {
		s.sessionsMu.Lock()
		defer s.sessionsMu.Unlock()
		return len(s.sessions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.RegisterController(newTestController(t))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := proto.NewReader(conn, 2*time.Second)
	h, _, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, proto.DeviceListUpdated, h.PacketType)
	require.Equal(t, proto.BroadcastDeviceIdx, h.DeviceIdx)
}

func TestDeregisterControllerStopsWorkerAndRemovesFromRegistry(t *testing.T) {
	s := New(Config{})
	idx := s.RegisterController(newTestController(t))
	require.NotNil(t, s.Registry.At(idx))

	s.DeregisterController(idx)
	require.Nil(t, s.Registry.At(idx))
	require.Nil(t, s.workerFor(idx))
}
