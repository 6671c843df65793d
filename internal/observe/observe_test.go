package observe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := []byte(`{"remote_addr":"127.0.0.1:1234","connected":true}`)
	compressed, err := compress(original)
	require.NoError(t, err)
	require.NotEmpty(t, compressed)

	decompressed, err := decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, original, decompressed)
}

func TestHubBroadcastJSONDeliversToRegisteredClient(t *testing.T) {
	h := NewHub(nil)
	stopped := make(chan struct{})
	go h.Run(stopped)
	defer close(stopped)

	c := &Client{hub: h, send: make(chan []byte, 1)}
	h.register <- c

	require.Eventually(t, func() bool {
		h.broadcastJSON(EventClientInfo, ClientInfoEvent{RemoteAddr: "1.2.3.4", Connected: true})
		select {
		case msg := <-c.send:
			return len(msg) > 0 && msg[0] == byte(EventClientInfo)
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
