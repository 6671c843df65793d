//go:build linux

package session

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// sampleRTT reads TCP_INFO off conn's socket to report a client
// session's measured round-trip time. Returns 0 for anything that
// isn't a *net.TCPConn.
func sampleRTT(conn net.Conn) time.Duration {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return 0
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0
	}
	var info *unix.TCPInfo
	ctrlErr := raw.Control(func(fd uintptr) {
		info, err = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	})
	if ctrlErr != nil || err != nil || info == nil {
		return 0
	}
	return time.Duration(info.Rtt) * time.Microsecond
}
