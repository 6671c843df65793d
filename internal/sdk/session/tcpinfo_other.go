//go:build !linux

package session

import (
	"net"
	"time"
)

// sampleRTT is a no-op outside linux; TCP_INFO is a unix-only syscall
// and no portable equivalent exists.
func sampleRTT(net.Conn) time.Duration {
	return 0
}
