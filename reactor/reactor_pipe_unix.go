//go:build unix

// File: reactor/reactor_pipe_unix.go
//
// Shared wake-pipe helper for the epoll, kqueue, and poll backends:
// each keeps a self-pipe registered alongside the real fds purely so
// Wake can unblock a parked Wait call, per spec.md §5's rearm-pipe.
package reactor

import "golang.org/x/sys/unix"

func drainPipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
