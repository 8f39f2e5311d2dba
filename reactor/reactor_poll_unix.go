//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: reactor/reactor_poll_unix.go
//
// poll(2) fallback for POSIX platforms with neither epoll nor kqueue
// (e.g. Solaris/AIX). Authored from the Reactor contract rather than
// any teacher file — the teacher never shipped a poll(2) backend —
// but follows the same shape as the epoll/kqueue backends. Unlike
// them, poll(2) re-scans its whole fd list every call, so Register/
// Modify mutate a shared map under a mutex and Wake is load-bearing:
// without it, a Modify from another goroutine would not take effect
// until the in-flight Wait's timeout expires.
package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type pollReactor struct {
	mu      sync.Mutex
	fds     map[int32]*pollEntry
	wakeR   int
	wakeW   int
	closed  atomic.Bool
}

type pollEntry struct {
	flags    EventFlags
	userData uint64
}

func newPlatformReactor() (Reactor, error) {
	fds := [2]int{}
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	r := &pollReactor{
		fds:   make(map[int32]*pollEntry),
		wakeR: fds[0],
		wakeW: fds[1],
	}
	r.fds[int32(r.wakeR)] = &pollEntry{flags: EventRead}
	return r, nil
}

func (r *pollReactor) Register(fd uintptr, userData uint64, flags EventFlags) error {
	r.mu.Lock()
	r.fds[int32(fd)] = &pollEntry{flags: flags, userData: userData}
	r.mu.Unlock()
	return r.Wake()
}

func (r *pollReactor) Modify(fd uintptr, flags EventFlags) error {
	r.mu.Lock()
	if e, ok := r.fds[int32(fd)]; ok {
		e.flags = flags
	}
	r.mu.Unlock()
	return r.Wake()
}

func (r *pollReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	delete(r.fds, int32(fd))
	r.mu.Unlock()
	return r.Wake()
}

func toPollEvents(flags EventFlags) int16 {
	var ev int16
	if flags&EventRead != 0 {
		ev |= unix.POLLIN
	}
	if flags&EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (r *pollReactor) Wait(events []Event, timeoutMs int) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	r.mu.Lock()
	fds := make([]unix.PollFd, 0, len(r.fds))
	order := make([]int32, 0, len(r.fds))
	for fd, e := range r.fds {
		fds = append(fds, unix.PollFd{Fd: fd, Events: toPollEvents(e.flags)})
		order = append(order, fd)
	}
	r.mu.Unlock()

	n, err := unix.Poll(fds, timeoutMs)
	for err == unix.EINTR {
		n, err = unix.Poll(fds, timeoutMs)
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := 0
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		fd := order[i]
		if int(fd) == r.wakeR {
			drainPipe(r.wakeR)
			continue
		}
		e, ok := r.fds[fd]
		if !ok {
			continue
		}
		var flags EventFlags
		if pfd.Revents&unix.POLLIN != 0 {
			flags |= EventRead
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			flags |= EventWrite
		}
		if pfd.Revents&unix.POLLHUP != 0 {
			flags |= EventHangup
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			flags |= EventError
		}
		if out >= len(events) {
			break
		}
		events[out] = Event{Fd: uintptr(fd), UserData: e.userData, Flags: flags}
		out++
	}
	return out, nil
}

func (r *pollReactor) Wake() error {
	_, err := unix.Write(r.wakeW, []byte{0})
	return err
}

func (r *pollReactor) Close() error {
	r.closed.Store(true)
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return r.Wake()
}
