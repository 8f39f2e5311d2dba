//go:build linux

// File: reactor/reactor_epoll_linux.go
//
// Linux epoll(7) backend. Grounded on the teacher's reactor_linux.go
// (golang.org/x/sys/unix Register/Wait/Close shape) merged with
// epoll_reactor.go's sync.Map-keyed-by-fd side table and its
// EPOLLERR/EPOLLHUP → EventError classification; consolidated into
// the one Reactor contract instead of the teacher's two independent,
// incompatible NewReactor() declarations. The side table (rather than
// packing userData into epoll_event's data union) avoids relying on
// unsafe.Pointer tricks against a struct layout golang.org/x/sys
// does not document as stable.
package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd  int
	wakeR int
	wakeW int

	userData sync.Map // map[int32]uint64, keyed by fd
	closed   atomic.Bool
}

func newPlatformReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	fds := [2]int{}
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r := &epollReactor{epfd: epfd, wakeR: fds[0], wakeW: fds[1]}
	if err := r.Register(uintptr(r.wakeR), 0, EventRead); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func toEpollEvents(flags EventFlags) uint32 {
	var ev uint32
	if flags&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if flags&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (r *epollReactor) Register(fd uintptr, userData uint64, flags EventFlags) error {
	r.userData.Store(int32(fd), userData)
	ev := unix.EpollEvent{Events: toEpollEvents(flags) | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		r.userData.Delete(int32(fd))
		return err
	}
	return nil
}

func (r *epollReactor) Modify(fd uintptr, flags EventFlags) error {
	ev := unix.EpollEvent{Events: toEpollEvents(flags) | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
}

func (r *epollReactor) Unregister(fd uintptr) error {
	r.userData.Delete(int32(fd))
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (r *epollReactor) Wait(events []Event, timeoutMs int) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	for err == unix.EINTR {
		n, err = unix.EpollWait(r.epfd, raw, timeoutMs)
	}
	if err != nil {
		return 0, err
	}

	out := 0
	for i := 0; i < n; i++ {
		fd := raw[i].Fd
		if int(fd) == r.wakeR {
			drainPipe(r.wakeR)
			continue
		}
		var flags EventFlags
		if raw[i].Events&unix.EPOLLIN != 0 {
			flags |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			flags |= EventWrite
		}
		if raw[i].Events&unix.EPOLLHUP != 0 {
			flags |= EventHangup
		}
		if raw[i].Events&unix.EPOLLERR != 0 {
			flags |= EventError
		}
		var ud uint64
		if v, ok := r.userData.Load(fd); ok {
			ud = v.(uint64)
		}
		events[out] = Event{Fd: uintptr(fd), UserData: ud, Flags: flags}
		out++
	}
	if r.closed.Load() {
		return 0, ErrClosed
	}
	return out, nil
}

func (r *epollReactor) Wake() error {
	_, err := unix.Write(r.wakeW, []byte{0})
	return err
}

func (r *epollReactor) Close() error {
	r.closed.Store(true)
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return unix.Close(r.epfd)
}
