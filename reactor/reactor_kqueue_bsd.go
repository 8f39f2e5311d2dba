//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/reactor_kqueue_bsd.go
//
// kqueue(2) backend for BSD/Darwin. No teacher file covers kqueue —
// this is authored from scratch against golang.org/x/sys/unix's kqueue
// syscalls, following the same Register/Modify/Wait/Close shape as
// reactor_epoll_linux.go so the dispatcher loop is identical across
// backends.
package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type kqueueReactor struct {
	kq    int
	wakeR int
	wakeW int

	userData sync.Map // map[int32]uint64, keyed by fd
	closed   atomic.Bool
}

func newPlatformReactor() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	fds := [2]int{}
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(kq)
		return nil, err
	}
	r := &kqueueReactor{kq: kq, wakeR: fds[0], wakeW: fds[1]}
	if err := r.Register(uintptr(r.wakeR), 0, EventRead); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *kqueueReactor) changeFilters(fd uintptr, flags EventFlags) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addOrDelete := func(filter int16, want bool) {
		flag := uint16(unix.EV_DELETE)
		if want {
			flag = unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flag,
		})
	}
	addOrDelete(unix.EVFILT_READ, flags&EventRead != 0)
	addOrDelete(unix.EVFILT_WRITE, flags&EventWrite != 0)
	return changes
}

func (r *kqueueReactor) Register(fd uintptr, userData uint64, flags EventFlags) error {
	r.userData.Store(int32(fd), userData)
	changes := r.changeFilters(fd, flags)
	// A fresh registration should only add the filters that are
	// wanted, not explicitly delete the others (nothing to delete yet).
	wanted := changes[:0]
	for _, c := range changes {
		if c.Flags&unix.EV_ADD != 0 {
			wanted = append(wanted, c)
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	_, err := unix.Kevent(r.kq, wanted, nil, nil)
	if err != nil {
		r.userData.Delete(int32(fd))
	}
	return err
}

func (r *kqueueReactor) Modify(fd uintptr, flags EventFlags) error {
	changes := r.changeFilters(fd, flags)
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	return err
}

func (r *kqueueReactor) Unregister(fd uintptr) error {
	r.userData.Delete(int32(fd))
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// ENOENT per-filter is expected when only one filter was active;
	// kevent reports the first error without stopping the others, so
	// ignore ENOENT specifically.
	_, err := unix.Kevent(r.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (r *kqueueReactor) Wait(events []Event, timeoutMs int) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	raw := make([]unix.Kevent_t, len(events))
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}
	n, err := unix.Kevent(r.kq, nil, raw, ts)
	for err == unix.EINTR {
		n, err = unix.Kevent(r.kq, nil, raw, ts)
	}
	if err != nil {
		return 0, err
	}

	out := 0
	for i := 0; i < n; i++ {
		fd := int32(raw[i].Ident)
		if int(fd) == r.wakeR {
			drainPipe(r.wakeR)
			continue
		}
		var flags EventFlags
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			flags |= EventRead
		case unix.EVFILT_WRITE:
			flags |= EventWrite
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			flags |= EventHangup
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
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

func (r *kqueueReactor) Wake() error {
	_, err := unix.Write(r.wakeW, []byte{0})
	return err
}

func (r *kqueueReactor) Close() error {
	r.closed.Store(true)
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return unix.Close(r.kq)
}
