//go:build unix

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T) (r, w int) {
	t.Helper()
	fds := [2]int{}
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestRegisterAndWaitReadable(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer re.Close()

	pr, pw := newTestPipe(t)
	if err := re.Register(uintptr(pr), 42, EventRead); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := unix.Write(pw, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := re.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n == 0 {
		t.Fatal("expected at least one event")
	}
	found := false
	for i := 0; i < n; i++ {
		if events[i].Fd == uintptr(pr) {
			found = true
			if events[i].UserData != 42 {
				t.Fatalf("userdata = %d, want 42", events[i].UserData)
			}
			if events[i].Flags&EventRead == 0 {
				t.Fatalf("flags = %v, want EventRead set", events[i].Flags)
			}
		}
	}
	if !found {
		t.Fatal("did not see pipe read fd in events")
	}
}

func TestUnregisterStopsNotifications(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer re.Close()

	pr, pw := newTestPipe(t)
	if err := re.Register(uintptr(pr), 1, EventRead); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := re.Unregister(uintptr(pr)); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := unix.Write(pw, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := re.Wait(events, 100)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	for i := 0; i < n; i++ {
		if events[i].Fd == uintptr(pr) {
			t.Fatal("received event for unregistered fd")
		}
	}
}

func TestWaitTimesOutWithNoEvents(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer re.Close()

	pr, _ := newTestPipe(t)
	if err := re.Register(uintptr(pr), 1, EventRead); err != nil {
		t.Fatalf("Register: %v", err)
	}

	start := time.Now()
	events := make([]Event, 8)
	n, err := re.Wait(events, 50)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("Wait returned too early: %v", elapsed)
	}
}

func TestWakeUnblocksWait(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer re.Close()

	done := make(chan struct{})
	go func() {
		events := make([]Event, 8)
		re.Wait(events, 5000)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := re.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Wake")
	}
}

func TestCloseCausesWaitError(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	re.Close()

	events := make([]Event, 8)
	_, err = re.Wait(events, 100)
	if err != ErrClosed {
		t.Fatalf("Wait after Close = %v, want ErrClosed", err)
	}
}

func TestModifyChangesInterest(t *testing.T) {
	re, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer re.Close()

	pr, pw := newTestPipe(t)
	if err := re.Register(uintptr(pr), 7, EventWrite); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := re.Modify(uintptr(pr), EventRead); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if _, err := unix.Write(pw, []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := re.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	found := false
	for i := 0; i < n; i++ {
		if events[i].Fd == uintptr(pr) && events[i].Flags&EventRead != 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected readable event after Modify to EventRead")
	}
}
