package host

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jukebox/internal/firmware"
	"jukebox/pkg/peripheral"
)

// halfPipe is one direction of an in-memory serial link with the same
// read discipline as a real port: reads return (0, nil) when nothing is
// buffered.
type halfPipe struct {
	mu  sync.Mutex
	buf []byte
}

func (p *halfPipe) write(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, b...)
}

func (p *halfPipe) read(b []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n
}

// pipeEnd is one side of the duplex link.
type pipeEnd struct {
	in  *halfPipe
	out *halfPipe
}

func (e pipeEnd) Read(b []byte) (int, error) {
	n := e.in.read(b)
	if n == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	return n, nil
}

func (e pipeEnd) Write(b []byte) (int, error) {
	e.out.write(b)
	return len(b), nil
}

func (e pipeEnd) Close() error { return nil }

func newDuplex() (hostEnd, deviceEnd pipeEnd) {
	a, b := &halfPipe{}, &halfPipe{}
	return pipeEnd{in: a, out: b}, pipeEnd{in: b, out: a}
}

// loopMatrix is a settable key matrix holding the set of pressed keys.
type loopMatrix struct {
	mu     sync.Mutex
	down   map[int]bool
	row    int
	driven bool
}

func newLoopMatrix() *loopMatrix { return &loopMatrix{down: map[int]bool{}} }

func (m *loopMatrix) press(key int, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[key] = down
}

func (m *loopMatrix) SetRow(row int, high bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row, m.driven = row, high
}

func (m *loopMatrix) Col(col int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driven && m.down[m.row*firmware.KeyCols+col]
}

// TestLoopbackSession runs the full stack: the firmware model on one end
// of an in-memory link, the supervisor with both workers on the other.
func TestLoopbackSession(t *testing.T) {
	hostEnd, deviceEnd := newDuplex()

	matrix := newLoopMatrix()
	var booted atomic.Bool

	fw, err := firmware.New(firmware.Config{
		Surface:    peripheral.IdentKeyPad,
		Version:    "0.1.0",
		UID:        "ABCDEF01",
		Matrix:     matrix,
		Bootloader: func() { booted.Store(true) },
	})
	if err != nil {
		t.Fatalf("firmware.New: %v", err)
	}
	fw.Run(deviceEnd)
	defer fw.Stop()

	var opened atomic.Bool
	open := func() (Port, error) {
		if !opened.CompareAndSwap(false, true) {
			return nil, errNoDevice
		}
		return hostEnd, nil
	}

	s := NewSupervisor(open, emptyProfiles{})
	s.SerialWorker().Poll = 5 * time.Millisecond
	s.SerialWorker().Backoff = time.Millisecond
	s.Start()
	defer s.Stop()

	waitEvent := func(want EventKind, check func(Event) bool) Event {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev, ok := <-s.Events():
				if !ok {
					t.Fatalf("events channel closed waiting for %v", want)
				}
				if ev.Kind == want && (check == nil || check(ev)) {
					return ev
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %v", want)
			}
		}
	}

	ev := waitEvent(EventConnected, nil)
	if ev.Link.Surface != peripheral.IdentKeyPad || ev.Link.UID != "ABCDEF01" {
		t.Fatalf("link info = %+v", ev.Link)
	}

	// press key5 on the device and watch it surface as a logical key
	matrix.press(4, true)
	waitEvent(EventInputKeys, func(ev Event) bool {
		return ev.Keys.Has(peripheral.KeySwitch5)
	})

	// release must drain back out of the key set
	matrix.press(4, false)
	waitEvent(EventInputKeys, func(ev Event) bool {
		return len(ev.Keys) == 0
	})

	// the update handoff: device acknowledges, quiesces and "reboots"
	if !s.Send(CommandUpdateDevice) {
		t.Fatal("update command rejected")
	}
	waitEvent(EventDisconnected, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !booted.Load() {
		if time.Now().After(deadline) {
			t.Fatal("bootloader handoff never fired")
		}
		time.Sleep(time.Millisecond)
	}
}
