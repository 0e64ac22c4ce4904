// internal/host/serial.go
// The serial worker: one session at a time, strictly sequential
// command/response pairs, automatic rediscovery after any failure.
package host

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"jukebox/pkg/peripheral"
	"jukebox/pkg/protocol"
)

// Port is the serial endpoint the worker drives. Reads are expected to
// use a short timeout, returning (0, nil) when nothing arrived, so the
// worker can poll until a frame completes or its hard deadline fires.
type Port interface {
	io.ReadWriter
	Close() error
}

// Opener produces a fresh port for each session; the worker owns the
// handle and drops it when the session ends.
type Opener func() (Port, error)

// Reference timings for the host side of the link.
const (
	// PollPeriod is the input poll cadence while linked.
	PollPeriod = 25 * time.Millisecond
	// ResponseTimeout hard-fails a response read.
	ResponseTimeout = 3 * time.Second
	// ReconnectDelay is the fixed backoff between discovery attempts.
	// No exponential growth: the usual failure is an unplugged cable,
	// which resolves by user action.
	ReconnectDelay = time.Second
)

// SerialWorker runs the host connection state machine: discover, greet,
// poll, and surface every failure as a lost connection followed by a
// reconnect attempt.
type SerialWorker struct {
	open     Opener
	shutdown *atomic.Bool
	commands <-chan Command
	events   chan<- Event

	// Overridable timings, defaulted from the constants above.
	Poll    time.Duration
	Timeout time.Duration
	Backoff time.Duration
}

// NewSerialWorker wires a worker. commands carries UI requests in,
// events carries session notifications out.
func NewSerialWorker(open Opener, shutdown *atomic.Bool, commands <-chan Command, events chan<- Event) *SerialWorker {
	return &SerialWorker{
		open:     open,
		shutdown: shutdown,
		commands: commands,
		events:   events,
		Poll:     PollPeriod,
		Timeout:  ResponseTimeout,
		Backoff:  ReconnectDelay,
	}
}

// Run loops until shutdown: open the device, run a session, drop the
// handle, and retry, backing off after a failed open or session. It never returns an error; failures become
// LostConnection events.
func (w *SerialWorker) Run() {
	for !w.shutdown.Load() {
		port, err := w.open()
		if err != nil {
			time.Sleep(w.Backoff)
			continue
		}

		err = w.session(port)
		port.Close()

		if err != nil {
			log.Printf("serial worker: session failed: %v", err)
			w.emit(Event{Kind: EventLostConnection})
			time.Sleep(w.Backoff)
		}
	}
}

func (w *SerialWorker) emit(ev Event) {
	w.events <- ev
}

// session drives one link from greeting to its end. A nil return means
// the session ended cleanly (Disconnected emitted or shutdown); any
// error means the caller reports a lost connection and reconnects.
func (w *SerialWorker) session(port Port) error {
	// commands queued while no device was attached are stale; a session
	// acts only on requests made against it
drain:
	for {
		select {
		case <-w.commands:
		default:
			break drain
		}
	}

	link, err := w.greet(port)
	if err != nil {
		return err
	}
	w.emit(Event{Kind: EventConnected, Link: link})

	tick := time.NewTicker(w.Poll)
	defer tick.Stop()

	for {
		if w.shutdown.Load() {
			// best effort: tell the device before going away
			return w.unlink(port, protocol.DisconnectFrame())
		}

		select {
		case cmd := <-w.commands:
			switch cmd {
			case CommandUpdateDevice:
				return w.unlink(port, protocol.UpdateFrame())
			case CommandDisconnectDevice:
				return w.unlink(port, protocol.DisconnectFrame())
			}

		case <-tick.C:
			if err := w.poll(port, link.Surface); err != nil {
				return err
			}
		}
	}
}

// greet sends the Greeting and validates the link response. Anything the
// worker cannot trust gets a NegativeAck so the device can drop its half
// of the link too.
func (w *SerialWorker) greet(port Port) (LinkInfo, error) {
	if err := w.write(port, protocol.GreetingFrame()); err != nil {
		return LinkInfo{}, fmt.Errorf("send greeting: %w", err)
	}

	rsp, err := w.readResponse(port)
	if err != nil {
		return LinkInfo{}, fmt.Errorf("greeting response: %w", err)
	}

	ident, version, uid, err := protocol.ParseLinkResponse(rsp)
	if err != nil {
		w.negativeAck(port)
		return LinkInfo{}, fmt.Errorf("link response: %w", err)
	}

	surface := peripheral.Identifier(ident)
	switch surface {
	case peripheral.IdentKeyPad, peripheral.IdentKnobPad, peripheral.IdentPedalPad:
	default:
		w.negativeAck(port)
		return LinkInfo{}, fmt.Errorf("device advertised unknown surface 0x%02x", ident)
	}

	log.Printf("serial worker: linked to %s (firmware %s, uid %s)", surface, version, uid)
	return LinkInfo{Surface: surface, Version: version, UID: uid}, nil
}

// poll runs one GetInputKeys round trip and emits the decoded key set.
// The report is decoded against the surface advertised at link time; a
// mismatch ends the session.
func (w *SerialWorker) poll(port Port, surface peripheral.Identifier) error {
	if err := w.write(port, protocol.GetInputKeysFrame()); err != nil {
		return fmt.Errorf("send input poll: %w", err)
	}

	rsp, err := w.readResponse(port)
	if err != nil {
		return fmt.Errorf("input response: %w", err)
	}

	if bytes.Equal(rsp, protocol.UnknownResponse()) {
		// the device did not understand us; do not try to limp along on
		// a link the device thinks is broken
		w.negativeAck(port)
		return fmt.Errorf("device did not recognize input poll")
	}

	report, err := protocol.ParseInputResponse(rsp)
	if err != nil {
		w.negativeAck(port)
		return fmt.Errorf("input response: %w", err)
	}

	snapshot, err := peripheral.Decode(surface, report)
	if err != nil {
		w.negativeAck(port)
		return fmt.Errorf("input report: %w", err)
	}

	w.emit(Event{Kind: EventInputKeys, Keys: snapshot.Keys()})
	return nil
}

// unlink sends the final command of a session (Update or Disconnect) and
// expects the Disconnected acknowledgement. Either way the session is
// over; only the event kind differs.
func (w *SerialWorker) unlink(port Port, frame []byte) error {
	if err := w.write(port, frame); err != nil {
		return fmt.Errorf("send unlink: %w", err)
	}

	rsp, err := w.readResponse(port)
	if err != nil {
		return fmt.Errorf("unlink response: %w", err)
	}
	if !bytes.Equal(rsp, protocol.DisconnectedResponse()) {
		return fmt.Errorf("unexpected unlink response % x", rsp)
	}

	w.emit(Event{Kind: EventDisconnected})
	return nil
}

// readResponse grows a buffer byte by byte until it ends with RspEnd or
// the hard deadline fires. The port's own short read timeout makes the
// inner loop a busy poll rather than a block.
func (w *SerialWorker) readResponse(port Port) ([]byte, error) {
	deadline := time.Now().Add(w.Timeout)
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)

	for {
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("read timeout after %s", w.Timeout)
		}

		n, err := port.Read(one)
		if err != nil {
			return nil, fmt.Errorf("port read: %w", err)
		}
		if n == 0 {
			continue
		}

		buf = append(buf, one[0])
		if protocol.Terminated(buf) {
			return buf, nil
		}
	}
}

// write pushes a whole frame through the port.
func (w *SerialWorker) write(port Port, frame []byte) error {
	for len(frame) > 0 {
		n, err := port.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// negativeAck tells the device we saw something broken, when it can
// still be told. Failures are ignored; the session is ending regardless.
func (w *SerialWorker) negativeAck(port Port) {
	_ = w.write(port, protocol.NegativeAckFrame())
}
