// internal/firmware/serial.go
// The device half of the link state machine. Single-threaded: only the
// communication context touches the engine and its ring buffer.
package firmware

import (
	"io"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"jukebox/pkg/peripheral"
	"jukebox/pkg/protocol"
	"jukebox/pkg/ringbuf"
)

// Connection is the device-side link state. Idle and Dropped are both
// "not connected"; the distinction records whether the last link ended
// cleanly (Idle, also the boot state) or by a failure (Dropped). Both
// answer commands the same way.
type Connection uint8

const (
	Idle Connection = iota
	Dropped
	Linked
)

func (c Connection) String() string {
	switch c {
	case Linked:
		return "Linked"
	case Dropped:
		return "Dropped"
	default:
		return "Idle"
	}
}

// Connected reports whether the link is up.
func (c Connection) Connected() bool { return c == Linked }

const (
	// BufferSize bounds the ingress ring buffer. No command or response
	// is longer than this.
	BufferSize = 2048

	// Keepalive is how long the engine stays Linked without a valid
	// command; a small multiple of the host poll period.
	Keepalive = 250 * time.Millisecond

	readChunk = 128
)

// Engine consumes bytes from the USB-CDC endpoint, parses commands,
// dispatches responses and maintains the keepalive deadline. The Update
// command does not reset the hardware itself; it arms the shared update
// trigger for the accessories context to act on.
type Engine struct {
	surface peripheral.Identifier
	version string
	uid     string

	buf      *ringbuf.Buffer
	state    Connection
	deadline time.Time
	now      func() time.Time

	inputs  *Cell[peripheral.InputSnapshot]
	trigger *atomic.Bool
}

// NewEngine builds the engine for one firmware identity. inputs is the
// shared snapshot cell the scanner publishes into; trigger is the shared
// update flag.
func NewEngine(surface peripheral.Identifier, version, uid string, inputs *Cell[peripheral.InputSnapshot], trigger *atomic.Bool) *Engine {
	return &Engine{
		surface: surface,
		version: version,
		uid:     uid,
		buf:     ringbuf.New(BufferSize),
		state:   Idle,
		now:     time.Now,
		inputs:  inputs,
		trigger: trigger,
	}
}

// State returns the current link state.
func (e *Engine) State() Connection { return e.state }

// Update runs one poll cycle: expire the keepalive, drain available
// bytes from the port, and answer at most one framed command.
func (e *Engine) Update(port io.ReadWriter) {
	if e.state == Linked && !e.now().Before(e.deadline) {
		log.Printf("serial: keepalive expired, dropping link")
		e.state = Dropped
	}

	e.ingest(port)

	size, ok := e.scanCommand()
	if !ok {
		return
	}
	frame := e.take(size)
	cmd := protocol.DecodeCommand(frame)

	if e.dispatch(cmd, port) {
		e.deadline = e.now().Add(Keepalive)
	}
}

// ingest moves whatever the endpoint has ready into the ring buffer.
// A full buffer drops oldest bytes; the clipped command fails the next
// framing scan and is answered as Unknown.
func (e *Engine) ingest(port io.Reader) {
	var chunk [readChunk]byte
	n, err := port.Read(chunk[:])
	if err != nil && err != io.EOF {
		return
	}
	for _, b := range chunk[:n] {
		e.buf.Push(b)
	}
}

// scanCommand looks for the earliest CmdEnd pair and returns the length
// of the command frame ending there.
func (e *Engine) scanCommand() (int, bool) {
	size, found := 0, false
	e.buf.Pairs(func(i int, a, v byte) bool {
		if a == protocol.CmdEnd[0] && v == protocol.CmdEnd[1] {
			size, found = i+1, true
			return false
		}
		return true
	})
	return size, found
}

// take slices size bytes off the front of the ring buffer.
func (e *Engine) take(size int) []byte {
	frame := make([]byte, 0, size)
	for i := 0; i < size; i++ {
		b, ok := e.buf.Dequeue()
		if !ok {
			break
		}
		frame = append(frame, b)
	}
	return frame
}

// dispatch answers one decoded command and applies the state transition.
// The return value reports whether the command was valid in the current
// state; only valid commands refresh the keepalive.
func (e *Engine) dispatch(cmd protocol.Command, w io.Writer) bool {
	if e.state != Linked {
		switch cmd {
		case protocol.Greeting:
			e.send(w, protocol.LinkResponse(byte(e.surface), e.version, e.uid))
			e.state = Linked
			log.Printf("serial: linked (surface %s)", e.surface)
			return true
		case protocol.Update:
			e.startUpdate(w)
			return true
		default:
			e.send(w, protocol.UnknownResponse())
			return false
		}
	}

	switch cmd {
	case protocol.GetInputKeys:
		snapshot := e.inputs.Load()
		e.send(w, protocol.InputResponse(snapshot.Encode()))
		return true
	case protocol.Update:
		e.startUpdate(w)
		return true
	case protocol.Disconnect:
		e.send(w, protocol.DisconnectedResponse())
		e.state = Idle
		log.Printf("serial: disconnected")
		return true
	case protocol.NegativeAck:
		// The host saw something it could not trust; bail without a
		// response so it can resync from a clean port.
		e.state = Dropped
		log.Printf("serial: negative ack, dropping link")
		return false
	default:
		e.send(w, protocol.UnknownResponse())
		return false
	}
}

func (e *Engine) startUpdate(w io.Writer) {
	log.Printf("serial: update requested, arming bootloader handoff")
	e.send(w, protocol.DisconnectedResponse())
	e.state = Idle
	e.trigger.Store(true)
}

// send writes a response, retrying transient short writes by yielding.
// The CDC buffer can briefly be full; a link wedged past the keepalive
// window gives up and lets the keepalive tear it down.
func (e *Engine) send(w io.Writer, rsp []byte) {
	give := e.now().Add(Keepalive)
	for len(rsp) > 0 {
		n, err := w.Write(rsp)
		rsp = rsp[n:]
		if err != nil {
			if !e.now().Before(give) {
				log.Printf("serial: response write stuck, giving up: %v", err)
				return
			}
			runtime.Gosched()
		}
	}
}
