// A lightweight program to simulate JukeBox serial communication: it
// serves the firmware model over TCP so the companion can be developed
// without hardware (jukebox -sim <addr>).
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"jukebox/internal/firmware"
	"jukebox/pkg/peripheral"
)

var (
	surfaceName = flag.String("surface", "keypad", "surface to simulate: keypad, knobpad or pedalpad")
	listenAddr  = flag.String("listen", "127.0.0.1:7629", "address to serve the device on")
	wiggle      = flag.Bool("wiggle", false, "generate random input activity")
	version     = flag.String("version", "0.1.0-sim", "firmware version to advertise")
	uid         = flag.String("uid", "SIM00001", "device uid to advertise")
)

func main() {
	flag.Parse()

	var surface peripheral.Identifier
	switch *surfaceName {
	case "keypad":
		surface = peripheral.IdentKeyPad
	case "knobpad":
		surface = peripheral.IdentKnobPad
	case "pedalpad":
		surface = peripheral.IdentPedalPad
	default:
		log.Fatalf("unknown surface %q", *surfaceName)
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("listen %s: %v", *listenAddr, err)
	}
	log.Printf("simulating %s surface on %s", surface, ln.Addr())

	// one connection at a time: a JukeBox has one serial endpoint. A new
	// connection gets a freshly booted device.
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		log.Printf("host attached from %s", conn.RemoteAddr())
		serve(conn, surface)
		log.Printf("host detached")
	}
}

// serve boots one firmware instance against the connection and blocks
// until the link dies or the bootloader handoff fires.
func serve(conn net.Conn, surface peripheral.Identifier) {
	defer conn.Close()

	pins := newSimPins(surface)
	if *wiggle {
		stop := make(chan struct{})
		defer close(stop)
		go pins.wiggle(stop)
	}

	rebooted := make(chan struct{})
	fw, err := firmware.New(firmware.Config{
		Surface: surface,
		Version: *version,
		UID:     *uid,
		Matrix:  pins.matrix(),
		Knobs:   pins.knobs(),
		Pedals:  pins.pedals(),
		LED:     nopLED{},
		RGB:     nopStrip{},
		Bootloader: func() {
			log.Printf("bootloader handoff (simulated reboot)")
			close(rebooted)
		},
	})
	if err != nil {
		log.Fatalf("firmware: %v", err)
	}

	p := newPort(conn)
	fw.Run(p)
	defer fw.Stop()

	// hold the connection until the device "reboots" or the host leaves
	select {
	case <-rebooted:
	case <-p.dead:
	}
}

// port adapts the TCP connection to the firmware's non-blocking read
// expectation: a read that times out reports "nothing available". A real
// transport error marks the port dead so serve can recycle it.
type port struct {
	net.Conn
	dead chan struct{}
	once *sync.Once
}

func newPort(conn net.Conn) port {
	return port{Conn: conn, dead: make(chan struct{}), once: &sync.Once{}}
}

func (p port) markDead() {
	p.once.Do(func() { close(p.dead) })
}

func (p port) Read(b []byte) (int, error) {
	if err := p.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		p.markDead()
		return 0, err
	}
	n, err := p.Conn.Read(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		p.markDead()
		return n, err
	}
	return n, nil
}

func (p port) Write(b []byte) (int, error) {
	n, err := p.Conn.Write(b)
	if err != nil {
		p.markDead()
	}
	return n, err
}

type nopLED struct{}

func (nopLED) Set(bool) {}

type nopStrip struct{}

func (nopStrip) Write([]firmware.RGBColor) {}

// simPins holds the mutable input state behind the firmware's pin
// interfaces.
type simPins struct {
	surface peripheral.Identifier

	mu     sync.Mutex
	keys   [firmware.KeyRows * firmware.KeyCols]bool
	row    int
	driven bool
	knob   peripheral.KnobPadState
	pedal  peripheral.PedalPadState
}

func newSimPins(surface peripheral.Identifier) *simPins {
	return &simPins{surface: surface}
}

func (p *simPins) matrix() firmware.KeyMatrix {
	if p.surface != peripheral.IdentKeyPad {
		return nil
	}
	return (*simMatrix)(p)
}

func (p *simPins) knobs() firmware.KnobPins {
	if p.surface != peripheral.IdentKnobPad {
		return nil
	}
	return (*simKnobs)(p)
}

func (p *simPins) pedals() firmware.PedalPins {
	if p.surface != peripheral.IdentPedalPad {
		return nil
	}
	return (*simPedals)(p)
}

// wiggle toggles random inputs so the host sees edges.
func (p *simPins) wiggle(stop <-chan struct{}) {
	tick := time.NewTicker(400 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			p.mu.Lock()
			switch p.surface {
			case peripheral.IdentKeyPad:
				i := rand.Intn(len(p.keys))
				p.keys[i] = !p.keys[i]
			case peripheral.IdentKnobPad:
				p.knob.RightTurn = peripheral.KnobTurn(rand.Intn(3))
				p.knob.LeftSwitch = peripheral.Switch(rand.Intn(2))
			case peripheral.IdentPedalPad:
				p.pedal.Middle = peripheral.Switch(rand.Intn(2))
			}
			p.mu.Unlock()
		}
	}
}

type simMatrix simPins

func (m *simMatrix) SetRow(row int, high bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row, m.driven = row, high
}

func (m *simMatrix) Col(col int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driven && m.keys[m.row*firmware.KeyCols+col]
}

type simKnobs simPins

func (k *simKnobs) Read() peripheral.KnobPadState {
	k.mu.Lock()
	defer k.mu.Unlock()
	state := k.knob
	// rotation is an impulse, not a level: reading consumes it
	k.knob.LeftTurn = peripheral.TurnNone
	k.knob.RightTurn = peripheral.TurnNone
	return state
}

type simPedals simPins

func (p *simPedals) Read() peripheral.PedalPadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pedal
}
