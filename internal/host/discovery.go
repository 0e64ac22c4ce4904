// internal/host/discovery.go
// Finding the JukeBox: the device is a CDC-ACM serial endpoint whose USB
// identity is fixed (vendor 0x1209, product by surface). Discovery
// filters the serial enumeration by those IDs; the monitor tool uses
// gousb for a descriptor-level view of the same filter.
package host

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/google/gousb"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"jukebox/pkg/peripheral"
)

// SerialReadTimeout is the per-read timeout on the opened port; short so
// readResponse can busy-poll toward its own hard deadline.
const SerialReadTimeout = 10 * time.Millisecond

// jukeboxProduct reports whether a USB product ID belongs to a JukeBox
// build.
func jukeboxProduct(pid uint16) bool {
	switch pid {
	case peripheral.ProductIDUnspecified, peripheral.ProductIDKeyPad,
		peripheral.ProductIDKnobPad, peripheral.ProductIDPedalPad:
		return true
	}
	return false
}

// FindPort locates the first serial port carrying the JukeBox USB
// identity and returns its name and advertised surface.
func FindPort() (string, peripheral.Identifier, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", peripheral.IdentUnknown, fmt.Errorf("enumerate serial ports: %w", err)
	}

	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, err1 := strconv.ParseUint(p.VID, 16, 16)
		pid, err2 := strconv.ParseUint(p.PID, 16, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		if uint16(vid) != peripheral.VendorID || !jukeboxProduct(uint16(pid)) {
			continue
		}
		return p.Name, peripheral.SurfaceForProduct(uint16(pid)), nil
	}

	return "", peripheral.IdentUnknown, fmt.Errorf("no JukeBox serial port found")
}

type serialPort struct {
	serial.Port
}

// OpenDevice discovers and opens the device port at 115200 8N1 with the
// short read timeout the worker's read discipline expects. It is the
// production Opener.
func OpenDevice() (Port, error) {
	name, surface, err := FindPort()
	if err != nil {
		return nil, err
	}
	log.Printf("discovery: opening %s (%s surface)", name, surface)

	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(SerialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return serialPort{port}, nil
}

// Attached checks at the USB descriptor level whether any JukeBox is
// plugged in, without opening its serial endpoint.
func Attached() (bool, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == peripheral.VendorID && jukeboxProduct(uint16(desc.Product))
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return false, fmt.Errorf("usb enumeration: %w", err)
	}
	return len(devs) > 0, nil
}

// simPort adapts a TCP connection to the Port read discipline: each read
// waits at most the serial read timeout and reports (0, nil) when
// nothing arrived.
type simPort struct {
	net.Conn
}

func (p simPort) Read(b []byte) (int, error) {
	if err := p.SetReadDeadline(time.Now().Add(SerialReadTimeout)); err != nil {
		return 0, err
	}
	n, err := p.Conn.Read(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// DialSimulator returns an Opener that connects to a jukebox-sim
// instance instead of a physical device.
func DialSimulator(addr string) Opener {
	return func() (Port, error) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial simulator %s: %w", addr, err)
		}
		return simPort{conn}, nil
	}
}
