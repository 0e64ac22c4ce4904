// JukeBox monitor tool: low-level probing of an attached device without
// the companion stack. Lists the USB identity, runs a link test and
// dumps raw input reports.
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/gousb"

	"jukebox/internal/host"
	"jukebox/pkg/peripheral"
	"jukebox/pkg/protocol"
)

var (
	list    = flag.Bool("list", false, "list attached JukeBox USB devices and exit")
	doProbe = flag.Bool("probe", false, "open the device, greet and poll inputs")
	polls   = flag.Int("polls", 5, "number of input polls to run in the probe")
	update  = flag.Bool("update", false, "end the probe with Update instead of Disconnect (reboots the device!)")
	simAddr = flag.String("sim", "", "probe a jukebox-sim instance at this address instead of USB")
	raw     = flag.Bool("raw", false, "hex dump every response frame")
)

func main() {
	flag.Parse()

	switch {
	case *list:
		if err := listDevices(); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}

	case *doProbe, *update:
		// -update is the probe's final phase, so it implies the probe
		if err := probe(); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Println("nothing to do: pass -list, -probe or -update")
		flag.Usage()
		os.Exit(2)
	}
}

// listDevices enumerates at the USB descriptor level.
func listDevices() error {
	ctx := gousb.NewContext()
	defer ctx.Close()

	fmt.Printf("Scanning for JukeBox devices (VID 0x%04x)...\n", peripheral.VendorID)

	found := 0
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if uint16(desc.Vendor) != peripheral.VendorID {
			return false
		}
		surface := peripheral.SurfaceForProduct(uint16(desc.Product))
		switch uint16(desc.Product) {
		case peripheral.ProductIDUnspecified, peripheral.ProductIDKeyPad,
			peripheral.ProductIDKnobPad, peripheral.ProductIDPedalPad:
			found++
			fmt.Printf("  bus %d addr %d: %s:%s (%s surface)\n",
				desc.Bus, desc.Address, desc.Vendor, desc.Product, surface)
		}
		return false // enumerate only, never claim
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return fmt.Errorf("usb enumeration: %w", err)
	}

	if found == 0 {
		fmt.Println("  none found")
	}
	return nil
}

// probe opens the serial endpoint and runs a manual session: greet, a
// few polls, then Disconnect (or Update with -update).
func probe() error {
	open := host.Opener(host.OpenDevice)
	if *simAddr != "" {
		open = host.DialSimulator(*simAddr)
	}

	fmt.Println("Phase 1: Opening device...")
	port, err := open()
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Println("Phase 2: Greeting...")
	rsp, err := exchange(port, protocol.GreetingFrame())
	if err != nil {
		return fmt.Errorf("greeting: %w", err)
	}
	ident, version, uid, err := protocol.ParseLinkResponse(rsp)
	if err != nil {
		return fmt.Errorf("link response: %w", err)
	}
	surface := peripheral.Identifier(ident)
	fmt.Printf("  linked: %s surface, firmware %s, uid %s\n", surface, version, uid)

	fmt.Printf("Phase 3: Polling inputs (%d rounds)...\n", *polls)
	for i := 0; i < *polls; i++ {
		rsp, err := exchange(port, protocol.GetInputKeysFrame())
		if err != nil {
			return fmt.Errorf("poll %d: %w", i+1, err)
		}
		report, err := protocol.ParseInputResponse(rsp)
		if err != nil {
			return fmt.Errorf("poll %d: %w", i+1, err)
		}
		snapshot, err := peripheral.Decode(surface, report)
		if err != nil {
			return fmt.Errorf("poll %d: %w", i+1, err)
		}
		fmt.Printf("  % x  keys=%v\n", report, snapshot.Keys())
		time.Sleep(host.PollPeriod)
	}

	final := protocol.DisconnectFrame()
	what := "Disconnect"
	if *update {
		final = protocol.UpdateFrame()
		what = "Update"
	}
	fmt.Printf("Phase 4: %s...\n", what)
	rsp, err = exchange(port, final)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !bytes.Equal(rsp, protocol.DisconnectedResponse()) {
		return fmt.Errorf("%s answered % x, want DISCONNECTED", what, rsp)
	}

	fmt.Println("✅ done")
	return nil
}

// exchange writes one command frame and reads one framed response.
func exchange(port host.Port, frame []byte) ([]byte, error) {
	if _, err := port.Write(frame); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(host.ResponseTimeout)
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("response timeout")
		}
		n, err := port.Read(one)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			continue
		}
		buf = append(buf, one[0])
		if protocol.Terminated(buf) {
			break
		}
	}

	if *raw {
		fmt.Print(hex.Dump(buf))
	}
	return buf, nil
}
