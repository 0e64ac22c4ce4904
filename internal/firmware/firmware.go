// internal/firmware/firmware.go
// Assembly of the device model: two execution contexts sharing only the
// snapshot cell and the update trigger, mirroring the two cores of the
// real hardware. Context A owns the serial endpoint and the engine;
// context B owns the input pins and the accessories.
package firmware

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"jukebox/pkg/peripheral"
)

// ScanPeriod is the input scan cadence.
const ScanPeriod = 5 * time.Millisecond

// commPoll is the communication context wakeup cadence, standing in for
// the USB poll event rate.
const commPoll = time.Millisecond

// settleSpins approximates the short wait for accessory I/O to finish
// before the bootloader handoff.
const settleSpins = 100

// Config describes one firmware build.
type Config struct {
	Surface peripheral.Identifier
	Version string
	UID     string

	// Exactly one of these must be set, matching Surface.
	Matrix KeyMatrix
	Knobs  KnobPins
	Pedals PedalPins

	// Optional accessories.
	LED LEDPin
	RGB RGBStrip

	// Bootloader is the platform "reboot to bootloader" routine, called
	// once after quiescence when an update was requested. One-way: the
	// firmware stops after calling it.
	Bootloader func()
}

// Firmware runs the device model.
type Firmware struct {
	cfg Config

	inputs  *Cell[peripheral.InputSnapshot]
	trigger atomic.Bool

	engine  *Engine
	scanner *Scanner

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates the build configuration and assembles the model.
func New(cfg Config) (*Firmware, error) {
	if cfg.Version == "" || cfg.UID == "" {
		return nil, fmt.Errorf("firmware needs a version and a uid")
	}

	f := &Firmware{
		cfg:    cfg,
		inputs: NewCell(peripheral.InputSnapshot{Kind: cfg.Surface}),
		stop:   make(chan struct{}),
	}

	scanner, err := NewScanner(cfg.Surface, cfg.Matrix, cfg.Knobs, cfg.Pedals, f.inputs)
	if err != nil {
		return nil, err
	}
	f.scanner = scanner
	f.engine = NewEngine(cfg.Surface, cfg.Version, cfg.UID, f.inputs, &f.trigger)

	return f, nil
}

// Engine exposes the serial engine for tests and the simulator.
func (f *Firmware) Engine() *Engine { return f.engine }

// Inputs exposes the shared snapshot cell.
func (f *Firmware) Inputs() *Cell[peripheral.InputSnapshot] { return f.inputs }

// UpdateArmed reports whether the update trigger is set.
func (f *Firmware) UpdateArmed() bool { return f.trigger.Load() }

// Run starts both execution contexts against the serial endpoint and
// returns. The model runs until Stop is called or an update handoff
// fires.
func (f *Firmware) Run(port io.ReadWriter) {
	f.wg.Add(2)
	go f.commContext(port)
	go f.accessoryContext()
}

// Stop ends both contexts and waits for them.
func (f *Firmware) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.wg.Wait()
}

// commContext is context A: the USB poll loop feeding the serial engine.
// It never touches the input pins or the accessories.
func (f *Firmware) commContext(port io.ReadWriter) {
	defer f.wg.Done()

	tick := time.NewTicker(commPoll)
	defer tick.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-tick.C:
			f.engine.Update(port)
		}
	}
}

// accessoryContext is context B: input scanning, accessory animation and
// the update-trigger watch. It never touches the USB endpoint.
func (f *Firmware) accessoryContext() {
	defer f.wg.Done()

	var led *LED
	if f.cfg.LED != nil {
		led = NewLED(f.cfg.LED)
	}
	var rgb *RGB
	if f.cfg.RGB != nil {
		rgb = NewRGB(f.cfg.RGB)
	}
	screen := NewScreen()

	tick := time.NewTicker(ScanPeriod)
	defer tick.Stop()

	for {
		select {
		case <-f.stop:
			return
		case now := <-tick.C:
			f.scanner.Scan()

			if f.trigger.Load() {
				f.quiesce(screen, led, rgb)
				if f.cfg.Bootloader != nil {
					f.cfg.Bootloader()
				}
				f.stopOnce.Do(func() { close(f.stop) })
				return
			}

			if led != nil {
				led.Tick(now)
			}
			if rgb != nil {
				rgb.Tick(now)
			}
			screen.Tick(now)
		}
	}
}

func (f *Firmware) quiesce(screen *Screen, led *LED, rgb *RGB) {
	log.Printf("firmware: update trigger observed, quiescing for handoff")

	screen.Clear()
	if rgb != nil {
		rgb.Clear()
	}
	if led != nil {
		led.Clear()
	}

	// let pending accessory I/O drain
	for i := 0; i < settleSpins; i++ {
		time.Sleep(time.Microsecond)
	}
}
