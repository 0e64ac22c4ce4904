// internal/firmware/accessories.go
// Accessory drivers owned by the accessories context: the status LED,
// the per-key RGB strip and the screen lifecycle. All of them quiesce
// before the bootloader handoff.
package firmware

import "time"

// LEDPin abstracts the status LED line.
type LEDPin interface {
	Set(on bool)
}

// RGBColor is one LED color in the strip buffer.
type RGBColor struct {
	R, G, B uint8
}

// RGBStrip abstracts the addressable LED chain under the keys.
type RGBStrip interface {
	Write(colors []RGBColor)
}

const (
	ledBlinkTime = 500 * time.Millisecond

	rgbLen       = 12
	rgbFrameTime = 33 * time.Millisecond

	screenFrameTime = 33 * time.Millisecond
)

// LED blinks the status LED on a fixed cadence.
type LED struct {
	pin  LEDPin
	on   bool
	next time.Time
}

// NewLED returns the blinker driving pin.
func NewLED(pin LEDPin) *LED {
	return &LED{pin: pin}
}

// Tick advances the blink state if the blink interval elapsed.
func (l *LED) Tick(now time.Time) {
	if now.Before(l.next) {
		return
	}
	l.next = now.Add(ledBlinkTime)
	l.on = !l.on
	l.pin.Set(l.on)
}

// Clear turns the LED off.
func (l *LED) Clear() {
	l.on = false
	l.pin.Set(false)
}

// RGB cycles a hue wheel across the strip.
type RGB struct {
	strip      RGBStrip
	brightness uint8
	buffer     [rgbLen]RGBColor
	next       time.Time
}

// NewRGB returns the animator driving strip.
func NewRGB(strip RGBStrip) *RGB {
	return &RGB{strip: strip, brightness: 32}
}

// Tick renders one animation frame if the frame interval elapsed.
func (r *RGB) Tick(now time.Time) {
	if now.Before(r.next) {
		return
	}
	r.next = now.Add(rgbFrameTime)

	base := int(now.UnixMilli()/8) % 360
	for i := range r.buffer {
		cr, cg, cb := hsv2rgb(float64((base+10*(rgbLen-i))%360), 1.0, 1.0)
		r.buffer[i] = scale(RGBColor{cr, cg, cb}, r.brightness)
	}
	r.strip.Write(r.buffer[:])
}

// Clear blanks the whole strip.
func (r *RGB) Clear() {
	r.buffer = [rgbLen]RGBColor{}
	r.strip.Write(r.buffer[:])
}

func scale(c RGBColor, brightness uint8) RGBColor {
	f := uint16(brightness) + 1
	return RGBColor{
		R: uint8(uint16(c.R) * f >> 8),
		G: uint8(uint16(c.G) * f >> 8),
		B: uint8(uint16(c.B) * f >> 8),
	}
}

func hsv2rgb(hue, sat, val float64) (uint8, uint8, uint8) {
	c := val * sat
	x := c * (1.0 - abs(mod2(hue/60.0)-1.0))
	m := val - c

	var r, g, b float64
	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return uint8((r + m) * 255.0), uint8((g + m) * 255.0), uint8((b + m) * 255.0)
}

func mod2(v float64) float64 {
	for v >= 2.0 {
		v -= 2.0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Screen owns the display lifecycle. Rendering itself lives with the
// display driver; the firmware only needs the update/clear contract so
// the handoff path can blank it.
type Screen struct {
	next time.Time
}

// NewScreen returns the lifecycle handle.
func NewScreen() *Screen {
	return &Screen{}
}

// Tick advances the display refresh clock.
func (s *Screen) Tick(now time.Time) {
	if now.Before(s.next) {
		return
	}
	s.next = now.Add(screenFrameTime)
}

// Clear blanks the framebuffer before shutdown.
func (s *Screen) Clear() {}
