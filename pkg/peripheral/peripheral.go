// Package peripheral models the input surface of a JukeBox device: the
// key pad, knob pad and pedal pad, the level snapshots they report, and
// the translation from wire bytes to logical input keys.
//
// A device carries exactly one surface, fixed at firmware build time and
// advertised at link. Snapshots are level state, not edges; the host
// derives press/release edges by diffing consecutive snapshots.
package peripheral

import (
	"fmt"
)

// Identifier names the input surface a device carries. The byte values
// ride the wire in the link response and at the head of every input
// report, and are disjoint from every command and response header byte.
type Identifier byte

const (
	IdentUnknown  Identifier = 0x00
	IdentKeyPad   Identifier = 0x80
	IdentKnobPad  Identifier = 0x82
	IdentPedalPad Identifier = 0x85
)

func (id Identifier) String() string {
	switch id {
	case IdentKeyPad:
		return "KeyPad"
	case IdentKnobPad:
		return "KnobPad"
	case IdentPedalPad:
		return "PedalPad"
	default:
		return "Unknown"
	}
}

// USB identity. The vendor ID is fixed; the product ID depends on the
// surface the firmware was built for.
const (
	VendorID uint16 = 0x1209

	ProductIDUnspecified uint16 = 0xF209
	ProductIDKeyPad      uint16 = 0xF20A
	ProductIDKnobPad     uint16 = 0xF20B
	ProductIDPedalPad    uint16 = 0xF20C
)

// ProductID returns the USB product ID a firmware build for the given
// surface advertises.
func ProductID(id Identifier) uint16 {
	switch id {
	case IdentKeyPad:
		return ProductIDKeyPad
	case IdentKnobPad:
		return ProductIDKnobPad
	case IdentPedalPad:
		return ProductIDPedalPad
	default:
		return ProductIDUnspecified
	}
}

// SurfaceForProduct maps a USB product ID back to the surface identifier.
func SurfaceForProduct(pid uint16) Identifier {
	switch pid {
	case ProductIDKeyPad:
		return IdentKeyPad
	case ProductIDKnobPad:
		return IdentKnobPad
	case ProductIDPedalPad:
		return IdentPedalPad
	default:
		return IdentUnknown
	}
}

// Switch is the level state of one physical switch.
type Switch uint8

const (
	SwitchUp Switch = iota
	SwitchDown
)

// encode contributes the switch to a packed byte at bit position pos.
func (s Switch) encode(pos uint) byte {
	if s == SwitchDown {
		return 1 << pos
	}
	return 0
}

func switchAt(w byte, pos uint) Switch {
	if w&(1<<pos) != 0 {
		return SwitchDown
	}
	return SwitchUp
}

// KnobTurn is the rotation state of one encoder since the last scan.
type KnobTurn uint8

const (
	TurnNone KnobTurn = iota
	TurnClockwise
	TurnCounterClockwise
)

// encode contributes the two-bit rotation code at bit position pos:
// 01 clockwise, 10 counter-clockwise, 00 none.
func (t KnobTurn) encode(pos uint) byte {
	switch t {
	case TurnClockwise:
		return 0b01 << pos
	case TurnCounterClockwise:
		return 0b10 << pos
	default:
		return 0
	}
}

func turnAt(w byte, pos uint) KnobTurn {
	switch (w >> pos) & 0b11 {
	case 0b01:
		return TurnClockwise
	case 0b10:
		return TurnCounterClockwise
	default:
		return TurnNone
	}
}

// KeyPadKeys is the number of switches on the key pad surface.
const KeyPadKeys = 16

// KeyPadState is the level state of the 16 key switches, Keys[0] being
// key 1.
type KeyPadState struct {
	Keys [KeyPadKeys]Switch
}

// KnobPadState is the level state of the two rotary encoders.
type KnobPadState struct {
	LeftSwitch  Switch
	LeftTurn    KnobTurn
	RightSwitch Switch
	RightTurn   KnobTurn
}

// PedalPadState is the level state of the three foot switches.
type PedalPadState struct {
	Left   Switch
	Middle Switch
	Right  Switch
}

// InputSnapshot is one level reading of a device's surface. It is a
// closed tagged variant: Kind selects which arm is meaningful, and the
// struct is trivially copyable so it can cross the device's shared cell
// with a short bitwise copy.
type InputSnapshot struct {
	Kind Identifier

	KeyPad   KeyPadState
	KnobPad  KnobPadState
	PedalPad PedalPadState
}

// Encode packs the snapshot into its wire report. Key pad reports are
// three bytes (identifier, keys 9-16, keys 1-8); knob and pedal reports
// are two bytes (identifier, packed state).
func (s InputSnapshot) Encode() []byte {
	switch s.Kind {
	case IdentKeyPad:
		var high, low byte
		for i := 0; i < 8; i++ {
			low |= s.KeyPad.Keys[i].encode(uint(i))
			high |= s.KeyPad.Keys[8+i].encode(uint(i))
		}
		return []byte{byte(IdentKeyPad), high, low}

	case IdentKnobPad:
		w := s.KnobPad.LeftSwitch.encode(5) |
			s.KnobPad.LeftTurn.encode(3) |
			s.KnobPad.RightSwitch.encode(2) |
			s.KnobPad.RightTurn.encode(0)
		return []byte{byte(IdentKnobPad), w}

	case IdentPedalPad:
		w := s.PedalPad.Left.encode(2) |
			s.PedalPad.Middle.encode(1) |
			s.PedalPad.Right.encode(0)
		return []byte{byte(IdentPedalPad), w}

	default:
		return []byte{byte(IdentUnknown)}
	}
}

// reportLen returns the wire length of a report for the surface.
func reportLen(id Identifier) int {
	if id == IdentKeyPad {
		return 3
	}
	return 2
}

// Decode rebuilds a snapshot from a wire report, checked against the
// surface identifier advertised at link time. It fails deterministically
// on an identifier mismatch or a wrong-length report.
func Decode(ident Identifier, report []byte) (InputSnapshot, error) {
	var s InputSnapshot

	switch ident {
	case IdentKeyPad, IdentKnobPad, IdentPedalPad:
	default:
		return s, fmt.Errorf("cannot decode report for surface %s", ident)
	}
	if len(report) != reportLen(ident) {
		return s, fmt.Errorf("%s report is %d bytes, want %d", ident, len(report), reportLen(ident))
	}
	if Identifier(report[0]) != ident {
		return s, fmt.Errorf("report identifier 0x%02x does not match surface %s", report[0], ident)
	}

	s.Kind = ident
	switch ident {
	case IdentKeyPad:
		high, low := report[1], report[2]
		for i := 0; i < 8; i++ {
			s.KeyPad.Keys[i] = switchAt(low, uint(i))
			s.KeyPad.Keys[8+i] = switchAt(high, uint(i))
		}

	case IdentKnobPad:
		w := report[1]
		s.KnobPad.LeftSwitch = switchAt(w, 5)
		s.KnobPad.LeftTurn = turnAt(w, 3)
		s.KnobPad.RightSwitch = switchAt(w, 2)
		s.KnobPad.RightTurn = turnAt(w, 0)

	case IdentPedalPad:
		w := report[1]
		s.PedalPad.Left = switchAt(w, 2)
		s.PedalPad.Middle = switchAt(w, 1)
		s.PedalPad.Right = switchAt(w, 0)
	}

	return s, nil
}

// Keys translates the snapshot into the set of logical keys that are
// currently "on". The translation is total and deterministic: every down
// switch and every non-none rotation contributes exactly one key.
func (s InputSnapshot) Keys() KeySet {
	keys := KeySet{}

	switch s.Kind {
	case IdentKeyPad:
		for i, sw := range s.KeyPad.Keys {
			if sw == SwitchDown {
				keys.Add(KeySwitch1 + InputKey(i))
			}
		}

	case IdentKnobPad:
		if s.KnobPad.LeftSwitch == SwitchDown {
			keys.Add(KnobLeftSwitch)
		}
		switch s.KnobPad.LeftTurn {
		case TurnClockwise:
			keys.Add(KnobLeftClockwise)
		case TurnCounterClockwise:
			keys.Add(KnobLeftCounterClockwise)
		}
		if s.KnobPad.RightSwitch == SwitchDown {
			keys.Add(KnobRightSwitch)
		}
		switch s.KnobPad.RightTurn {
		case TurnClockwise:
			keys.Add(KnobRightClockwise)
		case TurnCounterClockwise:
			keys.Add(KnobRightCounterClockwise)
		}

	case IdentPedalPad:
		if s.PedalPad.Left == SwitchDown {
			keys.Add(PedalLeft)
		}
		if s.PedalPad.Middle == SwitchDown {
			keys.Add(PedalMiddle)
		}
		if s.PedalPad.Right == SwitchDown {
			keys.Add(PedalRight)
		}
	}

	return keys
}
