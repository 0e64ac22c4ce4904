// internal/firmware/scanner.go
package firmware

import (
	"fmt"

	"jukebox/pkg/peripheral"
)

// Key matrix dimensions: 4 driven rows by 4 sampled columns, 16 keys.
const (
	KeyRows = 4
	KeyCols = 4
)

// KeyMatrix abstracts the key pad GPIO: the scanner drives one row line
// high at a time and samples the column lines.
type KeyMatrix interface {
	SetRow(row int, high bool)
	Col(col int) bool
}

// KnobPins abstracts the rotary encoder pins for a knob pad build.
type KnobPins interface {
	Read() peripheral.KnobPadState
}

// PedalPins abstracts the foot switch pins for a pedal pad build.
type PedalPins interface {
	Read() peripheral.PedalPadState
}

// Scanner reads the one input surface a firmware build carries and
// publishes a fresh level snapshot into the shared cell on every scan.
// Edge detection happens on the host, never here.
type Scanner struct {
	surface peripheral.Identifier

	matrix KeyMatrix
	knobs  KnobPins
	pedals PedalPins

	inputs *Cell[peripheral.InputSnapshot]
}

// NewScanner wires a scanner for the given surface. Exactly one of
// matrix, knobs or pedals must be non-nil, matching the surface.
func NewScanner(surface peripheral.Identifier, matrix KeyMatrix, knobs KnobPins, pedals PedalPins, inputs *Cell[peripheral.InputSnapshot]) (*Scanner, error) {
	s := &Scanner{surface: surface, matrix: matrix, knobs: knobs, pedals: pedals, inputs: inputs}

	switch surface {
	case peripheral.IdentKeyPad:
		if matrix == nil {
			return nil, fmt.Errorf("key pad build needs a key matrix")
		}
	case peripheral.IdentKnobPad:
		if knobs == nil {
			return nil, fmt.Errorf("knob pad build needs knob pins")
		}
	case peripheral.IdentPedalPad:
		if pedals == nil {
			return nil, fmt.Errorf("pedal pad build needs pedal pins")
		}
	default:
		return nil, fmt.Errorf("cannot scan surface %s", surface)
	}

	return s, nil
}

// Scan samples the surface once and publishes the snapshot. The lock
// hold window is the copy of the snapshot struct.
func (s *Scanner) Scan() {
	snapshot := s.read()
	s.inputs.WithMutLock(func(v *peripheral.InputSnapshot) {
		*v = snapshot
	})
}

func (s *Scanner) read() peripheral.InputSnapshot {
	var snap peripheral.InputSnapshot
	snap.Kind = s.surface

	switch s.surface {
	case peripheral.IdentKeyPad:
		for row := 0; row < KeyRows; row++ {
			s.matrix.SetRow(row, true)
			for col := 0; col < KeyCols; col++ {
				if s.matrix.Col(col) {
					snap.KeyPad.Keys[row*KeyCols+col] = peripheral.SwitchDown
				}
			}
			s.matrix.SetRow(row, false)
		}

	case peripheral.IdentKnobPad:
		snap.KnobPad = s.knobs.Read()

	case peripheral.IdentPedalPad:
		snap.PedalPad = s.pedals.Read()
	}

	return snap
}
