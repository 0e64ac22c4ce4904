package peripheral

import (
	"bytes"
	"testing"
)

func TestKeyPadEncoding(t *testing.T) {
	// key5 down: low byte bit 4, high byte clear.
	var s InputSnapshot
	s.Kind = IdentKeyPad
	s.KeyPad.Keys[4] = SwitchDown

	want := []byte{0x80, 0x00, 0x10}
	if got := s.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}

	// key16 down lands in bit 7 of the high byte, key9 in bit 0.
	var hi InputSnapshot
	hi.Kind = IdentKeyPad
	hi.KeyPad.Keys[15] = SwitchDown
	hi.KeyPad.Keys[8] = SwitchDown
	if got := hi.Encode(); !bytes.Equal(got, []byte{0x80, 0x81, 0x00}) {
		t.Fatalf("Encode() = %x, want 808100", got)
	}
}

func TestKnobEncoding(t *testing.T) {
	// left switch down, right knob clockwise: 0b0010_0001.
	var s InputSnapshot
	s.Kind = IdentKnobPad
	s.KnobPad.LeftSwitch = SwitchDown
	s.KnobPad.RightTurn = TurnClockwise

	got := s.Encode()
	if !bytes.Equal(got, []byte{0x82, 0x21}) {
		t.Fatalf("Encode() = %x, want 8221", got)
	}

	dec, err := Decode(IdentKnobPad, got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	keys := dec.Keys()
	want := KeySet{KnobLeftSwitch: {}, KnobRightClockwise: {}}
	if !keys.Equal(want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}

func TestPedalEncoding(t *testing.T) {
	var s InputSnapshot
	s.Kind = IdentPedalPad
	s.PedalPad.Left = SwitchDown
	s.PedalPad.Right = SwitchDown

	got := s.Encode()
	if !bytes.Equal(got, []byte{0x85, 0b101}) {
		t.Fatalf("Encode() = %x, want 8505", got)
	}

	dec, err := Decode(IdentPedalPad, got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !dec.Keys().Equal(KeySet{PedalLeft: {}, PedalRight: {}}) {
		t.Errorf("Keys() = %v", dec.Keys())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snapshots := []InputSnapshot{
		{Kind: IdentKeyPad},
		func() InputSnapshot {
			var s InputSnapshot
			s.Kind = IdentKeyPad
			for i := 0; i < KeyPadKeys; i += 3 {
				s.KeyPad.Keys[i] = SwitchDown
			}
			return s
		}(),
		{Kind: IdentKnobPad},
		{Kind: IdentKnobPad, KnobPad: KnobPadState{
			LeftSwitch:  SwitchDown,
			LeftTurn:    TurnCounterClockwise,
			RightSwitch: SwitchDown,
			RightTurn:   TurnClockwise,
		}},
		{Kind: IdentPedalPad},
		{Kind: IdentPedalPad, PedalPad: PedalPadState{
			Left:   SwitchDown,
			Middle: SwitchDown,
			Right:  SwitchDown,
		}},
	}

	for _, s := range snapshots {
		dec, err := Decode(s.Kind, s.Encode())
		if err != nil {
			t.Fatalf("Decode(%s): %v", s.Kind, err)
		}
		if dec != s {
			t.Errorf("round trip changed snapshot: %+v -> %+v", s, dec)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []struct {
		name   string
		ident  Identifier
		report []byte
	}{
		{"identifier mismatch", IdentKeyPad, []byte{0x82, 0x00, 0x00}},
		{"short key pad report", IdentKeyPad, []byte{0x80, 0x00}},
		{"long knob report", IdentKnobPad, []byte{0x82, 0x00, 0x00}},
		{"unknown surface", IdentUnknown, []byte{0x00, 0x00}},
		{"empty report", IdentPedalPad, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.ident, tc.report); err == nil {
				t.Errorf("Decode(%s, %x) accepted", tc.ident, tc.report)
			}
		})
	}
}

func TestProductIDs(t *testing.T) {
	pairs := map[Identifier]uint16{
		IdentKeyPad:   0xF20A,
		IdentKnobPad:  0xF20B,
		IdentPedalPad: 0xF20C,
		IdentUnknown:  0xF209,
	}
	for id, pid := range pairs {
		if got := ProductID(id); got != pid {
			t.Errorf("ProductID(%s) = %04x, want %04x", id, got, pid)
		}
	}
	for _, pid := range []uint16{0xF20A, 0xF20B, 0xF20C} {
		if ProductID(SurfaceForProduct(pid)) != pid {
			t.Errorf("SurfaceForProduct(%04x) does not round trip", pid)
		}
	}
	if SurfaceForProduct(0x1234) != IdentUnknown {
		t.Error("foreign product ID must map to IdentUnknown")
	}
}

func TestInputKeyText(t *testing.T) {
	for k := range inputKeyNames {
		text, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", k, err)
		}
		var back InputKey
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if back != k {
			t.Errorf("%v round tripped to %v", k, back)
		}
	}

	var k InputKey
	if err := k.UnmarshalText([]byte("NoSuchKey")); err == nil {
		t.Error("unknown key name accepted")
	}
}

func TestKeySetDiff(t *testing.T) {
	prev := KeySet{KeySwitch1: {}, KeySwitch2: {}}
	next := KeySet{KeySwitch2: {}, KeySwitch3: {}}

	pressed, released := prev.Diff(next)
	if len(pressed) != 1 || pressed[0] != KeySwitch3 {
		t.Errorf("pressed = %v, want [KeySwitch3]", pressed)
	}
	if len(released) != 1 || released[0] != KeySwitch1 {
		t.Errorf("released = %v, want [KeySwitch1]", released)
	}
}
