package peripheral

import "fmt"

// InputKey is the logical name of one input the host can react to. It is
// what profiles index reactions by; the mapping from snapshot bits to
// keys is fixed.
type InputKey int

const (
	UnknownKey InputKey = iota

	KeySwitch1
	KeySwitch2
	KeySwitch3
	KeySwitch4
	KeySwitch5
	KeySwitch6
	KeySwitch7
	KeySwitch8
	KeySwitch9
	KeySwitch10
	KeySwitch11
	KeySwitch12
	KeySwitch13
	KeySwitch14
	KeySwitch15
	KeySwitch16

	KnobLeftSwitch
	KnobLeftClockwise
	KnobLeftCounterClockwise
	KnobRightSwitch
	KnobRightClockwise
	KnobRightCounterClockwise

	PedalLeft
	PedalMiddle
	PedalRight
)

var inputKeyNames = map[InputKey]string{
	KeySwitch1:                "KeySwitch1",
	KeySwitch2:                "KeySwitch2",
	KeySwitch3:                "KeySwitch3",
	KeySwitch4:                "KeySwitch4",
	KeySwitch5:                "KeySwitch5",
	KeySwitch6:                "KeySwitch6",
	KeySwitch7:                "KeySwitch7",
	KeySwitch8:                "KeySwitch8",
	KeySwitch9:                "KeySwitch9",
	KeySwitch10:               "KeySwitch10",
	KeySwitch11:               "KeySwitch11",
	KeySwitch12:               "KeySwitch12",
	KeySwitch13:               "KeySwitch13",
	KeySwitch14:               "KeySwitch14",
	KeySwitch15:               "KeySwitch15",
	KeySwitch16:               "KeySwitch16",
	KnobLeftSwitch:            "KnobLeftSwitch",
	KnobLeftClockwise:         "KnobLeftClockwise",
	KnobLeftCounterClockwise:  "KnobLeftCounterClockwise",
	KnobRightSwitch:           "KnobRightSwitch",
	KnobRightClockwise:        "KnobRightClockwise",
	KnobRightCounterClockwise: "KnobRightCounterClockwise",
	PedalLeft:                 "PedalLeft",
	PedalMiddle:               "PedalMiddle",
	PedalRight:                "PedalRight",
}

var inputKeysByName = func() map[string]InputKey {
	m := make(map[string]InputKey, len(inputKeyNames))
	for k, n := range inputKeyNames {
		m[n] = k
	}
	return m
}()

func (k InputKey) String() string {
	if n, ok := inputKeyNames[k]; ok {
		return n
	}
	return "UnknownKey"
}

// MarshalText serializes the key by name so profiles stay readable on
// disk.
func (k InputKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a key name written by MarshalText.
func (k *InputKey) UnmarshalText(text []byte) error {
	key, ok := inputKeysByName[string(text)]
	if !ok {
		return fmt.Errorf("unknown input key %q", text)
	}
	*k = key
	return nil
}

// KeySet is a set of logical keys, as reported by one snapshot.
type KeySet map[InputKey]struct{}

// Add inserts k into the set.
func (s KeySet) Add(k InputKey) { s[k] = struct{}{} }

// Has reports whether k is in the set.
func (s KeySet) Has(k InputKey) bool {
	_, ok := s[k]
	return ok
}

// Clone returns an independent copy of the set.
func (s KeySet) Clone() KeySet {
	c := make(KeySet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold the same keys.
func (s KeySet) Equal(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

// Diff returns the keys present in next but not in s (pressed edges) and
// the keys present in s but not in next (released edges).
func (s KeySet) Diff(next KeySet) (pressed, released []InputKey) {
	for k := range next {
		if !s.Has(k) {
			pressed = append(pressed, k)
		}
	}
	for k := range s {
		if !next.Has(k) {
			released = append(released, k)
		}
	}
	return pressed, released
}
