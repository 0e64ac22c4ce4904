package host

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jukebox/pkg/peripheral"
)

// recorder counts press/release edges per key.
type recorder struct {
	mu       sync.Mutex
	pressed  []peripheral.InputKey
	released []peripheral.InputKey
}

func (r *recorder) OnPress(key peripheral.InputKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pressed = append(r.pressed, key)
	return nil
}

func (r *recorder) OnRelease(key peripheral.InputKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, key)
	return nil
}

func (r *recorder) edges() (pressed, released []peripheral.InputKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peripheral.InputKey(nil), r.pressed...),
		append([]peripheral.InputKey(nil), r.released...)
}

// staticProfiles binds every key to the same reaction.
type staticProfiles struct {
	reaction Reaction
}

func (p staticProfiles) ActiveReactions() map[peripheral.InputKey]Reaction {
	m := make(map[peripheral.InputKey]Reaction)
	for key := peripheral.KeySwitch1; key <= peripheral.PedalRight; key++ {
		m[key] = p.reaction
	}
	return m
}

func keySet(keys ...peripheral.InputKey) peripheral.KeySet {
	s := peripheral.KeySet{}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// runEvents pushes events through a reaction worker and waits for it to
// finish.
func runEvents(t *testing.T, profiles ProfileSource, events ...Event) []Event {
	t.Helper()

	in := make(chan Event, len(events))
	forward := make(chan Event, len(events)+8)
	worker := NewReactionWorker(in, forward, profiles)

	done := make(chan struct{})
	go func() {
		worker.Run()
		close(done)
	}()

	for _, ev := range events {
		in <- ev
	}
	close(in)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaction worker did not finish")
	}
	close(forward)

	var forwarded []Event
	for ev := range forward {
		forwarded = append(forwarded, ev)
	}
	return forwarded
}

func TestEdgeDetection(t *testing.T) {
	rec := &recorder{}

	runEvents(t, staticProfiles{rec},
		Event{Kind: EventInputKeys, Keys: keySet(peripheral.KeySwitch5)},
		Event{Kind: EventInputKeys, Keys: keySet(peripheral.KeySwitch5, peripheral.KeySwitch2)},
		Event{Kind: EventInputKeys, Keys: keySet(peripheral.KeySwitch2)},
		Event{Kind: EventInputKeys, Keys: keySet()},
	)

	pressed, released := rec.edges()
	assert.ElementsMatch(t, []peripheral.InputKey{peripheral.KeySwitch5, peripheral.KeySwitch2}, pressed)
	assert.ElementsMatch(t, []peripheral.InputKey{peripheral.KeySwitch5, peripheral.KeySwitch2}, released)
}

func TestNoDuplicateEdgesOnLevelHold(t *testing.T) {
	rec := &recorder{}

	// the same key held across many polls fires exactly one press
	events := make([]Event, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, Event{Kind: EventInputKeys, Keys: keySet(peripheral.PedalMiddle)})
	}
	runEvents(t, staticProfiles{rec}, events...)

	pressed, released := rec.edges()
	require.Len(t, pressed, 1)
	assert.Equal(t, peripheral.PedalMiddle, pressed[0])
	assert.Empty(t, released)
}

func TestEdgeSetProperty(t *testing.T) {
	// for a random-ish snapshot sequence, the multiset of emitted edges
	// must equal the pairwise set differences
	sequence := []peripheral.KeySet{
		keySet(),
		keySet(peripheral.KeySwitch1, peripheral.KeySwitch2),
		keySet(peripheral.KeySwitch2),
		keySet(peripheral.KeySwitch2, peripheral.KnobLeftClockwise, peripheral.KnobRightSwitch),
		keySet(peripheral.KnobRightSwitch),
		keySet(),
	}

	var wantPressed, wantReleased []peripheral.InputKey
	prev := keySet()
	for _, s := range sequence {
		p, r := prev.Diff(s)
		wantPressed = append(wantPressed, p...)
		wantReleased = append(wantReleased, r...)
		prev = s
	}

	rec := &recorder{}
	events := make([]Event, len(sequence))
	for i, s := range sequence {
		events[i] = Event{Kind: EventInputKeys, Keys: s}
	}
	runEvents(t, staticProfiles{rec}, events...)

	pressed, released := rec.edges()
	assert.ElementsMatch(t, wantPressed, pressed)
	assert.ElementsMatch(t, wantReleased, released)
}

type panicReaction struct{}

func (panicReaction) OnPress(peripheral.InputKey) error   { panic("bad reaction") }
func (panicReaction) OnRelease(peripheral.InputKey) error { panic("bad reaction") }

func TestReactionPanicIsolated(t *testing.T) {
	// a panicking reaction must not end the worker; later events still
	// process
	forwarded := runEvents(t, staticProfiles{panicReaction{}},
		Event{Kind: EventInputKeys, Keys: keySet(peripheral.KeySwitch1)},
		Event{Kind: EventInputKeys, Keys: keySet()},
		Event{Kind: EventDisconnected},
	)

	require.Len(t, forwarded, 3)
	assert.Equal(t, EventDisconnected, forwarded[2].Kind)
}

func TestAllEventsForwarded(t *testing.T) {
	forwarded := runEvents(t, staticProfiles{&recorder{}},
		Event{Kind: EventConnected, Link: LinkInfo{Surface: peripheral.IdentKeyPad}},
		Event{Kind: EventInputKeys, Keys: keySet(peripheral.KeySwitch3)},
		Event{Kind: EventLostConnection},
	)

	require.Len(t, forwarded, 3)
	assert.Equal(t, EventConnected, forwarded[0].Kind)
	assert.Equal(t, EventInputKeys, forwarded[1].Kind)
	assert.Equal(t, EventLostConnection, forwarded[2].Kind)
}
