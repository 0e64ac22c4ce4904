// internal/host/reaction.go
package host

import (
	"log"

	"jukebox/pkg/peripheral"
)

// ProfileSource hands the reaction worker the active profile. The
// returned map is a snapshot: the worker never holds the source's lock
// across a reaction invocation.
type ProfileSource interface {
	ActiveReactions() map[peripheral.InputKey]Reaction
}

// ReactionWorker consumes serial events, derives press/release edges
// from consecutive key snapshots, and runs the configured reactions.
// Every event is offered to the UI channel before processing; an event
// that finds that channel full is not forwarded.
type ReactionWorker struct {
	events   <-chan Event
	forward  chan<- Event
	profiles ProfileSource

	previous peripheral.KeySet
}

// NewReactionWorker wires the worker between the serial events channel
// and the UI forward channel.
func NewReactionWorker(events <-chan Event, forward chan<- Event, profiles ProfileSource) *ReactionWorker {
	return &ReactionWorker{
		events:   events,
		forward:  forward,
		profiles: profiles,
		previous: peripheral.KeySet{},
	}
}

// Run processes events until the serial events channel closes.
func (w *ReactionWorker) Run() {
	for ev := range w.events {
		// forward first; the UI renders state even for events that
		// trigger no reaction. The UI only needs the latest state, so a
		// full channel drops rather than stalls the input path.
		select {
		case w.forward <- ev:
		default:
		}

		if ev.Kind != EventInputKeys {
			continue
		}
		w.handleKeys(ev.Keys)
	}
}

func (w *ReactionWorker) handleKeys(keys peripheral.KeySet) {
	pressed, released := w.previous.Diff(keys)

	var reactions map[peripheral.InputKey]Reaction
	if len(pressed) > 0 || len(released) > 0 {
		reactions = w.profiles.ActiveReactions()
	}

	for _, key := range pressed {
		if r, ok := reactions[key]; ok {
			runReaction(r, key, true)
		}
	}
	for _, key := range released {
		if r, ok := reactions[key]; ok {
			runReaction(r, key, false)
		}
	}

	w.previous = keys
}

// runReaction invokes one reaction behind a panic barrier: a broken
// reaction must never take the worker down.
func runReaction(r Reaction, key peripheral.InputKey, pressed bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("reaction for %s panicked: %v", key, p)
		}
	}()

	var err error
	if pressed {
		err = r.OnPress(key)
	} else {
		err = r.OnRelease(key)
	}
	if err != nil {
		log.Printf("reaction for %s failed: %v", key, err)
	}
}
