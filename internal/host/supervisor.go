// internal/host/supervisor.go
package host

import (
	"sync"
	"sync/atomic"
)

// Channel capacities. Commands are rare; events burst at the poll rate.
const (
	commandQueue = 8
	eventQueue   = 64
)

// Supervisor owns the worker lifecycle: it holds the shared shutdown
// flag, the channels between UI, serial worker and reaction worker, and
// the joins. It never touches the wire itself.
type Supervisor struct {
	shutdown atomic.Bool

	commands     chan Command
	serialEvents chan Event
	uiEvents     chan Event

	serial   *SerialWorker
	reaction *ReactionWorker

	wg sync.WaitGroup
}

// NewSupervisor assembles the workers around an opener and the profile
// source.
func NewSupervisor(open Opener, profiles ProfileSource) *Supervisor {
	s := &Supervisor{
		commands:     make(chan Command, commandQueue),
		serialEvents: make(chan Event, eventQueue),
		uiEvents:     make(chan Event, eventQueue),
	}
	s.serial = NewSerialWorker(open, &s.shutdown, s.commands, s.serialEvents)
	s.reaction = NewReactionWorker(s.serialEvents, s.uiEvents, profiles)
	return s
}

// SerialWorker exposes the worker for timing overrides before Start.
func (s *Supervisor) SerialWorker() *SerialWorker { return s.serial }

// Events is the forwarded events channel the UI renders from. It closes
// after Stop completes.
func (s *Supervisor) Events() <-chan Event { return s.uiEvents }

// Send queues a UI command for the serial worker. It never blocks; a
// full queue drops the request and reports false.
func (s *Supervisor) Send(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}

// Start launches both workers.
func (s *Supervisor) Start() {
	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.serial.Run()
		// the serial worker is the only event producer; closing the
		// channel lets the reaction worker drain and exit
		close(s.serialEvents)
	}()

	go func() {
		defer s.wg.Done()
		s.reaction.Run()
	}()
}

// Stop raises the shutdown flag, nudges the serial worker to unlink
// cleanly if a session is live, joins both workers and closes the UI
// channel.
func (s *Supervisor) Stop() {
	s.shutdown.Store(true)
	s.Send(CommandDisconnectDevice)
	s.wg.Wait()
	close(s.uiEvents)
}
