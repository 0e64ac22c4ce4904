// JukeBox desktop companion: discovers the device over serial, links
// with it, polls its inputs and dispatches the configured reactions.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"jukebox/internal/cli/ui"
	"jukebox/internal/config"
	"jukebox/internal/host"
)

var (
	headless   = flag.Bool("headless", false, "run without the status UI, logging events to stderr")
	configPath = flag.String("config", "", "profile config file (default: user config dir)")
	simAddr    = flag.String("sim", "", "connect to a jukebox-sim instance at this address instead of USB discovery")
	verbose    = flag.Bool("verbose", false, "log worker and firmware detail to stderr")
)

func main() {
	flag.Parse()

	// the package logger carries the workers' debug chatter; without
	// -verbose it stays quiet (and cannot garble the status UI)
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path, err := config.Path(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	store, err := config.NewStore(cfg)
	if err != nil {
		return err
	}
	log.Printf("loaded %d profile(s) from %s, active %q", len(cfg.Profiles), path, store.CurrentProfile())

	open := host.Opener(host.OpenDevice)
	if *simAddr != "" {
		open = host.DialSimulator(*simAddr)
	}

	supervisor := host.NewSupervisor(open, store)
	supervisor.Start()

	if *headless {
		return runHeadless(supervisor)
	}
	return runUI(supervisor)
}

// runHeadless logs events until SIGINT/SIGTERM. Event lines are the
// mode's output, so they bypass the verbosity gate on the package
// logger.
func runHeadless(s *host.Supervisor) error {
	events := log.New(os.Stderr, "", log.LstdFlags)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			events.Printf("shutting down")
			s.Stop()
			return nil

		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case host.EventConnected:
				events.Printf("connected: %s surface, firmware %s, uid %s",
					ev.Link.Surface, ev.Link.Version, ev.Link.UID)
			case host.EventDisconnected:
				events.Printf("disconnected")
			case host.EventLostConnection:
				events.Printf("lost connection, retrying")
			}
		}
	}
}

// runUI drives the bubbletea status screen; the supervisor stops when
// the program exits.
func runUI(s *host.Supervisor) error {
	program := tea.NewProgram(ui.New(s.Events(), s.Send))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		program.Quit()
	}()

	_, err := program.Run()
	s.Stop()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
