// internal/host/reactions.go
// Built-in reactions a profile can bind to a logical key.
package host

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"

	"jukebox/pkg/peripheral"
)

// Reaction is what a profile binds to a logical key. Implementations
// must tolerate being called from the reaction worker's goroutine and
// should return quickly; long work belongs in a spawned process.
type Reaction interface {
	OnPress(key peripheral.InputKey) error
	OnRelease(key peripheral.InputKey) error
}

// LogReaction just logs the edge. The default binding, and handy when
// wiring up a new pad.
type LogReaction struct{}

func (LogReaction) OnPress(key peripheral.InputKey) error {
	log.Printf("pressed %s", key)
	return nil
}

func (LogReaction) OnRelease(key peripheral.InputKey) error {
	log.Printf("released %s", key)
	return nil
}

// CopyTextReaction puts a fixed text on the system clipboard on press.
type CopyTextReaction struct {
	Text string
}

func (r CopyTextReaction) OnPress(peripheral.InputKey) error {
	if err := clipboard.WriteAll(r.Text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

func (r CopyTextReaction) OnRelease(peripheral.InputKey) error { return nil }

// LaunchReaction starts a program on press and does not wait for it.
type LaunchReaction struct {
	Command string
	Args    []string
}

func (r LaunchReaction) OnPress(peripheral.InputKey) error {
	cmd := exec.Command(r.Command, r.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", r.Command, err)
	}
	// reap the child in the background so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r LaunchReaction) OnRelease(peripheral.InputKey) error { return nil }

// WebsiteReaction opens a URL in the default browser on press.
type WebsiteReaction struct {
	URL string
}

func (r WebsiteReaction) OnPress(peripheral.InputKey) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", r.URL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", r.URL)
	default:
		cmd = exec.Command("xdg-open", r.URL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", r.URL, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r WebsiteReaction) OnRelease(peripheral.InputKey) error { return nil }
