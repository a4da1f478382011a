package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/exp/slices"
)

// CommandSpeaker speaks by running an external text-to-speech program
// (espeak by default) with the text as its last argument.
type CommandSpeaker struct {
	// Guards command, args, cmd and done
	mu      sync.Mutex
	command string
	args    []string
	cmd  *exec.Cmd
	done chan struct{}
}

func NewCommandSpeaker(command string, args []string) *CommandSpeaker {
	return &CommandSpeaker{command: command, args: args}
}

// Speak starts saying text and returns without waiting. Anything still
// being spoken is cut off first.
func (s *CommandSpeaker) Speak(text string) error {
	if err := s.Stop(); err != nil {
		slog.Warn("CommandSpeaker: could not stop previous utterance", "error", err)
	}

	s.mu.Lock()
	command := s.command
	args := append(slices.Clone(s.args), text)
	s.mu.Unlock()

	cmd := exec.Command(command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command, err)
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil {
			slog.Debug("CommandSpeaker: speech command ended", "error", err)
		}
	}()
	return nil
}

// SetCommand takes effect with the next Speak.
func (s *CommandSpeaker) SetCommand(command string, args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.command = command
	s.args = slices.Clone(args)
}

func (s *CommandSpeaker) IsSpeaking() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop kills a running speech command and waits for it to exit.
func (s *CommandSpeaker) Stop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}
	var err error
	if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		err = kerr
	}
	<-done
	return err
}
