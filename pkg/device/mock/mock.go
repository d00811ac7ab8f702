// Package mock provides an in-memory device.Session for testing without a
// real device.
package mock

import (
	"fmt"
	"strings"
	"sync"
)

// Session records every command and answers from scripted responses.
type Session struct {
	// SerialID is returned by Serial.
	SerialID string

	// Handler, when set, answers every command.
	Handler func(cmd string) ([]byte, error)

	// Responses answers commands by longest matching prefix when Handler is nil.
	Responses map[string]string

	// Err makes every command fail.
	Err error

	mu       sync.Mutex
	commands []string
}

// New creates a mock session.
func New() *Session {
	return &Session{
		SerialID:  "mock-device",
		Responses: make(map[string]string),
	}
}

// Serial returns the configured serial.
func (s *Session) Serial() string {
	return s.SerialID
}

// Shell records cmd and returns the scripted response.
func (s *Session) Shell(cmd string) (string, error) {
	out, err := s.ShellBytes(cmd)
	return string(out), err
}

// ShellBytes records cmd and returns the scripted response.
func (s *Session) ShellBytes(cmd string) ([]byte, error) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	handler := s.Handler
	s.mu.Unlock()

	if s.Err != nil {
		return nil, fmt.Errorf("mock shell %q: %w", cmd, s.Err)
	}
	if handler != nil {
		return handler(cmd)
	}

	best := ""
	found := false
	for prefix := range s.Responses {
		if strings.HasPrefix(cmd, prefix) && len(prefix) >= len(best) {
			best = prefix
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return []byte(s.Responses[best]), nil
}

// Commands returns a copy of every command issued so far.
func (s *Session) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Count returns how many issued commands start with prefix.
func (s *Session) Count(prefix string) int {
	n := 0
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}
