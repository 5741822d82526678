// Package pairing holds the pending device-link code so the ops surface and
// the terminal can both show it.
package pairing

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// ErrNoCode means no link code is pending (already paired or not started).
var ErrNoCode = errors.New("no pairing code pending")

// State is the current pairing status, shared between the transport and HTTP.
type State struct {
	mu        sync.RWMutex
	code      string
	issued    time.Time
	connected bool
}

func NewState() *State { return &State{} }

// Set publishes a new pending code.
func (s *State) Set(code string) {
	s.mu.Lock()
	s.code = code
	s.issued = time.Now()
	s.connected = false
	s.mu.Unlock()
}

// SetConnected clears the pending code and records the link state.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	if connected {
		s.code = ""
	}
	s.mu.Unlock()
}

// Current returns the pending code, if any.
func (s *State) Current() (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code, s.issued, s.code != ""
}

// Connected reports whether the transport is linked and online.
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// PNG renders the pending code as a QR image.
func (s *State) PNG(size int) ([]byte, error) {
	code, _, ok := s.Current()
	if !ok {
		return nil, ErrNoCode
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

// PrintTerminal writes code as a half-block QR to w.
func PrintTerminal(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
