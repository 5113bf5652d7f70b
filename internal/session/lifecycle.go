package session

import (
	"fmt"
)

// Phase is the normalized session lifecycle position.
type Phase string

const (
	PhaseConnected  Phase = "connected"
	PhaseConfigured Phase = "configured"
	PhaseRecording  Phase = "recording"
	PhaseStopped    Phase = "stopped"
	PhaseEnded      Phase = "ended"
)

// lifecycle tracks the session's control-channel state machine. Transitions
// are validated so a client cannot, for example, stream audio before
// configuring or restart a torn-down session.
type lifecycle struct {
	phase Phase
}

func newLifecycle() *lifecycle {
	return &lifecycle{phase: PhaseConnected}
}

// configure is legal in every non-terminal phase; reconfiguring while
// recording applies to future tasks only.
func (l *lifecycle) configure() error {
	if l.phase == PhaseEnded {
		return fmt.Errorf("session is terminal in phase %s", l.phase)
	}
	if l.phase == PhaseConnected {
		l.phase = PhaseConfigured
	}
	return nil
}

func (l *lifecycle) startRecording() error {
	switch l.phase {
	case PhaseConfigured, PhaseStopped:
		l.phase = PhaseRecording
		return nil
	case PhaseRecording:
		return fmt.Errorf("session is already recording")
	case PhaseConnected:
		return fmt.Errorf("session is not configured")
	default:
		return fmt.Errorf("session is terminal in phase %s", l.phase)
	}
}

func (l *lifecycle) stopRecording() error {
	if l.phase != PhaseRecording {
		return fmt.Errorf("session is not recording")
	}
	l.phase = PhaseStopped
	return nil
}

// end is idempotent and terminal.
func (l *lifecycle) end() {
	l.phase = PhaseEnded
}

func (l *lifecycle) current() Phase {
	return l.phase
}

func (l *lifecycle) configured() bool {
	switch l.phase {
	case PhaseConfigured, PhaseRecording, PhaseStopped:
		return true
	default:
		return false
	}
}

func (l *lifecycle) recording() bool {
	return l.phase == PhaseRecording
}
