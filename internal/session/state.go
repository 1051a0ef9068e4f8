// Package session owns the lifecycle of one transcription session: fetching a
// token, holding the provider connection, and accumulating committed segments.
package session

import (
	"time"

	"github.com/jwulff/echo/internal/transcript"
)

// Status is the connection state of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusPaused
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of session state. Mutating it does not affect
// the Manager.
type Snapshot struct {
	Status    Status
	Segments  []transcript.Segment
	Speakers  []string // speaker ids in first-seen order
	Partial   string
	Err       error
	StartedAt time.Time
}

// Transcript returns the committed text joined with single spaces.
func (s Snapshot) Transcript() string {
	return transcript.FullText(s.Segments)
}

// Paragraphs returns the committed text grouped into paragraphs.
func (s Snapshot) Paragraphs() []string {
	return transcript.Paragraphs(s.Segments)
}

// HasContent reports whether there is committed or partial text.
func (s Snapshot) HasContent() bool {
	return len(s.Segments) > 0 || s.Partial != ""
}
