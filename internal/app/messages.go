package app

import (
	"time"

	"github.com/jwulff/echo/internal/archive"
	"github.com/jwulff/echo/internal/session"
)

// SnapshotMsg carries session state after a change.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// OpResultMsg reports the outcome of a start, stop, pause or resume.
type OpResultMsg struct {
	Op  string
	Err error
}

// ArchivedMsg reports the outcome of archiving the current transcript.
type ArchivedMsg struct {
	Transcript *archive.Transcript
	Text       string
	Err        error
}

// CaptureEndedMsg is sent when an audio capture loop exits.
type CaptureEndedMsg struct {
	ID  int
	Err error
}

// TickMsg drives the elapsed timer and the recording limit.
type TickMsg time.Time

// ClearNoticeMsg clears a transient notice or error after a timeout.
type ClearNoticeMsg struct{}
