// Package provider speaks the realtime transcription provider's websocket
// protocol and normalizes inbound messages into Events.
package provider

import "strings"

// Inbound message types.
const (
	TypeSessionStarted              = "session_started"
	TypePartialTranscript           = "partial_transcript"
	TypeCommittedTranscript         = "committed_transcript"
	TypeCommittedTranscriptWithTime = "committed_transcript_with_timestamps"
	TypeAuthError                   = "auth_error"
	TypeQuotaExceeded               = "quota_exceeded"
	TypeInputAudioChunk             = "input_audio_chunk"
)

// Message is one JSON frame received from the provider.
type Message struct {
	MessageType string `json:"message_type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Words       []Word `json:"words,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Word is a word-level entry on a timestamped commit.
type Word struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Type      string  `json:"type,omitempty"` // "word", "spacing", "audio_event"
	SpeakerID string  `json:"speaker_id,omitempty"`
}

// AudioChunk is sent to the provider for each frame of PCM audio.
type AudioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	Commit      bool   `json:"commit"`
	SampleRate  int    `json:"sample_rate"`
}

// EventKind classifies a normalized Event.
type EventKind int

const (
	EventSessionStarted EventKind = iota
	EventPartial
	EventCommitted
	EventCommittedTimestamps
	EventAuthError
	EventQuotaExceeded
	EventError
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventSessionStarted:
		return "session_started"
	case EventPartial:
		return "partial"
	case EventCommitted:
		return "committed"
	case EventCommittedTimestamps:
		return "committed_timestamps"
	case EventAuthError:
		return "auth_error"
	case EventQuotaExceeded:
		return "quota_exceeded"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is what a Conn delivers to its consumer.
type Event struct {
	Kind    EventKind
	Text    string
	Words   []Word
	Start   *float64
	End     *float64
	Message string // error detail for auth/quota/error/disconnect events
}

// ToEvent normalizes a provider message. ok is false for message types the
// session does not act on.
func (m Message) ToEvent() (Event, bool) {
	switch m.MessageType {
	case TypeSessionStarted:
		return Event{Kind: EventSessionStarted}, true
	case TypePartialTranscript:
		return Event{Kind: EventPartial, Text: m.Text}, true
	case TypeCommittedTranscript:
		return Event{Kind: EventCommitted, Text: m.Text}, true
	case TypeCommittedTranscriptWithTime:
		ev := Event{Kind: EventCommittedTimestamps, Text: m.Text, Words: m.Words}
		ev.Start, ev.End = wordSpan(m.Words)
		return ev, true
	case TypeAuthError:
		return Event{Kind: EventAuthError, Message: m.Error}, true
	case TypeQuotaExceeded:
		return Event{Kind: EventQuotaExceeded, Message: m.Error}, true
	}
	if strings.HasSuffix(m.MessageType, "_error") || m.MessageType == "error" || m.MessageType == "rate_limited" {
		msg := m.Error
		if msg == "" {
			msg = m.MessageType
		}
		return Event{Kind: EventError, Message: msg}, true
	}
	return Event{}, false
}

// wordSpan returns the first start and last end among spoken words.
func wordSpan(words []Word) (*float64, *float64) {
	var start, end *float64
	for _, w := range words {
		if w.Type != "" && w.Type != "word" {
			continue
		}
		if start == nil {
			s := w.Start
			start = &s
		}
		e := w.End
		end = &e
	}
	return start, end
}
