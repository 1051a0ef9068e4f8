// Package transcript turns committed segments into a flat transcript, paragraph
// groupings, and per-segment speaker attribution. Every function is a pure
// function of its input.
package transcript

import (
	"encoding/json"
	"strings"
)

// Segment is one finalized utterance from the provider.
type Segment struct {
	Text      string
	SpeakerID string // empty when diarization is unavailable
	StartTime *float64
	EndTime   *float64
}

// HasTiming reports whether the segment carries any timestamp.
func (s Segment) HasTiming() bool {
	return s.StartTime != nil || s.EndTime != nil
}

type segmentJSON struct {
	Text      string   `json:"text"`
	SpeakerID *string  `json:"speakerId"`
	StartTime *float64 `json:"startTime,omitempty"`
	EndTime   *float64 `json:"endTime,omitempty"`
}

// MarshalJSON writes speakerId as null when the segment has no speaker.
func (s Segment) MarshalJSON() ([]byte, error) {
	out := segmentJSON{Text: s.Text, StartTime: s.StartTime, EndTime: s.EndTime}
	if s.SpeakerID != "" {
		id := s.SpeakerID
		out.SpeakerID = &id
	}
	return json.Marshal(out)
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var in segmentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Segment{Text: in.Text, StartTime: in.StartTime, EndTime: in.EndTime}
	if in.SpeakerID != nil {
		s.SpeakerID = *in.SpeakerID
	}
	return nil
}

// Word is a single word-level entry from a timestamped commit.
type Word struct {
	Text      string
	SpeakerID string
}

// FullText joins segment texts with single spaces, in list order.
func FullText(segments []Segment) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// DominantSpeaker returns the speaker tagged on the most words. Ties go to the
// speaker seen first. Words without a speaker tag are ignored; the result is
// empty when no word carries one.
func DominantSpeaker(words []Word) string {
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if w.SpeakerID == "" {
			continue
		}
		if _, seen := counts[w.SpeakerID]; !seen {
			order = append(order, w.SpeakerID)
		}
		counts[w.SpeakerID]++
	}

	best := ""
	bestCount := 0
	for _, id := range order {
		if counts[id] > bestCount {
			best = id
			bestCount = counts[id]
		}
	}
	return best
}
