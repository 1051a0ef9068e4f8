package transcript

import (
	"strings"
	"unicode"
)

// PauseThreshold is the minimum silence, in seconds, between a sentence-ending
// segment and the next one for a paragraph break.
const PauseThreshold = 2.0

// Fallback paragraphing limits for text without segment timing.
const (
	MaxSentencesPerParagraph = 5
	MaxParagraphChars        = 500
	WordsPerChunk            = 75
)

// Paragraph is a paragraph of text attributed to the speaker of its first segment.
type Paragraph struct {
	Text      string
	SpeakerID string
}

// Paragraphs groups segments into paragraphs. A break is inserted between two
// consecutive segments when the first ends in terminal punctuation and the gap
// between its end and the next segment's start is at least PauseThreshold. When
// no segment carries timing, the joined text is paragraphed by FormatText.
func Paragraphs(segments []Segment) []string {
	paras := SpeakerParagraphs(segments)
	if len(paras) == 0 {
		return nil
	}
	out := make([]string, len(paras))
	for i, p := range paras {
		out[i] = p.Text
	}
	return out
}

// SpeakerParagraphs is Paragraphs with speaker attribution kept for display.
func SpeakerParagraphs(segments []Segment) []Paragraph {
	if len(segments) == 0 {
		return nil
	}
	if !anyTiming(segments) {
		var out []Paragraph
		for _, text := range FormatText(FullText(segments)) {
			out = append(out, Paragraph{Text: text})
		}
		return out
	}

	var out []Paragraph
	var current []string
	speaker := ""
	flush := func() {
		text := strings.TrimSpace(strings.Join(current, " "))
		if text != "" {
			out = append(out, Paragraph{Text: text, SpeakerID: speaker})
		}
		current = nil
	}

	for i, seg := range segments {
		if i > 0 && len(current) > 0 && shouldBreak(segments[i-1], seg) {
			flush()
		}
		if len(current) == 0 {
			speaker = seg.SpeakerID
		}
		current = append(current, seg.Text)
	}
	flush()

	return out
}

func anyTiming(segments []Segment) bool {
	for _, s := range segments {
		if s.HasTiming() {
			return true
		}
	}
	return false
}

func shouldBreak(prev, next Segment) bool {
	if !endsSentence(prev.Text) {
		return false
	}
	if prev.EndTime == nil || next.StartTime == nil {
		return false
	}
	return *next.StartTime-*prev.EndTime >= PauseThreshold
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return isTerminal(rune(text[len(text)-1]))
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// FormatText paragraphs plain text with no timing information. Sentences are
// grouped until a paragraph holds MaxSentencesPerParagraph sentences or exceeds
// MaxParagraphChars. Text without any sentence punctuation is cut into
// WordsPerChunk-word chunks.
func FormatText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if !strings.ContainsAny(text, ".!?") {
		words := strings.Fields(text)
		var out []string
		for i := 0; i < len(words); i += WordsPerChunk {
			end := min(i+WordsPerChunk, len(words))
			out = append(out, strings.Join(words[i:end], " "))
		}
		return out
	}

	var out []string
	var current []string
	for _, sentence := range splitSentences(text) {
		current = append(current, sentence)
		joined := strings.Join(current, " ")
		if len(current) >= MaxSentencesPerParagraph || len(joined) > MaxParagraphChars {
			out = append(out, joined)
			current = nil
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// splitSentences cuts text at whitespace runs that follow terminal punctuation.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
