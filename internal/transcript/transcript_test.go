package transcript

import (
	"encoding/json"
	"strings"
	"testing"
)

func float(v float64) *float64 { return &v }

func TestFullTextJoinsInOrder(t *testing.T) {
	segs := []Segment{
		{Text: "Hello there.", SpeakerID: "spk_0", StartTime: float(0), EndTime: float(1)},
		{Text: "General Kenobi."},
		{Text: "You are a bold one.", SpeakerID: "spk_1"},
	}

	got := FullText(segs)
	want := "Hello there. General Kenobi. You are a bold one."
	if got != want {
		t.Errorf("FullText = %q, want %q", got, want)
	}
	if FullText(nil) != "" {
		t.Error("FullText(nil) should be empty")
	}
}

func TestParagraphsBreakOnPunctuationAndPause(t *testing.T) {
	segs := []Segment{
		{Text: "Hello world.", EndTime: float(1.0)},
		{Text: "Next thought.", StartTime: float(4.0)},
	}

	got := Paragraphs(segs)
	if len(got) != 2 {
		t.Fatalf("paragraphs = %d (%q), want 2", len(got), got)
	}
	if got[0] != "Hello world." || got[1] != "Next thought." {
		t.Errorf("paragraphs = %q", got)
	}
}

func TestParagraphsNoBreak(t *testing.T) {
	tests := []struct {
		name string
		segs []Segment
	}{
		{
			name: "short pause",
			segs: []Segment{
				{Text: "Hello world.", StartTime: float(0), EndTime: float(1.0)},
				{Text: "Next thought.", StartTime: float(2.9), EndTime: float(4)},
			},
		},
		{
			name: "no terminal punctuation",
			segs: []Segment{
				{Text: "and then we", StartTime: float(0), EndTime: float(1.0)},
				{Text: "went home.", StartTime: float(9), EndTime: float(10)},
			},
		},
		{
			name: "missing timing on pair",
			segs: []Segment{
				{Text: "Hello world.", StartTime: float(0)},
				{Text: "Next thought.", StartTime: float(9)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paragraphs(tt.segs)
			if len(got) != 1 {
				t.Errorf("paragraphs = %q, want 1", got)
			}
		})
	}
}

func TestParagraphsExactThresholdBreaks(t *testing.T) {
	segs := []Segment{
		{Text: "Done!", EndTime: float(3.0)},
		{Text: "Really?", StartTime: float(5.0), EndTime: float(6.0)},
		{Text: "Yes.", StartTime: float(8.5)},
	}
	got := Paragraphs(segs)
	if len(got) != 3 {
		t.Fatalf("paragraphs = %q, want 3", got)
	}
}

func TestParagraphsWithoutTimingUsesFallback(t *testing.T) {
	var segs []Segment
	for i := 0; i < 7; i++ {
		segs = append(segs, Segment{Text: "Short sentence."})
	}
	got := Paragraphs(segs)
	if len(got) != 2 {
		t.Fatalf("paragraphs = %d, want 2 (5 + 2 sentences)", len(got))
	}
	if strings.Count(got[0], ".") != 5 {
		t.Errorf("first paragraph = %q, want 5 sentences", got[0])
	}
}

func TestParagraphsEmpty(t *testing.T) {
	if got := Paragraphs(nil); len(got) != 0 {
		t.Errorf("Paragraphs(nil) = %q, want empty", got)
	}
	if got := FormatText("   \n "); len(got) != 0 {
		t.Errorf("FormatText(blank) = %q, want empty", got)
	}
}

func TestSpeakerParagraphsAttributeFirstSpeaker(t *testing.T) {
	segs := []Segment{
		{Text: "I think so.", SpeakerID: "a", StartTime: float(0), EndTime: float(1)},
		{Text: "Agreed.", SpeakerID: "b", StartTime: float(5), EndTime: float(6)},
		{Text: "Me too.", SpeakerID: "a", StartTime: float(6.5), EndTime: float(7)},
	}
	got := SpeakerParagraphs(segs)
	if len(got) != 2 {
		t.Fatalf("paragraphs = %+v, want 2", got)
	}
	if got[0].SpeakerID != "a" || got[1].SpeakerID != "b" {
		t.Errorf("speakers = %q, %q", got[0].SpeakerID, got[1].SpeakerID)
	}
	if got[1].Text != "Agreed. Me too." {
		t.Errorf("second paragraph = %q", got[1].Text)
	}
}

func TestFormatTextLongParagraphSplits(t *testing.T) {
	long := strings.Repeat("word ", 110) + "end."
	text := long + " Second sentence."
	got := FormatText(text)
	if len(got) != 2 {
		t.Fatalf("paragraphs = %d, want 2", len(got))
	}
	if got[1] != "Second sentence." {
		t.Errorf("second = %q", got[1])
	}
}

func TestFormatTextUnpunctuatedChunks(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("um ", 160))
	got := FormatText(text)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	if n := len(strings.Fields(got[0])); n != WordsPerChunk {
		t.Errorf("first chunk words = %d, want %d", n, WordsPerChunk)
	}
	if n := len(strings.Fields(got[2])); n != 10 {
		t.Errorf("last chunk words = %d, want 10", n)
	}
}

func TestFormatTextDeterministic(t *testing.T) {
	text := "One. Two! Three? Four. Five. Six and more"
	a := FormatText(text)
	b := FormatText(text)
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Errorf("FormatText not deterministic: %q vs %q", a, b)
	}
	if len(a) != 2 || a[1] != "Six and more" {
		t.Errorf("FormatText = %q", a)
	}
}

func TestDominantSpeaker(t *testing.T) {
	tests := []struct {
		name  string
		words []Word
		want  string
	}{
		{"none", nil, ""},
		{"untagged", []Word{{Text: "hi"}}, ""},
		{"majority", []Word{{SpeakerID: "a"}, {SpeakerID: "b"}, {SpeakerID: "b"}}, "b"},
		{"tie first seen", []Word{{SpeakerID: "b"}, {SpeakerID: "a"}, {SpeakerID: "a"}, {SpeakerID: "b"}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DominantSpeaker(tt.words); got != tt.want {
				t.Errorf("DominantSpeaker = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmentJSONNullSpeaker(t *testing.T) {
	data, err := json.Marshal(Segment{Text: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"speakerId":null`) {
		t.Errorf("json = %s, want speakerId null", data)
	}

	var seg Segment
	if err := json.Unmarshal([]byte(`{"text":"x","speakerId":"spk_2","endTime":1.5}`), &seg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if seg.SpeakerID != "spk_2" || seg.EndTime == nil || *seg.EndTime != 1.5 {
		t.Errorf("segment = %+v", seg)
	}
}
