package archive

import (
	"time"

	"github.com/jwulff/echo/internal/transcript"
)

// SchemaVersion is written on every record at save. Records without it
// predate title, segments, speakers and consent.
const SchemaVersion = 1

// record is the on-disk shape of a Transcript. createdAt is epoch milliseconds.
type record struct {
	SchemaVersion  int                  `json:"schemaVersion,omitempty"`
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Text           string               `json:"text"`
	Segments       []transcript.Segment `json:"segments"`
	Speakers       []Speaker            `json:"speakers"`
	HasConsent     *bool                `json:"hasConsent,omitempty"`
	NoveltyScore   *float64             `json:"noveltyScore,omitempty"`
	CoherenceScore *float64             `json:"coherenceScore,omitempty"`
	CreatedAt      int64                `json:"createdAt"`
	IsImportant    bool                 `json:"isImportant,omitempty"`
	Category       string               `json:"category,omitempty"`
}

// upgrade converts a stored record of any version into a Transcript, filling
// defaults for fields older versions did not have.
func upgrade(r record) Transcript {
	t := Transcript{
		ID:             r.ID,
		Title:          titleOrPlaceholder(r.Title),
		Text:           r.Text,
		Segments:       r.Segments,
		Speakers:       r.Speakers,
		HasConsent:     true,
		NoveltyScore:   r.NoveltyScore,
		CoherenceScore: r.CoherenceScore,
		CreatedAt:      time.UnixMilli(r.CreatedAt),
		IsImportant:    r.IsImportant,
		Category:       r.Category,
	}
	if r.HasConsent != nil {
		t.HasConsent = *r.HasConsent
	}
	if t.Segments == nil {
		t.Segments = []transcript.Segment{}
	}
	if t.Speakers == nil {
		t.Speakers = []Speaker{}
	}
	return t
}

func toRecord(t Transcript) record {
	consent := t.HasConsent
	r := record{
		SchemaVersion:  SchemaVersion,
		ID:             t.ID,
		Title:          t.Title,
		Text:           t.Text,
		Segments:       t.Segments,
		Speakers:       t.Speakers,
		HasConsent:     &consent,
		NoveltyScore:   t.NoveltyScore,
		CoherenceScore: t.CoherenceScore,
		CreatedAt:      t.CreatedAt.UnixMilli(),
		IsImportant:    t.IsImportant,
		Category:       t.Category,
	}
	if r.Segments == nil {
		r.Segments = []transcript.Segment{}
	}
	if r.Speakers == nil {
		r.Speakers = []Speaker{}
	}
	return r
}
