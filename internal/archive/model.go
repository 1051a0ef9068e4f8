// Package archive keeps finished transcripts in a newest-first list mirrored
// in memory and persisted to a docstore document.
package archive

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jwulff/echo/internal/transcript"
)

// PlaceholderTitle is used for transcripts saved without a title.
const PlaceholderTitle = "Untitled Recording"

// Speaker is a named participant saved with a transcript.
type Speaker struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// Transcript is one archived recording.
type Transcript struct {
	ID             string
	Title          string
	Text           string
	Segments       []transcript.Segment
	Speakers       []Speaker
	HasConsent     bool
	NoveltyScore   *float64
	CoherenceScore *float64
	CreatedAt      time.Time
	IsImportant    bool
	Category       string
}

// Paragraphs groups the transcript for reading. Saved segments are used when
// present; otherwise the plain text is formatted.
func (t Transcript) Paragraphs() []string {
	if len(t.Segments) > 0 {
		return transcript.Paragraphs(t.Segments)
	}
	return transcript.FormatText(t.Text)
}

// DisplayDate renders CreatedAt in local time for listings.
func (t Transcript) DisplayDate() string {
	return t.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM")
}

// Input is what a caller supplies to Archive.
type Input struct {
	Title          string               `validate:"max=200"`
	Text           string
	Segments       []transcript.Segment
	Speakers       []Speaker            `validate:"dive"`
	HasConsent     bool
	NoveltyScore   *float64             `validate:"omitempty,finite,gte=0"`
	CoherenceScore *float64             `validate:"omitempty,finite,gte=0"`
	Category       string               `validate:"max=100"`
}

// Patch holds the fields to change in Update. Nil fields are left alone.
type Patch struct {
	Title          *string              `validate:"omitempty,max=200"`
	Text           *string
	Segments       *[]transcript.Segment
	Speakers       *[]Speaker
	HasConsent     *bool
	NoveltyScore   *float64             `validate:"omitempty,finite,gte=0"`
	CoherenceScore *float64             `validate:"omitempty,finite,gte=0"`
	IsImportant    *bool
	Category       *string              `validate:"omitempty,max=100"`
}

func (p Patch) apply(t *Transcript) {
	if p.Title != nil {
		t.Title = titleOrPlaceholder(*p.Title)
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Segments != nil {
		t.Segments = append([]transcript.Segment{}, (*p.Segments)...)
	}
	if p.Speakers != nil {
		t.Speakers = append([]Speaker{}, (*p.Speakers)...)
	}
	if p.HasConsent != nil {
		t.HasConsent = *p.HasConsent
	}
	if p.NoveltyScore != nil {
		t.NoveltyScore = p.NoveltyScore
	}
	if p.CoherenceScore != nil {
		t.CoherenceScore = p.CoherenceScore
	}
	if p.IsImportant != nil {
		t.IsImportant = *p.IsImportant
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
}

// Filter narrows Search results.
type Filter struct {
	Query         string // case-insensitive substring of text, title or category
	ImportantOnly bool
}

func (f Filter) match(t Transcript) bool {
	if f.ImportantOnly && !t.IsImportant {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Text), q) ||
		strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Category), q)
}

func titleOrPlaceholder(title string) string {
	if strings.TrimSpace(title) == "" {
		return PlaceholderTitle
	}
	return title
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", e.StructNamespace(), e.Tag()))
	}
	return strings.Join(msgs, "; ")
}
