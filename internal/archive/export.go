package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jwulff/echo/internal/errs"
)

// Columns is the header row of the flat export.
var Columns = []string{
	"id", "title", "text", "segments", "speakers", "hasConsent",
	"noveltyScore", "coherenceScore", "createdAt", "isImportant", "category",
}

// Rows flattens every transcript into text cells, one row per transcript in
// list order. The header is not included.
func (s *Store) Rows() [][]string {
	items := s.List()
	rows := make([][]string, len(items))
	for i, t := range items {
		rows[i] = flatten(t)
	}
	return rows
}

// ExportCSV writes the header and every row to w.
func (s *Store) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return errs.Wrap(errs.ErrPersistence, "export csv", err)
	}
	if err := cw.WriteAll(s.Rows()); err != nil {
		return errs.Wrap(errs.ErrPersistence, "export csv", err)
	}
	return nil
}

func flatten(t Transcript) []string {
	segs := make([]string, len(t.Segments))
	for i, seg := range t.Segments {
		speaker := seg.SpeakerID
		if speaker == "" {
			speaker = "unknown"
		}
		segs[i] = fmt.Sprintf("[%s] %s", speaker, seg.Text)
	}

	speakers := make([]string, len(t.Speakers))
	for i, sp := range t.Speakers {
		entry := sp.ID + "=" + sp.Name
		if sp.Notes != "" {
			entry += " (" + sp.Notes + ")"
		}
		speakers[i] = entry
	}

	return []string{
		t.ID,
		t.Title,
		t.Text,
		strings.Join(segs, " | "),
		strings.Join(speakers, "; "),
		strconv.FormatBool(t.HasConsent),
		formatScore(t.NoveltyScore),
		formatScore(t.CoherenceScore),
		t.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		strconv.FormatBool(t.IsImportant),
		t.Category,
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
