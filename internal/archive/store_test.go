package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/jwulff/echo/internal/docstore"
	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/transcript"
)

const docPath = "/data/echo-settings.json"

var created = time.Date(2026, 2, 3, 10, 15, 30, 123_000_000, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	s := New(docstore.NewFileStore(fsys, docPath),
		WithClock(func() time.Time { return created }),
		WithIDGenerator(sequentialIDs()),
	)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func float(v float64) *float64 { return &v }

// reopen simulates a fresh process reading the same file.
func reopen(t *testing.T, fsys afero.Fs) *Store {
	t.Helper()
	s := New(docstore.NewFileStore(fsys, docPath))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return s
}

func TestArchiveRejectsBlankText(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)

	got, err := s.Archive(context.Background(), Input{Text: "  \n\t "})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got != nil {
		t.Errorf("archive returned %+v, want nil", got)
	}
	if len(s.List()) != 0 {
		t.Errorf("list = %d records, want 0", len(s.List()))
	}
	if exists, _ := afero.Exists(fsys, docPath); exists {
		t.Error("blank archive should not write the document")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)

	saved, err := s.Archive(context.Background(), Input{
		Text: "  Hello world. Next thought.  ",
		Segments: []transcript.Segment{
			{Text: "Hello world.", SpeakerID: "speaker_0", EndTime: float(1.0)},
			{Text: "Next thought.", StartTime: float(4.0)},
		},
		Speakers:     []Speaker{{ID: "speaker_0", Name: "Swift Fox"}},
		HasConsent:   true,
		NoveltyScore: float(0.7),
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if saved.ID != "id-1" {
		t.Errorf("id = %q, want id-1", saved.ID)
	}
	if saved.Text != "Hello world. Next thought." {
		t.Errorf("text = %q, want trimmed", saved.Text)
	}
	if saved.Title != PlaceholderTitle {
		t.Errorf("title = %q, want placeholder", saved.Title)
	}

	got, ok := reopen(t, fsys).Get(saved.ID)
	if !ok {
		t.Fatal("record missing after reload")
	}
	if got.Text != saved.Text {
		t.Errorf("text = %q, want %q", got.Text, saved.Text)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, created)
	}
	if len(got.Segments) != 2 || got.Segments[0].SpeakerID != "speaker_0" || got.Segments[1].StartTime == nil {
		t.Errorf("segments = %+v", got.Segments)
	}
	if len(got.Speakers) != 1 || got.Speakers[0].Name != "Swift Fox" {
		t.Errorf("speakers = %+v", got.Speakers)
	}
	if got.NoveltyScore == nil || *got.NoveltyScore != 0.7 {
		t.Errorf("novelty = %v, want 0.7", got.NoveltyScore)
	}
	if got.CoherenceScore != nil {
		t.Errorf("coherence = %v, want nil", *got.CoherenceScore)
	}
	if paras := got.Paragraphs(); len(paras) != 2 {
		t.Errorf("paragraphs = %q, want 2", paras)
	}
}

func TestArchiveIsNewestFirst(t *testing.T) {
	s := newTestStore(t, afero.NewMemMapFs())
	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.Archive(context.Background(), Input{Text: text}); err != nil {
			t.Fatalf("archive %s: %v", text, err)
		}
	}

	list := s.List()
	if len(list) != 3 || list[0].Text != "third" || list[2].Text != "first" {
		t.Errorf("order = %v", list)
	}
}

func TestLoadMigratesLegacyRecords(t *testing.T) {
	fsys := afero.NewMemMapFs()
	legacy := []byte(`{"archived-transcripts":[
		{"id":"old-1","text":"legacy text","createdAt":1700000000000},
		{"id":"old-2","title":"","text":"no consent","hasConsent":false,"createdAt":1700000001000}
	]}`)
	if err := afero.WriteFile(fsys, docPath, legacy, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := reopen(t, fsys)
	list := s.List()
	if len(list) != 2 {
		t.Fatalf("list = %d records, want 2", len(list))
	}

	old := list[0]
	if old.Title != PlaceholderTitle {
		t.Errorf("title = %q, want placeholder", old.Title)
	}
	if old.Segments == nil || len(old.Segments) != 0 {
		t.Errorf("segments = %#v, want empty list", old.Segments)
	}
	if old.Speakers == nil || len(old.Speakers) != 0 {
		t.Errorf("speakers = %#v, want empty list", old.Speakers)
	}
	if !old.HasConsent {
		t.Error("hasConsent should default to true")
	}
	if old.CreatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("createdAt = %d", old.CreatedAt.UnixMilli())
	}
	if list[1].HasConsent {
		t.Error("explicit hasConsent=false should be kept")
	}

	// Migration happens in memory only.
	onDisk, _ := afero.ReadFile(fsys, docPath)
	if !bytes.Equal(onDisk, legacy) {
		t.Error("load rewrote the document")
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)
	if _, err := s.Archive(context.Background(), Input{Text: "kept"}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if err := afero.WriteFile(fsys, docPath, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(s.List()) != 1 {
		t.Errorf("second load replaced memory: %d records", len(s.List()))
	}
}

func TestFailedLoadDoesNotOverwrite(t *testing.T) {
	fsys := afero.NewMemMapFs()
	corrupt := []byte(`{"archived-transcripts": "not a list"}`)
	if err := afero.WriteFile(fsys, docPath, corrupt, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(docstore.NewFileStore(fsys, docPath))
	if err := s.Load(context.Background()); !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("load = %v, want ErrPersistence", err)
	}
	if _, err := s.Archive(context.Background(), Input{Text: "new"}); !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("archive = %v, want ErrPersistence", err)
	}

	onDisk, _ := afero.ReadFile(fsys, docPath)
	if !bytes.Equal(onDisk, corrupt) {
		t.Error("archive overwrote a document that failed to load")
	}
}

func TestUpdate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)
	saved, err := s.Archive(context.Background(), Input{Title: "Standup", Text: "notes"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	important := true
	empty := ""
	category := "meetings"
	if err := s.Update(context.Background(), saved.ID, Patch{
		IsImportant:    &important,
		Title:          &empty,
		Category:       &category,
		CoherenceScore: float(0.9),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := reopen(t, fsys).Get(saved.ID)
	if !got.IsImportant {
		t.Error("isImportant not persisted")
	}
	if got.Title != PlaceholderTitle {
		t.Errorf("title = %q, want placeholder after empty patch", got.Title)
	}
	if got.Category != "meetings" {
		t.Errorf("category = %q", got.Category)
	}
	if got.CoherenceScore == nil || *got.CoherenceScore != 0.9 {
		t.Errorf("coherence = %v", got.CoherenceScore)
	}
	if got.Text != "notes" || !got.CreatedAt.Equal(created) {
		t.Errorf("unpatched fields changed: %+v", got)
	}

	if err := s.Update(context.Background(), "missing", Patch{IsImportant: &important}); err != nil {
		t.Errorf("update missing id = %v, want nil", err)
	}
}

func TestUpdateRejectsBlankText(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)
	saved, err := s.Archive(context.Background(), Input{Text: "keep me"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	blank := " \n\t "
	if err := s.Update(context.Background(), saved.ID, Patch{Text: &blank}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("update blank text = %v, want ErrInvalidInput", err)
	}
	if got, _ := reopen(t, fsys).Get(saved.ID); got.Text != "keep me" {
		t.Errorf("text on disk = %q, want keep me", got.Text)
	}

	padded := "  edited  "
	if err := s.Update(context.Background(), saved.ID, Patch{Text: &padded}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, _ := reopen(t, fsys).Get(saved.ID); got.Text != "edited" {
		t.Errorf("text on disk = %q, want edited", got.Text)
	}
}

// Two stores sharing one document, as the TUI and the MCP server do.
func TestConcurrentStoresDoNotOverwriteEachOther(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := newTestStore(t, fsys)
	if _, err := a.Archive(context.Background(), Input{Text: "first"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := a.Archive(context.Background(), Input{Text: "second"}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	b := reopen(t, fsys)
	third, err := a.Archive(context.Background(), Input{Text: "third"})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	// b loaded before the third record existed.
	important := true
	if err := b.Update(context.Background(), "id-1", Patch{IsImportant: &important}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := b.Get(third.ID); !ok {
		t.Error("write did not pick up the record archived by the other store")
	}

	fresh := reopen(t, fsys)
	if got := len(fresh.List()); got != 3 {
		t.Fatalf("records on disk = %d, want 3", got)
	}
	if got, _ := fresh.Get("id-1"); !got.IsImportant {
		t.Error("isImportant not persisted")
	}

	// A deletes the third record; b sees it after a refresh.
	if err := a.Delete(context.Background(), third.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := b.Get(third.ID); ok {
		t.Error("refresh kept a record deleted by the other store")
	}
	if got, _ := b.Get("id-1"); !got.IsImportant {
		t.Error("refresh lost the persisted flag")
	}
}

func TestRefreshKeepsPendingWrites(t *testing.T) {
	fsys := afero.NewMemMapFs()
	doc := &flakyDoc{Store: docstore.NewFileStore(fsys, docPath)}
	s := New(doc, WithIDGenerator(sequentialIDs()))

	doc.fail = true
	saved, err := s.Archive(context.Background(), Input{Text: "unsaved"})
	if !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("archive = %v, want ErrPersistence", err)
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := s.Get(saved.ID); !ok {
		t.Error("refresh dropped a record whose write failed")
	}
}

func TestDelete(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := newTestStore(t, fsys)
	a, _ := s.Archive(context.Background(), Input{Text: "a"})
	b, _ := s.Archive(context.Background(), Input{Text: "b"})

	if err := s.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Errorf("delete missing id = %v, want nil", err)
	}

	fresh := reopen(t, fsys)
	if _, ok := fresh.Get(a.ID); ok {
		t.Error("deleted record returned after reload")
	}
	if _, ok := fresh.Get(b.ID); !ok {
		t.Error("surviving record missing after reload")
	}
}

// flakyDoc fails every Update while fail is set.
type flakyDoc struct {
	docstore.Store
	fail bool
}

func (d *flakyDoc) Update(key string, v any, fn func(bool) (bool, error)) error {
	if d.fail {
		return errs.New(errs.ErrPersistence, "save document", "disk full")
	}
	return d.Store.Update(key, v, fn)
}

func TestWriteFailureKeepsRecordVisible(t *testing.T) {
	fsys := afero.NewMemMapFs()
	doc := &flakyDoc{Store: docstore.NewFileStore(fsys, docPath), fail: true}
	s := New(doc, WithIDGenerator(sequentialIDs()))

	saved, err := s.Archive(context.Background(), Input{Text: "precious"})
	if !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("archive = %v, want ErrPersistence", err)
	}
	if saved == nil || saved.Text != "precious" {
		t.Fatalf("archive returned %+v, want the in-memory record", saved)
	}
	if _, ok := s.Get(saved.ID); !ok {
		t.Error("record should stay visible after a failed write")
	}

	// The next successful write carries both records.
	doc.fail = false
	if _, err := s.Archive(context.Background(), Input{Text: "later"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := len(reopen(t, fsys).List()); got != 2 {
		t.Errorf("records on disk = %d, want 2", got)
	}
}

func TestArchiveValidatesInput(t *testing.T) {
	s := newTestStore(t, afero.NewMemMapFs())

	tests := []struct {
		name string
		in   Input
	}{
		{"negative score", Input{Text: "x", NoveltyScore: float(-1)}},
		{"NaN score", Input{Text: "x", CoherenceScore: float(math.NaN())}},
		{"infinite score", Input{Text: "x", NoveltyScore: float(math.Inf(1))}},
		{"speaker without id", Input{Text: "x", Speakers: []Speaker{{Name: "nobody"}}}},
	}
	for _, tt := range tests {
		if _, err := s.Archive(context.Background(), tt.in); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tt.name, err)
		}
	}
	if len(s.List()) != 0 {
		t.Errorf("invalid input archived %d records", len(s.List()))
	}

	if err := s.Update(context.Background(), "any", Patch{NoveltyScore: float(-2)}); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("update err = %v, want ErrInvalidInput", err)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t, afero.NewMemMapFs())
	ctx := context.Background()
	a, _ := s.Archive(ctx, Input{Title: "Budget review", Text: "numbers"})
	b, _ := s.Archive(ctx, Input{Text: "Talked about the BUDGET"})
	c, _ := s.Archive(ctx, Input{Text: "lunch", Category: "Personal"})
	important := true
	if err := s.Update(ctx, a.ID, Patch{IsImportant: &important}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ids := func(list []Transcript) []string {
		var out []string
		for _, t := range list {
			out = append(out, t.ID)
		}
		return out
	}

	if got := ids(s.Search(Filter{Query: "budget"})); len(got) != 2 || got[0] != b.ID || got[1] != a.ID {
		t.Errorf("budget = %v", got)
	}
	if got := ids(s.Search(Filter{Query: "personal"})); len(got) != 1 || got[0] != c.ID {
		t.Errorf("category match = %v", got)
	}
	if got := ids(s.Search(Filter{ImportantOnly: true})); len(got) != 1 || got[0] != a.ID {
		t.Errorf("important = %v", got)
	}
	if got := s.Search(Filter{Query: "  "}); len(got) != 3 {
		t.Errorf("blank query = %d results, want 3", len(got))
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestStore(t, afero.NewMemMapFs())
	_, err := s.Archive(context.Background(), Input{
		Title: "Sync, weekly",
		Text:  "Hi. Bye.",
		Segments: []transcript.Segment{
			{Text: "Hi.", SpeakerID: "speaker_0"},
			{Text: "Bye."},
		},
		Speakers: []Speaker{
			{ID: "speaker_0", Name: "Calm Owl", Notes: "host"},
			{ID: "speaker_1", Name: "Bold Lynx"},
		},
		HasConsent:     true,
		CoherenceScore: float(0.25),
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	var buf bytes.Buffer
	if err := s.ExportCSV(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(records))
	}
	if len(records[0]) != len(Columns) || records[0][0] != "id" || records[0][10] != "category" {
		t.Errorf("header = %v", records[0])
	}

	row := records[1]
	want := map[string]string{
		"title":          "Sync, weekly",
		"segments":       "[speaker_0] Hi. | [unknown] Bye.",
		"speakers":       "speaker_0=Calm Owl (host); speaker_1=Bold Lynx",
		"hasConsent":     "true",
		"noveltyScore":   "",
		"coherenceScore": "0.25",
		"createdAt":      "2026-02-03T10:15:30.123Z",
		"isImportant":    "false",
	}
	for i, col := range Columns {
		if w, ok := want[col]; ok && row[i] != w {
			t.Errorf("%s = %q, want %q", col, row[i], w)
		}
	}
}
