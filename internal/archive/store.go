package archive

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwulff/echo/internal/docstore"
	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/logging"
	"github.com/jwulff/echo/internal/transcript"
)

// Key is the document field holding the archive list.
const Key = "archived-transcripts"

// Store is the archive. The in-memory list serves reads. Every mutation is
// applied to memory and then replayed against the stored list inside one
// locked read-modify-write, so writers in other processes are not lost.
//
// A failed write is returned to the caller but the mutation stays pending and
// is replayed by the next write, so records are always visible and eventually
// durable.
type Store struct {
	doc      docstore.Store
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	mu      sync.RWMutex
	loaded  bool
	items   []Transcript
	pending []mutation // applied in memory, not yet written

	writeMu sync.Mutex // one read or write of the document at a time
}

// mutation edits a list and reports whether it changed anything. It must be
// safe to apply again to a list that was read later.
type mutation func([]Transcript) ([]Transcript, bool)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New returns an unloaded Store backed by doc.
func New(doc docstore.Store, opts ...Option) *Store {
	s := &Store{
		doc:      doc,
		logger:   logging.Discard(),
		now:      time.Now,
		newID:    uuid.NewString,
		validate: newValidator(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the archive once. Later calls return immediately. A failed load
// leaves the store unloaded so it can be retried and so a later write cannot
// replace records that were never read.
func (s *Store) Load(ctx context.Context) error {
	if s.isLoaded() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isLoaded() {
		return nil
	}
	return s.readLocked()
}

// Refresh rereads the stored list so changes written by other processes become
// visible. Pending mutations stay applied on top.
func (s *Store) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() error {
	var records []record
	if _, err := s.doc.Get(Key, &records); err != nil {
		s.logger.Error("archive load failed", "error", err)
		return err
	}
	items, migrated := upgradeAll(records)

	s.mu.Lock()
	for _, m := range s.pending {
		items, _ = m(items)
	}
	s.items = items
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("archive loaded", "count", len(items), "migrated", migrated)
	return nil
}

func upgradeAll(records []record) ([]Transcript, int) {
	items := make([]Transcript, 0, len(records))
	migrated := 0
	for _, r := range records {
		if r.SchemaVersion < SchemaVersion {
			migrated++
		}
		items = append(items, upgrade(r))
	}
	return items, migrated
}

func (s *Store) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Archive saves a new transcript at the head of the list. Whitespace-only text
// is ignored and returns nil, nil. On a write failure the returned transcript
// is already visible in List and the error is ErrPersistence.
func (s *Store) Archive(ctx context.Context, in Input) (*Transcript, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, nil
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, errs.New(errs.ErrInvalidInput, "archive transcript", validationMessage(err))
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	t := Transcript{
		ID:             s.newID(),
		Title:          titleOrPlaceholder(in.Title),
		Text:           text,
		Segments:       append([]transcript.Segment{}, in.Segments...),
		Speakers:       append([]Speaker{}, in.Speakers...),
		HasConsent:     in.HasConsent,
		NoveltyScore:   in.NoveltyScore,
		CoherenceScore: in.CoherenceScore,
		CreatedAt:      s.now(),
		Category:       in.Category,
	}

	if err := s.commit("archive transcript", prepend(t)); err != nil {
		return &t, err
	}
	s.logger.Info("transcript archived", "id", t.ID, "chars", len(t.Text))
	return &t, nil
}

// Update merges p into the transcript with id. A missing id is a no-op. A
// patched text is trimmed and must not be blank.
func (s *Store) Update(ctx context.Context, id string, p Patch) error {
	if err := s.validate.Struct(p); err != nil {
		return errs.New(errs.ErrInvalidInput, "update transcript", validationMessage(err))
	}
	if p.Text != nil {
		text := strings.TrimSpace(*p.Text)
		if text == "" {
			return errs.New(errs.ErrInvalidInput, "update transcript", "text must not be empty")
		}
		p.Text = &text
	}
	if err := s.Load(ctx); err != nil {
		return err
	}
	return s.commit("update transcript", func(items []Transcript) ([]Transcript, bool) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false
		}
		p.apply(&items[i])
		return items, true
	})
}

// Delete removes the transcript with id. A missing id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	return s.commit("delete transcript", func(items []Transcript) ([]Transcript, bool) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false
		}
		return append(items[:i:i], items[i+1:]...), true
	})
}

// List returns every transcript, newest first.
func (s *Store) List() []Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transcript(nil), s.items...)
}

// Get returns the transcript with id.
func (s *Store) Get(id string) (Transcript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Transcript{}, false
}

// Search returns the transcripts matching f, newest first.
func (s *Store) Search(f Filter) []Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transcript
	for _, t := range s.items {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	return indexOf(s.items, id)
}

func indexOf(items []Transcript, id string) int {
	for i, t := range items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func prepend(t Transcript) mutation {
	return func(items []Transcript) ([]Transcript, bool) {
		if indexOf(items, t.ID) >= 0 {
			return items, false
		}
		return append([]Transcript{t}, items...), true
	}
}

// commit applies m in memory, then rereads the stored list under the document
// lock, replays every pending mutation on it and writes the result.
func (s *Store) commit(op string, m mutation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.items, _ = m(s.items)
	s.pending = append(s.pending, m)
	pending := s.pending
	s.mu.Unlock()

	var (
		records []record
		items   []Transcript
	)
	err := s.doc.Update(Key, &records, func(bool) (bool, error) {
		items, _ = upgradeAll(records)
		changed := false
		for _, p := range pending {
			var c bool
			items, c = p(items)
			changed = changed || c
		}
		if changed {
			records = make([]record, len(items))
			for i, t := range items {
				records[i] = toRecord(t)
			}
		}
		return changed, nil
	})
	if err != nil {
		s.logger.Error("archive write failed", "op", op, "pending", len(pending), "error", err)
		return err
	}

	s.mu.Lock()
	s.items = items
	s.pending = nil
	s.mu.Unlock()
	return nil
}
