package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/logging"
	"github.com/jwulff/echo/internal/provider"
	"github.com/jwulff/echo/internal/speaker"
	"github.com/jwulff/echo/internal/transcript"
)

// TokenFetcher exchanges a credential for a single-use streaming token.
type TokenFetcher interface {
	Fetch(ctx context.Context, credential string) (string, error)
}

// Manager is the session state machine. All state is guarded by mu; provider
// events are applied in arrival order by one goroutine per connection.
//
// ClearTranscript while Connected races with incoming commits. Callers should
// Stop or Pause first.
type Manager struct {
	tokens   TokenFetcher
	dialer   provider.Dialer
	speakers *speaker.Cache
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	credential string
	status     Status
	segments   []transcript.Segment
	speakerIDs []string
	partial    string
	err        error
	startedAt  time.Time
	conn       provider.Conn
	gen        uint64 // bumped whenever the current connection is dropped
	inFlight   bool

	changes chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithCredential sets the initial API key.
func WithCredential(credential string) Option {
	return func(m *Manager) { m.credential = credential }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithSpeakers shares a speaker cache with the caller, typically the UI.
func WithSpeakers(c *speaker.Cache) Option {
	return func(m *Manager) { m.speakers = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates an idle Manager.
func New(tokens TokenFetcher, dialer provider.Dialer, opts ...Option) *Manager {
	m := &Manager{
		tokens:   tokens,
		dialer:   dialer,
		speakers: speaker.NewCache(),
		logger:   logging.Discard(),
		now:      time.Now,
		changes:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Speakers returns the speaker cache used for attribution.
func (m *Manager) Speakers() *speaker.Cache { return m.speakers }

// Changes signals after every state mutation. Signals coalesce; receivers
// should read a fresh Snapshot.
func (m *Manager) Changes() <-chan struct{} { return m.changes }

// SetCredential replaces the API key used by later Start and Resume calls.
func (m *Manager) SetCredential(credential string) {
	m.mu.Lock()
	m.credential = credential
	m.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Status:    m.status,
		Segments:  append([]transcript.Segment(nil), m.segments...),
		Speakers:  append([]string(nil), m.speakerIDs...),
		Partial:   m.partial,
		Err:       m.err,
		StartedAt: m.startedAt,
	}
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start fetches a token and opens a streaming connection. It is legal from
// Idle, Paused and Error. Accumulated segments are kept.
func (m *Manager) Start(ctx context.Context) error {
	return m.connect(ctx, false)
}

// Resume reconnects a Paused (or failed) session with a fresh token. Segments
// accumulated before the pause are preserved.
func (m *Manager) Resume(ctx context.Context) error {
	return m.connect(ctx, true)
}

func (m *Manager) connect(ctx context.Context, resume bool) error {
	op := "start session"
	if resume {
		op = "resume session"
	}

	m.mu.Lock()
	if strings.TrimSpace(m.credential) == "" {
		m.mu.Unlock()
		return errs.New(errs.ErrConfig, op, errs.MissingKeyMessage)
	}
	if m.inFlight {
		m.mu.Unlock()
		return errs.New(errs.ErrBusy, op, "a connection attempt is already in progress")
	}
	switch {
	case m.status == StatusConnected:
		m.mu.Unlock()
		return errs.New(errs.ErrInvalidState, op, "already connected")
	case resume && m.status != StatusPaused && m.status != StatusError:
		status := m.status
		m.mu.Unlock()
		return errs.New(errs.ErrInvalidState, op, "cannot resume from "+status.String())
	}

	m.inFlight = true
	m.gen++
	gen := m.gen
	credential := m.credential
	m.err = nil
	m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()
	m.notify()

	conn, err := m.open(ctx, credential)

	m.mu.Lock()
	m.inFlight = false
	if gen != m.gen {
		// Stopped while connecting.
		m.mu.Unlock()
		if conn != nil {
			m.logger.Info("closing connection that resolved after stop")
			conn.Close()
		}
		return nil
	}
	if err != nil {
		m.err = err
		m.setStatusLocked(StatusError)
		m.mu.Unlock()
		m.notify()
		m.logger.Warn("connect failed", "op", op, "error", err)
		return err
	}

	m.conn = conn
	if !resume {
		m.startedAt = m.now()
	}
	m.setStatusLocked(StatusConnected)
	m.mu.Unlock()
	m.notify()

	go m.consume(gen, conn)
	return nil
}

func (m *Manager) open(ctx context.Context, credential string) (provider.Conn, error) {
	tok, err := m.tokens.Fetch(ctx, credential)
	if err != nil {
		return nil, err
	}
	return m.dialer.Dial(ctx, tok)
}

// Stop closes the connection and returns to Idle from any state. Uncommitted
// partial text is kept as a final segment. Segments remain until ClearTranscript.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status == StatusIdle {
		m.mu.Unlock()
		return nil
	}
	m.flushPartialLocked()
	conn := m.dropConnLocked()
	m.err = nil
	m.setStatusLocked(StatusIdle)
	m.mu.Unlock()
	m.notify()

	return closeConn(conn, "stop session")
}

// Pause closes the connection without clearing state. Only legal when Connected.
func (m *Manager) Pause() error {
	m.mu.Lock()
	if m.status != StatusConnected {
		status := m.status
		m.mu.Unlock()
		return errs.New(errs.ErrInvalidState, "pause session", "cannot pause from "+status.String())
	}
	m.flushPartialLocked()
	conn := m.dropConnLocked()
	m.setStatusLocked(StatusPaused)
	m.mu.Unlock()
	m.notify()

	return closeConn(conn, "pause session")
}

// ClearTranscript resets segments, partial text, the speaker set and the
// speaker cache. Status is unchanged. Outside a live connection the last
// error is dropped too.
func (m *Manager) ClearTranscript() {
	m.mu.Lock()
	m.segments = nil
	m.speakerIDs = nil
	m.partial = ""
	m.speakers.Reset()
	if m.status != StatusConnected {
		m.err = nil
	}
	m.mu.Unlock()
	m.notify()
}

// SendAudio forwards one PCM frame to the provider.
func (m *Manager) SendAudio(ctx context.Context, pcm []byte) error {
	m.mu.Lock()
	conn := m.conn
	status := m.status
	m.mu.Unlock()
	if status != StatusConnected || conn == nil {
		return errs.New(errs.ErrInvalidState, "send audio", "session is "+status.String())
	}
	return conn.SendAudio(ctx, pcm)
}

func (m *Manager) consume(gen uint64, conn provider.Conn) {
	for ev := range conn.Events() {
		m.handle(gen, ev)
	}
}

func (m *Manager) handle(gen uint64, ev provider.Event) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	var stale provider.Conn
	changed := true
	switch ev.Kind {
	case provider.EventSessionStarted:
		changed = false
		m.logger.Debug("provider session started")
	case provider.EventPartial:
		m.partial = ev.Text
	case provider.EventCommittedTimestamps:
		m.commitTimestampedLocked(ev)
	case provider.EventCommitted:
		m.commitFallbackLocked(ev.Text)
	case provider.EventAuthError:
		m.err = errs.New(errs.ErrAuth, "stream", detail(ev.Message, "authentication failed"))
		m.logger.Warn("provider auth error", "message", ev.Message)
	case provider.EventQuotaExceeded:
		m.err = errs.New(errs.ErrQuota, "stream", detail(ev.Message, "quota exceeded"))
		m.logger.Warn("provider quota exceeded", "message", ev.Message)
	case provider.EventError:
		m.err = errs.New(errs.ErrNetwork, "stream", detail(ev.Message, "provider error"))
		m.logger.Warn("provider error", "message", ev.Message)
	case provider.EventDisconnect:
		m.flushPartialLocked()
		stale = m.dropConnLocked()
		m.err = errs.New(errs.ErrNetwork, "stream", "disconnected: "+detail(ev.Message, "connection lost"))
		m.setStatusLocked(StatusError)
	default:
		changed = false
	}
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	if changed {
		m.notify()
	}
}

func (m *Manager) commitTimestampedLocked(ev provider.Event) {
	m.partial = ""
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	words := make([]transcript.Word, 0, len(ev.Words))
	for _, w := range ev.Words {
		if w.Type != "" && w.Type != "word" {
			continue
		}
		words = append(words, transcript.Word{Text: w.Text, SpeakerID: w.SpeakerID})
	}
	id := transcript.DominantSpeaker(words)

	m.segments = append(m.segments, transcript.Segment{
		Text:      text,
		SpeakerID: id,
		StartTime: ev.Start,
		EndTime:   ev.End,
	})
	if id != "" {
		m.addSpeakerLocked(id)
	}
}

// commitFallbackLocked appends an untimed commit unless it repeats the last
// segment, which means the timestamped variant was already applied.
func (m *Manager) commitFallbackLocked(raw string) {
	m.partial = ""
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}
	if n := len(m.segments); n > 0 && m.segments[n-1].Text == text {
		return
	}
	m.segments = append(m.segments, transcript.Segment{Text: text})
}

func (m *Manager) flushPartialLocked() {
	m.commitFallbackLocked(m.partial)
}

func (m *Manager) addSpeakerLocked(id string) {
	for _, s := range m.speakerIDs {
		if s == id {
			return
		}
	}
	m.speakerIDs = append(m.speakerIDs, id)
	m.speakers.IdentityFor(id)
}

// dropConnLocked detaches the current connection and invalidates its events.
func (m *Manager) dropConnLocked() provider.Conn {
	conn := m.conn
	m.conn = nil
	m.gen++
	return conn
}

func (m *Manager) setStatusLocked(to Status) {
	if m.status == to {
		return
	}
	m.logger.Info("session state changed", "from", m.status.String(), "to", to.String())
	m.status = to
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func closeConn(conn provider.Conn, op string) error {
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return errs.Wrap(errs.ErrNetwork, op, err)
	}
	return nil
}

func detail(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
