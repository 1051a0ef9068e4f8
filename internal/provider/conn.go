package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/logging"
)

// DefaultURL is the realtime speech-to-text websocket endpoint.
const DefaultURL = "wss://api.elevenlabs.io/v1/speech-to-text/realtime"

// Conn is one open streaming session with the provider.
type Conn interface {
	// Events delivers provider events in arrival order. The channel is closed
	// after the connection stops reading.
	Events() <-chan Event
	// SendAudio sends one frame of 16-bit little-endian mono PCM.
	SendAudio(ctx context.Context, pcm []byte) error
	// Close ends the session. Safe to call more than once.
	Close() error
}

// Dialer opens provider connections authenticated by a single-use token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WebSocketDialer dials the provider over a websocket.
type WebSocketDialer struct {
	URL          string
	ModelID      string
	LanguageCode string
	SampleRate   int
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

// Dial opens a connection and starts its read loop.
func (d *WebSocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	endpoint, err := d.endpoint(token)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, "dial provider", err)
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errs.Wrapf(errs.ErrAuth, "dial provider", err, "handshake rejected (HTTP %d)", resp.StatusCode)
		}
		return nil, errs.Wrap(errs.ErrNetwork, "dial provider", err)
	}

	c := newWSConn(ws, d.sampleRate(), logger)
	go c.readLoop()
	return c, nil
}

func (d *WebSocketDialer) sampleRate() int {
	if d.SampleRate <= 0 {
		return 16000
	}
	return d.SampleRate
}

func (d *WebSocketDialer) endpoint(token string) (string, error) {
	raw := d.URL
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	if d.ModelID != "" {
		q.Set("model_id", d.ModelID)
	}
	if d.LanguageCode != "" {
		q.Set("language_code", d.LanguageCode)
	}
	q.Set("include_timestamps", "true")
	q.Set("audio_format", "pcm_"+strconv.Itoa(d.sampleRate()))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsConn struct {
	ws         *websocket.Conn
	sampleRate int
	logger     *slog.Logger

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newWSConn(ws *websocket.Conn, sampleRate int, logger *slog.Logger) *wsConn {
	return &wsConn{
		ws:         ws,
		sampleRate: sampleRate,
		logger:     logger,
		events:     make(chan Event, 64),
		closed:     make(chan struct{}),
	}
}

func (c *wsConn) Events() <-chan Event { return c.events }

// readLoop decodes frames until the socket fails. A failure that was not
// caused by Close yields one EventDisconnect.
func (c *wsConn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("provider connection lost", "error", err)
			c.emit(Event{Kind: EventDisconnect, Message: err.Error()})
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("skipping malformed provider message", "error", err)
			continue
		}
		ev, ok := msg.ToEvent()
		if !ok {
			continue
		}
		if !c.emit(ev) {
			return
		}
	}
}

func (c *wsConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *wsConn) SendAudio(ctx context.Context, pcm []byte) error {
	if c.isClosed() {
		return errs.New(errs.ErrInvalidState, "send audio", "connection closed")
	}

	chunk := AudioChunk{
		MessageType: TypeInputAudioChunk,
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  c.sampleRate,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errs.Wrap(errs.ErrNetwork, "send audio", err)
	}
	if err := c.ws.WriteJSON(chunk); err != nil {
		return errs.Wrap(errs.ErrNetwork, "send audio", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		if cerr := c.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("close provider connection: %w", cerr)
		}
	})
	return err
}
