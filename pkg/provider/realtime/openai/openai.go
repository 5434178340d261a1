// Package openai implements the realtime.Provider interface for OpenAI's
// Realtime API in transcription-only mode.
//
// It establishes a WebSocket connection to the Realtime endpoint and
// exchanges JSON events per the Realtime protocol. Audio is transmitted as
// base64-encoded PCM16 chunks. When the server announces session.created,
// the provider sends one session.update directive enabling server-side
// voice-activity turn detection and Whisper input transcription, then
// surfaces transcript deltas and completions on the Events channel.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/partline/partline/pkg/provider/realtime"
)

var _ realtime.Provider = (*Provider)(nil)
var _ realtime.Session = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview-2024-10-01"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// Server VAD defaults, matching the historical session directive.
	defaultVADThreshold      = 0.5
	defaultPrefixPaddingMs   = 300
	defaultSilenceDurationMs = 500

	defaultTranscriptionModel = "whisper-1"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Realtime model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTranscriptionModel sets the input transcription model (default whisper-1).
func WithTranscriptionModel(model string) Option {
	return func(p *Provider) { p.transcriptionModel = model }
}

// WithTurnDetection overrides the server VAD parameters sent in the
// session directive.
func WithTurnDetection(threshold float64, prefixPaddingMs, silenceDurationMs int) Option {
	return func(p *Provider) {
		p.vadThreshold = threshold
		p.prefixPaddingMs = prefixPaddingMs
		p.silenceDurationMs = silenceDurationMs
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements realtime.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey             string
	model              string
	baseURL            string
	transcriptionModel string
	vadThreshold       float64
	prefixPaddingMs    int
	silenceDurationMs  int
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:             apiKey,
		model:              defaultModel,
		baseURL:            defaultBaseURL,
		transcriptionModel: defaultTranscriptionModel,
		vadThreshold:       defaultVADThreshold,
		prefixPaddingMs:    defaultPrefixPaddingMs,
		silenceDurationMs:  defaultSilenceDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect implements realtime.Provider. The returned Session accepts audio
// immediately; the session directive is sent automatically once the server
// announces session.created.
func (p *Provider) Connect(ctx context.Context) (realtime.Session, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai realtime: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:     conn,
		provider: p,
		events:   make(chan realtime.Event, 32),
		ctx:      sessCtx,
		cancel:   sessCancel,
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types ─────────────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	TurnDetection      turnDetection      `json:"turn_detection"`
	InputAudioFormat   string             `json:"input_audio_format"`
	InputTranscription inputTranscription `json:"input_audio_transcription"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type inputTranscription struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// serverErrorDetail is the nested error object in a Realtime error event.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// conversation.item.input_audio_transcription.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn     *websocket.Conn
	provider *Provider
	events   chan realtime.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionConfig sends the fixed session.update directive.
func (s *session) sendSessionConfig() error {
	p := s.provider
	return s.writeJSON(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         p.vadThreshold,
				PrefixPaddingMs:   p.prefixPaddingMs,
				SilenceDurationMs: p.silenceDurationMs,
			},
			InputAudioFormat:   "pcm16",
			InputTranscription: inputTranscription{Model: p.transcriptionModel},
		},
	})
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads server events from the WebSocket and dispatches them.
// It owns the events channel and closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.created":
		if err := s.sendSessionConfig(); err != nil {
			s.emit(realtime.Event{Type: realtime.EventError, Err: err})
			return
		}
		s.emit(realtime.Event{Type: realtime.EventReady})

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(realtime.Event{Type: realtime.EventDelta, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		s.emit(realtime.Event{Type: realtime.EventCompleted, Text: evt.Transcript})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(realtime.Event{Type: realtime.EventError, Err: fmt.Errorf("openai realtime: %s", msg)})
	}
}

func (s *session) emit(ev realtime.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio implements realtime.Session.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai realtime: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
}

// Events implements realtime.Session.
func (s *session) Events() <-chan realtime.Event { return s.events }

// Err implements realtime.Session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close implements realtime.Session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
