// Package server exposes the Partline HTTP surface: the /ws streaming
// session endpoint, the /top batch matching endpoint, health probes, and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/partline/partline/internal/health"
	"github.com/partline/partline/internal/match"
	"github.com/partline/partline/internal/observe"
	"github.com/partline/partline/internal/session"
	"github.com/partline/partline/pkg/provider/realtime"
	"github.com/partline/partline/pkg/types"
)

// Matcher is the matching surface the server needs. Implemented by
// [match.Engine].
type Matcher interface {
	Match(ctx context.Context, mentions []types.Mention) ([]match.Result, error)
	MatchTopK(ctx context.Context, mentions []types.Mention, k int) ([]match.Result, error)
}

// sentinel errors marking a clean end of a streaming session.
var (
	errUpstreamClosed = errors.New("upstream session closed")
	errQueueDrained   = errors.New("outbound queue drained")
)

// Option is a functional option for Server.
type Option func(*Server)

// WithSessionOptions forwards options to every client session pipeline.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessionOpts = opts }
}

// WithOriginPatterns sets the WebSocket origin patterns accepted on /ws.
// Empty means same-origin only.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// WithHealth registers the given health handler's routes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server holds the handlers for the Partline HTTP surface.
type Server struct {
	realtime  realtime.Provider
	extractor session.Extractor
	matcher   Matcher
	logger    *slog.Logger
	metrics   *observe.Metrics
	health    *health.Handler

	sessionOpts    []session.Option
	originPatterns []string
}

// New creates a Server.
func New(rt realtime.Provider, extractor session.Extractor, matcher Matcher, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		realtime:  rt,
		extractor: extractor,
		matcher:   matcher,
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the full route table. The /ws endpoint skips the
// observability middleware because the connection is hijacked; everything
// else is wrapped.
func (s *Server) Handler() http.Handler {
	mw := observe.Middleware(s.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("POST /top", mw(http.HandlerFunc(s.handleTop)))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

// ── /ws ───────────────────────────────────────────────────────────────────────

// clientFrame is an inbound text frame. Anything that is not a recognised
// JSON directive is treated as base64-encoded PCM16 audio.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	// The connection outlives the request once hijacked.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := s.realtime.Connect(ctx)
	if err != nil {
		s.logger.Error("transcription upstream unavailable", "error", err)
		conn.Close(websocket.StatusInternalError, "transcription upstream unavailable")
		return
	}

	pipe := session.New(upstream, s.extractor, s.matcher, s.logger, s.sessionOpts...)
	defer pipe.Close()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)
	s.logger.Info("session started", "remote", r.RemoteAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := pipe.Run(gctx); err != nil {
			return err
		}
		return errUpstreamClosed
	})

	g.Go(func() error {
		for {
			typ, data, err := conn.Read(gctx)
			if err != nil {
				return err
			}
			s.handleClientFrame(gctx, pipe, typ, data)
		}
	})

	g.Go(func() error {
		for {
			msg, ok, err := pipe.Messages().Pop(gctx)
			if err != nil {
				return err
			}
			if !ok {
				return errQueueDrained
			}
			if err := wsjson.Write(gctx, conn, msg); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errUpstreamClosed), errors.Is(err, errQueueDrained), errors.Is(err, context.Canceled):
		s.logger.Info("session ended", "remote", r.RemoteAddr)
	default:
		s.logger.Warn("session ended with error", "remote", r.RemoteAddr, "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (s *Server) handleClientFrame(ctx context.Context, pipe *session.Pipeline, typ websocket.MessageType, data []byte) {
	if typ == websocket.MessageBinary {
		if err := pipe.ForwardAudio(data); err != nil {
			s.logger.Warn("audio forward failed", "error", err)
		}
		return
	}

	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err == nil && frame.Type == "paste" {
		pipe.SubmitText(ctx, frame.Text)
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		s.logger.Warn("unrecognised client frame dropped", "bytes", len(data))
		return
	}
	if err := pipe.ForwardAudio(pcm); err != nil {
		s.logger.Warn("audio forward failed", "error", err)
	}
}

// ── /top ──────────────────────────────────────────────────────────────────────

// handleTop matches a batch of part names in one shot. The body is either a
// JSON array of mention objects or a bare array of strings; the response is
// an array in input order holding the matched row or null.
func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "k must be a positive integer", http.StatusBadRequest)
			return
		}
		k = parsed
	}

	mentions, err := decodeMentions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(mentions) == 0 {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	results, err := s.matcher.MatchTopK(r.Context(), mentions, k)
	if err != nil {
		s.logger.Error("batch matching failed", "error", err)
		http.Error(w, "matching failed", http.StatusBadGateway)
		return
	}

	out := make([]any, len(results))
	for i, res := range results {
		if res.Matched() {
			out[i] = res.Row.Wire()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeMentions(r *http.Request) ([]types.Mention, error) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.New("body must be a JSON array")
	}

	var mentions []types.Mention
	if err := json.Unmarshal(body, &mentions); err == nil {
		for i := range mentions {
			if mentions[i].Quantity < 1 {
				mentions[i].Quantity = 1
			}
		}
		return mentions, nil
	}

	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, errors.New("body must be an array of part names or mention objects")
	}
	mentions = make([]types.Mention, len(names))
	for i, n := range names {
		mentions[i] = types.Mention{PartName: n, Quantity: 1}
	}
	return mentions, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
