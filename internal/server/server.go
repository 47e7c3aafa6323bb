package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/config"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

// maxBodyBytes caps any request body; text fields are checked separately
// against the configured text limit.
const maxBodyBytes = 1 << 20

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Tokenizer is the model surface the handler serves. *bpe.Model satisfies it.
type Tokenizer interface {
	Encode(text string) bpe.Encoding
	DecodeWithOptions(ids []int, opts bpe.DecodeOptions) (string, error)
	DecodeWords(enc bpe.Encoding) string
	IDToSymbol(id int) (string, error)
	Vocabulary() *bpe.Vocabulary
	Merges() []bpe.MergeRule
	UnkToken() string
	PreTokenizer() pretokenize.Mode
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   8192,
		workers:        4,
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /encode.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent encode/decode calls.
// Zero or less disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	tok  Tokenizer
	opts options
	sem  chan struct{}
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /vocab,
// POST /encode and POST /decode.
func NewHandler(tok Tokenizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		tok:  tok,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/vocab", h.handleVocab)
	mux.HandleFunc("/encode", h.handleEncode)
	mux.HandleFunc("/decode", h.handleDecode)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    buildVersion(),
		"vocab_size": h.tok.Vocabulary().Len(),
	})
}

type vocabResponse struct {
	Size         int      `json:"size"`
	Specials     []string `json:"specials"`
	Merges       int      `json:"merges"`
	UnkToken     string   `json:"unk_token"`
	PreTokenizer string   `json:"pre_tokenizer"`
}

func (h *handler) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	v := h.tok.Vocabulary()
	writeJSON(w, http.StatusOK, vocabResponse{
		Size:         v.Len(),
		Specials:     v.Specials(),
		Merges:       len(h.tok.Merges()),
		UnkToken:     h.tok.UnkToken(),
		PreTokenizer: string(h.tok.PreTokenizer()),
	})
}

type encodeRequest struct {
	Text string `json:"text"`
}

func (h *handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}
	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	var enc bpe.Encoding
	start := time.Now()
	err := h.run(w, r, func() { enc = h.tok.Encode(req.Text) })
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		h.log.WarnContext(r.Context(), "encode did not finish",
			slog.Int("text_len", len(req.Text)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		return
	}

	h.log.InfoContext(r.Context(), "encode complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", enc.Len()),
		slog.Int("unknown", enc.Unknown),
		slog.Int64("duration_ms", durationMS),
	)

	if enc.IDs == nil {
		enc = bpe.Encoding{IDs: []int{}, Symbols: []string{}, WordStarts: []int{}}
	}
	writeJSON(w, http.StatusOK, enc)
}

type decodeRequest struct {
	IDs         []int  `json:"ids"`
	WordStarts  []int  `json:"word_starts"`
	Join        string `json:"join"`
	SkipSpecial bool   `json:"skip_special"`
}

const (
	joinSpace = "space"
	joinWords = "words"
)

func (h *handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids field is required")
		return
	}
	switch req.Join {
	case "", joinSpace:
	case joinWords:
		if req.WordStarts == nil {
			writeError(w, http.StatusBadRequest, "word_starts is required when join is \"words\"")
			return
		}
		if err := checkWordStarts(req.WordStarts, len(req.IDs)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown join %q (want space|words)", req.Join))
		return
	}

	var (
		text   string
		decErr error
	)
	start := time.Now()
	err := h.run(w, r, func() {
		if req.Join == joinWords {
			text, decErr = h.decodeWords(req)
			return
		}
		text, decErr = h.tok.DecodeWithOptions(req.IDs, bpe.DecodeOptions{SkipSpecial: req.SkipSpecial})
	})
	durationMS := time.Since(start).Milliseconds()
	if err == nil && decErr != nil {
		err = decErr
		writeError(w, http.StatusBadRequest, decErr.Error())
	}
	if err != nil {
		h.log.WarnContext(r.Context(), "decode failed",
			slog.Int("ids", len(req.IDs)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		return
	}

	h.log.InfoContext(r.Context(), "decode complete",
		slog.Int("tokens", len(req.IDs)),
		slog.Int("text_len", len(text)),
		slog.String("join", req.Join),
		slog.Int64("duration_ms", durationMS),
	)
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// decodeWords rebuilds word-joined text. Dropped special tokens hand their
// word boundary to the next kept token.
func (h *handler) decodeWords(req decodeRequest) (string, error) {
	vocab := h.tok.Vocabulary()
	enc := bpe.Encoding{
		IDs:     make([]int, 0, len(req.IDs)),
		Symbols: make([]string, 0, len(req.IDs)),
	}

	pending := false
	next := 0
	for i, id := range req.IDs {
		if next < len(req.WordStarts) && req.WordStarts[next] == i {
			pending = true
			next++
		}
		s, err := h.tok.IDToSymbol(id)
		if err != nil {
			return "", fmt.Errorf("%w (position %d)", err, i)
		}
		if req.SkipSpecial && vocab.IsSpecial(id) {
			continue
		}
		if pending {
			enc.WordStarts = append(enc.WordStarts, len(enc.IDs))
			pending = false
		}
		enc.IDs = append(enc.IDs, id)
		enc.Symbols = append(enc.Symbols, s)
	}
	return h.tok.DecodeWords(enc), nil
}

func checkWordStarts(starts []int, n int) error {
	prev := -1
	for _, s := range starts {
		if s <= prev || s >= n {
			return fmt.Errorf("word_starts must be strictly increasing indexes below %d", n)
		}
		prev = s
	}
	return nil
}

// decodeRequest parses a POST JSON body into v and writes the error response
// itself when it returns false.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// run executes fn under a worker slot and the request deadline. On a non-nil
// return the error response has been written and fn's results must not be
// read. The slot stays taken until fn returns, even after a timeout.
func (h *handler) run(w http.ResponseWriter, r *http.Request, fn func()) error {
	// Acquire a worker slot; honour context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return r.Context().Err()
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if h.sem != nil {
			defer func() { <-h.sem }()
		}
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		writeError(w, http.StatusGatewayTimeout, "request timed out")
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tok             Tokenizer
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.Config, tok Tokenizer) *Server {
	return &Server{
		cfg:             cfg,
		tok:             tok,
		logger:          slog.Default(),
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.tok == nil {
		return errors.New("server has no tokenizer model")
	}

	h := NewHandler(s.tok,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithLogger(s.logger),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("server listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks GET /health on addr. A bare ":port" probes localhost.
func ProbeHTTP(addr string) error {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
