package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

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

// Evaluator resolves and runs single operators. *engine.Engine implements it.
type Evaluator interface {
	Resolve(d engine.Descriptor) (*engine.Operator, error)
	Evaluate(d engine.Descriptor, inputs []tensor.Value, attrs engine.Attributes, optFns ...engine.EvalOption) ([]tensor.Value, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   8 << 20,
		workers:        2,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps the size of a POST /v1/evaluate body.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent evaluations. Zero
// disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request evaluation deadline.
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
	eval Evaluator
	opts options
	sem  chan struct{}
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, GET /v1/operators
// and POST /v1/evaluate.
func NewHandler(eval Evaluator, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		eval: eval,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/v1/operators", h.handleOperators)
	mux.HandleFunc("/v1/evaluate", h.handleEvaluate)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleOperators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	writeJSON(w, http.StatusOK, engine.Operators())
}

// EvaluateRequest is the body of POST /v1/evaluate. A null input is an
// omitted optional input. Attribute values are JSON numbers, strings,
// arrays, or Value objects for tensor attributes.
type EvaluateRequest struct {
	Op         string                     `json:"op"`
	Version    int                        `json:"version,omitempty"`
	Inputs     []*Value                   `json:"inputs"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
	// Seed fixes the random source of stochastic operators for this call.
	Seed *uint64 `json:"seed,omitempty"`
}

// EvaluateResponse is the success body of POST /v1/evaluate.
type EvaluateResponse struct {
	Op         string   `json:"op"`
	Since      int      `json:"since"`
	Outputs    []*Value `json:"outputs"`
	DurationMS float64  `json:"duration_ms"`
}

type evalResult struct {
	outputs []tensor.Value
	err     error
}

func (h *handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes)

	var req EvaluateRequest

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds maximum size of %d bytes", h.opts.maxBodyBytes), "")

			return
		}

		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "")

		return
	}

	if req.Op == "" {
		writeError(w, http.StatusBadRequest, "op field is required", "")
		return
	}

	d := engine.Descriptor{Name: req.Op, Version: req.Version}

	op, err := h.eval.Resolve(d)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	inputs, attrs, err := decodeRequest(op, &req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var evalOpts []engine.EvalOption
	if req.Seed != nil {
		evalOpts = append(evalOpts, engine.WithRand(rand.New(rand.NewPCG(*req.Seed, 0))))
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker", "")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan evalResult, 1)

	// The slot is held until the kernel returns, even after a timeout.
	go func() {
		if h.sem != nil {
			defer func() { <-h.sem }()
		}

		defer func() {
			if r := recover(); r != nil {
				done <- evalResult{err: fmt.Errorf("server: evaluate %s panicked: %v", req.Op, r)}
			}
		}()

		outs, err := h.eval.Evaluate(d, inputs, attrs, evalOpts...)
		done <- evalResult{outputs: outs, err: err}
	}()

	var res evalResult

	select {
	case res = <-done:
	case <-ctx.Done():
		h.log.WarnContext(r.Context(), "evaluation timed out",
			slog.String("op", req.Op),
			slog.Int("version", req.Version),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		writeError(w, http.StatusGatewayTimeout, "evaluation timed out", "")

		return
	}

	duration := time.Since(start)

	if res.err != nil {
		h.log.InfoContext(r.Context(), "evaluation failed",
			slog.String("op", req.Op),
			slog.Int("since", op.Since),
			slog.String("kind", engine.Kind(res.err)),
			slog.Int64("duration_ms", duration.Milliseconds()),
			slog.String("error", res.err.Error()),
		)
		writeEngineError(w, res.err)

		return
	}

	resp := EvaluateResponse{
		Op:         op.Name,
		Since:      op.Since,
		Outputs:    make([]*Value, len(res.outputs)),
		DurationMS: float64(duration.Microseconds()) / 1000,
	}

	for i, v := range res.outputs {
		if resp.Outputs[i], err = EncodeValue(v); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "Internal")
			return
		}
	}

	h.log.InfoContext(r.Context(), "evaluation complete",
		slog.String("op", req.Op),
		slog.Int("since", op.Since),
		slog.Int("inputs", len(inputs)),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	writeJSON(w, http.StatusOK, resp)
}

func decodeRequest(op *engine.Operator, req *EvaluateRequest) ([]tensor.Value, engine.Attributes, error) {
	inputs := make([]tensor.Value, len(req.Inputs))

	for i, in := range req.Inputs {
		v, err := in.Decode()
		if err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", i, err)
		}

		inputs[i] = v
	}

	raw := make(map[string]any, len(req.Attributes))

	for name, msg := range req.Attributes {
		v, err := decodeAttribute(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("attribute %q: %w", name, err)
		}

		raw[name] = v
	}

	attrs, err := op.CoerceAll(raw)
	if err != nil {
		return nil, nil, err
	}

	return inputs, attrs, nil
}

// decodeAttribute turns a JSON object into a tensor and leaves every other
// JSON value for engine coercion.
func decodeAttribute(msg json.RawMessage) (any, error) {
	if bytes.HasPrefix(bytes.TrimSpace(msg), []byte("{")) {
		var v Value

		dec := json.NewDecoder(bytes.NewReader(msg))
		dec.UseNumber()

		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadValue, err)
		}

		return v.decodeTensor()
	}

	var out any

	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()

	if err := dec.Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

// statusFor maps an error kind to an HTTP status. Caller mistakes are 4xx;
// anything outside the taxonomy is a 500.
func statusFor(kind string) int {
	switch kind {
	case "UnknownOperator":
		return http.StatusNotFound
	case "Internal":
		return http.StatusInternalServerError
	}

	return http.StatusUnprocessableEntity
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.Kind(err)
	status := statusFor(kind)

	if errors.Is(err, ErrBadValue) {
		kind, status = "InvalidValue", http.StatusBadRequest
	}

	writeError(w, status, err.Error(), kind)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// ---------------------------------------------------------------------------
// Server wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	eval            Evaluator
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New returns a server for eval. A nil eval builds an engine from cfg.
func New(cfg config.Config, eval Evaluator) *Server {
	return &Server{
		cfg:             cfg,
		eval:            eval,
		logger:          slog.Default(),
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the logger for requests and the engine built by Start.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Start serves until ctx is done, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	eval := s.eval
	if eval == nil {
		eval = engine.New(EngineOptions(s.cfg, s.logger)...)
	}

	h := NewHandler(eval,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
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

	s.logger.Info("listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}

// EngineOptions translates the engine section of cfg. A negative seed
// leaves stochastic operators unseeded.
func EngineOptions(cfg config.Config, logger *slog.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDefaultOpset(cfg.Engine.DefaultOpset),
	}

	if cfg.Engine.Seed >= 0 {
		opts = append(opts, engine.WithSeed(uint64(cfg.Engine.Seed)))
	}

	return opts
}

// CheckHealth checks that a server answers GET /health at addr.
func CheckHealth(addr string) error {
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
