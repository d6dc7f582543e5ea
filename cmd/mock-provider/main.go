package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	APIKey            string  `envconfig:"MOCK_API_KEY" default:"mock_key"`
	Port              string  `envconfig:"PORT" default:"8080"`
	OutcomeMode       string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw       string  `envconfig:"MOCK_OUTCOMES" default:"ok"`
	SuccessRate       float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	FailureTypesRaw   string  `envconfig:"MOCK_FAILURE_TYPES" default:"server_error"`
	FailureWeightsRaw string  `envconfig:"MOCK_FAILURE_WEIGHTS" default:""`
	DelayMs           int     `envconfig:"MOCK_DELAY_MS" default:"0"`
	TimeoutDelayMs    int     `envconfig:"MOCK_TIMEOUT_DELAY_MS" default:"12000"`

	ReplyText string `envconfig:"MOCK_REPLY_TEXT" default:"Hello! This is a mock completion."`

	// Streaming shape: reply text is cut into chunks of this many runes,
	// with an optional pause between chunks.
	StreamChunkSize    int `envconfig:"MOCK_STREAM_CHUNK_SIZE" default:"8"`
	StreamChunkDelayMs int `envconfig:"MOCK_STREAM_CHUNK_DELAY_MS" default:"0"`

	// When set, requests carrying tool definitions get a scripted tool call
	// until the conversation contains a tool result, then the reply text.
	ToolCallName string `envconfig:"MOCK_TOOL_CALL_NAME" default:""`
	ToolCallArgs string `envconfig:"MOCK_TOOL_CALL_ARGS" default:"{}"`

	Outcomes       []string
	FailureTypes   []string
	FailureWeights []weightedOutcome
	Delay          time.Duration
	TimeoutDelay   time.Duration
	StreamDelay    time.Duration
}

type weightedOutcome struct {
	Kind   string
	Weight float64
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []any         `json:"tools"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type server struct {
	cfg   config
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
}

func main() {
	cfg := loadConfig()
	loggingInit()

	s := &server{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	router := mux.NewRouter()
	router.HandleFunc("/v1/chat/completions", s.handleCompletion).Methods(http.MethodPost)

	slog.Info("mock provider listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, loggingMiddleware(router)); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func loggingInit() {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock provider request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock provider config load failed", "err", err)
		os.Exit(1)
	}
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.FailureTypes = parseCSV(cfg.FailureTypesRaw)
	cfg.FailureWeights = parseWeightedOutcomes(cfg.FailureWeightsRaw)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	cfg.TimeoutDelay = time.Duration(cfg.TimeoutDelayMs) * time.Millisecond
	cfg.StreamDelay = time.Duration(cfg.StreamChunkDelayMs) * time.Millisecond

	if cfg.StreamChunkSize <= 0 {
		cfg.StreamChunkSize = 8
	}
	if len(cfg.Outcomes) == 0 {
		cfg.Outcomes = []string{"ok"}
	}
	if len(cfg.FailureTypes) == 0 {
		cfg.FailureTypes = []string{"server_error"}
	}
	if len(cfg.FailureWeights) == 0 {
		cfg.FailureWeights = make([]weightedOutcome, 0, len(cfg.FailureTypes))
		for _, t := range cfg.FailureTypes {
			cfg.FailureWeights = append(cfg.FailureWeights, weightedOutcome{Kind: t, Weight: 1})
		}
	}
	return cfg
}

func (s *server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !s.checkBearer(r) {
		s.maybeDelayResponse(r.Context(), start)
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.maybeDelayResponse(r.Context(), start)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		s.maybeDelayResponse(r.Context(), start)
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.Delay):
		}
	}

	outcome := s.nextOutcome()
	httpStatus, callErr := classifyOutcome(outcome)
	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) {
			time.Sleep(s.cfg.TimeoutDelay)
			writeError(w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		s.maybeDelayResponse(r.Context(), start)
		writeError(w, httpStatus, callErr.Error())
		return
	}

	if s.wantsToolCall(req) {
		s.maybeDelayResponse(r.Context(), start)
		s.writeToolCall(w, req.Model)
		return
	}

	if req.Stream {
		s.streamReply(w, r.Context())
		return
	}

	s.maybeDelayResponse(r.Context(), start)
	s.writeReply(w, req.Model)
}

// wantsToolCall reports whether this turn should be answered with the
// scripted tool call. Once a tool result is in the history, the loop is
// considered resolved and the reply text goes out instead.
func (s *server) wantsToolCall(req chatRequest) bool {
	if s.cfg.ToolCallName == "" || len(req.Tools) == 0 {
		return false
	}
	for _, m := range req.Messages {
		if m.Role == "tool" {
			return false
		}
	}
	return true
}

func (s *server) writeToolCall(w http.ResponseWriter, model string) {
	var tc toolCall
	tc.ID = fmtID("call", atomic.AddUint64(&s.idx, 1)-1)
	tc.Type = "function"
	tc.Function.Name = s.cfg.ToolCallName
	tc.Function.Arguments = s.cfg.ToolCallArgs

	resp := chatResponse{
		ID:     fmtID("chatcmpl", atomic.AddUint64(&s.idx, 1)-1),
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", ToolCalls: []toolCall{tc}},
			FinishReason: "tool_calls",
		}},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) writeReply(w http.ResponseWriter, model string) {
	resp := chatResponse{
		ID:     fmtID("chatcmpl", atomic.AddUint64(&s.idx, 1)-1),
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: s.cfg.ReplyText},
			FinishReason: "stop",
		}},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) streamReply(w http.ResponseWriter, ctx context.Context) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)

	runes := []rune(s.cfg.ReplyText)
	for i := 0; i < len(runes); i += s.cfg.StreamChunkSize {
		end := i + s.cfg.StreamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		frame := map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": string(runes[i:end])}},
			},
		}
		b, _ := json.Marshal(frame)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
		if s.cfg.StreamDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.StreamDelay):
			}
		}
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

func (s *server) checkBearer(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.cfg.APIKey
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "weighted":
		s.rngMu.Lock()
		ok := s.rng.Float64() <= s.cfg.SuccessRate
		r := s.rng.Float64()
		s.rngMu.Unlock()
		if ok {
			return "ok"
		}
		return pickWeighted(r, s.cfg.FailureWeights)
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

func (s *server) maybeDelayResponse(ctx context.Context, start time.Time) {
	const (
		min = 100 * time.Millisecond
		max = 500 * time.Millisecond
	)

	elapsed := time.Since(start)
	if elapsed >= min {
		return
	}

	// Pick a target total latency in [min, max] and sleep the remaining time.
	s.rngMu.Lock()
	target := min + time.Duration(s.rng.Int63n(int64(max-min)+1))
	s.rngMu.Unlock()

	remain := target - elapsed
	if remain <= 0 {
		return
	}

	t := time.NewTimer(remain)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return
	case <-t.C:
		return
	}
}

func classifyOutcome(raw string) (httpStatus int, callErr error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		token = "ok"
	}
	kind := strings.Split(token, ":")[0]

	switch kind {
	case "ok", "success":
		return http.StatusOK, nil
	case "rate_limit", "429":
		return http.StatusTooManyRequests, errors.New("rate limited")
	case "payment", "402":
		return http.StatusPaymentRequired, errors.New("insufficient credits")
	case "bad_request", "400":
		return http.StatusBadRequest, errors.New("bad request")
	case "server_error", "500":
		return http.StatusInternalServerError, errors.New("server error")
	case "timeout":
		return http.StatusGatewayTimeout, context.DeadlineExceeded
	default:
		return http.StatusInternalServerError, errors.New("mock error: " + kind)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "code": status},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fmtID(prefix string, i uint64) string {
	return prefix + "-" + fmt.Sprintf("%06d", i)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"ok"}
	}
	return out
}

func parseWeightedOutcomes(s string) []weightedOutcome {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]weightedOutcome, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.Split(p, ":")
		if len(kv) != 2 {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil || w <= 0 {
			continue
		}
		kind := strings.TrimSpace(kv[0])
		if kind == "" {
			continue
		}
		out = append(out, weightedOutcome{Kind: kind, Weight: w})
	}
	return out
}

func pickWeighted(r float64, items []weightedOutcome) string {
	if len(items) == 0 {
		return "server_error"
	}
	var total float64
	for _, it := range items {
		total += it.Weight
	}
	if total <= 0 {
		return items[0].Kind
	}
	target := r * total
	var cumulative float64
	for _, it := range items {
		cumulative += it.Weight
		if target <= cumulative {
			return it.Kind
		}
	}
	return items[len(items)-1].Kind
}
