// Package api serves the text-to-animal backend:
//
//	POST /v1/text-to-animal  {"text": "the cow says moo"}
//	200 {"animal": "cow", "confidence": 1}
//
// Errors are JSON {"code": "...", "message": "..."}: 400 invalid_request for
// bad JSON, empty or overlong text, 405 method_not_allowed, and 503
// service_unavailable when no animal can be determined.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/resolve"
)

// Path is the route of the text-to-animal endpoint.
const Path = "/v1/text-to-animal"

// DefaultMaxTextLength is the longest accepted text, in characters.
const DefaultMaxTextLength = 500

// maxBodyBytes caps the request body regardless of the text limit.
const maxBodyBytes = 16 << 10

// Resolver answers a word with an animal.
type Resolver interface {
	Resolve(ctx context.Context, word string) resolve.Result
}

// Request is the JSON body of a text-to-animal call.
type Request struct {
	Text string `json:"text"`
}

// Response is the JSON body of a successful call.
type Response struct {
	Animal     string  `json:"animal"`
	Confidence float64 `json:"confidence"`
}

// ErrorResponse is the JSON body of a failed call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler implements the endpoint on top of a [Resolver].
type Handler struct {
	resolver      Resolver
	maxTextLength int
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxTextLength overrides [DefaultMaxTextLength].
func WithMaxTextLength(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxTextLength = n
		}
	}
}

// NewHandler returns a handler backed by r.
func NewHandler(r Resolver, opts ...Option) *Handler {
	h := &Handler{resolver: r, maxTextLength: DefaultMaxTextLength}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the endpoint on mux. Other methods get 405 from the handler
// itself so the error body stays JSON.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(Path, h)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if utf8.RuneCountInString(text) > h.maxTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "text too long")
		return
	}

	res := h.lookup(r.Context(), text)
	if !res.Found() {
		observe.Logger(r.Context()).Info("api: no animal", "text", text)
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "no animal found")
		return
	}
	writeJSON(w, http.StatusOK, Response{Animal: res.AnimalKey, Confidence: res.Confidence})
}

// lookup resolves the whole text first and then each word in order, so both
// "moo" and "the cow says moo" find the cow.
func (h *Handler) lookup(ctx context.Context, text string) resolve.Result {
	res := h.resolver.Resolve(ctx, text)
	if res.Found() {
		return res
	}
	words := strings.Fields(text)
	if len(words) < 2 {
		return res
	}
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
		if w == "" {
			continue
		}
		if res := h.resolver.Resolve(ctx, w); res.Found() {
			return res
		}
	}
	return resolve.Result{}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || r == '\'' || r == '-'
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
