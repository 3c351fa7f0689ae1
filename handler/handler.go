package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 64 << 10
	statusMessage     = "Chat API Server is running"
)

// ChatUseCase is the forwarding pipeline behind POST /api/chat.
type ChatUseCase interface {
	Chat(ctx context.Context, body any) (domain.ChatReply, error)
}

// MetricsRecorder receives per-request observations.
type MetricsRecorder interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	ObserveError(errorType string)
}

type Handler struct {
	chat    ChatUseCase
	metrics MetricsRecorder
	scrape  http.Handler
	cors    CORSConfig
	now     func() time.Time
	routes  http.Handler
}

type Option func(*Handler)

// WithMetrics records requests and errors and, when scrape is non-nil,
// serves it on GET /metrics.
func WithMetrics(m MetricsRecorder, scrape http.Handler) Option {
	return func(h *Handler) {
		h.metrics = m
		h.scrape = scrape
	}
}

func WithCORS(cfg CORSConfig) Option {
	return func(h *Handler) {
		h.cors = cfg
	}
}

func NewHandler(chat ChatUseCase, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{
		chat: chat,
		cors: DefaultCORSConfig(nil),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = h.buildRoutes()
	return h, nil
}

// ServeHTTP makes the Handler usable directly as an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.routes.ServeHTTP(w, r)
}

func (h *Handler) buildRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleStatus)
	mux.HandleFunc("OPTIONS /api/chat", h.handlePreflight)
	mux.HandleFunc("POST /api/chat", h.handleChat)
	if h.scrape != nil {
		mux.Handle("GET /metrics", h.scrape)
	}

	var next http.Handler = mux
	next = corsMiddleware(h.cors)(next)
	next = h.recoverMiddleware(next)
	next = h.observeMiddleware(next)
	return next
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": statusMessage})
}

func (h *Handler) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contentType := r.Header.Get("Content-Type")
	slog.InfoContext(ctx, "chat request received",
		"content_type", contentType,
		"content_length", r.ContentLength,
		"origin", r.Header.Get("Origin"),
	)

	if !isJSONContentType(contentType) {
		h.writeError(w, r, usecase.NewContentTypeError(contentType))
		return
	}

	body, err := decodeBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reply, err := h.chat.Chat(ctx, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slog.InfoContext(ctx, "chat reply sent", "reply_chars", utf8.RuneCountInString(reply.Reply))
	writeJSON(w, http.StatusOK, reply)
}

func isJSONContentType(v string) bool {
	if v == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// decodeBody returns the body as an untyped JSON value. An empty body decodes
// to nil so that validation reports it as empty rather than malformed.
func decodeBody(w http.ResponseWriter, r *http.Request) (any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &usecase.Error{
				Code:    usecase.ErrorValidation,
				Status:  http.StatusRequestEntityTooLarge,
				Message: "request body too large",
				Err:     err,
			}
		}
		return nil, usecase.NewSyntaxError(err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, nil
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, usecase.NewSyntaxError(err)
	}
	return body, nil
}

// writeError is the single place where failures become ErrorResponse bodies.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := usecase.AsError(err)
	status := e.HTTPStatusCode()

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "chat request failed",
		"type", e.Code,
		"status", status,
		"message", e.Message,
		"err", e.Err,
	)
	if h.metrics != nil {
		h.metrics.ObserveError(string(e.Code))
	}

	resp := domain.ErrorResponse{
		Error: domain.ErrorBody{
			Message: e.Message,
			Type:    string(e.Code),
		},
		Timestamp: domain.Timestamp(h.now()),
	}
	if e.Details != "" {
		details := e.Details
		resp.Error.Details = &details
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "err", err)
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
