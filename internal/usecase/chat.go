package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"chat-relay/internal/domain"
	"chat-relay/internal/integrations/chatapi"
	"chat-relay/internal/retry"
)

// Completer performs the retrying upstream call.
type Completer interface {
	Complete(ctx context.Context, message string) (*chatapi.Response, error)
}

// ChatService validates chat requests, forwards them upstream and maps every
// outcome to either a ChatReply or an *Error.
type ChatService struct {
	upstream      Completer
	maxMessageLen int
	timeoutStatus int
	now           func() time.Time
}

func NewChatService(upstream Completer, maxMessageLen, timeoutStatus int) (*ChatService, error) {
	if upstream == nil {
		return nil, errors.New("usecase: upstream completer must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = DefaultMaxMessageLength
	}
	if timeoutStatus < 400 || timeoutStatus > 599 {
		timeoutStatus = http.StatusInternalServerError
	}
	return &ChatService{
		upstream:      upstream,
		maxMessageLen: maxMessageLen,
		timeoutStatus: timeoutStatus,
		now:           time.Now,
	}, nil
}

// Chat handles one decoded request body end to end.
func (s *ChatService) Chat(ctx context.Context, body any) (domain.ChatReply, error) {
	message, verr := ValidateBody(body, s.maxMessageLen)
	if verr != nil {
		return domain.ChatReply{}, &Error{
			Code:    ErrorValidation,
			Status:  http.StatusBadRequest,
			Message: verr.Error(),
			Err:     verr,
		}
	}
	slog.InfoContext(ctx, "chat request validated", "message_chars", utf8.RuneCountInString(message))
	return s.Forward(ctx, message)
}

// Forward sends an already validated message upstream.
func (s *ChatService) Forward(ctx context.Context, message string) (domain.ChatReply, error) {
	resp, err := s.upstream.Complete(ctx, message)
	if err != nil {
		return domain.ChatReply{}, s.classifyCallError(err)
	}
	return s.Normalize(ctx, resp)
}

// Normalize turns an upstream response into a ChatReply or an *Error. It
// does not retry and only reads resp.
func (s *ChatService) Normalize(ctx context.Context, resp *chatapi.Response) (domain.ChatReply, error) {
	if resp == nil {
		return domain.ChatReply{}, newError(ErrorFormat, http.StatusInternalServerError, "invalid API response format", errors.New("nil upstream response"))
	}
	if !resp.OK() {
		return domain.ChatReply{}, s.mapUpstreamStatus(ctx, resp)
	}

	text, err := resp.Completion()
	if err != nil {
		slog.WarnContext(ctx, "upstream returned malformed completion", "status", resp.StatusCode, "err", err)
		return domain.ChatReply{}, newError(ErrorFormat, http.StatusInternalServerError, "invalid API response format", err)
	}
	return domain.ChatReply{
		Reply:     text,
		Timestamp: domain.Timestamp(s.now()),
	}, nil
}

func (s *ChatService) mapUpstreamStatus(ctx context.Context, resp *chatapi.Response) *Error {
	upstreamMsg := resp.ErrorMessage()
	slog.ErrorContext(ctx, "upstream returned error status",
		"status", resp.StatusCode,
		"upstream_message", upstreamMsg,
	)

	cause := fmt.Errorf("upstream status %d", resp.StatusCode)
	var e *Error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		e = newError(ErrorUpstream, http.StatusInternalServerError, "API key invalid or expired", cause)
	case http.StatusTooManyRequests:
		e = newError(ErrorUpstream, http.StatusTooManyRequests, "rate limit exceeded", cause)
	case http.StatusInternalServerError:
		e = newError(ErrorUpstream, http.StatusInternalServerError, "upstream internal error", cause)
	default:
		detail := upstreamMsg
		if detail == "" {
			detail = "unknown error"
		}
		e = newError(ErrorUpstream, http.StatusInternalServerError, "API request failed: "+detail, cause)
	}
	e.Details = upstreamMsg
	return e
}

func (s *ChatService) classifyCallError(err error) *Error {
	var timeoutErr *retry.TimeoutError
	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorTimeout, s.timeoutStatus, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return newError(ErrorClientClosed, StatusClientClosedRequest, "client closed request", err)
	case errors.Is(err, chatapi.ErrAPIKey):
		return newError(ErrorUnknown, http.StatusInternalServerError, "upstream credentials unavailable", err)
	default:
		return newError(ErrorTransport, http.StatusInternalServerError, err.Error(), err)
	}
}

// AsError converts any error into an *Error, defaulting to UnknownError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	var coder interface{ HTTPStatusCode() int }
	status := http.StatusInternalServerError
	if errors.As(err, &coder) {
		status = coder.HTTPStatusCode()
	}
	return newError(ErrorUnknown, status, err.Error(), err)
}
