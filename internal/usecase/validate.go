package usecase

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxMessageLength bounds a trimmed chat message, in code points.
const DefaultMaxMessageLength = 2000

// Reason names why a chat request body was rejected.
type Reason string

const (
	ReasonEmptyBody      Reason = "empty_body"
	ReasonInvalidBody    Reason = "invalid_body"
	ReasonMissingMessage Reason = "missing_message"
	ReasonWrongType      Reason = "wrong_type"
	ReasonBlankMessage   Reason = "blank_message"
	ReasonTooLong        Reason = "too_long"
)

// ValidationError is a rejected chat request body.
type ValidationError struct {
	Reason Reason
	Limit  int
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmptyBody:
		return "request body must not be empty"
	case ReasonInvalidBody:
		return "request body must be a JSON object"
	case ReasonMissingMessage:
		return "message must not be empty"
	case ReasonWrongType:
		return "message must be a string"
	case ReasonBlankMessage:
		return "message must not contain only whitespace"
	case ReasonTooLong:
		return fmt.Sprintf("message must not exceed %d characters", e.Limit)
	default:
		return "invalid request body"
	}
}

// ValidateBody checks a decoded JSON body (the result of unmarshalling into
// an `any`) and returns the trimmed message. It has no side effects; exactly
// one of the results is meaningful.
func ValidateBody(body any, maxLen int) (string, *ValidationError) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}

	var obj map[string]any
	switch v := body.(type) {
	case nil:
		return "", &ValidationError{Reason: ReasonEmptyBody}
	case map[string]any:
		if len(v) == 0 {
			return "", &ValidationError{Reason: ReasonEmptyBody}
		}
		obj = v
	case []any:
		if len(v) == 0 {
			return "", &ValidationError{Reason: ReasonEmptyBody}
		}
		return "", &ValidationError{Reason: ReasonInvalidBody}
	default:
		return "", &ValidationError{Reason: ReasonInvalidBody}
	}

	raw, ok := obj["message"]
	if !ok || raw == nil {
		return "", &ValidationError{Reason: ReasonMissingMessage}
	}
	message, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Reason: ReasonWrongType}
	}

	trimmed := strings.TrimFunc(message, isTrimmable)
	if trimmed == "" {
		return "", &ValidationError{Reason: ReasonBlankMessage}
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", &ValidationError{Reason: ReasonTooLong, Limit: maxLen}
	}
	return trimmed, nil
}

// isTrimmable matches the whitespace set browsers strip, which includes the
// byte order mark.
func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
