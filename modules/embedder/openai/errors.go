package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/flemzord/mnemo/internal/memory"
)

// Sentinel errors. Every error returned by Embed also wraps
// memory.ErrEmbedding.
var (
	// ErrRateLimit indicates the API returned a rate limit response.
	ErrRateLimit = errors.New("openai: rate limited")

	// ErrUnavailable indicates the API is temporarily unavailable.
	ErrUnavailable = errors.New("openai: unavailable")

	errAuth = errors.New("openai: authentication failed")
)

// apiError is the error envelope of the OpenAI API.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// mapHTTPError maps an HTTP status code and response body to a sentinel
// error. Returns nil for 2xx status codes.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var msg string
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else {
		msg = string(body)
	}

	switch {
	case statusCode == 429:
		return fmt.Errorf("%w: %w: %s", memory.ErrEmbedding, ErrRateLimit, msg)
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("%w: %w: %s", memory.ErrEmbedding, errAuth, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: %w: %s", memory.ErrEmbedding, ErrUnavailable, msg)
	default:
		return fmt.Errorf("%w: openai: HTTP %d: %s", memory.ErrEmbedding, statusCode, msg)
	}
}

// mapConnectionError maps network-level errors to sentinel errors.
// Context errors keep their identity.
func mapConnectionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(memory.ErrEmbedding, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w: %w", memory.ErrEmbedding, ErrUnavailable, err)
	}
	return fmt.Errorf("%w: openai: %w", memory.ErrEmbedding, err)
}
