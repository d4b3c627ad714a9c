package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Request body limits. Recall and write bodies are small flat objects, so
// anything deeper than DefaultMaxJSONDepth is rejected before decoding.
const (
	DefaultMaxBodySize  = 256 << 10
	DefaultMaxJSONDepth = 32
)

var (
	ErrBodyTooLarge = errors.New("request body exceeds maximum size")
	ErrJSONTooDeep  = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON  = errors.New("invalid JSON")
)

// ReadBody reads a JSON request body of at most maxSize bytes nested at
// most maxDepth levels. Non-positive limits use the defaults. The body is
// scanned for depth only; decoding is left to the caller.
func ReadBody(r io.Reader, maxSize, maxDepth int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxJSONDepth
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxSize)
	}
	if err := checkDepth(data, maxDepth); err != nil {
		return nil, err
	}
	return data, nil
}

func checkDepth(data []byte, limit int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if d == '{' || d == '[' {
			if depth++; depth > limit {
				return fmt.Errorf("%w: over %d levels", ErrJSONTooDeep, limit)
			}
		} else {
			depth--
		}
	}
}
