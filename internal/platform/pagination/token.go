// Package pagination provides opaque page token helpers for cursor-based
// listings. Tokens are base64 URL-safe JSON so callers can round-trip typed
// cursors without exposing document IDs or ordering fields on the wire.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken is returned when a supplied page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// EncodeToken serialises the provided cursor into an opaque page token.
func EncodeToken[T any](cursor T) (string, error) {
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a page token produced by EncodeToken back into a cursor.
// An empty token yields the zero cursor.
func DecodeToken[T any](token string) (T, error) {
	var cursor T
	token = strings.TrimSpace(token)
	if token == "" {
		return cursor, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return cursor, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
