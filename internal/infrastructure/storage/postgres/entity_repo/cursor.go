package entity_repo

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

// Cursor is the decoded pagination position: the last returned row's
// sort key values plus its id as the deterministic tie-breaker.
type Cursor struct {
	Keys []any `json:"k"`
	ID   id.ID `json:"id"`
}

// CursorCodec encodes cursors as opaque, tamper-evident tokens:
// base64url(payload).base64url(keyed-blake2b(payload)).
type CursorCodec struct {
	key []byte
}

// NewCursorCodec creates a codec with the given MAC key.
// The key must be stable across processes serving the same clients.
func NewCursorCodec(key []byte) (*CursorCodec, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("cursor codec requires a non-empty key")
	}
	// blake2b accepts keys up to 64 bytes; verify once at construction.
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("cursor codec key: %w", err)
	}
	return &CursorCodec{key: key}, nil
}

func (c *CursorCodec) mac(payload []byte) []byte {
	h, _ := blake2b.New256(c.key)
	h.Write(payload)
	return h.Sum(nil)
}

// Encode serializes the cursor into an opaque token.
func (c *CursorCodec) Encode(cur Cursor) (string, error) {
	payload, err := json.Marshal(cur)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload) +
		"." +
		base64.RawURLEncoding.EncodeToString(c.mac(payload)), nil
}

// Decode verifies and parses a token. Any malformed or tampered input
// fails with INVALID_CURSOR; internals are never leaked to the caller.
func (c *CursorCodec) Decode(token string) (Cursor, error) {
	var cur Cursor

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return cur, apperror.NewInvalidCursor()
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return cur, apperror.NewInvalidCursor()
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return cur, apperror.NewInvalidCursor()
	}

	if !hmac.Equal(sig, c.mac(payload)) {
		return cur, apperror.NewInvalidCursor()
	}

	if err := json.Unmarshal(payload, &cur); err != nil {
		return cur, apperror.NewInvalidCursor()
	}
	if id.IsNil(cur.ID) {
		return cur, apperror.NewInvalidCursor()
	}

	return cur, nil
}
