package search

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"materialscat/internal/apierrors"
)

// Cursor is the decoded position a paginated query resumes from: the sort
// key values of the last item on the previous page, plus its id (the final,
// always-present tie-break key).
type Cursor struct {
	SortValues []string `json:"v"`
	LastID     string   `json:"id"`
}

// CursorCoder signs and verifies opaque pagination tokens with a
// process-local secret.
// Because the secret never leaves the process and is never persisted, a
// cursor minted by one process instance is only valid against that same
// instance — callers must treat cursors as ephemeral across restarts/
// deploys, which is acceptable since a stale cursor only costs the client a
// fresh first page, not incorrect data.
type CursorCoder struct {
	secret []byte
}

// NewCursorCoder generates a fresh random signing secret.
func NewCursorCoder() (*CursorCoder, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &CursorCoder{secret: secret}, nil
}

// Encode signs and serializes c into an opaque, URL-safe token.
func (c *CursorCoder) Encode(cur Cursor) (string, error) {
	payload, err := json.Marshal(cur)
	if err != nil {
		return "", err
	}
	mac := c.sign(payload)
	buf := append(payload, mac...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// macSize is the sha256 digest length; Encode appends exactly this many raw
// bytes after the JSON payload, so Decode can split on length alone instead
// of scanning for a delimiter a binary MAC could itself contain.
const macSize = sha256.Size

// Decode verifies and parses a token produced by Encode. Any tamper,
// truncation, or malformed payload yields InvalidCursor, never a panic or a
// silently-wrong position.
func (c *CursorCoder) Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, invalidCursor()
	}
	if len(raw) <= macSize {
		return Cursor{}, invalidCursor()
	}
	sep := len(raw) - macSize
	payload, mac := raw[:sep], raw[sep:]
	want := c.sign(payload)
	if !hmac.Equal(mac, want) {
		return Cursor{}, invalidCursor()
	}
	var cur Cursor
	if err := json.Unmarshal(payload, &cur); err != nil {
		return Cursor{}, invalidCursor()
	}
	return cur, nil
}

func (c *CursorCoder) sign(payload []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(payload)
	return h.Sum(nil)
}

func invalidCursor() error {
	return apierrors.New(apierrors.CodeInvalidCursor, "pagination cursor is malformed or tampered with")
}
