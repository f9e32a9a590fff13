package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gosuda/handoff/internal/domain"
)

// HeaderAPIKey is the request header carrying the shared API key.
const HeaderAPIKey = "X-API-Key"

// ErrInvalidAPIKey is returned when a required API key is missing or does not match.
var ErrInvalidAPIKey = fmt.Errorf("auth: invalid API key: %w", domain.ErrAccessDenied) //nolint:gochecknoglobals // sentinel error

// CredentialSource yields the API key presented by a caller, if any.
// Each transport supplies its own source; the guard never sees the transport.
type CredentialSource interface {
	Credential() (string, bool)
}

// StaticCredential is a CredentialSource holding an already-extracted key.
type StaticCredential string

func (s StaticCredential) Credential() (string, bool) {
	return string(s), s != ""
}

// HeaderCredential reads the key from the X-API-Key header of a request.
type HeaderCredential struct {
	Header http.Header
}

func (h HeaderCredential) Credential() (string, bool) {
	if h.Header == nil {
		return "", false
	}
	v := h.Header.Get(HeaderAPIKey)
	return v, v != ""
}

// RequestCredential reads the key from X-API-Key, falling back to an
// "Authorization: Bearer" token.
func RequestCredential(r *http.Request) CredentialSource {
	if key, ok := (HeaderCredential{Header: r.Header}).Credential(); ok {
		return StaticCredential(key)
	}
	return StaticCredential(bearerToken(r.Header.Get("Authorization")))
}

func bearerToken(h string) string {
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type credentialKey struct{}

// WithCredential stores a presented key on ctx.
func WithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, key)
}

// CredentialFromContext returns the key stored by WithCredential as a CredentialSource.
func CredentialFromContext(ctx context.Context) CredentialSource {
	v, _ := ctx.Value(credentialKey{}).(string)
	return StaticCredential(v)
}

// Guard enforces the shared API key. A Guard built from an empty key admits
// every caller.
type Guard struct {
	key string
}

// NewGuard creates a Guard for the configured key.
func NewGuard(key string) *Guard {
	return &Guard{key: key}
}

// Enabled reports whether callers must present a key.
func (g *Guard) Enabled() bool {
	return g != nil && g.key != ""
}

// Authorize checks the credential offered by src.
func (g *Guard) Authorize(src CredentialSource) error {
	if !g.Enabled() {
		return nil
	}
	if src == nil {
		return fmt.Errorf("auth.Guard.Authorize: missing key: %w", ErrInvalidAPIKey)
	}
	presented, ok := src.Credential()
	if !ok {
		return fmt.Errorf("auth.Guard.Authorize: missing key: %w", ErrInvalidAPIKey)
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(g.key)) != 1 {
		return fmt.Errorf("auth.Guard.Authorize: %w", ErrInvalidAPIKey)
	}
	return nil
}
