// Package auth checks the bearer token guarding the HTTP surface.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Tokens accepts either a plain shared token or a bcrypt hash of one. With
// neither configured every request is accepted.
type Tokens struct {
	plain []byte
	hash  []byte
}

func NewTokens(plain, bcryptHash string) (*Tokens, error) {
	t := &Tokens{}
	if plain != "" {
		t.plain = []byte(plain)
	}
	if bcryptHash != "" {
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, fmt.Errorf("parse token hash: %w", err)
		}
		t.hash = []byte(bcryptHash)
	}
	return t, nil
}

func (t *Tokens) Enabled() bool {
	return t != nil && (len(t.plain) > 0 || len(t.hash) > 0)
}

func (t *Tokens) Check(presented string) error {
	if !t.Enabled() {
		return nil
	}
	if presented == "" {
		return ErrMissingToken
	}
	if len(t.plain) > 0 && subtle.ConstantTimeCompare(t.plain, []byte(presented)) == 1 {
		return nil
	}
	if len(t.hash) > 0 && bcrypt.CompareHashAndPassword(t.hash, []byte(presented)) == nil {
		return nil
	}
	return ErrInvalidToken
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HashToken produces the bcrypt hash accepted by NewTokens.
func HashToken(value string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:4])
}
