package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func mintToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func tokenFor(t *testing.T, userID string, exp time.Time) string {
	t.Helper()
	return mintToken(t, jwt.MapClaims{"sub": userID, "exp": exp.Unix()})
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubAuthenticator struct {
	mu     sync.Mutex
	result LoginResult
	err    error
	calls  int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, _ Credentials) (LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *stubAuthenticator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func unverifiedDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(DecoderOptions{})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return d
}
