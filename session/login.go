package session

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

const (
	loginPath         = "/users/login"
	minPasswordLength = 6
	maxLoginBody      = 64 * 1024 // 64 KiB
)

// Credentials are the email/password pair exchanged for a token.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate applies the login form rules before any network call.
func (c Credentials) Validate() error {
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Email))
	if err != nil || addr.Address != strings.TrimSpace(c.Email) {
		return &domain.ValidationError{Field: "email", Message: "invalid email address"}
	}
	if len(c.Password) < minPasswordLength {
		return &domain.ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	return nil
}

// User is the profile returned next to the token.
type User struct {
	ID       string `json:"id,omitempty"`
	LegacyID string `json:"_id,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (LoginResult, error)
}

// HTTPAuthenticator talks to POST /users/login on the task service.
type HTTPAuthenticator struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPAuthenticator creates an authenticator for baseURL.
func NewHTTPAuthenticator(baseURL string, client *http.Client) *HTTPAuthenticator {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPAuthenticator{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

// Authenticate returns a *domain.RemoteError for transport failures and
// non-success responses; decoding the token is left to the caller.
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, creds Credentials) (LoginResult, error) {
	body, err := sonic.Marshal(creds)
	if err != nil {
		return LoginResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return LoginResult{}, &domain.RemoteError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		return LoginResult{}, &domain.RemoteError{StatusCode: resp.StatusCode, Message: "read login response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LoginResult{}, domain.RemoteErrorFromBody(resp.StatusCode, data)
	}

	var out LoginResult
	if err := sonic.ConfigStd.Unmarshal(data, &out); err != nil {
		return LoginResult{}, &domain.RemoteError{StatusCode: resp.StatusCode, Message: "invalid login response", Err: err}
	}
	return out, nil
}
