package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/vendor"
)

var (
	// ErrLogin means the cloud rejected the credentials.
	ErrLogin = errors.New("unable to login, check account credentials")
	// ErrCloud covers every other failure talking to the account API.
	ErrCloud = errors.New("unable to reach the cloud API")
)

// Session is an authenticated connection to a vendor's account API.
type Session interface {
	Get(ctx context.Context, path string) (*transport.Response, error)
	Vendor() vendor.Vendor
}

type Option func(*baseSession)

// WithHTTP replaces the HTTP transport.
func WithHTTP(t *transport.HTTPTransport) Option {
	return func(s *baseSession) { s.http = t }
}

type baseSession struct {
	vendor vendor.Vendor
	http   *transport.HTTPTransport
	header http.Header
}

func newBaseSession(v vendor.Vendor, opts []Option) (*baseSession, error) {
	s := &baseSession{
		vendor: v,
		header: http.Header{},
	}
	s.header.Set("Accept", v.BeehiveVersion)
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		tlsConfig, err := v.TLSConfig()
		if err != nil {
			return nil, err
		}
		s.http = transport.NewHTTPTransport(transport.DefaultTimeout, tlsConfig)
	}
	return s, nil
}

func (s *baseSession) Vendor() vendor.Vendor { return s.vendor }

func (s *baseSession) url(path string) string {
	return strings.TrimRight(s.vendor.Endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

// Get fetches path relative to the vendor endpoint.
func (s *baseSession) Get(ctx context.Context, path string) (*transport.Response, error) {
	resp, err := s.http.Get(ctx, s.url(path), s.header.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrCloud, path, err)
	}
	return resp, nil
}

// PasswordSession logs in with email and password.
type PasswordSession struct {
	*baseSession
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Platform string `json:"platform"`
	Token    string `json:"token"`
}

// NewPasswordSession logs in immediately. A 403 maps to ErrLogin.
func NewPasswordSession(ctx context.Context, email, password string, v vendor.Vendor, opts ...Option) (*PasswordSession, error) {
	base, err := newBaseSession(v, opts)
	if err != nil {
		return nil, err
	}

	deviceToken, err := randomToken()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(loginRequest{Email: email, Password: password, Platform: "ios", Token: deviceToken})
	if err != nil {
		return nil, err
	}

	resp, err := base.http.Post(ctx, base.url("sessions"), base.header.Clone(), body)
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
			return nil, ErrLogin
		}
		return nil, fmt.Errorf("%w: login: %v", ErrCloud, err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil || out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login reply has no access token", ErrCloud)
	}

	base.header.Set("Authorization", "Token token="+out.AccessToken)
	return &PasswordSession{baseSession: base}, nil
}

// randomToken is the hex form of 64 random bytes, registered as the device token.
func randomToken() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenSession uses a token obtained elsewhere.
type TokenSession struct {
	*baseSession
}

// NewTokenSession authenticates with an OAuth access token.
func NewTokenSession(accessToken string, v vendor.Vendor, opts ...Option) (*TokenSession, error) {
	return newTokenSession("Bearer "+accessToken, v, opts)
}

// NewPasswordlessSession authenticates with the id_token of a passwordless login.
func NewPasswordlessSession(idToken string, v vendor.Vendor, opts ...Option) (*TokenSession, error) {
	return newTokenSession("Auth0Bearer "+idToken, v, opts)
}

func newTokenSession(authorization string, v vendor.Vendor, opts []Option) (*TokenSession, error) {
	base, err := newBaseSession(v, opts)
	if err != nil {
		return nil, err
	}
	base.header.Set("Authorization", authorization)
	return &TokenSession{baseSession: base}, nil
}

// Credentials selects how Login authenticates. A token wins over email and
// password.
type Credentials struct {
	Email    string
	Password string
	Token    string
}

func (c Credentials) Empty() bool {
	return c.Token == "" && (c.Email == "" || c.Password == "")
}

// Login opens the session matching creds. Tokens for auth0 vendors are
// treated as passwordless id tokens.
func Login(ctx context.Context, creds Credentials, v vendor.Vendor, opts ...Option) (Session, error) {
	switch {
	case creds.Token != "" && v.Source != "":
		return NewPasswordlessSession(creds.Token, v, opts...)
	case creds.Token != "":
		return NewTokenSession(creds.Token, v, opts...)
	case creds.Email != "" && creds.Password != "":
		return NewPasswordSession(ctx, creds.Email, creds.Password, v, opts...)
	}
	return nil, fmt.Errorf("%w: no token or email/password given", ErrLogin)
}
