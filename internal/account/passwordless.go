package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"botvac-bridge/internal/transport"
	"botvac-bridge/internal/vendor"
)

// Token is the reply of the passwordless token endpoint.
type Token struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Passwordless drives the email one-time-code login.
type Passwordless struct {
	vendor   vendor.Vendor
	clientID string
	http     *transport.HTTPTransport
}

func NewPasswordless(v vendor.Vendor, clientID string, client *transport.HTTPTransport) *Passwordless {
	if client == nil {
		client = transport.NewHTTPTransport(transport.DefaultTimeout, nil)
	}
	return &Passwordless{vendor: v, clientID: clientID, http: client}
}

// SendEmailOTP asks the vendor to mail a login code.
func (p *Passwordless) SendEmailOTP(ctx context.Context, email string) error {
	if p.vendor.PasswordlessEndpoint == "" {
		return fmt.Errorf("vendor %s has no passwordless login", p.vendor.Name)
	}
	body, err := json.Marshal(map[string]string{
		"client_id":  p.clientID,
		"connection": "email",
		"email":      email,
		"send":       "code",
	})
	if err != nil {
		return err
	}
	if _, err := p.http.Post(ctx, p.vendor.PasswordlessEndpoint, http.Header{}, body); err != nil {
		return fmt.Errorf("%w: send code: %v", ErrCloud, err)
	}
	return nil
}

// FetchToken exchanges the mailed code for tokens.
func (p *Passwordless) FetchToken(ctx context.Context, email, code string) (*Token, error) {
	body, err := json.Marshal(map[string]string{
		"prompt":       "login",
		"grant_type":   "http://auth0.com/oauth/grant-type/passwordless/otp",
		"scope":        strings.Join(p.vendor.Scope, " "),
		"locale":       "en",
		"otp":          code,
		"source":       p.vendor.Source,
		"platform":     "ios",
		"audience":     p.vendor.Audience,
		"username":     email,
		"client_id":    p.clientID,
		"realm":        "email",
		"country_code": "DE",
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Post(ctx, p.vendor.TokenEndpoint, http.Header{}, body)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch token: %v", ErrLogin, err)
	}

	var tok Token
	if err := json.Unmarshal(resp.Body, &tok); err != nil {
		return nil, fmt.Errorf("%w: decode token: %v", ErrCloud, err)
	}
	if tok.IDToken == "" {
		return nil, fmt.Errorf("%w: token reply has no id_token", ErrLogin)
	}
	return &tok, nil
}
