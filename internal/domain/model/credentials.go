package model

import (
	"errors"
	"net/url"
)

// Credentials is the closed set of secrets a provider can be constructed with.
// The only implementations are APIKeyCredentials and OAuth2Credentials.
type Credentials interface {
	AuthMode() AuthMode
	// Endpoint returns the vendor base URL override, or "" for the vendor default.
	Endpoint() string
	Validate() error
	sealed()
}

// APIKeyCredentials carries a static API token.
type APIKeyCredentials struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url,omitempty"`
}

func (APIKeyCredentials) AuthMode() AuthMode { return AuthModeAPIKey }
func (c APIKeyCredentials) Endpoint() string { return c.BaseURL }
func (APIKeyCredentials) sealed()            {}

// Validate checks that a token is present and the base URL, if set, is absolute.
func (c APIKeyCredentials) Validate() error {
	if c.Token == "" {
		return errors.New("api key token is empty")
	}
	return validateBaseURL(c.BaseURL)
}

// OAuth2Credentials carries an access token and the refresh token used by an
// external refresher. Provider instances never refresh on their own.
type OAuth2Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
}

func (OAuth2Credentials) AuthMode() AuthMode { return AuthModeOAuth2 }
func (c OAuth2Credentials) Endpoint() string { return c.BaseURL }
func (OAuth2Credentials) sealed()            {}

func (c OAuth2Credentials) Validate() error {
	if c.AccessToken == "" {
		return errors.New("oauth2 access token is empty")
	}
	return validateBaseURL(c.BaseURL)
}

// BearerToken returns the secret to present to the vendor for either variant.
func BearerToken(c Credentials) string {
	switch v := c.(type) {
	case APIKeyCredentials:
		return v.Token
	case OAuth2Credentials:
		return v.AccessToken
	}
	return ""
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("base url must be absolute")
	}
	return nil
}
