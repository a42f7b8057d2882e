// Package auth loads the bearer token used by the REST API and the realtime feed.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrEmptyTokenFile is returned when a token file holds only whitespace.
var ErrEmptyTokenFile = errors.New("token file is empty")

// Credentials holds the bearer token. An empty Token means anonymous access.
type Credentials struct {
	Token string
}

// LoadCredentials returns credentials from token, or from the file at
// tokenPath when token is empty. With neither set the credentials are
// anonymous.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token = strings.TrimSpace(token); token != "" {
		return &Credentials{Token: token}, nil
	}
	if tokenPath == "" {
		return &Credentials{}, nil
	}

	token, err := LoadTokenFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Credentials{Token: token}, nil
}

// LoadTokenFile reads a bearer token from path, trimming surrounding
// whitespace.
func LoadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrEmptyTokenFile
	}
	return token, nil
}

// Anonymous reports whether no token is set.
func (c *Credentials) Anonymous() bool {
	return c == nil || c.Token == ""
}

// Apply sets the Authorization header on req. Anonymous credentials leave
// req untouched.
func (c *Credentials) Apply(req *http.Request) {
	if c.Anonymous() {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
}

// Redacted returns the token with all but its last four characters masked,
// for logging.
func (c *Credentials) Redacted() string {
	if c.Anonymous() {
		return "(anonymous)"
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return "****" + c.Token[len(c.Token)-4:]
}
