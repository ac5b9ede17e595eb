// Package geocode resolves postal codes to street addresses through the OneMap API.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const tokenPath = "/api/auth/post/getToken"

// ErrNoCredentials is returned when the token manager has no email or password.
var ErrNoCredentials = errors.New("geocode credentials not configured")

// TokenManager issues bearer tokens and re-authenticates once the stored expiry has passed.
// It is safe for concurrent use.
type TokenManager struct {
	httpClient *http.Client
	baseURL    string
	email      string
	password   string
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenManager creates a TokenManager for the service at baseURL.
func NewTokenManager(httpClient *http.Client, baseURL, email, password string) *TokenManager {
	return &TokenManager{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		password:   password,
		now:        time.Now,
	}
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken     string      `json:"access_token"`
	ExpiryTimestamp unixSeconds `json:"expiry_timestamp"`
}

// unixSeconds decodes a unix timestamp sent either as a JSON number or a numeric string.
type unixSeconds int64

func (u *unixSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry_timestamp %s: %w", data, err)
	}
	*u = unixSeconds(n)
	return nil
}

// Token returns the cached token, authenticating first when none is held or it has expired.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiry) {
		return m.token, nil
	}
	if err := m.authenticate(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
}

func (m *TokenManager) authenticate(ctx context.Context) error {
	if m.email == "" || m.password == "" {
		return ErrNoCredentials
	}

	body, err := json.Marshal(tokenRequest{Email: m.email, Password: m.password})
	if err != nil {
		return fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token request failed: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	m.token = tr.AccessToken
	m.expiry = time.Unix(int64(tr.ExpiryTimestamp), 0)
	return nil
}
