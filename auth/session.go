package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// expirySkew refreshes slightly early so a token never expires mid-request.
const expirySkew = 30 * time.Second

type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Session is the identity-provider contract: Login, Logout, AccessToken.
// Tokens persist across restarts in a 0600 file under the config directory.
// AccessToken returns an empty string when logged out; it is not an error.
type Session struct {
	mu          sync.Mutex
	identityURL string
	clientId    string
	tokenPath   string
	http        *retryablehttp.Client
	tok         *storedToken
	onChange    []func()
}

func NewSession(identityURL, clientId, tokenPath string) *Session {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.Timeout = 15 * time.Second
	s := &Session{
		identityURL: strings.TrimRight(identityURL, "/"),
		clientId:    clientId,
		tokenPath:   tokenPath,
		http:        c,
	}
	s.loadToken()
	return s
}

// OnChange registers a callback fired after every login, logout or forced
// session drop. Used to refresh the subscription store on token change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok != nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Session) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", s.clientId)
	form.Set("username", username)
	form.Set("password", password)

	tok, err := s.tokenRequest(ctx, form)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.mu.Lock()
	s.tok = tok
	s.saveToken()
	s.mu.Unlock()
	s.notify()
	return nil
}

// Logout revokes the refresh token best-effort and drops the local session
// either way.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	tok := s.tok
	s.mu.Unlock()

	if tok != nil && tok.RefreshToken != "" {
		form := url.Values{}
		form.Set("client_id", s.clientId)
		form.Set("token", tok.RefreshToken)
		if err := s.postForm(ctx, "/revoke", form, nil); err != nil {
			log.Printf("Token revocation failed: %v", err)
		}
	}

	s.mu.Lock()
	s.tok = nil
	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// AccessToken returns a valid bearer token, refreshing when the stored one
// is expired. A dead refresh token drops the session and returns "" so
// callers fall back to their logged-out behavior.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.tok
	s.mu.Unlock()

	if tok == nil {
		return "", nil
	}
	if time.Now().Add(expirySkew).Before(tok.ExpiresAt) {
		return tok.AccessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.clientId)
	form.Set("refresh_token", tok.RefreshToken)

	fresh, err := s.tokenRequest(ctx, form)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusBadRequest || se.status == http.StatusUnauthorized) {
			log.Printf("Refresh token rejected, dropping session")
			s.mu.Lock()
			s.tok = nil
			os.Remove(s.tokenPath)
			s.mu.Unlock()
			s.notify()
			return "", nil
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	s.mu.Lock()
	s.tok = fresh
	s.saveToken()
	s.mu.Unlock()
	return fresh.AccessToken, nil
}

func (s *Session) tokenRequest(ctx context.Context, form url.Values) (*storedToken, error) {
	var resp tokenResponse
	if err := s.postForm(ctx, "/token", form, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("identity provider returned no access token")
	}
	return &storedToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity provider: %d: %s", e.status, e.body)
}

func (s *Session) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.identityURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var buf [512]byte
		n, _ := resp.Body.Read(buf[:])
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(buf[:n]))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// loadToken restores a persisted session, silently starting logged out if
// the file is missing or unreadable.
func (s *Session) loadToken() {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return
	}
	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		log.Printf("Ignoring corrupt token file %s: %v", s.tokenPath, err)
		return
	}
	s.tok = &tok
}

// saveToken writes the token file with 0600 perms, caller holds the lock.
func (s *Session) saveToken() {
	if s.tok == nil {
		return
	}
	data, err := json.Marshal(s.tok)
	if err != nil {
		log.Printf("Could not encode token: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0o700); err != nil {
		log.Printf("Could not create token directory: %v", err)
		return
	}
	if err := os.WriteFile(s.tokenPath, data, 0o600); err != nil {
		log.Printf("Could not write token file: %v", err)
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	fns := make([]func(), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
