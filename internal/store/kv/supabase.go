package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultSessionTTL = 50 * time.Minute

// SupabaseCredentials are the project endpoint and the password-grant login
// used to mint an access token.
type SupabaseCredentials struct {
	URL      string
	AnonKey  string
	Email    string
	Password string
}

// Session is a bearer token for the Supabase REST API.
type Session struct {
	URL         string
	AnonKey     string
	AccessToken string
}

// SessionCache hands out a cached access token and re-authenticates once it
// is older than the TTL or has been invalidated.
type SessionCache struct {
	creds  SupabaseCredentials
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	session   *Session
	fetchedAt time.Time
}

func NewSessionCache(creds SupabaseCredentials, ttl time.Duration, client *http.Client) *SessionCache {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	creds.URL = strings.TrimRight(creds.URL, "/")
	return &SessionCache{creds: creds, ttl: ttl, client: client, now: time.Now}
}

// Get returns the cached session or signs in again.
func (c *SessionCache) Get(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return *c.session, nil
	}
	if c.creds.URL == "" || c.creds.AnonKey == "" || c.creds.Email == "" || c.creds.Password == "" {
		return Session{}, errors.New("supabase credentials are incomplete")
	}

	body, _ := json.Marshal(map[string]string{"email": c.creds.Email, "password": c.creds.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.creds.URL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("apikey", c.creds.AnonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, errors.Wrap(err, "supabase sign in")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Session{}, errors.Newf("supabase sign in: status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return Session{}, errors.Wrap(err, "decode supabase token")
	}
	if token.AccessToken == "" {
		return Session{}, errors.New("supabase sign in returned no access token")
	}

	c.session = &Session{URL: c.creds.URL, AnonKey: c.creds.AnonKey, AccessToken: token.AccessToken}
	c.fetchedAt = c.now()
	return *c.session, nil
}

// Invalidate drops the cached token so the next Get signs in again.
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.fetchedAt = time.Time{}
}

// SupabaseStore keeps snapshots in the user_data table, one row per
// data_type, with the document in the data column.
type SupabaseStore struct {
	sessions *SessionCache
	client   *http.Client
}

func NewSupabaseStore(sessions *SessionCache, client *http.Client) *SupabaseStore {
	if client == nil {
		client = sessions.client
	}
	return &SupabaseStore{sessions: sessions, client: client}
}

func (s *SupabaseStore) Name() string { return "supabase" }

func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("data_type", "eq."+key)
	q.Set("select", "data")

	var rows []struct {
		Data json.RawMessage `json:"data"`
	}
	if err := s.call(ctx, http.MethodGet, "/rest/v1/user_data?"+q.Encode(), nil, nil, &rows); err != nil {
		return nil, errors.Wrapf(err, "supabase get %s", key)
	}
	if len(rows) == 0 || len(rows[0].Data) == 0 || string(rows[0].Data) == "null" {
		return nil, ErrNotFound
	}
	return rows[0].Data, nil
}

// Set patches the existing row and inserts one when the patch matched
// nothing.
func (s *SupabaseStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return errors.Newf("supabase set %s: value is not JSON", key)
	}
	q := url.Values{}
	q.Set("data_type", "eq."+key)

	patch, _ := json.Marshal(map[string]json.RawMessage{"data": value})
	var updated []json.RawMessage
	headers := map[string]string{"Prefer": "return=representation"}
	if err := s.call(ctx, http.MethodPatch, "/rest/v1/user_data?"+q.Encode(), patch, headers, &updated); err != nil {
		return errors.Wrapf(err, "supabase patch %s", key)
	}
	if len(updated) > 0 {
		return nil
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := s.call(ctx, http.MethodGet, "/auth/v1/user", nil, nil, &user); err != nil {
		return errors.Wrap(err, "supabase current user")
	}
	insert, _ := json.Marshal(map[string]any{
		"data_type": key,
		"data":      json.RawMessage(value),
		"user_id":   user.ID,
	})
	headers = map[string]string{"Prefer": "return=minimal"}
	if err := s.call(ctx, http.MethodPost, "/rest/v1/user_data", insert, headers, nil); err != nil {
		return errors.Wrapf(err, "supabase insert %s", key)
	}
	return nil
}

// call performs one authenticated request. A 401 invalidates the session and
// retries exactly once with a fresh token.
func (s *SupabaseStore) call(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	resp, err := s.send(ctx, method, path, body, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		s.sessions.Invalidate()
		resp, err = s.send(ctx, method, path, body, headers)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (s *SupabaseStore) send(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, session.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", session.AnonKey)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.client.Do(req)
}
