package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"safecircle/internal/platform/middleware"
	id "safecircle/pkg/domain"
)

const devSigningKey = "dev-secret-key-change-in-production"

// TestContext carries one scenario's HTTP state. Named actors get a fresh
// user id and a signed token the first time they appear.
type TestContext struct {
	BaseURL string
	client  *http.Client
	signer  *middleware.HS256Validator

	users   map[string]id.UserID
	tokens  map[string]string
	current string
	saved   map[string]string

	lastStatus int
	lastBody   []byte
}

func NewTestContext() *TestContext {
	baseURL := os.Getenv("E2E_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	key := os.Getenv("E2E_JWT_SIGNING_KEY")
	if key == "" {
		key = devSigningKey
	}
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		signer:  middleware.NewHS256Validator(key, "safecircle"),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.users = map[string]id.UserID{}
	tc.tokens = map[string]string{}
	tc.saved = map[string]string{}
	tc.current = ""
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) ActAs(name string) error {
	if _, ok := tc.users[name]; !ok {
		userID := id.UserID(uuid.New())
		token, err := tc.signer.GenerateAccessToken(userID, time.Hour)
		if err != nil {
			return fmt.Errorf("sign token for %s: %w", name, err)
		}
		tc.users[name] = userID
		tc.tokens[name] = token
	}
	tc.current = name
	return nil
}

func (tc *TestContext) UserID(name string) (string, error) {
	userID, ok := tc.users[name]
	if !ok {
		if err := tc.ActAs(name); err != nil {
			return "", err
		}
		userID = tc.users[name]
	}
	return userID.String(), nil
}

func (tc *TestContext) Current() string { return tc.current }

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}

func (tc *TestContext) GET(path string) error {
	return tc.Do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.Do(http.MethodPost, path, body)
}

func (tc *TestContext) PUT(path string, body any) error {
	return tc.Do(http.MethodPut, path, body)
}

func (tc *TestContext) PATCH(path string, body any) error {
	return tc.Do(http.MethodPatch, path, body)
}

// Do sends a request as the current actor. Non-2xx statuses are not errors;
// assertions inspect them.
func (tc *TestContext) Do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := tc.tokens[tc.current]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField resolves a dotted path such as "notifications.0.type"
// in the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(field, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in response", field)
			}
			cur = next
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("index %q out of range in %q", part, field)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return cur, nil
}
