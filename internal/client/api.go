// Package client implements a sync protocol client: the HTTP API, the
// on-disk profile and terminal prompts used by the command-line tool.
package client

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/kosync/internal/models"
)

const (
	acceptHeader   = "application/vnd.koreader.v1+json"
	defaultTimeout = 10 * time.Second
)

// APIError is a non-2xx protocol reply.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server replied %d", e.Status)
	}
	return fmt.Sprintf("server replied %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// IsUnauthorized reports whether err is a 401 reply.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// HashKey derives the x-auth-key value from a password the way e-reader
// clients do: lowercase hex MD5.
func HashKey(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// NewHTTPClient returns an HTTP client with a request timeout. When caFile is
// set, server certificates are verified against that CA only.
func NewHTTPClient(caFile string) (*http.Client, error) {
	c := &http.Client{Timeout: defaultTimeout}
	if caFile == "" {
		return c, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	c.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return c, nil
}

// API talks to one sync server. Username and Key are sent on every
// authenticated request.
type API struct {
	BaseURL  string
	HTTP     *http.Client
	Username string
	Key      string
}

// NewAPI returns an API for baseURL using httpClient, or a default client
// when it is nil.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &API{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// WithCredentials returns a copy of a that authenticates as username with key.
func (a *API) WithCredentials(username, key string) *API {
	c := *a
	c.Username, c.Key = username, key
	return &c
}

func (a *API) do(ctx context.Context, method, path string, auth bool, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptHeader)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("X-Auth-User", a.Username)
		req.Header.Set("X-Auth-Key", a.Key)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) == nil {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Register creates username on the server. The password is sent as its key,
// so Authorize with the same password succeeds afterwards.
func (a *API) Register(ctx context.Context, username, password string) error {
	key := HashKey(password)
	req := models.CreateUserRequest{Username: &username, Password: &key}
	var resp models.CreateUserResponse
	return a.do(ctx, http.MethodPost, "/users/create", false, req, &resp)
}

// Authorize checks the configured credentials.
func (a *API) Authorize(ctx context.Context) error {
	var resp models.AuthResponse
	if err := a.do(ctx, http.MethodGet, "/users/auth", true, nil, &resp); err != nil {
		return err
	}
	if resp.Authorized != "OK" {
		return fmt.Errorf("unexpected authorization reply %q", resp.Authorized)
	}
	return nil
}

// PushProgress stores p for its device and document. The server ignores any
// timestamp in p and returns the one it assigned.
func (a *API) PushProgress(ctx context.Context, p models.Progress) (models.ProgressPutResponse, error) {
	req := models.ProgressPutRequest{
		DeviceID:   &p.DeviceID,
		Percentage: &p.Percentage,
		Document:   &p.Document,
		Progress:   &p.Progress,
		Device:     &p.Device,
	}
	var resp models.ProgressPutResponse
	err := a.do(ctx, http.MethodPut, "/syncs/progress", true, req, &resp)
	return resp, err
}

// PullProgress returns the newest record for document, or nil if no device
// has pushed one.
func (a *API) PullProgress(ctx context.Context, document string) (*models.Progress, error) {
	var raw map[string]json.RawMessage
	if err := a.do(ctx, http.MethodGet, "/syncs/progress/"+url.PathEscape(document), true, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var p models.Progress
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &p, nil
}

// Health checks that the server is up.
func (a *API) Health(ctx context.Context) error {
	var resp models.HealthResponse
	if err := a.do(ctx, http.MethodGet, "/healthcheck", false, nil, &resp); err != nil {
		return err
	}
	if resp.State != "OK" {
		return fmt.Errorf("server state %q", resp.State)
	}
	return nil
}
