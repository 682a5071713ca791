package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/middleware"
	"github.com/atinyakov/kosync/internal/repository"
	"github.com/atinyakov/kosync/internal/service"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	root  string
	clock atomic.Int64
}

func newTestServer(t *testing.T, anonymous bool) *testServer {
	t.Helper()
	ts := &testServer{root: t.TempDir()}
	ts.clock.Store(1000)

	layout, err := repository.InitFilesystem(ts.root, anonymous)
	require.NoError(t, err)

	auth := service.NewAuthService(repository.NewFileAuthRepository(layout), service.WithAnonymous(anonymous))
	require.NoError(t, auth.Bootstrap(context.Background()))
	progress := service.NewSyncService(repository.NewFileProgressRepository(layout, zap.NewNop()), auth).
		WithClock(func() time.Time { return time.Unix(ts.clock.Load(), 0) })

	m := metrics.New()
	router := NewRouter(
		&AuthHandler{AuthService: auth, Log: zap.NewNop(), Metrics: m},
		&SyncHandler{SyncService: progress, Log: zap.NewNop(), Metrics: m},
		zap.NewNop(),
		m,
	)
	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Accept", middleware.AcceptKOReader)
	for k, v := range headers {
		if v == "" && k == "Accept" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func creds(user, key string) map[string]string {
	return map[string]string{"x-auth-user": user, "x-auth-key": key}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRouter_StaticBodies(t *testing.T) {
	ts := newTestServer(t, false)
	g := golden(t)

	code, body := ts.do(t, "GET", "/healthcheck", "", map[string]string{"Accept": ""})
	assert.Equal(t, http.StatusPreconditionFailed, code)
	g.Assert(t, "missing_accept", body)

	code, body = ts.do(t, "GET", "/nope", "", map[string]string{"Accept": ""})
	assert.Equal(t, http.StatusPreconditionFailed, code)
	g.Assert(t, "missing_accept", body)

	code, body = ts.do(t, "GET", "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, code)
	g.Assert(t, "healthcheck", body)

	code, body = ts.do(t, "GET", "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	g.Assert(t, "not_found", body)

	code, body = ts.do(t, "DELETE", "/healthcheck", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	g.Assert(t, "not_found", body)

	code, body = ts.do(t, "GET", "/users/auth", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	g.Assert(t, "unauthorized", body)
}

func TestRouter_RegisterAndAuthorize(t *testing.T) {
	ts := newTestServer(t, false)
	g := golden(t)

	code, body := ts.do(t, "POST", "/users/create", `{"username":"alice","password":"x"}`, nil)
	assert.Equal(t, http.StatusCreated, code)
	g.Assert(t, "create_user", body)

	code, body = ts.do(t, "POST", "/users/create", `{"username":"alice","password":"y"}`, nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	g.Assert(t, "user_exists", body)

	code, body = ts.do(t, "POST", "/users/create", `{"username":"bob"`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	g.Assert(t, "bad_json", body)

	code, body = ts.do(t, "GET", "/users/auth", "", creds("alice", "x"))
	assert.Equal(t, http.StatusOK, code)
	g.Assert(t, "authorized", body)

	code, _ = ts.do(t, "GET", "/users/auth", "", creds("alice", "y"))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ts.do(t, "GET", "/users/auth", "", creds("nobody", "x"))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_EndToEndProgress(t *testing.T) {
	ts := newTestServer(t, false)
	alice := creds("alice", "x")

	code, _ := ts.do(t, "POST", "/users/create", `{"username":"alice","password":"x"}`, nil)
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.do(t, "GET", "/syncs/progress/book1", "", alice)
	assert.Equal(t, http.StatusOK, code)
	golden(t).Assert(t, "empty_progress", body)

	push := `{"device_id":"d1","percentage":0.42,"document":"book1","progress":"/body/DocFragment[3]","device":"Kobo","timestamp":5}`
	code, body = ts.do(t, "PUT", "/syncs/progress", push, alice)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"timestamp":1000,"document":"book1"}`, string(body))

	code, body = ts.do(t, "GET", "/syncs/progress/book1", "", alice)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t,
		`{"device_id":"d1","percentage":0.42,"document":"book1","progress":"/body/DocFragment[3]","device":"Kobo","timestamp":1000}`,
		string(body))
}

func TestRouter_LateDeviceDoesNotWin(t *testing.T) {
	ts := newTestServer(t, false)
	alice := creds("alice", "x")
	code, _ := ts.do(t, "POST", "/users/create", `{"username":"alice","password":"x"}`, nil)
	require.Equal(t, http.StatusCreated, code)

	pushAt := func(at int64, device, progress string) {
		ts.clock.Store(at)
		body := `{"device_id":"` + device + `","percentage":0.1,"document":"d","progress":"` + progress + `","device":"` + device + `"}`
		code, _ := ts.do(t, "PUT", "/syncs/progress", body, alice)
		require.Equal(t, http.StatusOK, code)
	}
	pushAt(100, "A", "a1")
	pushAt(200, "B", "b1")
	pushAt(150, "A", "a2")

	code, body := ts.do(t, "GET", "/syncs/progress/d", "", alice)
	require.Equal(t, http.StatusOK, code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "B", got["device_id"])
	assert.Equal(t, "b1", got["progress"])
	assert.EqualValues(t, 200, got["timestamp"])
}

func TestRouter_MalformedPushWritesNothing(t *testing.T) {
	ts := newTestServer(t, false)
	alice := creds("alice", "x")
	code, _ := ts.do(t, "POST", "/users/create", `{"username":"alice","password":"x"}`, nil)
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.do(t, "PUT", "/syncs/progress", `{"device_id":"d1","document":"book1"`, alice)
	assert.Equal(t, http.StatusBadRequest, code)
	golden(t).Assert(t, "bad_json", body)

	entries, err := os.ReadDir(filepath.Join(ts.root, "users", "alice", "devices"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	code, body = ts.do(t, "GET", "/syncs/progress/book1", "", alice)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "{}", string(body))
}

func TestRouter_EscapedDocumentRoundTrip(t *testing.T) {
	ts := newTestServer(t, false)
	alice := creds("alice", "x")
	code, _ := ts.do(t, "POST", "/users/create", `{"username":"alice","password":"x"}`, nil)
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		document string
		path     string
	}{
		{"a/b", "/syncs/progress/a%2Fb"},
		{"a:b", "/syncs/progress/a%3Ab"},
		{"a b", "/syncs/progress/a%20b"},
		{"100%", "/syncs/progress/100%25"},
		{"plain", "/syncs/progress/plain"},
	}
	for _, tc := range tests {
		t.Run(tc.document, func(t *testing.T) {
			doc, err := json.Marshal(tc.document)
			require.NoError(t, err)
			push := `{"device_id":"d1","percentage":0.5,"document":` + string(doc) + `,"progress":"p","device":"Kobo"}`
			code, _ := ts.do(t, "PUT", "/syncs/progress", push, alice)
			require.Equal(t, http.StatusOK, code)

			code, body := ts.do(t, "GET", tc.path, "", alice)
			require.Equal(t, http.StatusOK, code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tc.document, got["document"])
			assert.Equal(t, "p", got["progress"])
		})
	}
}

func TestRouter_PushRequiresAuth(t *testing.T) {
	ts := newTestServer(t, false)
	push := `{"device_id":"d1","percentage":0.1,"document":"book1","progress":"p","device":"Kobo"}`

	code, body := ts.do(t, "PUT", "/syncs/progress", push, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	golden(t).Assert(t, "unauthorized", body)

	code, _ = ts.do(t, "GET", "/syncs/progress/book1", "", creds("ghost", "x"))
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouter_Anonymous(t *testing.T) {
	ts := newTestServer(t, true)

	code, _ := ts.do(t, "GET", "/users/auth", "", creds("anyone", "anything"))
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, "POST", "/users/create", `{"username":"anyone","password":"x"}`, nil)
	assert.Equal(t, http.StatusCreated, code)

	push := `{"device_id":"d1","percentage":0.3,"document":"book1","progress":"p","device":"Kobo"}`
	code, _ = ts.do(t, "PUT", "/syncs/progress", push, creds("alice", "a"))
	require.Equal(t, http.StatusOK, code)

	code, body := ts.do(t, "GET", "/syncs/progress/book1", "", creds("bob", "b"))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"device_id":"d1"`)

	_, err := os.Stat(filepath.Join(ts.root, "noauth", "devices", "d1", "book1"))
	assert.NoError(t, err)
}
