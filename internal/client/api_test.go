package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/kosync/internal/metrics"
	"github.com/atinyakov/kosync/internal/models"
	"github.com/atinyakov/kosync/internal/repository"
	kohttp "github.com/atinyakov/kosync/internal/server/handler/http"
	"github.com/atinyakov/kosync/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	layout, err := repository.InitFilesystem(t.TempDir(), false)
	require.NoError(t, err)
	auth := service.NewAuthService(repository.NewFileAuthRepository(layout))
	progress := service.NewSyncService(repository.NewFileProgressRepository(layout, zap.NewNop()), auth)
	var m *metrics.Metrics
	srv := httptest.NewServer(kohttp.NewRouter(
		&kohttp.AuthHandler{AuthService: auth, Log: zap.NewNop()},
		&kohttp.SyncHandler{SyncService: progress, Log: zap.NewNop()},
		zap.NewNop(),
		m,
	))
	t.Cleanup(srv.Close)
	return srv
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, "9dd4e461268c8034f5c8564e155c67a6", HashKey("x"))
}

func TestAPI_RoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	api := NewAPI(srv.URL+"/", srv.Client())

	require.NoError(t, api.Health(ctx))
	require.NoError(t, api.Register(ctx, "alice", "secret"))

	err := api.Register(ctx, "alice", "secret")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, 2002, apiErr.Code)

	authed := api.WithCredentials("alice", HashKey("secret"))
	require.NoError(t, authed.Authorize(ctx))
	assert.Empty(t, api.Username, "WithCredentials must not modify the receiver")

	err = api.WithCredentials("alice", HashKey("wrong")).Authorize(ctx)
	assert.True(t, IsUnauthorized(err))

	got, err := authed.PullProgress(ctx, "book")
	require.NoError(t, err)
	assert.Nil(t, got)

	put, err := authed.PushProgress(ctx, models.Progress{
		DeviceID:   "dev-1",
		Percentage: json.Number("0.33"),
		Document:   "book",
		Progress:   "/body/p[1]",
		Device:     "cli",
		Timestamp:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "book", put.Document)
	assert.Greater(t, put.Timestamp, int64(1))

	got, err = authed.PullProgress(ctx, "book")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, json.Number("0.33"), got.Percentage)
	assert.Equal(t, put.Timestamp, got.Timestamp)
}

func TestAPI_ErrorWithoutProtocolBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, acceptHeader, r.Header.Get("Accept"))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewAPI(srv.URL, nil).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "server replied 502", apiErr.Error())
}

func TestAPI_SendsCredentialHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bob", r.Header.Get("X-Auth-User"))
		assert.Equal(t, "k", r.Header.Get("X-Auth-Key"))
		_, _ = w.Write([]byte(`{"authorized":"OK"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewAPI(srv.URL, nil).WithCredentials("bob", "k").Authorize(context.Background()))
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient("")
	require.NoError(t, err)
	assert.Nil(t, c.Transport)

	_, err = NewHTTPClient("/does/not/exist.crt")
	assert.Error(t, err)
}
