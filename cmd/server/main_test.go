package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/kosync/internal/config"
	"github.com/atinyakov/kosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testOptions(t *testing.T, storage string) *config.Options {
	t.Helper()
	opts := config.Default()
	opts.DataPath = filepath.Join(t.TempDir(), "data")
	opts.Address = "127.0.0.1:0"
	opts.Storage = storage
	require.NoError(t, opts.Validate())
	return opts
}

func TestOpenStore(t *testing.T) {
	for _, storage := range []string{config.StorageFS, config.StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			st, err := openStore(testOptions(t, storage), zap.NewNop())
			require.NoError(t, err)
			defer func() { assert.NoError(t, st.close()) }()

			ctx := context.Background()
			require.NoError(t, st.auth.CreateUser(ctx, "alice", "hash"))
			require.NoError(t, st.progress.SaveProgress(ctx, "alice", models.Progress{
				DeviceID: "d", Document: "doc", Percentage: "0.1", Progress: "p", Device: "x", Timestamp: 1,
			}))
			stats, err := st.stats.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.Stats{Users: 1, Records: 1}, stats)
		})
	}
}

func TestOpenStore_Unknown(t *testing.T) {
	opts := config.Default()
	opts.Storage = "tape"
	_, err := openStore(opts, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	opts := testOptions(t, config.StorageFS)
	opts.NoAuth = true
	opts.MetricsAddress = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var banner bytes.Buffer
	go func() { done <- run(ctx, opts, zap.NewNop(), &banner) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Contains(t, banner.String(), "Authentication will be ignored, noauth is enabled")
	assert.DirExists(t, filepath.Join(opts.DataPath, "noauth", "devices"))
}

func TestRun_BadTLS(t *testing.T) {
	opts := testOptions(t, config.StorageFS)
	opts.TLSCert = filepath.Join(t.TempDir(), "missing.crt")
	opts.TLSKey = filepath.Join(t.TempDir(), "missing.key")

	err := run(context.Background(), opts, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPrintBanner(t *testing.T) {
	var b bytes.Buffer
	opts := config.Default()
	opts.DataPath = "/srv/kosync"
	printBanner(&b, opts)
	assert.Contains(t, b.String(), "Data directory is /srv/kosync")
	assert.Contains(t, b.String(), "Serving on 127.0.0.1:8778")
	assert.NotContains(t, b.String(), "noauth")
}
