package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/config"
	"linkkeeper/internal/intake"
	"linkkeeper/internal/view"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func diskConfig(dir string) config.Config {
	return config.Config{
		LogLevel:  "info",
		HTTP:      config.HTTPConfig{Addr: "127.0.0.1:0"},
		Storage:   config.StorageConfig{Path: dir, OpenTimeout: 5 * time.Second},
		Reconcile: config.ReconcileConfig{Interval: 20 * time.Millisecond},
	}
}

func TestNew_FallsBackToMemoryWhenLocked(t *testing.T) {
	ctx := context.Background()
	cfg := diskConfig(t.TempDir())

	first, err := New(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer first.Close()
	assert.False(t, first.Store.InMemory())

	_, err = New(ctx, cfg, testLogger())
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	second, err := New(ctx, cfg, testLogger(), WithMemoryFallback())
	require.NoError(t, err)
	defer second.Close()
	assert.True(t, second.Store.InMemory())
}

func TestReconcileLoop_DrainsQueue(t *testing.T) {
	cfg := diskConfig("")
	cfg.Storage.InMemory = true
	a, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.ReconcileLoop(ctx, cfg.Reconcile.Interval)
		close(done)
	}()

	_, err = a.Queue.Enqueue(context.Background(), intake.Payload{Text: "https://example.com/post"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		c, err := a.View.Counts(context.Background())
		return err == nil && c.All == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile loop did not stop")
	}

	links, err := a.View.List(context.Background(), view.Query{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/post", links[0].URL)
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := diskConfig("")
	cfg.Storage.InMemory = true
	a, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Serve(ctx))
}
