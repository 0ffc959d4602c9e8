package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNewRodScraper_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewRodScraper(testLogger(), 0).timeout)
	assert.Equal(t, time.Second, NewRodScraper(testLogger(), time.Second).timeout)
}

type fakeCloser struct {
	err    error
	closed bool
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestCloseLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	ok := &fakeCloser{}
	closeLogged(log, "page", ok)
	assert.True(t, ok.closed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)

	failing := &fakeCloser{err: errors.New("target gone")}
	closeLogged(log, "page", failing)
	assert.True(t, failing.closed)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "Error closing rod page", hook.LastEntry().Message)
}

func TestRodScraper_ReadsMetaTags(t *testing.T) {
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser available for rod")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head>
<title>Fallback</title>
<meta property="og:image" content="https://img.example/x.png">
<meta name="author" content=" Ada ">
</head><body></body></html>`)
	}))
	defer srv.Close()

	meta, err := NewRodScraper(testLogger(), 20*time.Second).ScrapeMetadata(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Fallback", meta.Title)
	assert.Equal(t, "https://img.example/x.png", meta.Image)
	assert.Equal(t, "Ada", meta.Author)
	assert.Empty(t, meta.Description)
}
