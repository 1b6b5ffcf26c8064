package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPNGServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 6, 4))))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func noConfig(t *testing.T) string {
	t.Setenv("FLICKR_API_KEY", "")
	t.Setenv("THUMBFETCH_FLICKR_API_KEY", "")
	return filepath.Join(t.TempDir(), "absent.toml")
}

func TestRun_URLs(t *testing.T) {
	srv, hits := newPNGServer(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"--config", noConfig(t),
		"--url", srv.URL + "/a.png",
		"--url", srv.URL + "/b.png",
		"--url", srv.URL + "/c.png",
		"--visible", "2",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2, "only visible items are delivered")
	assert.Equal(t, "0\t6x4\t"+srv.URL+"/a.png", lines[0])
	assert.Equal(t, "1\t6x4\t"+srv.URL+"/b.png", lines[1])

	// The third URL is preloaded but not delivered
	assert.Equal(t, int32(3), hits.Load())
}

func TestRun_FlickrListing(t *testing.T) {
	img, _ := newPNGServer(t)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"photos":{"page":1,"pages":1,"perpage":100,"total":1,"photo":[
			{"id":"9","title":"t","url_s":"` + img.URL + `/9.png"}]},"stat":"ok"}`))
	}))
	t.Cleanup(api.Close)

	cfgPath := noConfig(t)
	t.Setenv("THUMBFETCH_FLICKR_ENDPOINT", api.URL)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", cfgPath, "--api-key", "key"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "0\t6x4\t"+img.URL+"/9.png\n", stdout.String())
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--config", noConfig(t)}, &stdout, &stderr)
	assert.Equal(t, 1, code, "listing without an API key fails")

	code = run(context.Background(), []string{"--visible", "0"}, &stdout, &stderr)
	assert.Equal(t, 2, code)

	code = run(context.Background(), []string{"--help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout.String())
}
