package devserver

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/watch"
)

const page = "<!DOCTYPE html><html><body><div id=\"root\"></div><script src=\"/static/js/bundle.js\"></script></body></html>"

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *httptest.Server) {
	t.Helper()
	out := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(out, "/index.html", []byte(page), 0o644))
	require.NoError(t, afero.WriteFile(out, "/static/js/bundle.js", []byte(strings.Repeat("console.log(1);\n", 200)), 0o644))
	content := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(content, "/favicon.ico", []byte("ICO"), 0o644))

	cfg := config.Default()
	opts := Options{Dev: cfg.Dev, PublicPath: "/", Out: out, Content: content}
	if mutate != nil {
		mutate(&opts)
	}
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestServesOutputAndContentBase(t *testing.T) {
	_, ts := newTestServer(t, nil)

	res, body := get(t, ts.URL+"/static/js/bundle.js", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, strings.HasPrefix(body, "console.log(1);"))

	res, body = get(t, ts.URL+"/favicon.ico", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ICO", body)

	res, _ = get(t, ts.URL+"/missing.js", nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPagesGetLiveReloadClient(t *testing.T) {
	_, ts := newTestServer(t, nil)
	res, body := get(t, ts.URL+"/", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, `<script src="/__kiln/client.js"></script>`+"\n</body>")

	_, client := get(t, ts.URL+ClientPath, nil)
	require.Contains(t, client, `"/__kiln/ws"`)
}

func TestHistoryFallback(t *testing.T) {
	_, ts := newTestServer(t, nil)
	res, body := get(t, ts.URL+"/users/42", map[string]string{"Accept": "text/html"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, body, `<div id="root">`)

	_, ts = newTestServer(t, func(o *Options) { o.Dev.HistoryFallback = false })
	res, _ = get(t, ts.URL+"/users/42", map[string]string{"Accept": "text/html"})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGzip(t *testing.T) {
	_, ts := newTestServer(t, nil)
	res, _ := get(t, ts.URL+"/static/js/bundle.js", map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, "gzip", res.Header.Get("Content-Encoding"))

	_, ts = newTestServer(t, func(o *Options) { o.Dev.Compress = false })
	res, _ = get(t, ts.URL+"/static/js/bundle.js", map[string]string{"Accept-Encoding": "gzip"})
	require.Empty(t, res.Header.Get("Content-Encoding"))
}

func TestPublicPathPrefixIsStripped(t *testing.T) {
	_, ts := newTestServer(t, func(o *Options) { o.PublicPath = "/assets/" })
	res, _ := get(t, ts.URL+"/assets/static/js/bundle.js", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUpdatesReachWebsocketClients(t *testing.T) {
	s, ts := newTestServer(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+SocketPath, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	id := uuid.New()
	s.Publish(watch.Update{Seq: 2, BuildID: id, Chunks: []string{"app"}})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	require.Equal(t, message{Type: "update", Seq: 2, Build: id.String(), Chunks: []string{"app"}}, m)

	s.Publish(watch.Update{Seq: 3, BuildID: id, Files: []string{"index.html"}})
	m = message{}
	require.NoError(t, conn.ReadJSON(&m))
	require.Equal(t, message{Type: "update", Seq: 3, Build: id.String(), Files: []string{"index.html"}}, m)

	report := diag.NewReport()
	report.ModuleError("/proj/src/a.js", errors.New("boom"))
	s.Publish(watch.Update{Seq: 4, BuildID: id, Report: report})
	m = message{}
	require.NoError(t, conn.ReadJSON(&m))
	require.Equal(t, "errors", m.Type)
	require.Len(t, m.Errors, 1)
	require.Contains(t, m.Errors[0], "/proj/src/a.js: boom")
}
