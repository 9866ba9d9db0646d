// Package devserver serves the build output during development and tells
// connected browsers to reload after each rebuild.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/transform"
	"kiln/internal/watch"
	runtimeembed "kiln/runtime"
)

const (
	SocketPath = "/__kiln/ws"
	ClientPath = "/__kiln/client.js"
)

type Options struct {
	Dev        config.DevServer
	PublicPath string
	// IndexFile is the page served for history fallback, relative to Out.
	IndexFile string
	// Out is rooted at the output directory.
	Out afero.Fs
	// Content is rooted at the content base; may be nil.
	Content afero.Fs
}

type Server struct {
	opts    Options
	hub     *hub
	handler http.Handler
	client  []byte
}

func New(opts Options) *Server {
	if opts.IndexFile == "" {
		opts.IndexFile = "index.html"
	}
	s := &Server{
		opts:   opts,
		hub:    newHub(),
		client: []byte(runtimeembed.Client(transform.JSString(SocketPath))),
	}

	var static http.Handler = http.HandlerFunc(s.serveStatic)
	if opts.Dev.Compress {
		static = gzhttp.GzipHandler(static)
	}
	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.hub.serveWS)
	mux.Handle("/", static)
	s.handler = mux
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Clients is the number of connected live-reload clients.
func (s *Server) Clients() int { return s.hub.Len() }

// Publish forwards one build notification to every connected browser.
func (s *Server) Publish(u watch.Update) {
	m := message{Seq: u.Seq, Build: u.BuildID.String()}
	if u.OK() {
		m.Type = "update"
		m.Chunks = u.Chunks
		m.Files = u.Files
	} else {
		m.Type = "errors"
		m.Errors = errorLines(u)
	}
	s.hub.broadcast(m)
}

// Forward publishes every update until updates is closed or ctx ends.
func (s *Server) Forward(ctx context.Context, updates <-chan watch.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.Publish(u)
		}
	}
}

func errorLines(u watch.Update) []string {
	var out []string
	if u.Err != nil {
		out = append(out, u.Err.Error())
	}
	if u.Report == nil {
		return out
	}
	for _, d := range u.Report.Diagnostics() {
		if d.Severity < diag.SevError {
			continue
		}
		subject := d.Chunk
		if d.Module != "" {
			subject = d.Module.String()
		}
		out = append(out, fmt.Sprintf("%s %s: %s", d.Code.ID(), subject, d.Message))
	}
	return out
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	srv := &http.Server{
		Addr:              s.opts.Dev.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", "http://"+srv.Addr).Msg("dev server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == ClientPath {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(s.client)
		return
	}

	name := s.stripPublicPath(r.URL.Path)
	if s.serveFile(w, r, s.opts.Out, name) {
		return
	}
	if s.opts.Content != nil && s.serveFile(w, r, s.opts.Content, path.Clean("/"+r.URL.Path)) {
		return
	}
	if s.opts.Dev.HistoryFallback && wantsHTML(r) && s.serveFile(w, r, s.opts.Out, "/"+s.opts.IndexFile) {
		return
	}
	http.NotFound(w, r)
}

func (s *Server) stripPublicPath(p string) string {
	pp := s.opts.PublicPath
	if strings.HasPrefix(pp, "/") && pp != "/" {
		p = "/" + strings.TrimPrefix(p, strings.TrimSuffix(pp, "/"))
	}
	return path.Clean("/" + p)
}

// wantsHTML reports whether r looks like a page navigation rather than a
// request for a missing asset.
func wantsHTML(r *http.Request) bool {
	if path.Ext(r.URL.Path) != "" {
		return false
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, fsys afero.Fs, name string) bool {
	fi, err := fsys.Stat(name)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		name = path.Join(name, "index.html")
		if fi, err = fsys.Stat(name); err != nil || fi.IsDir() {
			return false
		}
	}
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	w.Header().Set("Cache-Control", "no-cache")
	if s.opts.Dev.Hot && path.Ext(name) == ".html" {
		body, err := io.ReadAll(f)
		if err != nil {
			return false
		}
		body = injectClient(body)
		http.ServeContent(w, r, name, fi.ModTime(), bytes.NewReader(body))
		return true
	}
	http.ServeContent(w, r, name, fi.ModTime(), f)
	return true
}

func injectClient(page []byte) []byte {
	tag := []byte(`<script src="` + ClientPath + `"></script>` + "\n")
	at := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if at < 0 {
		return append(bytes.Clone(page), tag...)
	}
	out := make([]byte, 0, len(page)+len(tag))
	out = append(out, page[:at]...)
	out = append(out, tag...)
	return append(out, page[at:]...)
}
