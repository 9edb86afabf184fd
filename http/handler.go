// Package http serves archive members over HTTP.
//
// The handler exposes two endpoints:
//
//	GET|HEAD /file?archive=&path=&flags=   member content, with Range support
//	GET      /list?archive=&prefix=&recursive=   JSON directory listing
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meigma/rarfs"
	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/internal/pathutil"
)

// DefaultSniffLen is how much of a member is read to detect its type.
const DefaultSniffLen = 3 << 10

// Handler serves members of archives opened through a rarfs.FS.
type Handler struct {
	fsys     *rarfs.FS
	router   chi.Router
	logger   *slog.Logger
	sniffLen int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for request errors.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSniffLen sets how many leading bytes are used for type detection.
func WithSniffLen(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.sniffLen = n
		}
	}
}

// NewHandler returns a handler serving members of fsys.
func NewHandler(fsys *rarfs.FS, opts ...Option) *Handler {
	h := &Handler{
		fsys:     fsys,
		sniffLen: DefaultSniffLen,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/file", h.serveFile)
	r.Head("/file", h.serveFile)
	r.Get("/list", h.list)
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) log() *slog.Logger {
	if h.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.logger
}

func (h *Handler) serveFile(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	u := rarfs.URL{
		Archive: q.Get("archive"),
		Member:  pathutil.Normalize(q.Get("path")),
	}
	if u.Archive == "" || u.Member == "." {
		h.fail(w, r, nethttp.StatusBadRequest, errors.New("archive and path are required"))
		return
	}
	if v := q.Get("flags"); v != "" {
		flags, err := cache.ParseFlags(v)
		if err != nil {
			h.fail(w, r, nethttp.StatusBadRequest, err)
			return
		}
		u.Flags, u.HasFlags = flags, true
	}

	f, err := h.fsys.OpenURL(r.Context(), u)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	defer f.Close() //nolint:errcheck // response already written

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	head := make([]byte, h.sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		h.fail(w, r, statusFor(err), err)
		return
	}
	head = head[:n]
	w.Header().Set("Content-Type", mimetype.Detect(head).String())

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		// Not seekable: no Range support, send the body as it decompresses.
		w.Header().Set("Accept-Ranges", "none")
		w.WriteHeader(nethttp.StatusOK)
		if r.Method == nethttp.MethodHead {
			return
		}
		if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), f)); err != nil {
			h.log().Warn("streaming member failed", "archive", u.Archive, "member", u.Member, "error", err)
		}
		return
	}
	nethttp.ServeContent(w, r, pathutil.Base(f.Name()), modTime, f)
}

// listItem is one entry of a /list response.
type listItem struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime,omitzero"`
	Method  string    `json:"method,omitempty"`
	Stored  bool      `json:"stored,omitempty"`
}

func (h *Handler) list(w nethttp.ResponseWriter, r *nethttp.Request) {
	q := r.URL.Query()
	archive := q.Get("archive")
	if archive == "" {
		h.fail(w, r, nethttp.StatusBadRequest, errors.New("archive is required"))
		return
	}
	recursive := false
	if v := q.Get("recursive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, nethttp.StatusBadRequest, err)
			return
		}
		recursive = b
	}

	items, err := h.fsys.GetFilesInRar(r.Context(), archive, recursive, q.Get("prefix"))
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}

	out := make([]listItem, 0, len(items))
	for i := range items {
		it := &items[i]
		li := listItem{
			Path:    it.Path,
			Name:    it.Name(),
			IsDir:   it.IsDir,
			Size:    it.Size,
			ModTime: it.ModTime,
		}
		if it.Entry != nil && !it.IsDir {
			li.Method = it.Entry.Method.String()
			li.Stored = it.Entry.IsStored()
		}
		out = append(out, li)
	}
	writeJSON(w, nethttp.StatusOK, out)
}

// statusFor maps rarfs errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rarfs.ErrMemberNotFound), errors.Is(err, fs.ErrNotExist):
		return nethttp.StatusNotFound
	case errors.Is(err, rarfs.ErrExtractionCanceled):
		return nethttp.StatusConflict
	case errors.Is(err, rarfs.ErrInsufficientSpace), errors.Is(err, rarfs.ErrNoDestination):
		return nethttp.StatusInsufficientStorage
	case errors.Is(err, rarfs.ErrArchiveUnreadable), errors.Is(err, rarfs.ErrVolumeMissing):
		return nethttp.StatusUnprocessableEntity
	case errors.Is(err, fs.ErrInvalid):
		return nethttp.StatusBadRequest
	case errors.Is(err, rarfs.ErrTimeout):
		return nethttp.StatusGatewayTimeout
	default:
		return nethttp.StatusInternalServerError
	}
}

func (h *Handler) fail(w nethttp.ResponseWriter, r *nethttp.Request, status int, err error) {
	h.log().Warn("request failed",
		"request", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
