package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	d Deps
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{d: d}
}

// pagePath extracts the logical page path from the URL (everything after
// /api/pages/). chi matches on RawPath when the request has one, so only then
// is the parameter still escaped. Sanitizing is left to the store.
func pagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Health handles GET /api/health.
//
//	@Summary		Service health and version
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.d.Started).Seconds(),
		Version:   h.d.Version,
	})
}

// Live handles the liveness and readiness probes.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login handles POST /api/auth/login.
//
//	@Summary		Exchange credentials for a session token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	LoginResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Router			/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.d.Auth == nil {
		writeJSON(w, http.StatusNotFound, errorBody("Authentication is disabled"))
		return
	}
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("Username and password required"))
		return
	}
	sess, err := h.d.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorBody("Invalid credentials"))
			return
		}
		h.d.Logger.Error("login failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("Server error during authentication"))
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     sess.Token,
		Username:  sess.Username,
		ExpiresAt: sess.ExpiresAt,
	})
}

// Verify handles POST /api/auth/verify.
//
//	@Summary		Check a session token
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	VerifyResponse
//	@Failure		401	{object}	errResponse
//	@Failure		403	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auth/verify [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	username, _ := UsernameFrom(r.Context())
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, Username: username})
}

// Tree handles GET /api/pages.
//
//	@Summary		List the page tree
//	@Tags			pages
//	@Produce		json
//	@Success		200	{array}	models.TreeNode
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Pages.Tree(r.Context()))
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a page with rendered HTML
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Logical page path"
//	@Success		200		{object}	PageResponse
//	@Success		304		"Not modified"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	doc, err := h.d.Pages.Read(r.Context(), path)
	if err != nil {
		writeError(w, h.d.Logger, "read page", path, err)
		return
	}
	etag := checksum.ETag(doc.Checksum)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	html, err := renderHTML(doc.Body)
	if err != nil {
		writeError(w, h.d.Logger, "render page", doc.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, PageResponse{
		Path:         doc.Path,
		Markdown:     doc.Body,
		HTML:         html,
		Metadata:     doc.Metadata,
		LastModified: doc.LastModified,
	})
}

// SavePage handles POST and PUT /api/pages/*.
//
//	@Summary		Create or replace a page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Logical page path"
//	@Param			body	body		SavePageRequest	true	"Page content and metadata"
//	@Success		200		{object}	SavePageResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [post]
func (h *Handler) SavePage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	var req SavePageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	mtime, err := h.d.Pages.Write(r.Context(), path, *req.Content, req.Metadata)
	if err != nil {
		writeError(w, h.d.Logger, "save page", path, err)
		return
	}
	// Echo the canonical form the store wrote to.
	if clean, err := storage.CleanPath(path); err == nil {
		path = clean
	}
	writeJSON(w, http.StatusOK, SavePageResponse{
		Path:         path,
		Message:      "Page saved successfully",
		LastModified: mtime,
	})
}

// DeletePage handles DELETE /api/pages/*.
//
//	@Summary		Delete a page
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Logical page path"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [delete]
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	path := pagePath(r)
	if err := h.d.Pages.Delete(r.Context(), path); err != nil {
		writeError(w, h.d.Logger, "delete page", path, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Page deleted successfully"})
}

// Search handles GET /api/search.
//
//	@Summary		Case-insensitive search across pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search term (at least 2 characters)"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{array}		models.SearchResult
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	writeJSON(w, http.StatusOK, h.d.Pages.Search(r.Context(), q.Get("q"), limit))
}
