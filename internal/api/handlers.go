package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/editor"
)

// Handler holds API route handlers.
type Handler struct {
	sess *editor.Session
}

// NewHandler creates a new Handler.
func NewHandler(sess *editor.Session) *Handler {
	return &Handler{sess: sess}
}

// pageRoute extracts the page route from the URL (everything after /api/pages/).
// Supports encoded slashes from OpenAPI clients (e.g. guides%2Fsetup).
func pageRoute(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "/" + raw
	}
	return "/" + decoded
}

func branchParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}

// GetNavigation handles GET /api/navigation. With force=true the structure
// is refetched from the remote first.
//
//	@Summary		Get the navigation of the current branch
//	@Tags			navigation
//	@Produce		json
//	@Param			force	query		bool	false	"Refetch from the remote"
//	@Success		200		{object}	NavigationResponse
//	@Security		BearerAuth
//	@Router			/navigation [get]
func (h *Handler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	v, _, err := h.sess.Refresh(r.Context(), force)
	if err != nil && len(v.Navigation) == 0 && v.LastFetchedAt.IsZero() {
		writeError(w, "get navigation", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RefreshNavigation handles POST /api/navigation/refresh.
//
//	@Summary		Force a refetch of the navigation
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	NavigationResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigation/refresh [post]
func (h *Handler) RefreshNavigation(w http.ResponseWriter, r *http.Request) {
	v, sig, err := h.sess.Refresh(r.Context(), true)
	if err != nil {
		writeError(w, "refresh navigation", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// InsertFile handles POST /api/navigation/files.
//
//	@Summary		Add a file entry
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsertRequest	true	"Parent and title"
//	@Success		201		{object}	InsertResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigation/files [post]
func (h *Handler) InsertFile(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, false)
}

// InsertDirectory handles POST /api/navigation/directories.
//
//	@Summary		Add a directory entry
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsertRequest	true	"Parent and title"
//	@Success		201		{object}	InsertResponse
//	@Security		BearerAuth
//	@Router			/navigation/directories [post]
func (h *Handler) InsertDirectory(w http.ResponseWriter, r *http.Request) {
	h.insert(w, r, true)
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request, dir bool) {
	var req InsertRequest
	if !decode(w, r, &req) {
		return
	}
	insert := h.sess.InsertFile
	if dir {
		insert = h.sess.InsertDirectory
	}
	entry, sig, err := insert(r.Context(), req.Parent, req.Title)
	if err != nil {
		writeError(w, "insert", err, &sig)
		return
	}
	writeJSON(w, http.StatusCreated, InsertResponse{Entry: entry, Signal: sig})
}

// Move handles POST /api/navigation/move.
//
//	@Summary		Move an entry up or down within its folder
//	@Tags			navigation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveRequest	true	"Entry and direction"
//	@Success		200		{object}	SignalResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigation/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	move := h.sess.MoveUp
	if req.Direction == DirectionDown {
		move = h.sess.MoveDown
	}
	sig, err := move(r.Context(), req.Path)
	if err != nil {
		writeError(w, "move", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Signal: sig})
}

// Commit handles POST /api/navigation/commit.
//
//	@Summary		Publish the navigation draft
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	CommitResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigation/commit [post]
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	res, sig, err := h.sess.Commit(r.Context())
	if err != nil {
		writeError(w, "commit", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, CommitResponse{
		Branch:      res.Branch,
		SHA:         res.SHA,
		CommittedAt: res.CommittedAt,
		Signal:      sig,
	})
}

// Discard handles POST /api/navigation/discard.
//
//	@Summary		Drop local drafts and reload from the remote
//	@Tags			navigation
//	@Produce		json
//	@Success		200	{object}	NavigationResponse
//	@Security		BearerAuth
//	@Router			/navigation/discard [post]
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	v, sig, err := h.sess.DiscardAndReload(r.Context())
	if err != nil {
		writeError(w, "discard", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Breadcrumbs handles GET /api/navigation/breadcrumbs.
//
//	@Summary		Entries leading to a path
//	@Tags			navigation
//	@Produce		json
//	@Param			path	query		string	true	"Entry path"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigation/breadcrumbs [get]
func (h *Handler) Breadcrumbs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	crumbs := h.sess.Breadcrumbs(path)
	if len(crumbs) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breadcrumbs": crumbs})
}

// ListBranches handles GET /api/branches.
//
//	@Summary		List branches
//	@Tags			branches
//	@Produce		json
//	@Success		200	{object}	BranchesResponse
//	@Security		BearerAuth
//	@Router			/branches [get]
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	names, err := h.sess.ListBranches(r.Context())
	if err != nil {
		writeError(w, "list branches", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, BranchesResponse{Branches: names, Current: h.sess.Branch()})
}

// CreateBranch handles POST /api/branches. The new branch is cut from the
// current one and becomes current.
//
//	@Summary		Create a branch
//	@Tags			branches
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BranchRequest	true	"Branch name"
//	@Success		201		{object}	SignalResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/branches [post]
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := h.sess.CreateBranch(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create branch", err, &sig)
		return
	}
	writeJSON(w, http.StatusCreated, SignalResponse{Signal: sig})
}

// DuplicateBranch handles POST /api/branches/{name}/duplicate.
//
//	@Summary		Copy a branch under a new name
//	@Tags			branches
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Source branch"
//	@Param			body	body		BranchRequest	true	"Target name"
//	@Success		201		{object}	SignalResponse
//	@Security		BearerAuth
//	@Router			/branches/{name}/duplicate [post]
func (h *Handler) DuplicateBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := h.sess.DuplicateBranch(r.Context(), branchParam(r), req.Name)
	if err != nil {
		writeError(w, "duplicate branch", err, &sig)
		return
	}
	writeJSON(w, http.StatusCreated, SignalResponse{Signal: sig})
}

// DeleteBranch handles DELETE /api/branches/{name}.
//
//	@Summary		Delete a branch
//	@Tags			branches
//	@Param			name	path		string	true	"Branch name"
//	@Success		200		{object}	SignalResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/branches/{name} [delete]
func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	sig, err := h.sess.DeleteBranch(r.Context(), branchParam(r))
	if err != nil {
		writeError(w, "delete branch", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Signal: sig})
}

// GetBranch handles GET /api/branch.
func (h *Handler) GetBranch(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"branch": h.sess.Branch()})
}

// SwitchBranch handles PUT /api/branch.
//
//	@Summary		Switch the current branch
//	@Tags			branches
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BranchRequest	true	"Branch name"
//	@Success		200		{object}	SignalResponse
//	@Security		BearerAuth
//	@Router			/branch [put]
func (h *Handler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := h.sess.SwitchBranch(r.Context(), req.Name)
	if err != nil {
		writeError(w, "switch branch", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Signal: sig})
}

// GetEditMode handles GET /api/edit-mode.
func (h *Handler) GetEditMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.sess.EditMode()})
}

// SetEditMode handles PUT /api/edit-mode.
func (h *Handler) SetEditMode(w http.ResponseWriter, r *http.Request) {
	var req EditModeRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := h.sess.SetEditMode(*req.Enabled)
	if err != nil {
		writeError(w, "set edit mode", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Signal: sig})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary		Get a page on the current branch
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page route"
//	@Success		200		{object}	PageResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	p, err := h.sess.GetPage(r.Context(), route)
	if err != nil {
		writeError(w, "get page", err, nil)
		return
	}
	w.Header().Set("ETag", `"`+p.SHA+`"`)
	writeJSON(w, http.StatusOK, p)
}

// SavePage handles PUT /api/pages/*.
//
//	@Summary		Save a page with optimistic concurrency
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string			true	"Page route"
//	@Param			If-Match	header	string			false	"Blob SHA the edit is based on"
//	@Param			body		body	SavePageRequest	true	"New content"
//	@Success		200		{object}	PageResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [put]
func (h *Handler) SavePage(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var req SavePageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	p, sig, err := h.sess.SavePage(r.Context(), route, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "save page", err, &sig)
		return
	}
	w.Header().Set("ETag", `"`+p.SHA+`"`)
	writeJSON(w, http.StatusOK, p)
}

// DeletePage handles DELETE /api/pages/*. With dir=true every file under the
// folder is removed.
//
//	@Summary		Delete a page or a folder
//	@Tags			pages
//	@Produce		json
//	@Param			path	path		string	true	"Page route"
//	@Param			dir		query		bool	false	"Delete the folder recursively"
//	@Success		200		{object}	DeletePageResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{path} [delete]
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	dir, _ := strconv.ParseBool(r.URL.Query().Get("dir"))
	deleted, sig, err := h.sess.DeletePage(r.Context(), route, dir)
	if err != nil {
		writeError(w, "delete page", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, DeletePageResponse{Deleted: deleted, Signal: sig})
}

// ListPageDrafts handles GET /api/drafts/pages.
func (h *Handler) ListPageDrafts(w http.ResponseWriter, _ *http.Request) {
	list, err := h.sess.PageDrafts()
	if err != nil {
		writeError(w, "list page drafts", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, PageDraftsResponse{Branch: h.sess.Branch(), Drafts: list})
}

// SavePageDraft handles PUT /api/drafts/pages/*.
//
//	@Summary		Keep unsaved page content
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Page route"
//	@Param			body	body		PageDraftRequest	true	"Draft content"
//	@Success		200		{object}	PageDraftResponse
//	@Security		BearerAuth
//	@Router			/drafts/pages/{path} [put]
func (h *Handler) SavePageDraft(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PageDraftRequest
	if !decode(w, r, &req) {
		return
	}
	d, sig, err := h.sess.SavePageDraft(route, *req.Content)
	if err != nil {
		writeError(w, "save page draft", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, PageDraftResponse{Draft: d, Signal: sig})
}

// DiscardPageDraft handles DELETE /api/drafts/pages/*.
func (h *Handler) DiscardPageDraft(w http.ResponseWriter, r *http.Request) {
	route := pageRoute(r)
	if route == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	sig, err := h.sess.DiscardPageDraft(route)
	if err != nil {
		writeError(w, "discard page draft", err, &sig)
		return
	}
	writeJSON(w, http.StatusOK, SignalResponse{Signal: sig})
}

// ListPullRequests handles GET /api/pulls.
//
//	@Summary		List open pull requests
//	@Tags			history
//	@Produce		json
//	@Success		200	{object}	PullRequestsResponse
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pulls [get]
func (h *Handler) ListPullRequests(w http.ResponseWriter, r *http.Request) {
	prs, err := h.sess.PullRequests(r.Context())
	if err != nil {
		writeError(w, "list pull requests", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, PullRequestsResponse{PullRequests: prs})
}

// OpenPullRequest handles POST /api/pulls.
//
//	@Summary		Open a pull request between two existing branches
//	@Tags			history
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PullRequestRequest	true	"Pull request"
//	@Success		201		{object}	PullRequestResponse
//	@Failure		404		{object}	errResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pulls [post]
func (h *Handler) OpenPullRequest(w http.ResponseWriter, r *http.Request) {
	var req PullRequestRequest
	if !decode(w, r, &req) {
		return
	}
	pr, sig, err := h.sess.OpenPullRequest(r.Context(), req.Base, req.Head, req.Title, req.Body)
	if err != nil {
		writeError(w, "open pull request", err, &sig)
		return
	}
	writeJSON(w, http.StatusCreated, PullRequestResponse{PullRequest: pr, Signal: sig})
}

// ListCommits handles GET /api/commits.
//
//	@Summary		List recent commits
//	@Tags			history
//	@Produce		json
//	@Param			branch	query		string	false	"Branch, the current one when empty"
//	@Param			path	query		string	false	"Only commits touching this page route"
//	@Param			limit	query		int		false	"Maximum number of commits"
//	@Success		200		{object}	CommitsResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/commits [get]
func (h *Handler) ListCommits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	commits, err := h.sess.Commits(r.Context(), q.Get("branch"), q.Get("path"), limit)
	if err != nil {
		writeError(w, "list commits", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, CommitsResponse{Commits: commits})
}
