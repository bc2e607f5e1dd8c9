package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/editor"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/pages"
	"github.com/starford/folio/internal/remote"
)

// Move directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// InsertRequest is the body of POST /navigation/files and /navigation/directories.
type InsertRequest struct {
	Parent string `json:"parent" example:"/guides"`
	Title  string `json:"title" example:"Getting Started"`
}

// Validate implements validation.Validatable.
func (r *InsertRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
	)
}

// MoveRequest is the body of POST /navigation/move.
type MoveRequest struct {
	Path      string `json:"path" example:"/guides/setup"`
	Direction string `json:"direction" example:"up"`
}

// Validate implements validation.Validatable.
func (r *MoveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Direction, validation.Required, validation.In(DirectionUp, DirectionDown)),
	)
}

// BranchRequest names a branch.
type BranchRequest struct {
	Name string `json:"name" example:"feature/docs"`
}

// Validate implements validation.Validatable.
func (r *BranchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
	)
}

// EditModeRequest is the body of PUT /edit-mode.
type EditModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate implements validation.Validatable.
func (r *EditModeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

// SavePageRequest is the body of PUT /pages/*.
type SavePageRequest struct {
	Content string `json:"content" example:"---\ntitle: Intro\n---\n# Intro"`
}

// Validate implements validation.Validatable.
func (r *SavePageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
	)
}

// PageDraftRequest is the body of PUT /drafts/pages/*. Empty content is a
// valid draft.
type PageDraftRequest struct {
	Content *string `json:"content" example:"# Work in progress"`
}

// Validate implements validation.Validatable.
func (r *PageDraftRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.NotNil),
	)
}

// PullRequestRequest is the body of POST /pulls. An empty head means the
// current branch.
type PullRequestRequest struct {
	Base  string `json:"base" example:"main"`
	Head  string `json:"head" example:"feature/docs"`
	Title string `json:"title" example:"Update setup guide"`
	Body  string `json:"body"`
}

// Validate implements validation.Validatable.
func (r *PullRequestRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Base, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 256)),
	)
}

// NavigationResponse is the navigation view of the current branch.
type NavigationResponse = editor.View

// SignalResponse carries the user-facing outcome of an operation.
type SignalResponse struct {
	Signal editor.Signal `json:"signal"`
}

// InsertResponse is returned after an insert.
type InsertResponse struct {
	Entry  models.Entry  `json:"entry"`
	Signal editor.Signal `json:"signal"`
}

// CommitResponse is returned after a commit.
type CommitResponse struct {
	Branch      string        `json:"branch"`
	SHA         string        `json:"sha"`
	CommittedAt time.Time     `json:"committed_at"`
	Signal      editor.Signal `json:"signal"`
}

// BranchesResponse lists branches.
type BranchesResponse struct {
	Branches []string `json:"branches"`
	Current  string   `json:"current"`
}

// PageResponse is a page as served by the API.
type PageResponse = pages.Page

// DeletePageResponse is returned after DELETE /pages/*.
type DeletePageResponse struct {
	Deleted []string      `json:"deleted"`
	Signal  editor.Signal `json:"signal"`
}

// PageDraftResponse is returned after a page draft is saved.
type PageDraftResponse struct {
	Draft  models.PageDraft `json:"draft"`
	Signal editor.Signal    `json:"signal"`
}

// PageDraftsResponse lists the page drafts of the current branch.
type PageDraftsResponse struct {
	Branch string             `json:"branch"`
	Drafts []models.PageDraft `json:"drafts"`
}

// PullRequestsResponse lists open pull requests.
type PullRequestsResponse struct {
	PullRequests []remote.PullRequest `json:"pull_requests"`
}

// PullRequestResponse is returned after a pull request is opened.
type PullRequestResponse struct {
	PullRequest remote.PullRequest `json:"pull_request"`
	Signal      editor.Signal      `json:"signal"`
}

// CommitsResponse lists commits of a branch.
type CommitsResponse struct {
	Commits []remote.Commit `json:"commits"`
}
