package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/editor"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(sess *editor.Session, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(sess)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/navigation", func(r chi.Router) {
		r.Get("/", h.GetNavigation)
		r.Post("/refresh", h.RefreshNavigation)
		r.Post("/files", h.InsertFile)
		r.Post("/directories", h.InsertDirectory)
		r.Post("/move", h.Move)
		r.Post("/commit", h.Commit)
		r.Post("/discard", h.Discard)
		r.Get("/breadcrumbs", h.Breadcrumbs)
	})

	r.Get("/branches", h.ListBranches)
	r.Post("/branches", h.CreateBranch)
	r.Delete("/branches/{name}", h.DeleteBranch)
	r.Post("/branches/{name}/duplicate", h.DuplicateBranch)

	r.Get("/branch", h.GetBranch)
	r.Put("/branch", h.SwitchBranch)

	r.Get("/edit-mode", h.GetEditMode)
	r.Put("/edit-mode", h.SetEditMode)

	r.Get("/pages/*", h.GetPage)
	r.Put("/pages/*", h.SavePage)
	r.Delete("/pages/*", h.DeletePage)

	r.Get("/drafts/pages", h.ListPageDrafts)
	r.Put("/drafts/pages/*", h.SavePageDraft)
	r.Delete("/drafts/pages/*", h.DiscardPageDraft)

	r.Get("/pulls", h.ListPullRequests)
	r.Post("/pulls", h.OpenPullRequest)
	r.Get("/commits", h.ListCommits)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
