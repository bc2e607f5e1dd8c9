package internal

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/navsync"
	"github.com/starford/folio/internal/navtree"
	"github.com/starford/folio/internal/testutil"
)

func testServices(t *testing.T, cfg *Config) (*services, *testutil.FakeStore) {
	t.Helper()
	store := testutil.NewFakeStore("main")
	data, err := navtree.Marshal(models.Tree{Entries: []models.Entry{models.NewFile("Intro", "/intro")}})
	if err != nil {
		t.Fatal(err)
	}
	store.Seed("main", navsync.DefaultBlobPath, data)

	cfg.State.Path = filepath.Join(t.TempDir(), "state.db")
	app, err := newApplication([]Option{
		WithConfig(cfg),
		WithStore(store),
		WithClock(clock.NewMock()),
		WithLogOutput(io.Discard),
	})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := app.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(svc.close)
	return svc, store
}

func TestNewApplication_RequiresConfig(t *testing.T) {
	if _, err := newApplication(nil); err == nil {
		t.Error("expected error without config")
	}
}

func TestHTTPHandler_Routes(t *testing.T) {
	cfg := validLocalConfig()
	svc, _ := testServices(t, cfg)
	h := newHTTPHandler(cfg, svc)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/navigation", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("navigation = %d, body = %s", w.Code, w.Body.String())
	}
	var view struct {
		Branch     string         `json:"branch"`
		Navigation []models.Entry `json:"navigation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Branch != "main" || len(view.Navigation) != 1 {
		t.Errorf("view = %+v", view)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "folio_http_requests_total") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestHTTPHandler_AuthOnAPIOnly(t *testing.T) {
	cfg := validLocalConfig()
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "s3cret"}
	svc, _ := testServices(t, cfg)
	h := newHTTPHandler(cfg, svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/branch", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("api without token = %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}
}

func TestServices_StartWarmsCurrentBranch(t *testing.T) {
	cfg := validLocalConfig()
	svc, store := testServices(t, cfg)

	svc.start(t.Context(), cfg.Sync.PollInterval)
	if got := svc.session.Structure().Navigation; len(got) != 1 || got[0].Title != "Intro" {
		t.Errorf("navigation = %+v", got)
	}
	if store.GetCalls("main", navsync.DefaultBlobPath) != 1 {
		t.Errorf("fetches = %d", store.GetCalls("main", navsync.DefaultBlobPath))
	}
}
