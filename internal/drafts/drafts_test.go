package drafts

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/localstate"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/testutil"
)

func tree(titles ...string) models.Tree {
	var t models.Tree
	for _, title := range titles {
		t.Entries = append(t.Entries, models.NewFile(title, "/"+title))
	}
	return t
}

func TestSaveGetClear(t *testing.T) {
	mock := clock.NewMock()
	s, err := New(testutil.TestState(t), mock, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ObserveBranch("main"); err != nil {
		t.Fatal(err)
	}
	if s.HasDraftChanges() {
		t.Error("fresh store reports draft changes")
	}

	d, err := s.Save("main", tree("a"))
	if err != nil {
		t.Fatal(err)
	}
	if !d.SavedAt.Equal(mock.Now()) {
		t.Errorf("SavedAt = %v", d.SavedAt)
	}
	if !s.HasDraftChanges() {
		t.Error("HasDraftChanges false after Save")
	}

	got, ok := s.Get("main")
	if !ok || !reflect.DeepEqual(got.Tree, tree("a")) {
		t.Errorf("Get = %+v %v", got, ok)
	}

	got.Tree.Entries[0].Title = "mutated"
	again, _ := s.Get("main")
	if again.Tree.Entries[0].Title != "a" {
		t.Error("Get returned an aliased tree")
	}

	if err := s.Clear("main"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("main"); ok {
		t.Error("draft survived Clear")
	}
	if s.HasDraftChanges() {
		t.Error("HasDraftChanges true after Clear")
	}
	if err := s.Clear("main"); err != nil {
		t.Errorf("clearing missing draft: %v", err)
	}
}

func TestDraftsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := localstate.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := New(db, clock.NewMock(), nil)
	_, _ = s.ObserveBranch("dev")
	_, _ = s.Save("dev", tree("x", "y"))
	db.Close()

	db, err = localstate.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s, err = New(db, clock.NewMock(), nil)
	if err != nil {
		t.Fatal(err)
	}
	d, ok := s.Get("dev")
	if !ok || len(d.Tree.Entries) != 2 {
		t.Errorf("reloaded draft = %+v %v", d, ok)
	}
	if !s.HasDraftChanges() {
		t.Error("active branch not restored")
	}
}

func TestObserveBranch_ClearsOnChange(t *testing.T) {
	mock := clock.NewMock()
	s, _ := New(testutil.TestState(t), mock, nil)

	changed, err := s.ObserveBranch("main")
	if err != nil || changed {
		t.Fatalf("first observe: changed=%v err=%v", changed, err)
	}
	_, _ = s.Save("main", tree("a"))
	mock.Add(time.Second)

	changed, _ = s.ObserveBranch("main")
	if changed {
		t.Error("same branch reported as a change")
	}
	if _, ok := s.Get("main"); !ok {
		t.Error("draft dropped without a branch change")
	}

	changed, err = s.ObserveBranch("feature")
	if err != nil || !changed {
		t.Fatalf("switch: changed=%v err=%v", changed, err)
	}
	if _, ok := s.Get("main"); ok {
		t.Error("draft for main survived the branch change")
	}
}

func TestClearAll(t *testing.T) {
	s, _ := New(testutil.TestState(t), clock.NewMock(), nil)
	_, _ = s.Save("a", tree("1"))
	_, _ = s.Save("b", tree("2"))
	if err := s.ClearAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("draft a survived ClearAll")
	}
	if _, ok := s.Get("b"); ok {
		t.Error("draft b survived ClearAll")
	}
}
