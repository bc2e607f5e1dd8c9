package navtree

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

func sampleTree() models.Tree {
	return models.Tree{Entries: []models.Entry{
		models.NewDirectory("Guides", "/guides",
			models.NewDirectory("Advanced", "/guides/advanced"),
			models.NewFile("Intro", "/guides/intro"),
		),
		models.NewFile("About", "/about"),
	}}
}

func TestMarshalParse_RoundTrip(t *testing.T) {
	tree := sampleTree()
	data, err := Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got, tree) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, tree)
	}
}

func TestMarshal_CanonicalShape(t *testing.T) {
	data, err := Marshal(models.Tree{Entries: []models.Entry{models.NewDirectory("Docs", "/docs")}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{
  "navigation": [
    {
      "title": "Docs",
      "path": "/docs",
      "type": "directory",
      "locked": false,
      "children": []
    }
  ]
}`
	if string(data) != want {
		t.Errorf("blob =\n%s\nwant\n%s", data, want)
	}
}

func TestMarshal_KeepsHTMLCharactersLiteral(t *testing.T) {
	tree := models.Tree{Entries: []models.Entry{
		models.NewFile("Q&A <new>", "/q-a-new"),
		models.NewDirectory("R&D", "/r-d", models.NewFile("A > B", "/r-d/a-b")),
	}}
	data, err := Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"title": "Q&A <new>"`, `"title": "R&D"`, `"title": "A > B"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("blob missing %s:\n%s", want, data)
		}
	}
	if strings.Contains(string(data), `\u0026`) {
		t.Errorf("blob escapes &:\n%s", data)
	}

	back, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if back.Entries[0].Title != "Q&A <new>" {
		t.Errorf("round trip title = %q", back.Entries[0].Title)
	}
}

func TestMarshal_EmptyTree(t *testing.T) {
	data, err := Marshal(models.Tree{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"navigation": []`) {
		t.Errorf("empty tree blob = %s", data)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":      `{"navigation": [`,
		"missing field":     `{"items": []}`,
		"not an array":      `{"navigation": {"title": "x"}}`,
		"null navigation":   `{"navigation": null}`,
		"unknown entry type": `{"navigation": [{"title": "x", "path": "/x", "type": "link"}]}`,
	}
	for name, in := range cases {
		if _, err := Parse([]byte(in), nil); !errors.Is(err, apperr.ErrMalformedNavigation) {
			t.Errorf("%s: err = %v, want ErrMalformedNavigation", name, err)
		}
	}
}

func TestParse_DirectoryWithoutChildren(t *testing.T) {
	tree, err := Parse([]byte(`{"navigation":[{"title":"A","path":"/a","type":"directory"}]}`), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.Entries[0].Children == nil {
		t.Error("directory children should be normalised to an empty slice")
	}
}

func TestParse_RecomputesLocked(t *testing.T) {
	in := `{"navigation":[
		{"title":"Legal","path":"/legal","type":"directory","locked":false,"children":[
			{"title":"Terms","path":"/legal/terms","type":"file","locked":false}
		]},
		{"title":"Blog","path":"/blog","type":"file","locked":true}
	]}`
	tree, err := Parse([]byte(in), NewLocker([]string{"/legal"}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !tree.Entries[0].Locked || !tree.Entries[0].Children[0].Locked {
		t.Error("entries under /legal should be locked")
	}
	if tree.Entries[1].Locked {
		t.Error("stored locked flag must not be authoritative")
	}
}

func TestLocker_NilLocksNothing(t *testing.T) {
	var l *Locker
	if l.IsLocked("/anything") {
		t.Error("nil locker should lock nothing")
	}
	if NewLocker([]string{"", "  "}).IsLocked("/x") {
		t.Error("blank patterns should be ignored")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Intro":                "intro",
		"  Getting Started  ":  "getting-started",
		"C++ & Go: tips!":      "c-go-tips",
		"notes.md":             "notes",
		"---":                  "",
		"Release 2.0 -- Notes": "release-2-0-notes",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalPath(t *testing.T) {
	if got := CanonicalPath("content/guides/intro.md", "content"); got != "/guides/intro" {
		t.Errorf("CanonicalPath = %q", got)
	}
	if got := JoinPath("/", "a"); got != "/a" {
		t.Errorf("JoinPath root = %q", got)
	}
	if got := JoinPath("/a", "b"); got != "/a/b" {
		t.Errorf("JoinPath nested = %q", got)
	}
}
