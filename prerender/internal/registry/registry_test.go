package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hazyhaar/snapgen/prerender/route"
)

var home = route.Route{Path: "/", Kind: route.KindListing}

func TestResolve_StructuralFirstThenManifestOrder(t *testing.T) {
	entries, err := ParseManifest([]byte(`[
		{"slug": "a", "title": "A", "tags": ["x"]},
		{"slug": "b", "title": "B"}
	]`))
	if err != nil {
		t.Fatal(err)
	}

	got := Resolve(entries, []route.Route{home, {Path: "about/", Kind: route.KindStatic}}, Options{})
	want := []route.Route{
		{Path: "/", Kind: route.KindListing},
		{Path: "/about", Kind: route.KindStatic},
		{Path: "/blog/a", Kind: route.KindDetail},
		{Path: "/blog/b", Kind: route.KindDetail},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve:\n got  %v\n want %v", got, want)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	entries, _ := ParseManifest([]byte(`[{"slug":"z"},{"slug":"m"},{"slug":"a"}]`))
	first := Resolve(entries, []route.Route{home}, Options{})
	for i := 0; i < 10; i++ {
		if got := Resolve(entries, []route.Route{home}, Options{}); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestResolve_Dedup(t *testing.T) {
	entries, _ := ParseManifest([]byte(`[{"slug":"a"},{"slug":"a"},{"slug":"b"}]`))
	got := Resolve(entries, []route.Route{home, home}, Options{})
	if len(got) != 3 {
		t.Fatalf("expected 3 unique routes, got %v", got)
	}
}

func TestResolve_SkipsUnusableIdentifiers(t *testing.T) {
	entries, _ := ParseManifest([]byte(`[
		{"title": "no slug"},
		{"slug": 42},
		{"slug": ".."},
		{"slug": "../../etc"},
		{"slug": "ok-post"}
	]`))
	got := Resolve(entries, nil, Options{})
	want := []route.Route{{Path: "/blog/ok-post", Kind: route.KindDetail}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolve_CustomFieldAndPrefix(t *testing.T) {
	entries, _ := ParseManifest([]byte(`[{"id":"intro"}]`))
	got := Resolve(entries, nil, Options{IDField: "id", DetailPrefix: "posts"})
	if len(got) != 1 || got[0].Path != "/posts/intro" {
		t.Fatalf("got %v", got)
	}
}

func TestResolve_EmptyManifest(t *testing.T) {
	got := Resolve(nil, []route.Route{home}, Options{})
	if len(got) != 1 || got[0] != home {
		t.Fatalf("expected only structural routes, got %v", got)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	entries, err := LoadManifest(filepath.Join(dir, "missing.json"))
	if err != nil || entries != nil {
		t.Fatalf("missing manifest: entries=%v err=%v", entries, err)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte("  \n"), 0o644)
	if entries, err := LoadManifest(empty); err != nil || len(entries) != 0 {
		t.Fatalf("empty manifest: entries=%v err=%v", entries, err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"slug":`), 0o644)
	if _, err := LoadManifest(bad); err == nil {
		t.Fatal("expected error for malformed manifest")
	}

	good := filepath.Join(dir, "list.json")
	os.WriteFile(good, []byte(`[{"slug":"a"}]`), 0o644)
	entries, err = LoadManifest(good)
	if err != nil || len(entries) != 1 {
		t.Fatalf("good manifest: entries=%v err=%v", entries, err)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"":        "/",
		"/":       "/",
		"about":   "/about",
		"/about/": "/about",
		" /a/b ":  "/a/b",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
