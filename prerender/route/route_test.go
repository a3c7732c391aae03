package route

import (
	"strings"
	"testing"
)

func validPredicates() Predicates {
	return Predicates{
		KindListing: {Selector: "app-home .post", NonEmpty: true},
		KindDetail:  {Selector: "#rendered-markdown", NonEmpty: true},
		KindStatic:  {Selector: "app-root"},
	}
}

func TestPredicatesValidate(t *testing.T) {
	if err := validPredicates().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := validPredicates()
	delete(missing, KindStatic)
	if err := missing.Validate(); err == nil || !strings.Contains(err.Error(), "static") {
		t.Fatalf("expected missing static error, got %v", err)
	}

	empty := validPredicates()
	empty[KindDetail] = Predicate{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for empty selector")
	}

	extra := validPredicates()
	extra["gallery"] = Predicate{Selector: ".gallery"}
	if err := extra.Validate(); err == nil || !strings.Contains(err.Error(), "gallery") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("blog"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestResultConstructors(t *testing.T) {
	r := Route{Path: "/blog/a", Kind: KindDetail}

	ok := Succeeded(r, "<html></html>", 0)
	if ok.Outcome != Success || ok.HTML == "" || ok.Detail != "" {
		t.Fatalf("success result malformed: %+v", ok)
	}
	skip := Skip(r, "readiness timeout", 0)
	if skip.Outcome != Skipped || skip.HTML != "" {
		t.Fatalf("skip result malformed: %+v", skip)
	}
	fail := Fail(r, "boom", 0)
	if fail.Outcome != Failed || fail.HTML != "" {
		t.Fatalf("fail result malformed: %+v", fail)
	}
}

func TestSummaryCount(t *testing.T) {
	var s Summary
	for _, o := range []Outcome{Success, Success, Skipped, Failed} {
		s.Count(o)
	}
	if s.Succeeded != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}

func TestHashHTML(t *testing.T) {
	a := HashHTML([]byte("<html>a</html>"))
	b := HashHTML([]byte("<html>a</html>"))
	c := HashHTML([]byte("<html>b</html>"))
	if a != b {
		t.Fatal("hash not deterministic")
	}
	if a == c {
		t.Fatal("different documents share a hash")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}
