package compiler

import (
	"reflect"
	"testing"
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
)

func snapshot(rs ...models.Rule) *rules.Snapshot {
	return rules.NewSnapshot(rs, time.Unix(0, 0))
}

func filters(ds []models.Directive) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.Condition.URLFilter)
	}
	return out
}

func TestCompileEmpty(t *testing.T) {
	t.Parallel()
	got := New(Options{}).Compile(rules.EmptySnapshot(), 600)
	if got == nil || len(got) != 0 {
		t.Fatalf("Compile(empty)=%v want empty non-nil", got)
	}
}

func TestCompileNoneMode(t *testing.T) {
	t.Parallel()
	got := New(Options{}).Compile(snapshot(models.Rule{Site: "www.Example.com"}), 0)
	if len(got) != 1 {
		t.Fatalf("got %d directives want 1", len(got))
	}
	d := got[0]
	if d.ID != 1 || d.Priority != PriorityBlock {
		t.Fatalf("id=%d priority=%d", d.ID, d.Priority)
	}
	if d.Action.Type != models.ActionRedirect || d.Action.Redirect == nil || d.Action.Redirect.ExtensionPath != DefaultBlockPagePath {
		t.Fatalf("action=%+v", d.Action)
	}
	if !reflect.DeepEqual(d.Condition.RequestDomains, []string{"example.com", "www.example.com"}) {
		t.Fatalf("requestDomains=%v", d.Condition.RequestDomains)
	}
	if d.Condition.URLFilter != "" {
		t.Fatalf("urlFilter=%q want empty", d.Condition.URLFilter)
	}
	if len(d.Condition.ResourceTypes) != len(models.AllResourceTypes()) {
		t.Fatalf("resourceTypes=%v", d.Condition.ResourceTypes)
	}
}

func TestCompileWhitelistMode(t *testing.T) {
	t.Parallel()
	rule := models.Rule{
		Site:             "example.com",
		SubpageMode:      models.SubpageWhitelist,
		SubpageWhitelist: []string{"/safe/*", "*", "docs"},
	}
	got := New(Options{}).Compile(snapshot(rule), 0)

	want := []string{
		"||example.com^",
		"||www.example.com^",
		"||example.com/safe/*",
		"||www.example.com/safe/*",
		"||example.com*/docs*",
		"||www.example.com*/docs*",
	}
	if !reflect.DeepEqual(filters(got), want) {
		t.Fatalf("filters=%v want %v", filters(got), want)
	}

	for i, d := range got {
		if d.ID != i+1 {
			t.Fatalf("directive %d has id %d", i, d.ID)
		}
		if !reflect.DeepEqual(d.Condition.ResourceTypes, []models.ResourceType{models.ResourceMainFrame}) {
			t.Fatalf("directive %d resourceTypes=%v", i, d.Condition.ResourceTypes)
		}
		wantAllow := i >= 2
		if (d.Action.Type == models.ActionAllow) != wantAllow {
			t.Fatalf("directive %d action=%s", i, d.Action.Type)
		}
		if wantAllow && d.Priority <= PriorityBlock {
			t.Fatalf("allow directive %d priority=%d", i, d.Priority)
		}
	}
}

func TestCompileWhitelistEmptyRedirectsEverything(t *testing.T) {
	t.Parallel()
	rule := models.Rule{Site: "example.com", SubpageMode: models.SubpageWhitelist}
	got := New(Options{}).Compile(snapshot(rule), 0)
	if len(got) != 2 {
		t.Fatalf("got %d directives want 2", len(got))
	}
	for _, d := range got {
		if d.Action.Type != models.ActionRedirect {
			t.Fatalf("action=%s", d.Action.Type)
		}
	}
}

func TestCompileBlacklistMode(t *testing.T) {
	t.Parallel()
	rule := models.Rule{
		Site:             "example.com",
		SubpageMode:      models.SubpageBlacklist,
		SubpageBlacklist: []string{"/", "/shorts/", "/*"},
	}
	got := New(Options{BlockAction: models.ActionBlock}).Compile(snapshot(rule), 0)

	want := []string{
		"||example.com/|",
		"||www.example.com/|",
		"||example.com/shorts/*",
		"||www.example.com/shorts/*",
	}
	if !reflect.DeepEqual(filters(got), want) {
		t.Fatalf("filters=%v want %v", filters(got), want)
	}
	for _, d := range got {
		if d.Action.Type != models.ActionBlock || d.Action.Redirect != nil {
			t.Fatalf("action=%+v", d.Action)
		}
		if len(d.Condition.ResourceTypes) != len(models.AllResourceTypes()) {
			t.Fatalf("resourceTypes=%v", d.Condition.ResourceTypes)
		}
	}
}

func TestCompileBlacklistEmptyEmitsNothing(t *testing.T) {
	t.Parallel()
	rule := models.Rule{Site: "example.com", SubpageMode: models.SubpageBlacklist}
	if got := New(Options{}).Compile(snapshot(rule), 0); len(got) != 0 {
		t.Fatalf("got %v want none", got)
	}
}

func TestCompileSkipsUnusableAndInactive(t *testing.T) {
	t.Parallel()
	snap := snapshot(
		models.Rule{Site: ""},
		models.Rule{Site: "https://bad.com/"},
		models.Rule{Site: "night.com", Kind: models.KindTimed, StartTime: "22:00", EndTime: "02:00"},
		models.Rule{Site: "broken.com", Kind: models.KindTimed, StartTime: "22:00"},
		models.Rule{Site: "odd.com", SubpageMode: "greylist"},
		models.Rule{Site: "day.com", Kind: models.KindTimed, StartTime: "09:00", EndTime: "17:00"},
	)
	c := New(Options{})

	noon := c.Compile(snap, 12*60)
	if len(noon) != 1 || noon[0].Condition.RequestDomains[0] != "day.com" || noon[0].ID != 1 {
		t.Fatalf("noon=%+v", noon)
	}

	night := c.Compile(snap, 23*60)
	if len(night) != 1 || night[0].Condition.RequestDomains[0] != "night.com" {
		t.Fatalf("night=%+v", night)
	}
}

func TestCompileBlockPageURL(t *testing.T) {
	t.Parallel()
	c := New(Options{BlockPageURL: "http://127.0.0.1:8321/blocked"})
	got := c.Compile(snapshot(models.Rule{Site: "example.com"}), 0)
	if r := got[0].Action.Redirect; r == nil || r.URL != "http://127.0.0.1:8321/blocked" || r.ExtensionPath != "" {
		t.Fatalf("redirect=%+v", r)
	}
}

func TestCompileIdempotent(t *testing.T) {
	t.Parallel()
	snap := snapshot(
		models.Rule{Site: "a.com"},
		models.Rule{Site: "b.com", SubpageMode: models.SubpageWhitelist, SubpageWhitelist: []string{"/ok/"}},
		models.Rule{Site: "c.com", SubpageMode: models.SubpageBlacklist, SubpageBlacklist: []string{"/bad*"}},
	)
	c := New(Options{})
	first, second := c.Compile(snap, 300), c.Compile(snap, 300)
	if Signature(first) != Signature(second) || !Equivalent(first, second) {
		t.Fatal("compiling twice produced different directives")
	}
}

func TestSignatureIgnoresIDs(t *testing.T) {
	t.Parallel()
	c := New(Options{})
	a := c.Compile(snapshot(models.Rule{Site: "a.com"}), 0)
	b := append([]models.Directive(nil), a...)
	b[0].ID = 42
	if !Equivalent(a, b) {
		t.Fatal("renumbered directives should be equivalent")
	}
	b[0].Priority = PriorityAllow
	if Equivalent(a, b) {
		t.Fatal("priority change should be detected")
	}
	if Equivalent(a, nil) {
		t.Fatal("length change should be detected")
	}
}
