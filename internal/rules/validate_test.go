package rules

import (
	"errors"
	"testing"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

func TestValidateSite(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"example.com", "www.example.com", "a.b-c.example.co.uk", "localhost", " Example.COM "} {
		if err := ValidateSite(ok); err != nil {
			t.Fatalf("ValidateSite(%q)=%v", ok, err)
		}
	}
	for _, bad := range []string{"", "   ", "https://example.com", "example.com/path", "exa mple.com", "example..com", ".example.com", "example.com.", "-example.com", "example.com:8080"} {
		if err := ValidateSite(bad); err == nil {
			t.Fatalf("ValidateSite(%q) accepted", bad)
		}
	}
}

func TestSiteUsable(t *testing.T) {
	t.Parallel()
	if !SiteUsable("example.com") {
		t.Fatal("example.com not usable")
	}
	for _, bad := range []string{"", " ", "www.", "http://x.com", "x.com/path"} {
		if SiteUsable(bad) {
			t.Fatalf("SiteUsable(%q)=true", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		rule      models.Rule
		wantField string
	}{
		{
			name: "always ok",
			rule: models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: models.SubpageNone},
		},
		{
			name: "timed ok",
			rule: models.Rule{Site: "example.com", Kind: models.KindTimed, StartTime: "22:00", EndTime: "02:00", SubpageMode: models.SubpageNone},
		},
		{
			name:      "always with times",
			rule:      models.Rule{Site: "example.com", Kind: models.KindAlways, StartTime: "10:00", SubpageMode: models.SubpageNone},
			wantField: "type",
		},
		{
			name:      "timed missing end",
			rule:      models.Rule{Site: "example.com", Kind: models.KindTimed, StartTime: "10:00", SubpageMode: models.SubpageNone},
			wantField: "time",
		},
		{
			name:      "timed bad format",
			rule:      models.Rule{Site: "example.com", Kind: models.KindTimed, StartTime: "9:00", EndTime: "10:00", SubpageMode: models.SubpageNone},
			wantField: "startTime",
		},
		{
			name:      "timed identical bounds",
			rule:      models.Rule{Site: "example.com", Kind: models.KindTimed, StartTime: "10:00", EndTime: "10:00", SubpageMode: models.SubpageNone},
			wantField: "time",
		},
		{
			name:      "bad site",
			rule:      models.Rule{Site: "http://example.com", Kind: models.KindAlways, SubpageMode: models.SubpageNone},
			wantField: "site",
		},
		{
			name:      "unknown kind",
			rule:      models.Rule{Site: "example.com", Kind: "sometimes", SubpageMode: models.SubpageNone},
			wantField: "type",
		},
		{
			name:      "unknown mode",
			rule:      models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: "greylist"},
			wantField: "subpageMode",
		},
		{
			name:      "duplicate whitelist entry",
			rule:      models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: models.SubpageWhitelist, SubpageWhitelist: []string{"/a", "/a"}},
			wantField: "subpageWhitelist",
		},
		{
			name:      "relative whitelist entry",
			rule:      models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: models.SubpageWhitelist, SubpageWhitelist: []string{"blog"}},
			wantField: "subpageWhitelist",
		},
		{
			name:      "empty blacklist entry",
			rule:      models.Rule{Site: "example.com", Kind: models.KindAlways, SubpageMode: models.SubpageBlacklist, SubpageBlacklist: []string{" "}},
			wantField: "subpageBlacklist",
		},
	}
	for _, tt := range tests {
		err := Validate(tt.rule)
		if tt.wantField == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: err=%v, want *ValidationError", tt.name, err)
		}
		if verr.Field != tt.wantField {
			t.Fatalf("%s: field=%q want %q", tt.name, verr.Field, tt.wantField)
		}
	}
}
