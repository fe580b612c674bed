package rules

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in          string
		wantPrimary string
		wantWWW     string
	}{
		{"example.com", "example.com", "www.example.com"},
		{"www.example.com", "example.com", "www.example.com"},
		{"  WWW.Example.COM ", "example.com", "www.example.com"},
		{"www.www.example.com", "example.com", "www.example.com"},
		{"sub.example.com", "sub.example.com", "www.sub.example.com"},
		{"wwwexample.com", "wwwexample.com", "www.wwwexample.com"},
	}
	for _, tt := range tests {
		got := NormalizeDomain(tt.in)
		if got.Primary != tt.wantPrimary || got.WWW != tt.wantWWW {
			t.Fatalf("NormalizeDomain(%q)=%+v want {%s %s}", tt.in, got, tt.wantPrimary, tt.wantWWW)
		}
	}
}

func TestNormalizeDomainShape(t *testing.T) {
	t.Parallel()
	inputs := []string{"", "www.", "www.www.", "a", "www.a", "WWW.WWW.x.org", "x.www.y", ".www.", "www"}
	for _, in := range inputs {
		d := NormalizeDomain(in)
		if strings.HasPrefix(d.Primary, "www.") {
			t.Fatalf("NormalizeDomain(%q).Primary=%q starts with www.", in, d.Primary)
		}
		if !strings.HasPrefix(d.WWW, "www.") {
			t.Fatalf("NormalizeDomain(%q).WWW=%q lacks www.", in, d.WWW)
		}
	}
}

func TestDomainHosts(t *testing.T) {
	t.Parallel()
	d := NormalizeDomain("example.com")
	if got := d.Hosts(); !reflect.DeepEqual(got, []string{"example.com", "www.example.com"}) {
		t.Fatalf("Hosts()=%v", got)
	}
	same := Domain{Primary: "x", WWW: "x"}
	if got := same.Hosts(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("Hosts() of identical pair=%v", got)
	}
}

func TestDomainMatches(t *testing.T) {
	t.Parallel()
	d := NormalizeDomain("example.com")
	for _, h := range []string{"example.com", "www.example.com", "WWW.EXAMPLE.COM"} {
		if !d.Matches(h) {
			t.Fatalf("Matches(%q)=false", h)
		}
	}
	for _, h := range []string{"m.example.com", "example.org", "notexample.com"} {
		if d.Matches(h) {
			t.Fatalf("Matches(%q)=true", h)
		}
	}
}
