package rules

import "strings"

const wwwPrefix = "www."

// Domain is the bare form of a site and its www-prefixed twin
type Domain struct {
	Primary string
	WWW     string
}

// NormalizeDomain canonicalizes a user-entered site into a primary/www pair.
// No DNS or syntax validation happens here.
func NormalizeDomain(site string) Domain {
	in := strings.ToLower(strings.TrimSpace(site))

	primary := strings.TrimPrefix(in, wwwPrefix)
	www := wwwPrefix + primary

	// "www.www.example.com" keeps peeling until the shape is canonical
	for strings.HasPrefix(primary, wwwPrefix) {
		primary = strings.TrimPrefix(primary, wwwPrefix)
		www = wwwPrefix + primary
	}

	return Domain{Primary: primary, WWW: www}
}

// Hosts returns the distinct hostnames covered by the domain, primary first
func (d Domain) Hosts() []string {
	if d.Primary == d.WWW {
		return []string{d.Primary}
	}
	return []string{d.Primary, d.WWW}
}

// Matches reports whether hostname is one of the domain's hosts
func (d Domain) Matches(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == d.Primary || hostname == d.WWW
}
