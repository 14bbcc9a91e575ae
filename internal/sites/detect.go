// Package sites adapts the supported archive sites to the range orchestrator:
// detection, page-info extraction and per-page resolvers.
package sites

import "regexp"

// Site identifies a supported archive.
type Site string

const (
	Yandex     Site = "yandex"
	Goskatalog Site = "goskatalog"
	PrLib      Site = "prlib"
	Unknown    Site = "unknown"
)

var sitePatterns = []struct {
	site Site
	re   *regexp.Regexp
}{
	{Yandex, regexp.MustCompile(`^https://(ya\.ru|yandex\.ru)/archive`)},
	{Goskatalog, regexp.MustCompile(`^https://goskatalog\.ru/portal`)},
	{PrLib, regexp.MustCompile(`^https://www\.prlib\.ru/item`)},
}

// Detect returns the site a URL belongs to.
func Detect(rawURL string) Site {
	for _, p := range sitePatterns {
		if p.re.MatchString(rawURL) {
			return p.site
		}
	}
	return Unknown
}
