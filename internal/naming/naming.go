// Package naming builds bounded, filesystem-safe names for downloaded pages
// and archives.
package naming

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rune limits for stored files and ZIP entries.
const (
	MaxFileLen  = 100
	MaxEntryLen = 90
	TruncSuffix = "..."
)

var (
	invalidChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	extPattern   = regexp.MustCompile(`\.[^.]+$`)
)

// SanitizeTitle trims a document title and replaces characters that are not
// allowed in file names.
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.Index(title, " — "); i > 0 {
		title = strings.TrimSpace(title[:i])
	}
	return invalidChars.ReplaceAllString(title, "_")
}

// Truncate shortens name to at most max runes, cutting the base name and
// marking the cut with TruncSuffix while keeping the extension.
func Truncate(name string, max int) string {
	base, ext := SplitExt(name)
	return Fit(base, ext, max)
}

// SplitExt splits name into its base and its extension (with the dot).
func SplitExt(name string) (base, ext string) {
	ext = extPattern.FindString(name)
	return strings.TrimSuffix(name, ext), ext
}

// Fit joins head and tail, cutting head with TruncSuffix when the result
// would exceed max runes. tail is never cut, so names that differ only in
// tail stay distinct.
func Fit(head, tail string, max int) string {
	if utf8.RuneCountInString(head)+utf8.RuneCountInString(tail) <= max {
		return head + tail
	}
	keep := max - utf8.RuneCountInString(TruncSuffix) - utf8.RuneCountInString(tail)
	if keep < 1 {
		return head + tail
	}
	return string([]rune(head)[:keep]) + TruncSuffix + tail
}

// Ext normalises an extension to ".ext" form; empty input yields ".jpeg".
func Ext(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ".jpeg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// PageEntry names a page inside an archive: "<title> - <page>.<ext>".
func PageEntry(title string, page int, ext string) string {
	return Fit(title, fmt.Sprintf(" - %d%s", page, Ext(ext)), MaxEntryLen)
}

// PageFile names a page downloaded on its own.
func PageFile(title string, page int, ext string) string {
	return Fit(title, fmt.Sprintf(" - %d%s", page, Ext(ext)), MaxFileLen)
}

// ArchiveName names the archive of a page range.
func ArchiveName(title string, start, end int) string {
	return Fit(title, fmt.Sprintf(" (Pages %d-%d).zip", start, end), MaxFileLen)
}

// IndexedFile names the i-th (1-based) item of a set: "<base>_<i><ext>".
func IndexedFile(base string, i int, ext string) string {
	return Fit(base, fmt.Sprintf("_%d%s", i, Ext(ext)), MaxFileLen)
}

// ExtFromURL returns the extension of the last path segment of rawURL, or def.
func ExtFromURL(rawURL, def string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	seg := u[strings.LastIndex(u, "/")+1:]
	if i := strings.LastIndex(seg, "."); i >= 0 && i < len(seg)-1 {
		return strings.ToLower(seg[i:])
	}
	return def
}

// ExtFromContentType maps an image content type to an extension.
func ExtFromContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/tiff":
		return ".tiff"
	default:
		return ".jpeg"
	}
}
