// Package update compares the running version with a published manifest.
package update

import (
	"context"
	"strconv"
	"strings"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

const DefaultManifestURL = "https://afterliferus.github.io/webarchivist/manifest.json"

// JSONFetcher decodes a JSON document at url into v.
type JSONFetcher interface {
	JSON(ctx context.Context, url string, v any) error
}

// Status is the result of a version check.
type Status struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	Newer   bool   `json:"newer"`
}

type manifest struct {
	Version string `json:"version"`
}

// Check reads the manifest at manifestURL and reports whether it announces a
// version newer than current.
func Check(ctx context.Context, f JSONFetcher, manifestURL, current string) (Status, error) {
	st := Status{Current: current}
	var m manifest
	if err := f.JSON(ctx, manifestURL, &m); err != nil {
		return st, err
	}
	if m.Version == "" {
		return st, apperr.New(apperr.CodeFetchFailed, "manifest has no version field", nil)
	}
	st.Latest = m.Version
	st.Newer = IsNewer(current, m.Version)
	return st, nil
}

// IsNewer reports whether candidate is a higher dotted version than current.
// Missing or non-numeric segments count as 0.
func IsNewer(current, candidate string) bool {
	a, b := segments(current), segments(candidate)
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		x, y := at(a, i), at(b, i)
		if y != x {
			return y > x
		}
	}
	return false
}

func segments(v string) []int {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(v), "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i], _ = strconv.Atoi(p)
	}
	return out
}

func at(s []int, i int) int {
	if i < len(s) {
		return s[i]
	}
	return 0
}
