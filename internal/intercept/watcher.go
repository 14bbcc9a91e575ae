package intercept

import (
	"log/slog"
	"net/url"
	"strings"
)

// Rule selects intercepted responses and names the query parameter that
// carries their logical key.
type Rule struct {
	Name        string
	URLPrefixes []string
	Contains    string
	KeyParam    string
}

// Match reports whether rawURL is selected by the rule and returns its
// logical key. URLs without the key parameter map to FallbackKey.
func (r Rule) Match(rawURL string) (string, bool) {
	if !r.matchesPrefix(rawURL) {
		return "", false
	}
	if r.Contains != "" && !strings.Contains(rawURL, r.Contains) {
		return "", false
	}
	if r.KeyParam == "" {
		return FallbackKey, true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		slog.Debug("intercept url parse failed", "rule", r.Name, "url", rawURL, "error", err)
		return FallbackKey, true
	}
	if v := u.Query().Get(r.KeyParam); v != "" {
		return v, true
	}
	return FallbackKey, true
}

func (r Rule) matchesPrefix(rawURL string) bool {
	if len(r.URLPrefixes) == 0 {
		return true
	}
	for _, p := range r.URLPrefixes {
		if strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	return false
}

// Watcher feeds matching network responses into a Store.
type Watcher struct {
	store *Store
	rules []Rule
}

// NewWatcher creates a watcher recording into store.
func NewWatcher(store *Store, rules []Rule) *Watcher {
	return &Watcher{store: store, rules: rules}
}

// ObserveResponse is called for every completed response on a tab.
func (w *Watcher) ObserveResponse(tabID, rawURL, mimeType string) {
	for _, r := range w.rules {
		logical, ok := r.Match(rawURL)
		if !ok {
			continue
		}
		slog.Info("resource intercepted", "rule", r.Name, "tab_id", tabID, "logical", logical, "mime", mimeType, "url", truncateURL(rawURL))
		w.store.Record(tabID, logical, rawURL)
		return
	}
}

func truncateURL(u string) string {
	if len(u) > 120 {
		return u[:120] + "..."
	}
	return u
}
