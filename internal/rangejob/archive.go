package rangejob

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	"github.com/dgnsrekt/webarchivist/internal/naming"
)

const archiveProgressStep = 5

type archiveEntry struct {
	name string
	data []byte
}

// archive buffers page entries in memory and writes the ZIP on finalize.
type archive struct {
	entries []archiveEntry
	names   map[string]bool
}

// add stores data under name, suffixing " (n)" when the name is taken, and
// returns the entry name used.
func (a *archive) add(name string, data []byte) string {
	if a.names == nil {
		a.names = make(map[string]bool)
	}
	base, ext := naming.SplitExt(name)
	for n := 2; a.names[name]; n++ {
		name = naming.Fit(base, fmt.Sprintf(" (%d)%s", n, ext), naming.MaxEntryLen)
	}
	a.names[name] = true
	a.entries = append(a.entries, archiveEntry{name: name, data: data})
	return name
}

func (a *archive) len() int { return len(a.entries) }

// finalize writes every entry and reports progress in 5% steps, ending at 100.
func (a *archive) finalize(progress func(percent int)) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	last := -1
	modified := time.Now()
	for i, e := range a.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("rangejob: create entry %q: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("rangejob: write entry %q: %w", e.name, err)
		}
		pct := (i + 1) * 100 / len(a.entries)
		pct -= pct % archiveProgressStep
		if pct > last && progress != nil {
			progress(pct)
			last = pct
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("rangejob: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
