// Package sink stores finished downloads in a gocloud.dev bucket.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

const DefaultURL = "file://./downloads"

// maxCollisions bounds the " (n)" suffix search.
const maxCollisions = 1000

// Sink writes named files into a bucket. Names that already exist get a
// " (n)" suffix before the extension.
type Sink struct {
	url    string
	bucket *blob.Bucket
	prefix string

	mu sync.Mutex
}

// Open opens the bucket at bucketURL. Relative file:// URLs are resolved
// against the working directory and created when missing.
func Open(ctx context.Context, bucketURL string, prefix string) (*Sink, error) {
	if bucketURL == "" {
		bucketURL = DefaultURL
	}
	resolved, err := resolveFileURL(bucketURL)
	if err != nil {
		return nil, apperr.New(apperr.CodeSinkFailed, "resolve sink url", err)
	}
	bkt, err := blob.OpenBucket(ctx, resolved)
	if err != nil {
		return nil, apperr.New(apperr.CodeSinkFailed, fmt.Sprintf("open bucket %s", bucketURL), err)
	}
	return &Sink{url: resolved, bucket: bkt, prefix: strings.Trim(prefix, "/")}, nil
}

// New wraps an already open bucket.
func New(bkt *blob.Bucket, prefix string) *Sink {
	return &Sink{bucket: bkt, prefix: strings.Trim(prefix, "/")}
}

// URL returns the resolved bucket URL.
func (s *Sink) URL() string { return s.url }

// Put stores data under name and returns the key actually used.
func (s *Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.freeKey(ctx, name)
	if err != nil {
		return "", err
	}
	opts := &blob.WriterOptions{ContentType: contentType(name)}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", apperr.New(apperr.CodeSinkFailed, fmt.Sprintf("write %s", key), err)
	}
	slog.Info("file stored", "key", key, "bytes", len(data))
	return key, nil
}

// Get reads a stored file back.
func (s *Sink) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, apperr.New(apperr.CodeSinkFailed, fmt.Sprintf("read %s", key), err)
	}
	return data, nil
}

func (s *Sink) Close() error { return s.bucket.Close() }

func (s *Sink) freeKey(ctx context.Context, name string) (string, error) {
	base := path.Join(s.prefix, name)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n < maxCollisions; n++ {
		key := base
		if n > 0 {
			key = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		exists, err := s.bucket.Exists(ctx, key)
		if err != nil {
			return "", apperr.New(apperr.CodeSinkFailed, fmt.Sprintf("stat %s", key), err)
		}
		if !exists {
			return key, nil
		}
	}
	return "", apperr.New(apperr.CodeSinkFailed, fmt.Sprintf("too many files named %s", name), nil)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func resolveFileURL(raw string) (string, error) {
	rest, ok := strings.CutPrefix(raw, "file://")
	if !ok {
		return raw, nil
	}
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, query = rest[:i], rest[i:]
	}
	dir, err := filepath.Abs(filepath.FromSlash(rest))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(dir) + query, nil
}
