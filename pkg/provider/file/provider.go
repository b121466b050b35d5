// Package file implements a workspace storage backend on the local
// filesystem. Keys are slash-separated paths relative to a root directory.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/streamctl/pkg/provider"
)

const defaultPageSize = 1000

// Provider stores workspace objects under a root directory.
type Provider struct {
	root string
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.ObjectGetter  = (*Provider)(nil)
	_ provider.ObjectPutter  = (*Provider)(nil)
	_ provider.ObjectDeleter = (*Provider)(nil)
)

// Config configures a filesystem backend.
type Config struct {
	// Root is the directory keys are resolved against.
	Root string
}

// Validate checks that a root directory was given.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("root directory is required")
	}
	return nil
}

// New creates a filesystem backend. The root directory is created on first
// write, not here.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{root: filepath.Clean(cfg.Root)}, nil
}

// Root returns the directory keys are resolved against.
func (p *Provider) Root() string { return p.root }

// Type identifies the backend.
func (p *Provider) Type() provider.ProviderType { return provider.ProviderFile }

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// List returns objects under prefix in lexical key order.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageSize := opts.MaxKeys
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	keys, err := p.walk(strings.TrimPrefix(opts.Prefix, "/"))
	if err != nil {
		return nil, p.fail("List", opts.Prefix, err)
	}
	sort.Strings(keys)

	// The continuation token is the last key of the previous page.
	start := 0
	if opts.ContinuationToken != "" {
		start = sort.Search(len(keys), func(i int) bool { return keys[i] > opts.ContinuationToken })
	}
	end := min(start+pageSize, len(keys))

	objects := make([]provider.ObjectSummary, 0, end-start)
	for _, key := range keys[start:end] {
		st, err := p.stat(key)
		if err != nil {
			continue
		}
		objects = append(objects, provider.ObjectSummary{Key: key, Size: st.Size(), LastModified: st.ModTime()})
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

// Head returns size and modification time of a file.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := p.stat(key)
	if err != nil {
		return nil, p.fail("Head", key, err)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          strings.TrimPrefix(key, "/"),
			Size:         st.Size(),
			LastModified: st.ModTime(),
		},
	}, nil
}

// GetObject opens a file for reading. The caller closes the body.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	full, err := p.resolve(key)
	if err != nil {
		return nil, 0, p.fail("GetObject", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, p.fail("GetObject", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, p.fail("GetObject", key, err)
	}
	return f, st.Size(), nil
}

// PutObject writes body to key through a temp file and rename, so readers
// never observe a partial file.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.resolve(key)
	if err != nil {
		return p.fail("PutObject", key, err)
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return p.fail("PutObject", key, err)
	}

	tmp, err := os.CreateTemp(dir, "streamctl-put-*")
	if err != nil {
		return p.fail("PutObject", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return p.fail("PutObject", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.fail("PutObject", key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return p.fail("PutObject", key, err)
	}
	return nil
}

// DeleteObject removes a file. A missing file is not an error.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.resolve(key)
	if err != nil {
		return p.fail("DeleteObject", key, err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return p.fail("DeleteObject", key, err)
	}
	return nil
}

func (p *Provider) stat(key string) (os.FileInfo, error) {
	full, err := p.resolve(key)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fs.ErrNotExist
	}
	return st, nil
}

// resolve maps a key to a path under root, refusing keys that escape it.
func (p *Provider) resolve(key string) (string, error) {
	rel := strings.TrimPrefix(filepath.Clean("/"+strings.TrimSpace(key)), "/")
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("key %q escapes root", key)
	}
	return filepath.Join(p.root, filepath.FromSlash(rel)), nil
}

func (p *Provider) walk(prefix string) ([]string, error) {
	start, err := p.resolve(prefix)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

func (p *Provider) fail(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	switch {
	case os.IsNotExist(err):
		wrapped.Err = provider.ErrNotFound
	case os.IsPermission(err):
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
