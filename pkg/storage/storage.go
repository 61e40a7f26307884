// Package storage provides unified access to event logs and rendered models
// on local disk, S3 and HTTP(S).
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// Storage provides a unified interface for reading/writing data.
type Storage interface {
	// Reader returns a reader for the given path and its size, or -1 if
	// the size is unknown.
	Reader(ctx context.Context, path string) (io.ReadCloser, int64, error)

	// Writer returns a writer for the given path.
	Writer(ctx context.Context, path string) (io.WriteCloser, error)

	// Stat returns file info.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Scheme returns the storage scheme (file, s3, http).
	Scheme() string
}

// FileInfo holds file metadata.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime int64
}

// ParsePath extracts scheme, bucket and key from a location. Plain paths
// and Windows drive letters report the "file" scheme.
func ParsePath(p string) (scheme, bucket, key string) {
	u, err := url.Parse(p)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return "file", "", p
	}
	if u.Scheme == "file" {
		return "file", "", u.Path
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/")
}

// IsRemote reports whether p names an object outside the local filesystem.
func IsRemote(p string) bool {
	scheme, _, _ := ParsePath(p)
	return scheme != "file"
}

// Opener hands out storages for locations. The S3 client is created on
// first use and shared afterwards.
type Opener struct {
	s3cfg S3Config

	mu sync.Mutex
	s3 *S3Client
}

// NewOpener creates an opener using cfg for s3:// locations.
func NewOpener(cfg S3Config) *Opener {
	return &Opener{s3cfg: cfg}
}

// Open returns the storage for p and the path to use with it.
func (o *Opener) Open(ctx context.Context, p string) (Storage, string, error) {
	scheme, bucket, key := ParsePath(p)
	switch scheme {
	case "file":
		return &LocalStorage{}, key, nil
	case "s3":
		if bucket == "" || key == "" {
			return nil, "", lferrors.New(lferrors.CodeObjectStorage, "s3 location needs a bucket and a key").
				WithContext("path", p)
		}
		client, err := o.s3Client(ctx)
		if err != nil {
			return nil, "", err
		}
		return &S3Storage{client: client, bucket: bucket}, key, nil
	case "http", "https":
		return &HTTPStorage{}, p, nil
	default:
		return nil, "", lferrors.Newf(lferrors.CodeObjectStorage, "unsupported storage scheme: %s", scheme).
			WithContext("path", p)
	}
}

func (o *Opener) s3Client(ctx context.Context) (*S3Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s3 != nil {
		return o.s3, nil
	}
	client, err := NewS3Client(ctx, o.s3cfg)
	if err != nil {
		return nil, err
	}
	o.s3 = client
	return client, nil
}

// Fetch makes a local copy of a remote log inside dir and returns its path
// with a cleanup func. The file keeps its extension so format detection
// still works. Local paths are returned unchanged with a no-op cleanup.
func (o *Opener) Fetch(ctx context.Context, p, dir string) (string, func(), error) {
	if !IsRemote(p) {
		_, _, local := ParsePath(p)
		return local, func() {}, nil
	}

	st, key, err := o.Open(ctx, p)
	if err != nil {
		return "", nil, err
	}
	r, _, err := st.Reader(ctx, key)
	if err != nil {
		return "", nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to open remote log").
			WithContext("path", p)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to create temp dir").
			WithContext("dir", dir)
	}
	f, err := os.CreateTemp(dir, "log-*"+path.Ext(key))
	if err != nil {
		return "", nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to create temp file")
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to download remote log").
			WithContext("path", p)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, lferrors.Wrap(err, lferrors.CodeObjectStorage, "failed to write temp file")
	}
	return f.Name(), cleanup, nil
}

// Create opens p for writing on whatever storage it names.
func (o *Opener) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	st, key, err := o.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	return st.Writer(ctx, key)
}

// --- Local Storage ---

// LocalStorage handles local file operations.
type LocalStorage struct{}

func (s *LocalStorage) Scheme() string { return "file" }

func (s *LocalStorage) Reader(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, lferrors.FileNotFound(p)
		}
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *LocalStorage) Writer(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

func (s *LocalStorage) Stat(ctx context.Context, p string) (*FileInfo, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lferrors.FileNotFound(p)
		}
		return nil, err
	}
	return &FileInfo{
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}, nil
}

// --- HTTP Storage (Read-Only) ---

// HTTPStorage handles HTTP/HTTPS URLs (read-only).
type HTTPStorage struct{}

func (s *HTTPStorage) Scheme() string { return "http" }

func (s *HTTPStorage) Reader(ctx context.Context, p string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

func (s *HTTPStorage) Writer(ctx context.Context, p string) (io.WriteCloser, error) {
	return nil, lferrors.New(lferrors.CodeObjectStorage, "HTTP storage is read-only")
}

func (s *HTTPStorage) Stat(ctx context.Context, p string) (*FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &FileInfo{Path: p, Size: resp.ContentLength}, nil
}
