package assets

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/errors"
)

// Source opens artifacts by their slash-separated source path.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ErrNotExist is matched by errors.Is when a source lacks an artifact.
var ErrNotExist = errors.New(errors.PhaseAssets, errors.KindNotFound).Build()

func notExist(name string) error {
	return errors.New(errors.PhaseAssets, errors.KindNotFound).
		Path(name).
		Detail("artifact not found").
		Build()
}

// DirSource serves artifacts from a local directory.
type DirSource struct {
	Root string
}

func (s DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, errors.InvalidInput(errors.PhaseAssets, fmt.Sprintf("invalid artifact path %q", name))
	}
	f, err := os.Open(filepath.Join(s.Root, filepath.FromSlash(name)))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, notExist(name)
	}
	if err != nil {
		return nil, errors.Fetch(name, err)
	}
	return f, nil
}

// HTTPSource fetches artifacts relative to a base URL with retries.
type HTTPSource struct {
	base   *url.URL
	client *retryablehttp.Client
}

// HTTPOptions tunes the retrying client.
type HTTPOptions struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	Logger       *zap.Logger
}

// NewHTTPSource creates a source rooted at base.
func NewHTTPSource(base string, opts HTTPOptions) (*HTTPSource, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid asset base URL %q", base).
			Cause(err).
			Build()
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 10 * time.Second
	c.Logger = nil
	if opts.RetryMax > 0 {
		c.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	if opts.Logger != nil {
		log := opts.Logger
		c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				log.Warn("retrying asset fetch", zap.Stringer("url", req.URL), zap.Int("attempt", attempt))
			}
		}
	}
	return &HTTPSource{base: u, client: c}, nil
}

func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ref, err := url.Parse(name)
	if err != nil || ref.IsAbs() || !fs.ValidPath(name) {
		return nil, errors.InvalidInput(errors.PhaseAssets, fmt.Sprintf("invalid artifact path %q", name))
	}
	target := s.base.ResolveReference(ref).String()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Fetch(name, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Fetch(name, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, notExist(name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, errors.Fetch(name, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return resp.Body, nil
}

// CachedSource serves artifacts from Dir, filling it from Inner on a miss.
type CachedSource struct {
	Inner Source
	Dir   string
}

func (s CachedSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	cache := DirSource{Root: s.Dir}
	rc, err := cache.Open(ctx, name)
	if err == nil {
		return rc, nil
	}
	if !stderrors.Is(err, ErrNotExist) {
		return nil, err
	}

	src, err := s.Inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, errors.Fetch(name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+path.Base(name)+".*")
	if err != nil {
		return nil, errors.Fetch(name, err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Fetch(name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Fetch(name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Fetch(name, err)
	}
	return cache.Open(ctx, name)
}

// readArtifact reads name from src. A name ending in .zst is decompressed.
func readArtifact(ctx context.Context, src Source, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(rc)
		if err != nil {
			return nil, errors.Fetch(name, err)
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Fetch(name, err)
	}
	return data, nil
}
