// Package fetcher refreshes the source bundle from a URL.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/princespaghetti/envcerts/internal/envfs"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

const userAgent = "envcerts/1.0 (CA bundle sync)"

// maxBundleBytes caps a download; public bundles are a few hundred KB.
const maxBundleBytes = 16 << 20

// HTTPClient is an interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads bundles and installs them over the source bundle.
type Fetcher struct {
	client HTTPClient
	fs     envfs.FileSystem
}

// NewFetcher creates a Fetcher. Nil arguments select http.DefaultClient and
// the OS file system.
func NewFetcher(client HTTPClient, fsys envfs.FileSystem) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if fsys == nil {
		fsys = envfs.OSFileSystem{}
	}
	return &Fetcher{client: client, fs: fsys}
}

// Fetch downloads the bundle at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded bundle is empty")
	}
	if len(data) > maxBundleBytes {
		return nil, fmt.Errorf("downloaded bundle exceeds %d bytes", maxBundleBytes)
	}

	return data, nil
}

// Install verifies data against the bundle currently at dst and replaces
// it. Identical content is left untouched.
func (f *Fetcher) Install(data []byte, dst string) (*Result, error) {
	current, err := f.fs.ReadFile(dst)
	if err != nil && !os.IsNotExist(err) {
		return nil, &envcertserrors.EnvcertsError{Op: "read source bundle", Path: dst, Err: err}
	}

	result, err := Verify(data, current)
	if err != nil {
		return result, &envcertserrors.EnvcertsError{Op: "verify downloaded bundle", Path: dst, Err: err}
	}
	if bytes.Equal(data, current) {
		result.Unchanged = true
		return result, nil
	}

	perm := envfs.PermOf(f.fs, 0644, dst)
	if err := envfs.WriteAtomic(f.fs, dst, data, perm); err != nil {
		return nil, &envcertserrors.EnvcertsError{Op: "install source bundle", Path: dst, Err: err}
	}

	return result, nil
}
