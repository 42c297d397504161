// Package release discovers and downloads worker builds from the GitHub
// release index.
package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoCompatibleBinary is returned when no release asset matches the
// current platform after exclusions.
var ErrNoCompatibleBinary = errors.New("no compatible binary for this platform")

// NetworkError reports a transport failure or non-2xx response from the
// release endpoint. Detail carries the underlying cause for logs; the base
// message stays fixed for display.
type NetworkError struct {
	Op     string
	Detail string
}

func (e *NetworkError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: network request failed", e.Op)
	}
	return fmt.Sprintf("%s: network request failed: %s", e.Op, e.Detail)
}

type Release struct {
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Version returns the release tag, falling back to the release name.
func (r *Release) Version() string {
	if r == nil {
		return ""
	}
	if v := strings.TrimSpace(r.TagName); v != "" {
		return v
	}
	return strings.TrimSpace(r.Name)
}

// Fetcher queries a single release index endpoint.
type Fetcher struct {
	Endpoint  string
	UserAgent string
}

func NewFetcher(endpoint, userAgent string) *Fetcher {
	return &Fetcher{Endpoint: endpoint, UserAgent: userAgent}
}

func (f *Fetcher) FetchLatestRelease(ctx context.Context) (*Release, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := &http.Client{Timeout: 12 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch latest release", Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &NetworkError{
			Op:     "fetch latest release",
			Detail: fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release metadata: %w", err)
	}
	return &rel, nil
}

// SelectAsset picks the first asset in list order whose lowercased name
// contains platform_arch, after rejecting any asset whose name contains one
// of the exclude tags. Returns nil when nothing qualifies.
func SelectAsset(rel *Release, platform, arch string, exclude []string) *Asset {
	if rel == nil {
		return nil
	}
	needle := strings.ToLower(platform + "_" + arch)
	for i := range rel.Assets {
		name := strings.ToLower(strings.TrimSpace(rel.Assets[i].Name))
		if name == "" || isExcluded(name, exclude) {
			continue
		}
		if strings.Contains(name, needle) {
			return &rel.Assets[i]
		}
	}
	return nil
}

func isExcluded(lowerName string, exclude []string) bool {
	for _, tag := range exclude {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(lowerName, tag) {
			return true
		}
	}
	return false
}

// DefaultExcludeTags rejects foreign-platform builds and ancillary release
// files (checksums, signatures, notes) for the given platform.
func DefaultExcludeTags(platform string) []string {
	tags := []string{"checksum", ".sha256", ".sig", ".txt", ".md"}
	for _, os := range []string{"darwin", "linux", "windows"} {
		if os != platform {
			tags = append(tags, os)
		}
	}
	return tags
}

// DownloadAsset fetches the asset into memory. onProgress may be nil; when
// the response carries a Content-Length, it receives non-decreasing ratios
// in [0,1], and always a final 1.
func (f *Fetcher) DownloadAsset(ctx context.Context, url string, onProgress func(ratio float64)) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("download: missing url")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "download asset", Detail: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &NetworkError{
			Op:     "download asset",
			Detail: fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	total := resp.ContentLength
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, 128*1024)
	var read int64
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			read += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(read) / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read asset body: %w", readErr)
		}
	}

	if onProgress != nil {
		onProgress(1)
	}
	return buf.Bytes(), nil
}
