package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLatestRelease(t *testing.T) {
	var gotAccept, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"tag_name": "v6.8.22",
			"name": "Release v6.8.22",
			"assets": [
				{"name": "cli-proxy-api-plus_darwin_arm64.tar.gz", "browser_download_url": "https://example.com/a"},
				{"name": "cli-proxy-api-plus_linux_amd64.tar.gz", "browser_download_url": "https://example.com/b"}
			]
		}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "quotio/1.0")
	rel, err := f.FetchLatestRelease(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "application/vnd.github+json", gotAccept)
	assert.Equal(t, "quotio/1.0", gotUA)
	assert.Equal(t, "v6.8.22", rel.TagName)
	assert.Equal(t, "v6.8.22", rel.Version())
	require.Len(t, rel.Assets, 2)
	assert.Equal(t, "cli-proxy-api-plus_darwin_arm64.tar.gz", rel.Assets[0].Name)
	assert.Equal(t, "https://example.com/a", rel.Assets[0].BrowserDownloadURL)
}

func TestFetchLatestRelease_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "quotio/1.0")
	_, err := f.FetchLatestRelease(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Contains(t, netErr.Error(), "network request failed")
	assert.Contains(t, netErr.Detail, "rate limited")
}

func TestFetchLatestRelease_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f := NewFetcher(srv.URL, "quotio/1.0")
	_, err := f.FetchLatestRelease(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestFetchLatestRelease_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name": [1,2]}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "quotio/1.0")
	_, err := f.FetchLatestRelease(context.Background())

	require.Error(t, err)
	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr), "decode failures are not network errors")
}

func TestSelectAsset_PlatformScenario(t *testing.T) {
	rel := &Release{
		TagName: "v1.0.0",
		Assets: []Asset{
			{Name: "tool_darwin_amd64.tar.gz", BrowserDownloadURL: "https://example.com/1"},
			{Name: "tool_windows_amd64.zip", BrowserDownloadURL: "https://example.com/2"},
			{Name: "tool_darwin_amd64.tar.gz.sha256", BrowserDownloadURL: "https://example.com/3"},
		},
	}

	got := SelectAsset(rel, "darwin", "amd64", []string{"windows", "checksum"})

	require.NotNil(t, got)
	assert.Equal(t, "tool_darwin_amd64.tar.gz", got.Name)
}

func TestSelectAsset_CaseInsensitive(t *testing.T) {
	rel := &Release{
		Assets: []Asset{
			{Name: "Tool_Darwin_ARM64.tar.gz", BrowserDownloadURL: "u"},
		},
	}

	got := SelectAsset(rel, "darwin", "arm64", nil)
	require.NotNil(t, got)
	assert.Equal(t, "Tool_Darwin_ARM64.tar.gz", got.Name)
}

func TestSelectAsset_AllExcluded(t *testing.T) {
	rel := &Release{
		Assets: []Asset{
			{Name: "tool_linux_amd64.tar.gz", BrowserDownloadURL: "u"},
			{Name: "tool_linux_amd64.tar.gz.sha256", BrowserDownloadURL: "u"},
		},
	}

	got := SelectAsset(rel, "linux", "amd64", []string{"linux"})
	assert.Nil(t, got)
}

func TestSelectAsset_NoPlatformMatch(t *testing.T) {
	rel := &Release{
		Assets: []Asset{
			{Name: "tool_windows_amd64.zip", BrowserDownloadURL: "u"},
		},
	}

	got := SelectAsset(rel, "darwin", "arm64", nil)
	assert.Nil(t, got)
}

func TestSelectAsset_FirstInListOrderWins(t *testing.T) {
	rel := &Release{
		Assets: []Asset{
			{Name: "tool_linux_amd64.tgz", BrowserDownloadURL: "first"},
			{Name: "tool_linux_amd64.tar.gz", BrowserDownloadURL: "second"},
		},
	}

	got := SelectAsset(rel, "linux", "amd64", nil)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.BrowserDownloadURL)
}

func TestSelectAsset_NilRelease(t *testing.T) {
	assert.Nil(t, SelectAsset(nil, "linux", "amd64", nil))
}

func TestDefaultExcludeTags(t *testing.T) {
	tags := DefaultExcludeTags("darwin")

	assert.Contains(t, tags, "linux")
	assert.Contains(t, tags, "windows")
	assert.NotContains(t, tags, "darwin")
	assert.Contains(t, tags, "checksum")
	assert.Contains(t, tags, ".sha256")
}

func TestDownloadAsset(t *testing.T) {
	payload := strings.Repeat("quotio", 100_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	var ratios []float64
	f := NewFetcher("unused", "quotio/1.0")
	data, err := f.DownloadAsset(context.Background(), srv.URL, func(r float64) {
		ratios = append(ratios, r)
	})
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	require.NotEmpty(t, ratios)
	for i := 1; i < len(ratios); i++ {
		assert.GreaterOrEqual(t, ratios[i], ratios[i-1], "progress must be non-decreasing")
	}
	assert.InDelta(t, 1.0, ratios[len(ratios)-1], 1e-9)
}

func TestDownloadAsset_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher("unused", "quotio/1.0")
	_, err := f.DownloadAsset(context.Background(), srv.URL, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "download asset", netErr.Op)
}

func TestDownloadAsset_EmptyURL(t *testing.T) {
	f := NewFetcher("unused", "quotio/1.0")
	_, err := f.DownloadAsset(context.Background(), "  ", nil)
	require.Error(t, err)
}

func TestNetworkError_FixedFallbackMessage(t *testing.T) {
	err := &NetworkError{Op: "fetch latest release"}
	assert.Equal(t, "fetch latest release: network request failed", err.Error())
}
