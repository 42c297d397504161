package install

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveFile struct {
	name string
	mode int64
	body string
}

func buildTarGz(t *testing.T, files []archiveFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     f.mode,
			Size:     int64(len(f.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func buildZip(t *testing.T, files []archiveFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		header := &zip.FileHeader{Name: f.name, Method: zip.Deflate}
		header.SetMode(os.FileMode(f.mode))
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func requireExecutable(t *testing.T, path string) {
	t.Helper()

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.NotZero(t, info.Mode()&0o111, "installed binary should be executable")
	}
}

func TestInstallTarGzWithNestedBinary(t *testing.T) {
	data := buildTarGz(t, []archiveFile{
		{name: "dist/README.md", mode: 0o644, body: "docs"},
		{name: "dist/bin/cli-proxy-api-plus", mode: 0o755, body: "worker payload"},
	})
	target := filepath.Join(t.TempDir(), "bin", "cli-proxy-api-plus")

	require.NoError(t, Install(data, "cli-proxy-api-plus_linux_amd64.tar.gz", target))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "worker payload", string(content))
	requireExecutable(t, target)
}

func TestInstallTgzSuffix(t *testing.T) {
	data := buildTarGz(t, []archiveFile{
		{name: "cli-proxy-api-plus", mode: 0o755, body: "tgz payload"},
	})
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	require.NoError(t, Install(data, "release.tgz", target))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "tgz payload", string(content))
}

func TestInstallZip(t *testing.T) {
	data := buildZip(t, []archiveFile{
		{name: "pkg/notes.txt", mode: 0o644, body: "notes"},
		{name: "pkg/cli-proxy-api-plus", mode: 0o755, body: "zip payload"},
	})
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	require.NoError(t, Install(data, "cli-proxy-api-plus_darwin_arm64.zip", target))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "zip payload", string(content))
	requireExecutable(t, target)
}

func TestInstallRawBinary(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	require.NoError(t, Install([]byte("raw payload"), "cli-proxy-api-plus_linux_arm64", target))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "raw payload", string(content))
	requireExecutable(t, target)
}

func TestInstallReplacesExistingWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "cli-proxy-api-plus")
	require.NoError(t, os.WriteFile(target, []byte("old version"), 0o755))

	require.NoError(t, Install([]byte("new version"), "cli-proxy-api-plus_linux_amd64", target))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new version", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no backup or leftover files expected")
	assert.Equal(t, "cli-proxy-api-plus", entries[0].Name())
}

func TestInstallRejectsTarTraversal(t *testing.T) {
	data := buildTarGz(t, []archiveFile{
		{name: "../evil", mode: 0o755, body: "escape"},
	})
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	err := Install(data, "bad.tar.gz", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.NoFileExists(t, target)
}

func TestInstallRejectsZipTraversal(t *testing.T) {
	data := buildZip(t, []archiveFile{
		{name: "../evil", mode: 0o755, body: "escape"},
	})
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	err := Install(data, "bad.zip", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.NoFileExists(t, target)
}

func TestInstallArchiveWithoutBinary(t *testing.T) {
	data := buildTarGz(t, []archiveFile{
		{name: "install.sh", mode: 0o755, body: "#!/bin/sh"},
		{name: "README.md", mode: 0o644, body: "docs"},
	})
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	err := Install(data, "scripts.tar.gz", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.NoFileExists(t, target)
}

func TestInstallCorruptArchive(t *testing.T) {
	target := filepath.Join(t.TempDir(), "cli-proxy-api-plus")

	err := Install([]byte("not a gzip stream"), "broken.tar.gz", target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestLocateBinaryTopLevelKnownName(t *testing.T) {
	dir := t.TempDir()
	// Known names match even without an executable bit.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli-proxy-api-plus"), []byte("bin"), 0o644))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cli-proxy-api-plus"), found)
}

func TestLocateBinaryKnownNameCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CLI-Proxy-API-Plus"), []byte("bin"), 0o644))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "CLI-Proxy-API-Plus"), found)
}

func TestLocateBinaryNestedKnownName(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "release", "v1", "bin")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "Cli-Proxy-Api-Plus"), []byte("bin"), 0o644))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(nested, "Cli-Proxy-Api-Plus"), found)
}

func TestLocateBinaryKnownNameBeatsEarlierExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits not meaningful on windows")
	}
	dir := t.TempDir()
	// "aaa-tool" sorts first but the known-name pass runs before the
	// generic executable scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aaa-tool"), []byte("other"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli-proxy-api"), []byte("bin"), 0o644))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cli-proxy-api"), found)
}

func TestLocateBinaryFallsBackToExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits not meaningful on windows")
	}
	dir := t.TempDir()
	nested := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "some-worker"), []byte("bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "data.json"), []byte("{}"), 0o644))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(nested, "some-worker"), found)
}

func TestLocateBinarySkipsScriptsAndDocs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits not meaningful on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "install.sh"), []byte("#!/bin/sh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NOTES.TXT"), []byte("notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("docs"), 0o755))

	_, err := LocateBinary(dir)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestLocateBinaryDeterministicOrder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits not meaningful on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-worker"), []byte("a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-worker"), []byte("b"), 0o755))

	found, err := LocateBinary(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a-worker"), found)
}

func TestLocateBinaryEmptyTree(t *testing.T) {
	_, err := LocateBinary(t.TempDir())
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
