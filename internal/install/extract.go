// Package install turns a downloaded release asset into an executable worker
// binary at a fixed target path.
package install

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrExtractionFailed means no usable binary came out of the asset.
	ErrExtractionFailed = errors.New("failed to extract a usable binary from the release asset")
	// ErrDownloadFailed marks a failed asset download inside an install operation.
	ErrDownloadFailed = errors.New("failed to download the release asset")
)

// Install writes the asset bytes to a scratch directory (removed on all exit
// paths), extracts archives by name suffix, locates the worker executable and
// installs it at targetPath, replacing any existing file, with 0755
// permissions and best-effort execution authorization.
func Install(data []byte, assetName, targetPath string) error {
	scratch, err := os.MkdirTemp("", "quotio-install-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	lower := strings.ToLower(assetName)
	var binPath string

	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		if err := extractTarGz(data, scratch); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		binPath, err = LocateBinary(scratch)
		if err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".zip"):
		if err := extractZip(data, scratch); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		binPath, err = LocateBinary(scratch)
		if err != nil {
			return err
		}
	default:
		// Raw binary asset
		binPath = filepath.Join(scratch, filepath.Base(assetName))
		if err := os.WriteFile(binPath, data, 0o755); err != nil {
			return fmt.Errorf("failed to stage raw binary: %w", err)
		}
	}

	if err := installFile(binPath, targetPath); err != nil {
		return err
	}

	authorizeExecution(targetPath)
	return nil
}

func extractTarGz(data []byte, destDir string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		fpath := filepath.Join(destDir, header.Name)

		// Check for path traversal
		if !strings.HasPrefix(fpath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid file path in tar: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
				return err
			}

			outFile, err := os.Create(fpath)
			if err != nil {
				return err
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return err
			}
			outFile.Close()

			if err := os.Chmod(fpath, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractZip(data []byte, destDir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}

	for _, f := range r.File {
		fpath := filepath.Join(destDir, f.Name)

		// Check for ZipSlip vulnerability
		if !strings.HasPrefix(fpath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid file path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(fpath, os.ModePerm)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}

		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()

		if err != nil {
			return err
		}
	}
	return nil
}

// installFile replaces dst with a copy of src, no backup, mode 0755. The
// copy goes through a sibling tmp file so the swap is a single rename.
func installFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open staged binary: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy binary: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finish target file: %w", err)
	}

	if err := os.Chmod(tmp, 0o755); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to install binary: %w", err)
	}
	return nil
}
