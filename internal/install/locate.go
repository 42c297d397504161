package install

import (
	"os"
	"path/filepath"
	"strings"
)

// knownBinaryNames are tried in order at the top level of the extracted tree
// before any generic search runs.
var knownBinaryNames = []string{
	"cli-proxy-api-plus",
	"cli-proxy-api",
	"cliproxyapi",
}

// excludedSuffixes disqualify a file from the generic executable search even
// when its mode bits say executable. Release archives ship install scripts
// and docs with those suffixes.
var excludedSuffixes = []string{".sh", ".txt", ".md"}

// LocateBinary finds the worker executable under dir. Known basenames at the
// top level win, matched case-insensitively. Otherwise the tree is walked
// depth-first and the first regular file that carries a known basename or an
// executable bit (and no excluded suffix) is returned. Directory entries are
// visited in lexical order, so the result is deterministic for a given tree.
func LocateBinary(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	for _, want := range knownBinaryNames {
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if strings.EqualFold(e.Name(), want) {
				return filepath.Join(dir, e.Name()), nil
			}
		}
	}

	if found := searchTree(dir); found != "" {
		return found, nil
	}
	return "", ErrExtractionFailed
}

func searchTree(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}

		name := e.Name()
		for _, want := range knownBinaryNames {
			if strings.EqualFold(name, want) {
				return filepath.Join(dir, name)
			}
		}

		if hasExcludedSuffix(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return filepath.Join(dir, name)
		}
	}

	for _, sub := range subdirs {
		if found := searchTree(sub); found != "" {
			return found
		}
	}
	return ""
}

func hasExcludedSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
