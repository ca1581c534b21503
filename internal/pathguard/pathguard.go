// Package pathguard confines candidate filesystem paths (manifest
// directories, model file paths) to a configured root. It implements the
// intent of OS-level sandboxing described in spec §6 as pure path
// arithmetic: process sandboxing itself is explicitly out of scope.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/ggcore/gg-core/internal/errs"
)

// Validate resolves candidate under root and rejects it if it would
// escape root: absolute paths, ".." segments, UNC-style prefixes, and
// embedded null bytes are all rejected outright.
func Validate(root, candidate string) (string, error) {
	if strings.ContainsRune(candidate, 0) {
		return "", &errs.Validation{Field: "path", Reason: "contains a null byte"}
	}
	if strings.HasPrefix(candidate, `\\`) || strings.HasPrefix(candidate, "//") {
		return "", &errs.Validation{Field: "path", Reason: "UNC-style paths are not allowed"}
	}
	if filepath.IsAbs(candidate) {
		return "", &errs.Validation{Field: "path", Reason: "absolute paths are not allowed"}
	}

	cleanRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", &errs.Validation{Field: "root", Reason: err.Error()}
	}

	joined := filepath.Join(cleanRoot, candidate)
	resolved := filepath.Clean(joined)

	rel, err := filepath.Rel(cleanRoot, resolved)
	if err != nil {
		return "", &errs.Validation{Field: "path", Reason: "cannot be resolved under root"}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &errs.Validation{Field: "path", Reason: "escapes root directory"}
	}

	return resolved, nil
}
