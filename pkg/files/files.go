// Package files holds the stored-file naming scheme and the metadata-update
// interface the worker writes thumbnail results through. The relational layer
// for users and file listings lives outside this service; only the narrow
// update surface is modeled here.
package files

import (
	"path/filepath"
	"strings"
)

// StoredName returns the on-disk name for a stored artifact: the generated
// slug plus the original filename's extension. The original name itself is
// untrusted and never used on disk.
func StoredName(slug, originalFilename string) string {
	return slug + strings.ToLower(filepath.Ext(originalFilename))
}

// FinalPath returns the artifact's location in the upload directory.
func FinalPath(uploadDir, slug, originalFilename string) string {
	return filepath.Join(uploadDir, StoredName(slug, originalFilename))
}

// BaseName strips the extension of a stored name; thumbnail and preview
// artifacts derive their deterministic names from it.
func BaseName(storedName string) string {
	return strings.TrimSuffix(storedName, filepath.Ext(storedName))
}
