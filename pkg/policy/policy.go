// Package policy implements upload admission checks: declared size, extension
// blacklist and per-user quota. Admit is a pure function of its inputs so it
// can be exercised standalone in tests.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Policy is the configured admission policy.
type Policy struct {
	MaxFileSize int64
	// Blacklist maps lower-case, dot-prefixed extensions (".exe") to nothing.
	Blacklist map[string]struct{}
}

// ValidationError is a client-fixable admission failure (bad size or a
// blacklisted extension).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// QuotaError is an admission failure caused by the owner's storage quota.
// The quota figures are carried so the API layer can surface them for
// client display.
type QuotaError struct {
	Reason         string
	FileSize       int64
	UsedQuota      int64
	TotalQuota     int64
	RemainingQuota int64
}

func (e *QuotaError) Error() string {
	return e.Reason
}

// Ext returns the lower-cased extension of filename including the leading
// dot, or "" when the filename has none.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Admit decides whether an upload of the declared size may be started by an
// owner with the given quota figures. A quota of 0 means unlimited and skips
// the quota checks entirely. It returns nil on acceptance, a *ValidationError
// or *QuotaError otherwise.
func (p Policy) Admit(filename string, size, quota, usedQuota int64) error {
	if size <= 0 {
		return &ValidationError{Reason: "file size must be greater than 0"}
	}

	if ext := Ext(filename); ext != "" {
		if _, blocked := p.Blacklist[ext]; blocked {
			return &ValidationError{Reason: fmt.Sprintf("file extension '%s' is not allowed", ext)}
		}
	}

	if p.MaxFileSize > 0 && size > p.MaxFileSize {
		return &ValidationError{
			Reason: fmt.Sprintf("file size exceeds %s limit", humanize.IBytes(uint64(p.MaxFileSize))),
		}
	}

	if quota > 0 {
		remaining := quota - usedQuota

		if remaining <= 0 {
			return &QuotaError{
				Reason:         "storage quota exceeded",
				FileSize:       size,
				UsedQuota:      usedQuota,
				TotalQuota:     quota,
				RemainingQuota: remaining,
			}
		}

		if size > remaining {
			return &QuotaError{
				Reason:         "file size exceeds remaining quota",
				FileSize:       size,
				UsedQuota:      usedQuota,
				TotalQuota:     quota,
				RemainingQuota: remaining,
			}
		}
	}

	return nil
}
