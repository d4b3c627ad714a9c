// Package persona loads the per-scope identity text and guidance notes
// that frame every assembled context.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrInvalidScope is returned for scope ids that cannot name a file.
var ErrInvalidScope = errors.New("persona: invalid scope id")

var scopePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Directory is the persona directory layout:
//
//	<root>/<scope>.md              identity
//	<root>/<scope>/guidance/*.md   guidance notes
type Directory struct {
	Root string
}

// New creates a Directory rooted at root.
func New(root string) Directory {
	return Directory{Root: root}
}

// CheckScope rejects scope ids that would escape the directory.
func CheckScope(scopeID string) error {
	if !scopePattern.MatchString(scopeID) || scopeID == "." || scopeID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidScope, scopeID)
	}
	return nil
}

// IdentityPath returns the identity file of a scope.
func (d Directory) IdentityPath(scopeID string) string {
	return filepath.Join(d.Root, scopeID+".md")
}

// GuidanceDir returns the guidance notes directory of a scope.
func (d Directory) GuidanceDir(scopeID string) string {
	return filepath.Join(d.Root, scopeID, "guidance")
}

// EnsureStructure creates the directory tree for the given scopes.
// Idempotent.
func (d Directory) EnsureStructure(scopeIDs ...string) error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return err
	}
	for _, s := range scopeIDs {
		if err := CheckScope(s); err != nil {
			return err
		}
		if err := os.MkdirAll(d.GuidanceDir(s), 0o755); err != nil {
			return err
		}
	}
	return nil
}
