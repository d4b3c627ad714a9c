package persona

import (
	"context"
	"errors"
	"os"
	"strings"
)

// DefaultIdentity is used when a scope has no identity file or it is empty.
const DefaultIdentity = "You are a helpful companion with a long memory."

// LoadIdentity reads the identity text of a scope.
//
//   - File missing → DefaultIdentity, no error.
//   - File empty   → DefaultIdentity, no error.
func (d Directory) LoadIdentity(_ context.Context, scopeID string) (string, error) {
	if err := CheckScope(scopeID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(d.IdentityPath(scopeID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultIdentity, nil
		}
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return DefaultIdentity, nil
	}
	return content, nil
}
