package domain

import (
	"strings"
	"time"
)

// APIKey authorizes publishing and deleting constraint documents. Documents
// scopes the key to document names; an entry ending in "*" matches by prefix.
// A key without scopes may touch every document.
type APIKey struct {
	TokenHash string
	Name      string
	Active    bool
	Documents []string
	CreatedAt time.Time
}

// Allows reports whether the key may change the document name.
func (k APIKey) Allows(name string) bool {
	if len(k.Documents) == 0 {
		return true
	}
	for _, scope := range k.Documents {
		if prefix, ok := strings.CutSuffix(scope, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if scope == name {
			return true
		}
	}
	return false
}
