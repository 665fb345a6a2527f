package card

import (
	"fmt"

	"github.com/memodeck/memodeck/internal/domain"
)

// Scope is the consistency scope of a card mutation: a private per-user
// override (local) or an edit of the shared source card (global).
type Scope string

const (
	// ScopeLocal affects only the acting user's private override.
	ScopeLocal Scope = "local"
	// ScopeGlobal affects the shared card visible to all deck users.
	ScopeGlobal Scope = "global"
)

// ParseScope validates a wire-level scope value.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeLocal, ScopeGlobal:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidScope, s)
	}
}

// CanGlobal reports whether a global mutation of the card is legal for an
// actor with the given deck authorship. Custom cards never qualify.
func CanGlobal(c Card, isDeckAuthor bool) bool {
	return isDeckAuthor && !c.IsCustom()
}
