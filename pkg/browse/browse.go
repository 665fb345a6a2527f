// Package browse keeps a client-side view of a deck's cards in sync with the
// server: incremental page loading, debounced search, scope-aware edits and
// deletes, and duplicate cleanup.
package browse

import (
	"context"
	"errors"
	"fmt"

	"github.com/memodeck/memodeck/pkg/api"
)

// Tag limits, checked before any network call.
const (
	MaxTags      = 32
	MaxTagLength = 64
)

// validateTags mirrors the server's tag limits so an oversized edit fails
// fast instead of round-tripping.
func validateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("too many tags: %d (max %d)", len(tags), MaxTags)
	}
	for _, tag := range tags {
		if tag == "" {
			return fmt.Errorf("tag must not be empty")
		}
		if len(tag) > MaxTagLength {
			return fmt.Errorf("tag %q too long (max %d)", tag, MaxTagLength)
		}
	}
	return nil
}

// Scope selects the consistency scope of a mutation.
type Scope string

const (
	// ScopeLocal affects only the acting user's private override.
	ScopeLocal Scope = "local"
	// ScopeGlobal affects the shared card visible to all deck users.
	ScopeGlobal Scope = "global"
)

// ErrCancelled is returned when the user declines a scope choice or a
// batch confirmation.
var ErrCancelled = errors.New("browse: cancelled by user")

// Page is one fetched page of cards.
type Page struct {
	Cards      []api.Card
	PageNumber int
	HasMore    bool
	TotalCount int
}

// DuplicateOptions bounds a duplicate detection request.
type DuplicateOptions struct {
	Fields    []string
	MaxGroups int
	PerGroup  int
	Semantic  bool
	Threshold float64
}

// Source is the server surface the synchronizer needs.
type Source interface {
	Page(ctx context.Context, deckID string, pageNumber, size int) (Page, error)
	Search(ctx context.Context, deckID, query string, pageNumber, size int) (Page, error)
	PatchCard(ctx context.Context, deckID, cardID string, req api.PatchCardRequest, scope Scope) (api.Card, error)
	DeleteCard(ctx context.Context, deckID, cardID string, scope Scope, opID string) error
	DuplicateGroups(ctx context.Context, deckID string, opts DuplicateOptions) ([]api.DuplicateGroup, error)
}

// ScopeChooser decides the scope of a mutation, typically by asking the
// user. canGlobal reports whether a global mutation is legal for this card.
// Returning ErrCancelled aborts the mutation.
type ScopeChooser interface {
	Choose(c api.Card, canGlobal bool) (Scope, error)
}

// ScopeFunc adapts a function to the ScopeChooser interface.
type ScopeFunc func(c api.Card, canGlobal bool) (Scope, error)

// Choose implements ScopeChooser.
func (f ScopeFunc) Choose(c api.Card, canGlobal bool) (Scope, error) { return f(c, canGlobal) }

// alwaysLocal is the default chooser: never touch the shared card.
var alwaysLocal = ScopeFunc(func(api.Card, bool) (Scope, error) { return ScopeLocal, nil })
