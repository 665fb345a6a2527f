package deck

import (
	"fmt"
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Deck is a card collection with a single author. Scope eligibility for
// global mutations derives from deck authorship.
type Deck struct {
	id       string
	name     string
	authorID string
}

// New validates and creates a Deck.
func New(id, name, authorID string) (Deck, error) {
	if id == "" || !idRegex.MatchString(id) {
		return Deck{}, fmt.Errorf("deck ID must be alphanumeric with underscores and hyphens")
	}
	if name == "" {
		return Deck{}, fmt.Errorf("deck name is required")
	}
	if authorID == "" {
		return Deck{}, fmt.Errorf("deck author is required")
	}
	return Deck{id: id, name: name, authorID: authorID}, nil
}

// Reconstruct creates a Deck without validation (storage hydration).
func Reconstruct(id, name, authorID string) Deck {
	return Deck{id: id, name: name, authorID: authorID}
}

// ID returns the deck identifier.
func (d *Deck) ID() string { return d.id }

// Name returns the deck display name.
func (d *Deck) Name() string { return d.name }

// AuthorID returns the identifier of the deck author.
func (d *Deck) AuthorID() string { return d.authorID }

// IsAuthor reports whether the given user authored the deck.
func (d *Deck) IsAuthor(userID string) bool { return userID != "" && d.authorID == userID }
