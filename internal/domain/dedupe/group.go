package dedupe

import (
	"fmt"

	"github.com/memodeck/memodeck/internal/domain/card"
)

// MatchType classifies how a duplicate group was detected.
type MatchType string

const (
	// MatchExact groups cards with identical normalised content.
	MatchExact MatchType = "exact"
	// MatchSemantic groups cards by embedding similarity.
	MatchSemantic MatchType = "semantic"
)

// Group is a backend-computed cluster of near-identical cards.
// Confidence is meaningful only for semantic matches.
// Groups are immutable once fetched.
type Group struct {
	matchType  MatchType
	confidence float64
	cards      []card.Card
}

// NewGroup creates a Group. Confidence must be within [0, 1].
func NewGroup(mt MatchType, confidence float64, cards []card.Card) (Group, error) {
	if mt != MatchExact && mt != MatchSemantic {
		return Group{}, fmt.Errorf("unknown match type %q", mt)
	}
	if confidence < 0 || confidence > 1 {
		return Group{}, fmt.Errorf("confidence %g out of range [0, 1]", confidence)
	}
	if len(cards) < 2 {
		return Group{}, fmt.Errorf("a duplicate group needs at least 2 cards, got %d", len(cards))
	}
	return Group{matchType: mt, confidence: confidence, cards: cards}, nil
}

// MatchType returns the detection kind.
func (g *Group) MatchType() MatchType { return g.matchType }

// Confidence returns the similarity confidence (semantic matches only).
func (g *Group) Confidence() float64 { return g.confidence }

// Cards returns the ordered member sample.
func (g *Group) Cards() []card.Card { return g.cards }

// Options bounds a duplicate detection run.
type Options struct {
	Fields        []string // content fields compared; empty means all
	MaxGroups     int
	PerGroupLimit int
	Semantic      bool
	Threshold     float64 // cosine similarity floor for semantic grouping
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.MaxGroups <= 0 {
		o.MaxGroups = 50
	}
	if o.PerGroupLimit <= 0 {
		o.PerGroupLimit = 10
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = 0.92
	}
	return o
}
