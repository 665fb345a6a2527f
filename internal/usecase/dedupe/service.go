// Package dedupe computes duplicate card groups by exact and semantic matching.
package dedupe

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	domcard "github.com/memodeck/memodeck/internal/domain/card"
	domdedupe "github.com/memodeck/memodeck/internal/domain/dedupe"
)

const scanPageSize = 500

// CardLister reads shared deck cards in deck order.
type CardLister interface {
	PageIDs(ctx context.Context, deckID string, offset, limit int) ([]string, error)
	GetMulti(ctx context.Context, deckID string, ids []string) ([]domcard.Card, error)
}

// Embedder turns card texts into vectors for semantic matching.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service finds duplicate groups within a deck.
type Service struct {
	cards    CardLister
	embedder Embedder
	maxScan  int
	defaults domdedupe.Options
}

// New creates a dedupe service. embedder may be nil to disable semantic matching.
func New(cards CardLister, embedder Embedder, maxScan int) *Service {
	if maxScan <= 0 {
		maxScan = 2000
	}
	return &Service{cards: cards, embedder: embedder, maxScan: maxScan}
}

// WithDefaultOptions sets fallbacks for request options left unset.
func (s *Service) WithDefaultOptions(o domdedupe.Options) *Service {
	s.defaults = o
	return s
}

// Groups scans the deck and returns duplicate groups: exact groups first
// (identical normalised content), then semantic groups by embedding cosine
// similarity at or above opts.Threshold. The result is bounded by
// opts.MaxGroups and each group sample by opts.PerGroupLimit.
func (s *Service) Groups(
	ctx context.Context, deckID string, opts domdedupe.Options,
) ([]domdedupe.Group, error) {
	if opts.MaxGroups <= 0 {
		opts.MaxGroups = s.defaults.MaxGroups
	}
	if opts.PerGroupLimit <= 0 {
		opts.PerGroupLimit = s.defaults.PerGroupLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = s.defaults.Threshold
	}
	opts = opts.WithDefaults()

	cards, err := s.scan(ctx, deckID)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(cards))
	for i := range cards {
		texts[i] = normalise(&cards[i], opts.Fields)
	}

	groups, grouped := exactGroups(cards, texts, opts)

	if opts.Semantic && s.embedder != nil && len(groups) < opts.MaxGroups {
		semantic, err := s.semanticGroups(ctx, cards, texts, grouped, opts)
		if err != nil {
			return nil, err
		}
		groups = append(groups, semantic...)
	}

	if len(groups) > opts.MaxGroups {
		groups = groups[:opts.MaxGroups]
	}
	return groups, nil
}

func (s *Service) scan(ctx context.Context, deckID string) ([]domcard.Card, error) {
	var cards []domcard.Card
	for offset := 0; offset < s.maxScan; offset += scanPageSize {
		limit := scanPageSize
		if offset+limit > s.maxScan {
			limit = s.maxScan - offset
		}
		ids, err := s.cards.PageIDs(ctx, deckID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		batch, err := s.cards.GetMulti(ctx, deckID, ids)
		if err != nil {
			return nil, fmt.Errorf("load cards: %w", err)
		}
		for _, c := range batch {
			if c.Deleted() {
				continue
			}
			cards = append(cards, c)
		}
		if len(ids) < limit {
			break
		}
	}
	return cards, nil
}

func exactGroups(
	cards []domcard.Card, texts []string, opts domdedupe.Options,
) ([]domdedupe.Group, map[int]bool) {
	byText := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if text == "" {
			continue
		}
		if _, seen := byText[text]; !seen {
			order = append(order, text)
		}
		byText[text] = append(byText[text], i)
	}

	grouped := make(map[int]bool)
	var groups []domdedupe.Group
	for _, text := range order {
		idxs := byText[text]
		if len(idxs) < 2 {
			continue
		}
		members := make([]domcard.Card, 0, min(len(idxs), opts.PerGroupLimit))
		for _, i := range idxs {
			grouped[i] = true
			if len(members) < opts.PerGroupLimit {
				members = append(members, cards[i])
			}
		}
		g, err := domdedupe.NewGroup(domdedupe.MatchExact, 1, members)
		if err != nil {
			continue
		}
		groups = append(groups, g)
		if len(groups) >= opts.MaxGroups {
			break
		}
	}
	return groups, grouped
}

func (s *Service) semanticGroups(
	ctx context.Context, cards []domcard.Card, texts []string, grouped map[int]bool, opts domdedupe.Options,
) ([]domdedupe.Group, error) {
	var idxs []int
	var inputs []string
	for i, text := range texts {
		if grouped[i] || text == "" {
			continue
		}
		idxs = append(idxs, i)
		inputs = append(inputs, text)
	}
	if len(idxs) < 2 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed cards: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(inputs))
	}

	used := make([]bool, len(idxs))
	var groups []domdedupe.Group
	for i := range idxs {
		if used[i] {
			continue
		}
		members := []domcard.Card{cards[idxs[i]]}
		confidence := 1.0
		for j := i + 1; j < len(idxs); j++ {
			if used[j] {
				continue
			}
			sim := cosine(vectors[i], vectors[j])
			if sim < opts.Threshold {
				continue
			}
			used[j] = true
			if len(members) < opts.PerGroupLimit {
				members = append(members, cards[idxs[j]])
			}
			confidence = math.Min(confidence, sim)
		}
		if len(members) < 2 {
			continue
		}
		used[i] = true
		g, err := domdedupe.NewGroup(domdedupe.MatchSemantic, confidence, members)
		if err != nil {
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// normalise builds the comparison text: selected fields (all when empty),
// lowercased with whitespace collapsed, joined in field-name order.
func normalise(c *domcard.Card, fields []string) string {
	names := fields
	if len(names) == 0 {
		names = make([]string, 0, len(c.Fields()))
		for name := range c.Fields() {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := c.Field(name)
		if v == "" {
			continue
		}
		parts = append(parts, strings.Join(strings.Fields(strings.ToLower(v)), " "))
	}
	return strings.Join(parts, "\n")
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
