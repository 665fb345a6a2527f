// Package card implements deck card listing, search and scope-aware mutations.
package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/memodeck/memodeck/internal/domain"
	domcard "github.com/memodeck/memodeck/internal/domain/card"
	domdeck "github.com/memodeck/memodeck/internal/domain/deck"
)

// Repository is the card persistence contract.
type Repository interface {
	Create(ctx context.Context, deckID string, c *domcard.Card) error
	Get(ctx context.Context, deckID, cardID string) (domcard.Card, error)
	Put(ctx context.Context, deckID string, c *domcard.Card) error
	Delete(ctx context.Context, deckID, cardID string) error
	PageIDs(ctx context.Context, deckID string, offset, limit int) ([]string, error)
	Count(ctx context.Context, deckID string) (int, error)
	GetMulti(ctx context.Context, deckID string, ids []string) ([]domcard.Card, error)
	Search(ctx context.Context, deckID, query string, offset, limit int) ([]string, int, error)
	PutOverride(ctx context.Context, deckID, userID string, c *domcard.Card) error
	GetOverrides(ctx context.Context, deckID, userID string, ids []string) (map[string]domcard.Card, error)
	Hide(ctx context.Context, deckID, userID, cardID string) error
	Hidden(ctx context.Context, deckID, userID string) (map[string]struct{}, error)
	ClaimOp(ctx context.Context, opID string) (bool, error)
	ReleaseOp(ctx context.Context, opID string) error
}

// DeckReader resolves deck metadata.
type DeckReader interface {
	Get(ctx context.Context, deckID string) (domdeck.Deck, error)
}

// Page is one page of a user's view of a deck: shared cards with the user's
// overrides applied and hidden cards removed.
type Page struct {
	Cards      []domcard.Card
	PageNumber int
	HasMore    bool
	TotalCount int
}

// Service handles card CRUD with scope-aware consistency.
type Service struct {
	repo            Repository
	decks           DeckReader
	defaultPageSize int
	maxPageSize     int
}

// New creates a card service.
func New(repo Repository, decks DeckReader) *Service {
	return &Service{
		repo:            repo,
		decks:           decks,
		defaultPageSize: 50,
		maxPageSize:     200,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Create validates and stores a new card in the deck.
func (s *Service) Create(ctx context.Context, deckID, userID string, c *domcard.Card) (domcard.Card, error) {
	if _, err := s.decks.Get(ctx, deckID); err != nil {
		return domcard.Card{}, fmt.Errorf("get deck: %w", err)
	}
	if err := s.repo.Create(ctx, deckID, c); err != nil {
		return domcard.Card{}, fmt.Errorf("create card: %w", err)
	}
	return *c, nil
}

// Page returns one page of the user's view of the deck.
func (s *Service) Page(ctx context.Context, deckID, userID string, pageNumber, size int) (Page, error) {
	if pageNumber < 1 {
		return Page{}, fmt.Errorf("%w: page number must be >= 1", domain.ErrInvalidRequest)
	}
	size = s.clampSize(size)

	if _, err := s.decks.Get(ctx, deckID); err != nil {
		return Page{}, fmt.Errorf("get deck: %w", err)
	}

	hidden, err := s.repo.Hidden(ctx, deckID, userID)
	if err != nil {
		return Page{}, fmt.Errorf("hidden set: %w", err)
	}

	total, err := s.repo.Count(ctx, deckID)
	if err != nil {
		return Page{}, fmt.Errorf("count cards: %w", err)
	}

	offset := (pageNumber - 1) * size
	ids, err := s.repo.PageIDs(ctx, deckID, offset, size)
	if err != nil {
		return Page{}, fmt.Errorf("page ids: %w", err)
	}

	cards, err := s.assemble(ctx, deckID, userID, ids, hidden)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Cards:      cards,
		PageNumber: pageNumber,
		HasMore:    offset+len(ids) < total,
		TotalCount: total - len(hidden),
	}, nil
}

// SearchPage returns one page of full-text search results over the user's view.
func (s *Service) SearchPage(
	ctx context.Context, deckID, userID, query string, pageNumber, size int,
) (Page, error) {
	if pageNumber < 1 {
		return Page{}, fmt.Errorf("%w: page number must be >= 1", domain.ErrInvalidRequest)
	}
	if query == "" {
		return Page{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	size = s.clampSize(size)

	if _, err := s.decks.Get(ctx, deckID); err != nil {
		return Page{}, fmt.Errorf("get deck: %w", err)
	}

	hidden, err := s.repo.Hidden(ctx, deckID, userID)
	if err != nil {
		return Page{}, fmt.Errorf("hidden set: %w", err)
	}

	offset := (pageNumber - 1) * size
	ids, total, err := s.repo.Search(ctx, deckID, query, offset, size)
	if err != nil {
		return Page{}, fmt.Errorf("search cards: %w", err)
	}

	cards, err := s.assemble(ctx, deckID, userID, ids, hidden)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Cards:      cards,
		PageNumber: pageNumber,
		HasMore:    offset+len(ids) < total,
		TotalCount: total,
	}, nil
}

// Patch applies a partial update at the given scope and returns the card the
// acting user now sees. Global scope requires deck authorship and a
// non-custom card.
func (s *Service) Patch(
	ctx context.Context, deckID, userID, cardID string, p domcard.Patch, scope domcard.Scope,
) (domcard.Card, error) {
	if err := p.Validate(); err != nil {
		return domcard.Card{}, fmt.Errorf("%w: %s", domain.ErrInvalidCard, err)
	}

	d, err := s.decks.Get(ctx, deckID)
	if err != nil {
		return domcard.Card{}, fmt.Errorf("get deck: %w", err)
	}

	base, err := s.repo.Get(ctx, deckID, cardID)
	if err != nil {
		return domcard.Card{}, fmt.Errorf("get card: %w", err)
	}

	switch scope {
	case domcard.ScopeGlobal:
		if !domcard.CanGlobal(base, d.IsAuthor(userID)) {
			return domcard.Card{}, domain.ErrScopeForbidden
		}
		updated := base.WithPatch(p)
		if err := s.repo.Put(ctx, deckID, &updated); err != nil {
			return domcard.Card{}, fmt.Errorf("put card: %w", err)
		}
		return updated, nil

	case domcard.ScopeLocal:
		effective := base
		overrides, err := s.repo.GetOverrides(ctx, deckID, userID, []string{cardID})
		if err != nil {
			return domcard.Card{}, fmt.Errorf("get override: %w", err)
		}
		if o, ok := overrides[cardID]; ok {
			effective = o
		}
		updated := effective.WithPatch(p)
		if err := s.repo.PutOverride(ctx, deckID, userID, &updated); err != nil {
			return domcard.Card{}, fmt.Errorf("put override: %w", err)
		}
		return updated, nil

	default:
		return domcard.Card{}, fmt.Errorf("%w: %q", domain.ErrInvalidScope, scope)
	}
}

// Delete removes a card at the given scope. Global deletes accept an
// operation id for idempotent retry: a repeated id is a no-op success.
func (s *Service) Delete(
	ctx context.Context, deckID, userID, cardID string, scope domcard.Scope, opID string,
) error {
	d, err := s.decks.Get(ctx, deckID)
	if err != nil {
		return fmt.Errorf("get deck: %w", err)
	}

	switch scope {
	case domcard.ScopeGlobal:
		if opID != "" {
			claimed, err := s.repo.ClaimOp(ctx, opID)
			if err != nil {
				return fmt.Errorf("claim operation: %w", err)
			}
			if !claimed {
				return nil // retry of an already-applied deletion
			}
		}
		if err := s.deleteGlobal(ctx, d, deckID, userID, cardID); err != nil {
			// A failed attempt must not consume the operation id.
			if opID != "" {
				_ = s.repo.ReleaseOp(ctx, opID)
			}
			return err
		}
		return nil

	case domcard.ScopeLocal:
		if _, err := s.repo.Get(ctx, deckID, cardID); err != nil {
			return fmt.Errorf("get card: %w", err)
		}
		if err := s.repo.Hide(ctx, deckID, userID, cardID); err != nil {
			return fmt.Errorf("hide card: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidScope, scope)
	}
}

func (s *Service) deleteGlobal(ctx context.Context, d domdeck.Deck, deckID, userID, cardID string) error {
	base, err := s.repo.Get(ctx, deckID, cardID)
	if err != nil {
		if errors.Is(err, domain.ErrCardNotFound) {
			return nil // already gone
		}
		return fmt.Errorf("get card: %w", err)
	}
	if !domcard.CanGlobal(base, d.IsAuthor(userID)) {
		return domain.ErrScopeForbidden
	}
	if err := s.repo.Delete(ctx, deckID, cardID); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

// assemble resolves ids into the user's view: hidden cards dropped,
// overrides applied, soft-deleted cards filtered.
func (s *Service) assemble(
	ctx context.Context, deckID, userID string, ids []string, hidden map[string]struct{},
) ([]domcard.Card, error) {
	visible := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := hidden[id]; ok {
			continue
		}
		visible = append(visible, id)
	}

	cards, err := s.repo.GetMulti(ctx, deckID, visible)
	if err != nil {
		return nil, fmt.Errorf("get cards: %w", err)
	}

	cardIDs := make([]string, 0, len(cards))
	for i := range cards {
		cardIDs = append(cardIDs, cards[i].ID())
	}
	overrides, err := s.repo.GetOverrides(ctx, deckID, userID, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("get overrides: %w", err)
	}

	out := make([]domcard.Card, 0, len(cards))
	for _, c := range cards {
		if o, ok := overrides[c.ID()]; ok {
			c = o
		}
		if c.Deleted() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) clampSize(size int) int {
	if size <= 0 {
		return s.defaultPageSize
	}
	if size > s.maxPageSize {
		return s.maxPageSize
	}
	return size
}
