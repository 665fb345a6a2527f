// Package deck implements deck metadata management.
package deck

import (
	"context"
	"fmt"

	domdeck "github.com/memodeck/memodeck/internal/domain/deck"
)

// Repository is the deck persistence contract.
type Repository interface {
	Put(ctx context.Context, d *domdeck.Deck) error
	Get(ctx context.Context, deckID string) (domdeck.Deck, error)
	Delete(ctx context.Context, deckID string) error
}

// Service handles deck CRUD.
type Service struct {
	repo Repository
}

// New creates a deck service.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a deck.
func (s *Service) Create(ctx context.Context, id, name, authorID string) (domdeck.Deck, error) {
	d, err := domdeck.New(id, name, authorID)
	if err != nil {
		return domdeck.Deck{}, err
	}
	if err := s.repo.Put(ctx, &d); err != nil {
		return domdeck.Deck{}, fmt.Errorf("store deck: %w", err)
	}
	return d, nil
}

// Get returns deck metadata.
func (s *Service) Get(ctx context.Context, deckID string) (domdeck.Deck, error) {
	return s.repo.Get(ctx, deckID)
}

// Delete removes deck metadata.
func (s *Service) Delete(ctx context.Context, deckID string) error {
	return s.repo.Delete(ctx, deckID)
}
