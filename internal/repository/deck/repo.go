// Package deck persists deck metadata in Redis.
package deck

import (
	"context"
	"fmt"

	"github.com/memodeck/memodeck/internal/domain"
	domdeck "github.com/memodeck/memodeck/internal/domain/deck"
)

// store is the consumer interface for decks (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
}

// Repo implements usecase DeckReader/DeckWriter.
type Repo struct {
	store  store
	prefix string
}

// New creates a deck repository with the given key prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) metaKey(deckID string) string {
	return r.prefix + "deck:" + deckID + ":meta"
}

// Put stores deck metadata.
func (r *Repo) Put(ctx context.Context, d *domdeck.Deck) error {
	fields := map[string]string{
		"name":   d.Name(),
		"author": d.AuthorID(),
	}
	if err := r.store.HSet(ctx, r.metaKey(d.ID()), fields); err != nil {
		return fmt.Errorf("store deck %s: %w", d.ID(), err)
	}
	return nil
}

// Get returns deck metadata by id.
func (r *Repo) Get(ctx context.Context, deckID string) (domdeck.Deck, error) {
	m, err := r.store.HGetAll(ctx, r.metaKey(deckID))
	if err != nil {
		return domdeck.Deck{}, fmt.Errorf("hgetall deck %s: %w", deckID, err)
	}
	if len(m) == 0 {
		return domdeck.Deck{}, domain.ErrDeckNotFound
	}
	return domdeck.Reconstruct(deckID, m["name"], m["author"]), nil
}

// Delete removes deck metadata.
func (r *Repo) Delete(ctx context.Context, deckID string) error {
	if err := r.store.Del(ctx, r.metaKey(deckID)); err != nil {
		return fmt.Errorf("delete deck %s: %w", deckID, err)
	}
	return nil
}
