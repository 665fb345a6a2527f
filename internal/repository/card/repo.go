// Package card persists cards, per-user overrides and hidden sets in Redis.
package card

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memodeck/memodeck/internal/db"
	"github.com/memodeck/memodeck/internal/domain"
	domcard "github.com/memodeck/memodeck/internal/domain/card"
)

// opKeyTTL bounds how long a global-delete operation id is remembered
// for idempotent retry.
const opKeyTTL = 24 * time.Hour

// store is the consumer interface for cards (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int) ([]string, error)
	ZCard(ctx context.Context, key string) (int, error)
	ZRem(ctx context.Context, key string, member string) error
	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchText(ctx context.Context, index, query string, offset, limit int) (*db.SearchResult, error)
}

// QueryEscaper escapes user input for the search backend's query syntax.
type QueryEscaper func(string) string

// Repo implements usecase/card.Repository.
type Repo struct {
	store  store
	prefix string
	escape QueryEscaper
}

// New creates a card repository with the given key prefix.
func New(s store, prefix string, escape QueryEscaper) *Repo {
	if escape == nil {
		escape = func(q string) string { return q }
	}
	return &Repo{store: s, prefix: prefix, escape: escape}
}

func (r *Repo) cardKey(deckID, cardID string) string {
	return r.prefix + "card:" + deckID + ":" + cardID
}

func (r *Repo) orderKey(deckID string) string {
	return r.prefix + "deck:" + deckID + ":order"
}

func (r *Repo) seqKey(deckID string) string {
	return r.prefix + "deck:" + deckID + ":seq"
}

func (r *Repo) overrideKey(deckID, userID, cardID string) string {
	return r.prefix + "override:" + deckID + ":" + userID + ":" + cardID
}

func (r *Repo) hiddenKey(deckID, userID string) string {
	return r.prefix + "hidden:" + deckID + ":" + userID
}

func (r *Repo) opKey(opID string) string {
	return r.prefix + "op:" + opID
}

func (r *Repo) indexName() string {
	return r.prefix + "idx:cards"
}

// EnsureIndex creates the card FT index if missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.prefix + "card:"},
		Fields: []db.IndexField{
			{Name: "deck", Type: db.FieldTag},
			{Name: "__text", Type: db.FieldText},
			{Name: "tags", Type: db.FieldTag},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create card index: %w", err)
	}
	return nil
}

// Create stores a new card and appends it to the deck order.
func (r *Repo) Create(ctx context.Context, deckID string, c *domcard.Card) error {
	seq, err := r.store.Incr(ctx, r.seqKey(deckID))
	if err != nil {
		return fmt.Errorf("next card sequence: %w", err)
	}
	if err := r.store.HSet(ctx, r.cardKey(deckID, c.ID()), buildHashFields(deckID, c)); err != nil {
		return fmt.Errorf("store card: %w", err)
	}
	if err := r.store.ZAdd(ctx, r.orderKey(deckID), float64(seq), c.ID()); err != nil {
		return fmt.Errorf("order card: %w", err)
	}
	return nil
}

// Get returns a card by ID.
func (r *Repo) Get(ctx context.Context, deckID, cardID string) (domcard.Card, error) {
	m, err := r.store.HGetAll(ctx, r.cardKey(deckID, cardID))
	if err != nil {
		return domcard.Card{}, fmt.Errorf("hgetall card %s: %w", cardID, err)
	}
	if len(m) == 0 {
		return domcard.Card{}, domain.ErrCardNotFound
	}
	return parseHashFields(cardID, m), nil
}

// Put overwrites the shared card (global edit).
func (r *Repo) Put(ctx context.Context, deckID string, c *domcard.Card) error {
	if err := r.store.HSet(ctx, r.cardKey(deckID, c.ID()), buildHashFields(deckID, c)); err != nil {
		return fmt.Errorf("store card: %w", err)
	}
	return nil
}

// Delete removes the shared card and its order entry (global delete).
func (r *Repo) Delete(ctx context.Context, deckID, cardID string) error {
	if err := r.store.Del(ctx, r.cardKey(deckID, cardID)); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if err := r.store.ZRem(ctx, r.orderKey(deckID), cardID); err != nil {
		return fmt.Errorf("unorder card: %w", err)
	}
	return nil
}

// PageIDs returns the card ids of a page in deck order.
func (r *Repo) PageIDs(ctx context.Context, deckID string, offset, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := r.store.ZRange(ctx, r.orderKey(deckID), offset, offset+limit-1)
	if err != nil {
		return nil, fmt.Errorf("zrange deck order: %w", err)
	}
	return ids, nil
}

// Count returns the number of shared cards in the deck.
func (r *Repo) Count(ctx context.Context, deckID string) (int, error) {
	n, err := r.store.ZCard(ctx, r.orderKey(deckID))
	if err != nil {
		return 0, fmt.Errorf("zcard deck order: %w", err)
	}
	return n, nil
}

// GetMulti fetches cards by id, skipping ids that no longer exist.
func (r *Repo) GetMulti(ctx context.Context, deckID string, ids []string) ([]domcard.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.cardKey(deckID, id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall cards: %w", err)
	}
	cards := make([]domcard.Card, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		cards = append(cards, parseHashFields(ids[i], m))
	}
	return cards, nil
}

// Search runs a per-deck full-text query and returns matching ids plus the
// total match count.
func (r *Repo) Search(ctx context.Context, deckID, query string, offset, limit int) ([]string, int, error) {
	q := fmt.Sprintf("@deck:{%s} @__text:(%s)", deckID, r.escape(query))
	res, err := r.store.SearchText(ctx, r.indexName(), q, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("search cards: %w", err)
	}
	ids := make([]string, 0, len(res.Docs))
	for _, doc := range res.Docs {
		ids = append(ids, cardIDFromKey(doc.Key))
	}
	return ids, res.Total, nil
}

// PutOverride stores a per-user override of a card (local edit).
func (r *Repo) PutOverride(ctx context.Context, deckID, userID string, c *domcard.Card) error {
	if err := r.store.HSet(ctx, r.overrideKey(deckID, userID, c.ID()), buildHashFields(deckID, c)); err != nil {
		return fmt.Errorf("store override: %w", err)
	}
	return nil
}

// GetOverrides returns the user's overrides for the given ids, keyed by card id.
func (r *Repo) GetOverrides(
	ctx context.Context, deckID, userID string, ids []string,
) (map[string]domcard.Card, error) {
	if len(ids) == 0 || userID == "" {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.overrideKey(deckID, userID, id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall overrides: %w", err)
	}
	out := make(map[string]domcard.Card)
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		out[ids[i]] = parseHashFields(ids[i], m)
	}
	return out, nil
}

// Hide adds a card to the user's hidden set (local delete).
func (r *Repo) Hide(ctx context.Context, deckID, userID, cardID string) error {
	if err := r.store.SAdd(ctx, r.hiddenKey(deckID, userID), cardID); err != nil {
		return fmt.Errorf("hide card: %w", err)
	}
	return nil
}

// Hidden returns the user's hidden card ids.
func (r *Repo) Hidden(ctx context.Context, deckID, userID string) (map[string]struct{}, error) {
	if userID == "" {
		return nil, nil
	}
	members, err := r.store.SMembers(ctx, r.hiddenKey(deckID, userID))
	if err != nil {
		return nil, fmt.Errorf("hidden set: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

// ClaimOp records a global-delete operation id. Returns false when the
// operation was already applied (idempotent retry).
func (r *Repo) ClaimOp(ctx context.Context, opID string) (bool, error) {
	claimed, err := r.store.SetNX(ctx, r.opKey(opID), []byte("1"), opKeyTTL)
	if err != nil {
		return false, fmt.Errorf("claim operation %s: %w", opID, err)
	}
	return claimed, nil
}

// ReleaseOp forgets a claimed operation id after a failed delete so the
// client's retry is re-attempted instead of short-circuited.
func (r *Repo) ReleaseOp(ctx context.Context, opID string) error {
	if err := r.store.Del(ctx, r.opKey(opID)); err != nil {
		return fmt.Errorf("release operation %s: %w", opID, err)
	}
	return nil
}

// cardIDFromKey strips the key prefix and deck segment from an FT hit key.
func cardIDFromKey(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
