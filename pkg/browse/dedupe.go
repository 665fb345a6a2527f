package browse

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/memodeck/memodeck/pkg/api"
)

// Prompter confirms a pending deletion batch with the user. Consulted at
// most once per batch, and only when the batch contains a card that will
// be deleted globally; an all-local batch proceeds without prompting.
type Prompter interface {
	ConfirmDeletion(count int) bool
}

// PromptFunc adapts a function to the Prompter interface.
type PromptFunc func(count int) bool

// ConfirmDeletion implements Prompter.
func (f PromptFunc) ConfirmDeletion(count int) bool { return f(count) }

// BatchError reports a deletion batch that stopped partway. Cards in
// Deleted are gone on the server; the rest stay pending, so a later Apply
// resumes where this one failed.
type BatchError struct {
	Deleted    []string
	FailedCard string
	Remaining  int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("deleted %d card(s), failed on %q with %d remaining: %v",
		len(e.Deleted), e.FailedCard, e.Remaining, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Reducer drives duplicate cleanup for one deck: it holds the fetched
// duplicate groups, a pending-deletion set, and applies deletions strictly
// one at a time so a mid-batch failure leaves a resumable state.
type Reducer struct {
	mu        sync.Mutex
	src       Source
	deckID    string
	prompter  Prompter
	scope     Scope
	isAuthor  bool
	logger    *zap.Logger
	onDeleted func(cardID string)

	opts      DuplicateOptions
	groups    []api.DuplicateGroup
	cards     map[string]api.Card
	pending   map[string]struct{}
	opIDs     map[string]string
	confirmed bool
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithPrompter sets the batch confirmation hook. Without one every batch
// is cancelled.
func WithPrompter(p Prompter) ReducerOption {
	return func(r *Reducer) {
		if p != nil {
			r.prompter = p
		}
	}
}

// WithDeleteScope sets the preferred scope for batch deletions. Defaults
// to local. Global scope applies only to cards eligible for it; the rest
// of the batch is deleted locally.
func WithDeleteScope(s Scope) ReducerOption {
	return func(r *Reducer) { r.scope = s }
}

// WithReducerAuthor marks the acting user as the deck's author, enabling
// global-scope deletion of non-custom cards.
func WithReducerAuthor(isAuthor bool) ReducerOption {
	return func(r *Reducer) { r.isAuthor = isAuthor }
}

// WithDeletedCallback is invoked after each confirmed server-side deletion.
func WithDeletedCallback(f func(cardID string)) ReducerOption {
	return func(r *Reducer) { r.onDeleted = f }
}

// WithReducerLogger sets the logger.
func WithReducerLogger(l *zap.Logger) ReducerOption {
	return func(r *Reducer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReducer creates a duplicate cleanup session for one deck.
func NewReducer(src Source, deckID string, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		src:      src,
		deckID:   deckID,
		prompter: PromptFunc(func(int) bool { return false }),
		scope:    ScopeLocal,
		logger:   zap.NewNop(),
		cards:    make(map[string]api.Card),
		pending:  make(map[string]struct{}),
		opIDs:    make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load fetches duplicate groups from the server. Pending marks on cards
// that no longer appear in any group are dropped.
func (r *Reducer) Load(ctx context.Context, opts DuplicateOptions) error {
	groups, err := r.src.DuplicateGroups(ctx, r.deckID, opts)
	if err != nil {
		return fmt.Errorf("load duplicate groups: %w", err)
	}

	r.mu.Lock()
	r.opts = opts
	r.groups = groups
	r.cards = make(map[string]api.Card)
	for i := range groups {
		for j := range groups[i].Cards {
			r.cards[groups[i].Cards[j].ID] = groups[i].Cards[j]
		}
	}
	for id := range r.pending {
		if _, ok := r.cards[id]; !ok {
			delete(r.pending, id)
			delete(r.opIDs, id)
		}
	}
	r.mu.Unlock()
	return nil
}

// Groups returns a snapshot of the fetched duplicate groups.
func (r *Reducer) Groups() []api.DuplicateGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]api.DuplicateGroup, len(r.groups))
	copy(out, r.groups)
	return out
}

// Toggle flips a card's pending-deletion mark and returns the new state.
// Changing the set starts a new batch, requiring a fresh confirmation.
func (r *Reducer) Toggle(cardID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = false
	if _, ok := r.pending[cardID]; ok {
		delete(r.pending, cardID)
		delete(r.opIDs, cardID)
		return false
	}
	r.pending[cardID] = struct{}{}
	return true
}

// Pending returns the cards marked for deletion in deterministic order:
// group order, then card order within the group.
func (r *Reducer) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingOrdered()
}

// pendingOrdered walks groups in order. Callers must hold the mutex.
func (r *Reducer) pendingOrdered() []string {
	out := make([]string, 0, len(r.pending))
	seen := make(map[string]struct{}, len(r.pending))
	for i := range r.groups {
		for j := range r.groups[i].Cards {
			id := r.groups[i].Cards[j].ID
			if _, ok := r.pending[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Apply deletes the pending cards one at a time. Each card is deleted at
// its own legal scope: the configured scope when the card is eligible for
// it, local otherwise. A batch touching any global card is confirmed with
// a single prompt; declining returns ErrCancelled with the set intact.
// Each global card keeps a stable operation id across retries, so
// re-applying after a mid-batch failure resumes without double-deleting.
// After the whole batch succeeds the groups are re-fetched.
func (r *Reducer) Apply(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pendingOrdered()
	if len(batch) == 0 {
		r.mu.Unlock()
		return nil
	}
	scopes := make(map[string]Scope, len(batch))
	anyGlobal := false
	for _, id := range batch {
		scopes[id] = r.scopeFor(id)
		if scopes[id] == ScopeGlobal {
			anyGlobal = true
		}
	}
	needConfirm := anyGlobal && !r.confirmed
	r.mu.Unlock()

	if needConfirm {
		if !r.prompter.ConfirmDeletion(len(batch)) {
			return ErrCancelled
		}
		r.mu.Lock()
		r.confirmed = true
		r.mu.Unlock()
	}

	var deleted []string
	for _, cardID := range batch {
		scope := scopes[cardID]
		opID := r.claimOpID(cardID, scope)

		if err := r.src.DeleteCard(ctx, r.deckID, cardID, scope, opID); err != nil {
			r.mu.Lock()
			remaining := len(r.pending)
			r.mu.Unlock()
			return &BatchError{
				Deleted:    deleted,
				FailedCard: cardID,
				Remaining:  remaining,
				Err:        err,
			}
		}

		r.mu.Lock()
		delete(r.pending, cardID)
		delete(r.opIDs, cardID)
		r.mu.Unlock()

		deleted = append(deleted, cardID)
		if r.onDeleted != nil {
			r.onDeleted(cardID)
		}
	}

	r.mu.Lock()
	r.confirmed = false
	opts := r.opts
	r.mu.Unlock()

	// Groups may have dissolved below the duplicate threshold.
	if err := r.Load(ctx, opts); err != nil {
		r.logger.Warn("reload duplicate groups failed", zap.Error(err))
	}
	return nil
}

// scopeFor resolves the scope a card will be deleted at. Custom cards and
// non-author batches are forced to local silently. Callers must hold the
// mutex.
func (r *Reducer) scopeFor(cardID string) Scope {
	if r.scope != ScopeGlobal || !r.isAuthor {
		return ScopeLocal
	}
	if c, ok := r.cards[cardID]; !ok || c.IsCustom {
		return ScopeLocal
	}
	return ScopeGlobal
}

// claimOpID returns the card's stable operation id, minting one on first
// use. Local deletes are idempotent by nature and carry none.
func (r *Reducer) claimOpID(cardID string, scope Scope) string {
	if scope != ScopeGlobal {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.opIDs[cardID]; ok {
		return id
	}
	id := ulid.Make().String()
	r.opIDs[cardID] = id
	return id
}
