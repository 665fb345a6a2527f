package browse

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/memodeck/memodeck/pkg/api"
)

const defaultPrefetchThreshold = 0.9

// Browser keeps a deck's card collection synchronized with the server. It
// maintains two independently paged views, the unfiltered deck and the
// current search results, and routes edits and deletes through a scope
// choice.
type Browser struct {
	mu        sync.Mutex
	src       Source
	deckID    string
	isAuthor  bool
	pageSize  int
	threshold float64
	chooser   ScopeChooser
	logger    *zap.Logger

	unfiltered *collectionView
	search     *collectionView
	session    *searchSession
	query      string
	searching  bool
	noResults  bool
	selected   int
	lastErr    error

	changed chan struct{}
}

// Option configures a Browser.
type Option func(*Browser)

// WithPageSize sets the page size requested from the server.
func WithPageSize(size int) Option {
	return func(b *Browser) {
		if size > 0 {
			b.pageSize = size
		}
	}
}

// WithPrefetchThreshold sets the fraction of the loaded list at which the
// next page is prefetched. Must be in (0, 1].
func WithPrefetchThreshold(t float64) Option {
	return func(b *Browser) {
		if t > 0 && t <= 1 {
			b.threshold = t
		}
	}
}

// WithScopeChooser sets the mutation scope decision hook. The default
// always chooses local scope.
func WithScopeChooser(c ScopeChooser) Option {
	return func(b *Browser) {
		if c != nil {
			b.chooser = c
		}
	}
}

// WithDeckAuthor marks the acting user as the deck's author, enabling
// global-scope mutations on non-custom cards.
func WithDeckAuthor(isAuthor bool) Option {
	return func(b *Browser) { b.isAuthor = isAuthor }
}

// WithDebounce overrides the search debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.session.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Browser) {
		if l != nil {
			b.logger = l
		}
	}
}

// withScheduler injects the debounce timer, for deterministic tests.
func withScheduler(s scheduler) Option {
	return func(b *Browser) { b.session.sched = s }
}

// NewBrowser creates a Browser over one deck.
func NewBrowser(src Source, deckID string, opts ...Option) *Browser {
	b := &Browser{
		src:        src,
		deckID:     deckID,
		pageSize:   50,
		threshold:  defaultPrefetchThreshold,
		chooser:    alwaysLocal,
		logger:     zap.NewNop(),
		unfiltered: newCollectionView(),
		search:     newCollectionView(),
		session:    newSearchSession(DebounceDelay, nil),
		selected:   -1,
		changed:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Changed signals asynchronous view updates (debounced search results,
// prefetched pages, background fetch failures). At most one notification
// is buffered; check LastError after each signal.
func (b *Browser) Changed() <-chan struct{} { return b.changed }

// LastError returns the most recent asynchronous fetch failure, or nil.
// It is cleared by the next successful fetch. The failed view keeps its
// previous cards, so the error is recoverable by retrying.
func (b *Browser) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// acquireFlight registers a fetch on the view, waiting out any fetch
// already in flight so no two run concurrently against the same view.
func (b *Browser) acquireFlight(v *collectionView) *flight {
	b.mu.Lock()
	for v.flight != nil {
		f := v.flight
		b.mu.Unlock()
		<-f.done
		b.mu.Lock()
	}
	f := &flight{done: make(chan struct{})}
	v.flight = f
	b.mu.Unlock()
	return f
}

// Open loads the first page of the unfiltered view.
func (b *Browser) Open(ctx context.Context) error {
	f := b.acquireFlight(b.unfiltered)
	p, err := b.src.Page(ctx, b.deckID, 1, b.pageSize)

	b.mu.Lock()
	b.unfiltered.flight = nil
	f.err = err
	if err != nil {
		b.mu.Unlock()
		close(f.done)
		return fmt.Errorf("load first page: %w", err)
	}
	b.unfiltered.reset()
	b.unfiltered.absorb(&p)
	if len(b.unfiltered.cards) > 0 && b.selected < 0 {
		b.selected = 0
	}
	b.lastErr = nil
	b.mu.Unlock()
	close(f.done)
	return nil
}

// Cards returns a snapshot of the active view.
func (b *Browser) Cards() []api.Card {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.activeView()
	out := make([]api.Card, len(v.cards))
	copy(out, v.cards)
	return out
}

// Selected returns the selected index in the active view, -1 when empty.
func (b *Browser) Selected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// TotalCount returns the server-reported total of the active view.
func (b *Browser) TotalCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeView().cursor.total
}

// HasMore reports whether the active view has unloaded pages.
func (b *Browser) HasMore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeView().cursor.hasMore
}

// Searching reports whether a search query is active.
func (b *Browser) Searching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.searching
}

// NoResults reports that the active query matched nothing. The unfiltered
// list is surfaced underneath as a neutral background, never a blank screen.
func (b *Browser) NoResults() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.noResults
}

// SetQuery updates the search input. The request is debounced; a blank
// query cancels any pending request and restores the unfiltered view.
// Responses arriving for a superseded query are dropped.
func (b *Browser) SetQuery(ctx context.Context, raw string) {
	query := strings.TrimSpace(raw)

	if query == "" {
		b.session.invalidate()
		b.mu.Lock()
		b.query = ""
		b.searching = false
		b.noResults = false
		b.clampSelection()
		b.mu.Unlock()
		b.notify()
		return
	}

	b.mu.Lock()
	b.query = query
	b.mu.Unlock()

	b.session.schedule(func(version uint64) {
		b.runSearch(ctx, query, version)
	})
}

func (b *Browser) runSearch(ctx context.Context, query string, version uint64) {
	p, err := b.src.Search(ctx, b.deckID, query, 1, b.pageSize)

	if b.session.current() != version {
		return // superseded by newer input
	}
	if err != nil {
		b.logger.Warn("search failed", zap.String("query", query), zap.Error(err))
		b.mu.Lock()
		b.lastErr = fmt.Errorf("search %q: %w", query, err)
		b.mu.Unlock()
		b.notify()
		return
	}

	b.mu.Lock()
	if b.session.current() != version {
		b.mu.Unlock()
		return
	}
	b.search.reset()
	b.search.absorb(&p)
	b.searching = true
	b.noResults = len(p.Cards) == 0
	b.clampSelection()
	b.lastErr = nil
	b.mu.Unlock()
	b.notify()
}

// NavigateTo moves the selection and prefetches the next page when moving
// forward into the loaded tail. Backward movement never prefetches.
func (b *Browser) NavigateTo(ctx context.Context, index int) {
	b.mu.Lock()
	v := b.activeView()
	if len(v.cards) == 0 {
		b.selected = -1
		b.mu.Unlock()
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= len(v.cards) {
		index = len(v.cards) - 1
	}
	forward := index > b.selected
	b.selected = index
	near := forward && v.nearEnd(index, b.threshold)
	b.mu.Unlock()

	if near {
		b.loadNextPage(ctx)
	}
}

// ReportScroll prefetches the next page when the last visible position is
// near the loaded tail. Selection is unchanged.
func (b *Browser) ReportScroll(ctx context.Context, lastVisible int) {
	b.mu.Lock()
	near := b.activeView().nearEnd(lastVisible, b.threshold)
	b.mu.Unlock()

	if near {
		b.loadNextPage(ctx)
	}
}

// LoadMore fetches the next page of the active view unconditionally.
func (b *Browser) LoadMore(ctx context.Context) {
	b.loadNextPage(ctx)
}

func (b *Browser) loadNextPage(ctx context.Context) {
	b.mu.Lock()
	v := b.activeView()
	if f := v.flight; f != nil {
		b.mu.Unlock()
		<-f.done // join the fetch already in flight
		return
	}
	if !v.cursor.hasMore || len(v.cards) == 0 {
		b.mu.Unlock()
		return
	}
	f := &flight{done: make(chan struct{})}
	v.flight = f
	inSearch := b.inSearchView()
	query := b.query
	page := v.cursor.next
	version := b.session.current()
	b.mu.Unlock()

	var p Page
	var err error
	if inSearch {
		p, err = b.src.Search(ctx, b.deckID, query, page, b.pageSize)
	} else {
		p, err = b.src.Page(ctx, b.deckID, page, b.pageSize)
	}

	b.mu.Lock()
	v.flight = nil
	f.err = err
	if err != nil {
		b.lastErr = fmt.Errorf("load page %d: %w", page, err)
		b.mu.Unlock()
		close(f.done)
		b.logger.Warn("load next page failed", zap.Int("page", page), zap.Error(err))
		b.notify()
		return
	}
	if inSearch && b.session.current() != version {
		b.mu.Unlock()
		close(f.done)
		return // search superseded while the page was in flight
	}
	v.absorb(&p)
	b.lastErr = nil
	b.mu.Unlock()
	close(f.done)
	b.notify()
}

// EditCard applies a partial update to a card, then reconciles the
// server's echo into both views. The scope chooser is consulted only when
// a global mutation is legal; otherwise local scope is forced silently.
func (b *Browser) EditCard(ctx context.Context, cardID string, req api.PatchCardRequest) (api.Card, error) {
	c, ok := b.findCard(cardID)
	if !ok {
		return api.Card{}, fmt.Errorf("card %q is not loaded", cardID)
	}

	if req.Tags != nil {
		if err := validateTags(*req.Tags); err != nil {
			return api.Card{}, err
		}
	}

	scope, err := b.chooseScope(c)
	if err != nil {
		return api.Card{}, err
	}

	echo, err := b.src.PatchCard(ctx, b.deckID, cardID, req, scope)
	if err != nil {
		return api.Card{}, fmt.Errorf("patch card: %w", err)
	}

	b.mu.Lock()
	b.unfiltered.replace(echo)
	b.search.replace(echo)
	b.mu.Unlock()
	b.notify()
	return echo, nil
}

// DeleteCard removes a card at a scope decided by the scope chooser.
// Global deletes carry a fresh operation id so a retry after a network
// failure cannot delete twice. The selection moves to the previous card.
func (b *Browser) DeleteCard(ctx context.Context, cardID string) error {
	c, ok := b.findCard(cardID)
	if !ok {
		return fmt.Errorf("card %q is not loaded", cardID)
	}

	scope, err := b.chooseScope(c)
	if err != nil {
		return err
	}

	var opID string
	if scope == ScopeGlobal {
		opID = ulid.Make().String()
	}

	if err := b.src.DeleteCard(ctx, b.deckID, cardID, scope, opID); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}

	b.mu.Lock()
	active := b.activeView()
	removedAt := active.remove(cardID)
	if active == b.search {
		b.unfiltered.remove(cardID)
	} else {
		b.search.remove(cardID)
	}
	if len(active.cards) == 0 {
		b.selected = -1
	} else if removedAt >= 0 && b.selected >= removedAt {
		b.selected--
		if b.selected < 0 {
			b.selected = 0
		}
	}
	b.mu.Unlock()
	b.notify()
	return nil
}

// Refresh reloads the active view from the first page. A prefetch already
// in flight for the view is waited out first, so the reload cannot race
// with it.
func (b *Browser) Refresh(ctx context.Context) error {
	b.mu.Lock()
	inSearch := b.inSearchView()
	query := b.query
	v := b.activeView()
	b.mu.Unlock()

	f := b.acquireFlight(v)

	var p Page
	var err error
	if inSearch {
		p, err = b.src.Search(ctx, b.deckID, query, 1, b.pageSize)
	} else {
		p, err = b.src.Page(ctx, b.deckID, 1, b.pageSize)
	}

	b.mu.Lock()
	v.flight = nil
	f.err = err
	if err != nil {
		b.mu.Unlock()
		close(f.done)
		return fmt.Errorf("refresh: %w", err)
	}
	v.reset()
	v.absorb(&p)
	b.clampSelection()
	b.lastErr = nil
	b.mu.Unlock()
	close(f.done)
	b.notify()
	return nil
}

func (b *Browser) activeView() *collectionView {
	if b.inSearchView() {
		return b.search
	}
	return b.unfiltered
}

// inSearchView reports whether the search results back the rendered list.
// A query with zero matches falls back to the unfiltered list. Callers
// must hold the mutex.
func (b *Browser) inSearchView() bool {
	return b.searching && !b.noResults
}

// clampSelection keeps the selection inside the active view. Callers must
// hold the mutex.
func (b *Browser) clampSelection() {
	v := b.activeView()
	if len(v.cards) == 0 {
		b.selected = -1
		return
	}
	if b.selected < 0 {
		b.selected = 0
	}
	if b.selected >= len(v.cards) {
		b.selected = len(v.cards) - 1
	}
}

func (b *Browser) canGlobal(c *api.Card) bool {
	return b.isAuthor && !c.IsCustom
}

// chooseScope forces local scope silently when the card is not eligible
// for a global mutation; otherwise it defers to the chooser.
func (b *Browser) chooseScope(c api.Card) (Scope, error) {
	if !b.canGlobal(&c) {
		return ScopeLocal, nil
	}
	return b.chooser.Choose(c, true)
}

func (b *Browser) findCard(cardID string) (api.Card, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range []*collectionView{b.activeView(), b.unfiltered, b.search} {
		if i := v.indexOf(cardID); i >= 0 {
			return v.cards[i], true
		}
	}
	return api.Card{}, false
}

func (b *Browser) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}
