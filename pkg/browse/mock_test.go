package browse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memodeck/memodeck/pkg/api"
)

func testCard(i int) api.Card {
	return api.Card{
		ID:       fmt.Sprintf("card-%03d", i),
		Fields:   map[string]string{"front": fmt.Sprintf("q%d", i), "back": fmt.Sprintf("a%d", i)},
		Revision: 1,
	}
}

func testCards(from, to int) []api.Card {
	out := make([]api.Card, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, testCard(i))
	}
	return out
}

type patchCall struct {
	cardID string
	scope  Scope
}

type deleteCall struct {
	cardID string
	scope  Scope
	opID   string
}

// pageGate blocks one page fetch until the test releases it.
type pageGate struct {
	started chan struct{}
	release chan struct{}
}

type mockSource struct {
	mu          sync.Mutex
	pages       map[int]Page
	searchPages map[string]map[int]Page
	pageGates   map[int]*pageGate
	pageCalls   int
	pageErr     error
	searchCalls []string
	searchErr   error
	patchEcho   map[string]api.Card
	patchCalls  []patchCall
	deleteCalls []deleteCall
	deleteErrs  map[string]error
	groups      []api.DuplicateGroup
	groupCalls  int
	groupErr    error
}

func newMockSource() *mockSource {
	return &mockSource{
		pages:       make(map[int]Page),
		searchPages: make(map[string]map[int]Page),
		patchEcho:   make(map[string]api.Card),
		deleteErrs:  make(map[string]error),
	}
}

// setDeckPages splits a flat card list into pages of the given size.
func (m *mockSource) setDeckPages(cards []api.Card, size int) {
	m.pages = make(map[int]Page)
	for page := 1; (page-1)*size < len(cards); page++ {
		start := (page - 1) * size
		end := start + size
		if end > len(cards) {
			end = len(cards)
		}
		m.pages[page] = Page{
			Cards:      cards[start:end],
			PageNumber: page,
			HasMore:    end < len(cards),
			TotalCount: len(cards),
		}
	}
}

func (m *mockSource) setSearchPage(query string, p Page) {
	if m.searchPages[query] == nil {
		m.searchPages[query] = make(map[int]Page)
	}
	m.searchPages[query][p.PageNumber] = p
}

// gatePage makes the next fetch of the given page block until released.
func (m *mockSource) gatePage(page int) *pageGate {
	g := &pageGate{started: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	if m.pageGates == nil {
		m.pageGates = make(map[int]*pageGate)
	}
	m.pageGates[page] = g
	m.mu.Unlock()
	return g
}

func (m *mockSource) Page(_ context.Context, _ string, pageNumber, _ int) (Page, error) {
	m.mu.Lock()
	g := m.pageGates[pageNumber]
	delete(m.pageGates, pageNumber)
	m.mu.Unlock()
	if g != nil {
		close(g.started)
		<-g.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	if m.pageErr != nil {
		return Page{}, m.pageErr
	}
	p, ok := m.pages[pageNumber]
	if !ok {
		return Page{PageNumber: pageNumber}, nil
	}
	return p, nil
}

func (m *mockSource) Search(_ context.Context, _, query string, pageNumber, _ int) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls = append(m.searchCalls, query)
	if m.searchErr != nil {
		return Page{}, m.searchErr
	}
	p, ok := m.searchPages[query][pageNumber]
	if !ok {
		return Page{PageNumber: pageNumber}, nil
	}
	return p, nil
}

func (m *mockSource) PatchCard(
	_ context.Context, _, cardID string, _ api.PatchCardRequest, scope Scope,
) (api.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patchCalls = append(m.patchCalls, patchCall{cardID: cardID, scope: scope})
	if echo, ok := m.patchEcho[cardID]; ok {
		return echo, nil
	}
	return api.Card{ID: cardID, Revision: 2}, nil
}

func (m *mockSource) DeleteCard(_ context.Context, _, cardID string, scope Scope, opID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, deleteCall{cardID: cardID, scope: scope, opID: opID})
	if err, ok := m.deleteErrs[cardID]; ok {
		delete(m.deleteErrs, cardID) // fail once, then succeed on retry
		return err
	}
	return nil
}

func (m *mockSource) DuplicateGroups(
	_ context.Context, _ string, _ DuplicateOptions,
) ([]api.DuplicateGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupCalls++
	return m.groups, m.groupErr
}

// manualScheduler collects deferred functions so tests fire them by hand.
// Cancellation is recorded but does not prevent firing, which lets tests
// simulate a stale response already in flight.
type manualScheduler struct {
	mu        sync.Mutex
	scheduled []func()
	cancelled int
}

func (s *manualScheduler) schedule(_ time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, f)
	return func() {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
	}
}

// fire runs the i-th scheduled function synchronously.
func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	f := s.scheduled[i]
	s.mu.Unlock()
	f()
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}
