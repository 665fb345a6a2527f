package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/memodeck/memodeck/internal/domain"
	domcard "github.com/memodeck/memodeck/internal/domain/card"
	domdedupe "github.com/memodeck/memodeck/internal/domain/dedupe"
	domdeck "github.com/memodeck/memodeck/internal/domain/deck"
	carduc "github.com/memodeck/memodeck/internal/usecase/card"
	healthuc "github.com/memodeck/memodeck/internal/usecase/health"
	"github.com/memodeck/memodeck/pkg/api"
)

type mockCards struct {
	page       carduc.Page
	pageErr    error
	searchErr  error
	lastQuery  string
	lastScope  domcard.Scope
	lastOpID   string
	patched    domcard.Card
	patchErr   error
	deleteErr  error
	lastPage   int
	lastSize   int
}

func (m *mockCards) Create(_ context.Context, _, _ string, c *domcard.Card) (domcard.Card, error) {
	return *c, nil
}

func (m *mockCards) Page(_ context.Context, _, _ string, pageNumber, size int) (carduc.Page, error) {
	m.lastPage, m.lastSize = pageNumber, size
	return m.page, m.pageErr
}

func (m *mockCards) SearchPage(
	_ context.Context, _, _, query string, pageNumber, size int,
) (carduc.Page, error) {
	m.lastQuery = query
	m.lastPage, m.lastSize = pageNumber, size
	return m.page, m.searchErr
}

func (m *mockCards) Patch(
	_ context.Context, _, _, _ string, _ domcard.Patch, scope domcard.Scope,
) (domcard.Card, error) {
	m.lastScope = scope
	return m.patched, m.patchErr
}

func (m *mockCards) Delete(
	_ context.Context, _, _, _ string, scope domcard.Scope, opID string,
) error {
	m.lastScope = scope
	m.lastOpID = opID
	return m.deleteErr
}

type mockDecks struct {
	deck domdeck.Deck
	err  error
}

func (m *mockDecks) Create(_ context.Context, id, name, authorID string) (domdeck.Deck, error) {
	if m.err != nil {
		return domdeck.Deck{}, m.err
	}
	return domdeck.New(id, name, authorID)
}

func (m *mockDecks) Get(_ context.Context, _ string) (domdeck.Deck, error) {
	return m.deck, m.err
}

func (m *mockDecks) Delete(_ context.Context, _ string) error { return m.err }

type mockDedupe struct {
	groups []domdedupe.Group
	err    error
	opts   domdedupe.Options
}

func (m *mockDedupe) Groups(
	_ context.Context, _ string, opts domdedupe.Options,
) ([]domdedupe.Group, error) {
	m.opts = opts
	return m.groups, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func newTestServer(cards *mockCards, decks *mockDecks, dedupe *mockDedupe) http.Handler {
	h := &mockHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
	}}
	r := chi.NewRouter()
	NewServer(cards, decks, dedupe, h, zap.NewNop()).Register(r)
	return r
}

func mustCard(t *testing.T, id string) domcard.Card {
	t.Helper()
	c, err := domcard.New(id, map[string]string{"front": "q " + id, "back": "a " + id}, nil, false)
	if err != nil {
		t.Fatalf("new card: %v", err)
	}
	return c
}

func TestListCards(t *testing.T) {
	cards := &mockCards{page: carduc.Page{
		Cards:      []domcard.Card{mustCard(t, "c1"), mustCard(t, "c2")},
		PageNumber: 2,
		HasMore:    true,
		TotalCount: 120,
	}}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("GET", "/api/v1/decks/d1/cards?page=2&size=50", http.NoBody)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cards.lastPage != 2 || cards.lastSize != 50 {
		t.Errorf("paging = (%d, %d), want (2, 50)", cards.lastPage, cards.lastSize)
	}

	var resp api.CardPage
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 2 || !resp.HasMore || resp.TotalCount != 120 {
		t.Errorf("unexpected page: %+v", resp)
	}
}

func TestListCards_DeckNotFound(t *testing.T) {
	cards := &mockCards{pageErr: domain.ErrDeckNotFound}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("GET", "/api/v1/decks/missing/cards", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != api.ErrorCodeDeckNotFound {
		t.Errorf("code = %q, want %q", resp.Code, api.ErrorCodeDeckNotFound)
	}
}

func TestSearchCards_RequiresQuery(t *testing.T) {
	srv := newTestServer(&mockCards{}, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("GET", "/api/v1/decks/d1/cards/search", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSearchCards_PassesQuery(t *testing.T) {
	cards := &mockCards{page: carduc.Page{PageNumber: 1}}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("GET", "/api/v1/decks/d1/cards/search?q=ablative&page=1", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cards.lastQuery != "ablative" {
		t.Errorf("query = %q, want %q", cards.lastQuery, "ablative")
	}
}

func TestPatchCard_ScopeParam(t *testing.T) {
	cards := &mockCards{patched: mustCard(t, "c1")}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	body, _ := json.Marshal(api.PatchCardRequest{Fields: map[string]string{"front": "new"}})
	req := httptest.NewRequest("PATCH", "/api/v1/decks/d1/cards/c1?scope=global", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "author")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cards.lastScope != domcard.ScopeGlobal {
		t.Errorf("scope = %q, want global", cards.lastScope)
	}
}

func TestPatchCard_DefaultsToLocalScope(t *testing.T) {
	cards := &mockCards{patched: mustCard(t, "c1")}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	body, _ := json.Marshal(api.PatchCardRequest{Fields: map[string]string{"front": "new"}})
	req := httptest.NewRequest("PATCH", "/api/v1/decks/d1/cards/c1", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cards.lastScope != domcard.ScopeLocal {
		t.Errorf("scope = %q, want local", cards.lastScope)
	}
}

func TestPatchCard_InvalidScope(t *testing.T) {
	srv := newTestServer(&mockCards{}, &mockDecks{}, &mockDedupe{})

	body, _ := json.Marshal(api.PatchCardRequest{Fields: map[string]string{"front": "new"}})
	req := httptest.NewRequest("PATCH", "/api/v1/decks/d1/cards/c1?scope=everyone", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != api.ErrorCodeInvalidScope {
		t.Errorf("code = %q, want %q", resp.Code, api.ErrorCodeInvalidScope)
	}
}

func TestPatchCard_EmptyPatchRejected(t *testing.T) {
	srv := newTestServer(&mockCards{}, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("PATCH", "/api/v1/decks/d1/cards/c1", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestDeleteCard_ForbiddenGlobal(t *testing.T) {
	cards := &mockCards{deleteErr: domain.ErrScopeForbidden}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("DELETE", "/api/v1/decks/d1/cards/c1?scope=global", http.NoBody)
	req.Header.Set("X-User-ID", "stranger")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestDeleteCard_OpIDForwarded(t *testing.T) {
	cards := &mockCards{}
	srv := newTestServer(cards, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest(
		"DELETE", "/api/v1/decks/d1/cards/c1?scope=global&op=01JABCDEF", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if cards.lastOpID != "01JABCDEF" {
		t.Errorf("opID = %q, want %q", cards.lastOpID, "01JABCDEF")
	}
}

func TestListDuplicates_Params(t *testing.T) {
	dedupe := &mockDedupe{}
	srv := newTestServer(&mockCards{}, &mockDecks{}, dedupe)

	req := httptest.NewRequest(
		"GET", "/api/v1/decks/d1/duplicates?fields=front,back&max_groups=5&semantic=true&threshold=0.8",
		http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if len(dedupe.opts.Fields) != 2 || dedupe.opts.Fields[0] != "front" {
		t.Errorf("fields = %v", dedupe.opts.Fields)
	}
	if dedupe.opts.MaxGroups != 5 || !dedupe.opts.Semantic || dedupe.opts.Threshold != 0.8 {
		t.Errorf("opts = %+v", dedupe.opts)
	}
}

func TestListDuplicates_EmbeddingProviderError(t *testing.T) {
	dedupe := &mockDedupe{err: domain.ErrEmbeddingProviderError}
	srv := newTestServer(&mockCards{}, &mockDecks{}, dedupe)

	req := httptest.NewRequest("GET", "/api/v1/decks/d1/duplicates?semantic=true", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&mockCards{}, &mockDecks{}, &mockDedupe{})

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestCreateCard_ValidationError(t *testing.T) {
	srv := newTestServer(&mockCards{}, &mockDecks{}, &mockDedupe{})

	body, _ := json.Marshal(api.CreateCardRequest{ID: "bad id!", Fields: map[string]string{"front": "x"}})
	req := httptest.NewRequest("POST", "/api/v1/decks/d1/cards", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
