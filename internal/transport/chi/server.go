// Package chi implements the HTTP transport over chi.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/memodeck/memodeck/internal/domain"
	domcard "github.com/memodeck/memodeck/internal/domain/card"
	domdedupe "github.com/memodeck/memodeck/internal/domain/dedupe"
	domdeck "github.com/memodeck/memodeck/internal/domain/deck"
	carduc "github.com/memodeck/memodeck/internal/usecase/card"
	healthuc "github.com/memodeck/memodeck/internal/usecase/health"
	"github.com/memodeck/memodeck/pkg/api"
)

// userHeader carries the acting user's identity.
const userHeader = "X-User-ID"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// CardService is the card use case surface the transport needs.
type CardService interface {
	Create(ctx context.Context, deckID, userID string, c *domcard.Card) (domcard.Card, error)
	Page(ctx context.Context, deckID, userID string, pageNumber, size int) (carduc.Page, error)
	SearchPage(ctx context.Context, deckID, userID, query string, pageNumber, size int) (carduc.Page, error)
	Patch(ctx context.Context, deckID, userID, cardID string, p domcard.Patch, scope domcard.Scope) (domcard.Card, error)
	Delete(ctx context.Context, deckID, userID, cardID string, scope domcard.Scope, opID string) error
}

// DeckService is the deck use case surface the transport needs.
type DeckService interface {
	Create(ctx context.Context, id, name, authorID string) (domdeck.Deck, error)
	Get(ctx context.Context, deckID string) (domdeck.Deck, error)
	Delete(ctx context.Context, deckID string) error
}

// DedupeService computes duplicate groups.
type DedupeService interface {
	Groups(ctx context.Context, deckID string, opts domdedupe.Options) ([]domdedupe.Group, error)
}

// HealthService runs readiness checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the HTTP API server.
type Server struct {
	cards         CardService
	decks         DeckService
	dedupe        DedupeService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	cards CardService,
	decks DeckService,
	dedupe DedupeService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cards:  cards,
		decks:  decks,
		dedupe: dedupe,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDeckNotFound, http.StatusNotFound, api.ErrorCodeDeckNotFound),
		sentinelHandler(domain.ErrCardNotFound, http.StatusNotFound, api.ErrorCodeCardNotFound),
		sentinelHandler(domain.ErrScopeForbidden, http.StatusForbidden, api.ErrorCodeScopeForbidden),
		sentinelHandler(domain.ErrInvalidScope, http.StatusBadRequest, api.ErrorCodeInvalidScope),
		sentinelHandler(domain.ErrInvalidCard, http.StatusBadRequest, api.ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, api.ErrorCodeBadRequest),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, api.ErrorCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, api.ErrorCodeEmbeddingProviderError),
	}
	return s
}

// Register mounts all API endpoints on the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/decks", s.createDeck)
		r.Route("/decks/{deckID}", func(r chi.Router) {
			r.Get("/", s.getDeck)
			r.Delete("/", s.deleteDeck)
			r.Post("/cards", s.createCard)
			r.Get("/cards", s.listCards)
			r.Get("/cards/search", s.searchCards)
			r.Patch("/cards/{cardID}", s.patchCard)
			r.Delete("/cards/{cardID}", s.deleteCard)
			r.Get("/duplicates", s.listDuplicates)
		})
	})

	r.Get("/healthz", s.healthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// createDeck handles POST /api/v1/decks.
func (s *Server) createDeck(w http.ResponseWriter, r *http.Request) {
	var req api.CreateDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	d, err := s.decks.Create(r.Context(), req.ID, req.Name, req.AuthorID)
	if err != nil {
		if !s.handleDomainError(w, err) {
			writeError(w, http.StatusBadRequest, api.ErrorCodeValidationFailed, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, deckToAPI(&d))
}

// getDeck handles GET /api/v1/decks/{deckID}.
func (s *Server) getDeck(w http.ResponseWriter, r *http.Request) {
	d, err := s.decks.Get(r.Context(), chi.URLParam(r, "deckID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deckToAPI(&d))
}

// deleteDeck handles DELETE /api/v1/decks/{deckID}.
func (s *Server) deleteDeck(w http.ResponseWriter, r *http.Request) {
	if err := s.decks.Delete(r.Context(), chi.URLParam(r, "deckID")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createCard handles POST /api/v1/decks/{deckID}/cards.
func (s *Server) createCard(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c, err := domcard.New(req.ID, req.Fields, req.Tags, req.IsCustom)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeValidationFailed, err.Error())
		return
	}

	created, err := s.cards.Create(r.Context(), chi.URLParam(r, "deckID"), actingUser(r), &c)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cardToAPI(&created))
}

// listCards handles GET /api/v1/decks/{deckID}/cards.
func (s *Server) listCards(w http.ResponseWriter, r *http.Request) {
	page, size, err := pagingParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, err.Error())
		return
	}

	p, err := s.cards.Page(r.Context(), chi.URLParam(r, "deckID"), actingUser(r), page, size)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToAPI(&p))
}

// searchCards handles GET /api/v1/decks/{deckID}/cards/search.
func (s *Server) searchCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var query string
	if err := runtime.BindQueryParameter("form", true, true, "q", q, &query); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, "query parameter q: "+err.Error())
		return
	}

	page, size, err := pagingParams(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, err.Error())
		return
	}

	p, err := s.cards.SearchPage(r.Context(), chi.URLParam(r, "deckID"), actingUser(r), query, page, size)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToAPI(&p))
}

// patchCard handles PATCH /api/v1/decks/{deckID}/cards/{cardID}.
func (s *Server) patchCard(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeParam(r.URL.Query())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req api.PatchCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p := domcard.NewPatch()
	for name, v := range req.Fields {
		p = p.SetField(name, v)
	}
	if req.Tags != nil {
		p = p.SetTags(*req.Tags)
	}
	if p.IsEmpty() {
		writeError(w, http.StatusBadRequest, api.ErrorCodeValidationFailed, "patch stages no changes")
		return
	}

	updated, err := s.cards.Patch(
		r.Context(), chi.URLParam(r, "deckID"), actingUser(r), chi.URLParam(r, "cardID"), p, scope,
	)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cardToAPI(&updated))
}

// deleteCard handles DELETE /api/v1/decks/{deckID}/cards/{cardID}.
func (s *Server) deleteCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope, err := scopeParam(q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var opID string
	if err := runtime.BindQueryParameter("form", true, false, "op", q, &opID); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, "query parameter op: "+err.Error())
		return
	}

	err = s.cards.Delete(
		r.Context(), chi.URLParam(r, "deckID"), actingUser(r), chi.URLParam(r, "cardID"), scope, opID,
	)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// listDuplicates handles GET /api/v1/decks/{deckID}/duplicates.
func (s *Server) listDuplicates(w http.ResponseWriter, r *http.Request) {
	opts, err := dedupeParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorCodeBadRequest, err.Error())
		return
	}

	groups, err := s.dedupe.Groups(r.Context(), chi.URLParam(r, "deckID"), opts)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := api.DuplicateGroupList{Groups: make([]api.DuplicateGroup, len(groups))}
	for i := range groups {
		out.Groups[i] = groupToAPI(&groups[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, api.HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func actingUser(r *http.Request) string {
	return r.Header.Get(userHeader)
}

func pagingParams(q url.Values) (page, size int, err error) {
	page = 1
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		return 0, 0, fmt.Errorf("query parameter page: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "size", q, &size); err != nil {
		return 0, 0, fmt.Errorf("query parameter size: %w", err)
	}
	return page, size, nil
}

func scopeParam(q url.Values) (domcard.Scope, error) {
	raw := string(domcard.ScopeLocal)
	if err := runtime.BindQueryParameter("form", true, false, "scope", q, &raw); err != nil {
		return "", fmt.Errorf("%w: query parameter scope: %s", domain.ErrInvalidRequest, err)
	}
	return domcard.ParseScope(raw)
}

func dedupeParams(q url.Values) (domdedupe.Options, error) {
	var opts domdedupe.Options

	if raw := q.Get("fields"); raw != "" {
		opts.Fields = strings.Split(raw, ",")
	}
	if err := runtime.BindQueryParameter("form", true, false, "max_groups", q, &opts.MaxGroups); err != nil {
		return opts, fmt.Errorf("query parameter max_groups: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "per_group", q, &opts.PerGroupLimit); err != nil {
		return opts, fmt.Errorf("query parameter per_group: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "semantic", q, &opts.Semantic); err != nil {
		return opts, fmt.Errorf("query parameter semantic: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "threshold", q, &opts.Threshold); err != nil {
		return opts, fmt.Errorf("query parameter threshold: %w", err)
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorCode, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDeckNotFound,
		domain.ErrCardNotFound,
		domain.ErrScopeForbidden,
		domain.ErrInvalidScope,
		domain.ErrInvalidCard,
		domain.ErrInvalidRequest,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code api.ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// handleDomainError runs the sentinel chain. Returns false when nothing matched.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) bool {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return true
		}
	}
	return false
}

// writeDomainError runs the sentinel chain and falls back to 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if s.handleDomainError(w, err) {
		return
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, api.ErrorCodeInternalError, "internal error")
}

func deckToAPI(d *domdeck.Deck) api.Deck {
	return api.Deck{
		ID:       d.ID(),
		Name:     d.Name(),
		AuthorID: d.AuthorID(),
	}
}

func cardToAPI(c *domcard.Card) api.Card {
	return api.Card{
		ID:       c.ID(),
		Fields:   c.Fields(),
		Tags:     c.Tags(),
		IsCustom: c.IsCustom(),
		Revision: c.Revision(),
	}
}

func pageToAPI(p *carduc.Page) api.CardPage {
	items := make([]api.Card, len(p.Cards))
	for i := range p.Cards {
		items[i] = cardToAPI(&p.Cards[i])
	}
	return api.CardPage{
		Items:      items,
		PageNumber: p.PageNumber,
		HasMore:    p.HasMore,
		TotalCount: p.TotalCount,
	}
}

func groupToAPI(g *domdedupe.Group) api.DuplicateGroup {
	cards := g.Cards()
	items := make([]api.Card, len(cards))
	for i := range cards {
		items[i] = cardToAPI(&cards[i])
	}
	return api.DuplicateGroup{
		MatchType:  string(g.MatchType()),
		Confidence: g.Confidence(),
		Cards:      items,
	}
}
