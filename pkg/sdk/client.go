// Package sdk is the HTTP client for the memodeck API. It implements
// browse.Source, so a Browser can run directly against a remote server.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memodeck/memodeck/pkg/api"
	"github.com/memodeck/memodeck/pkg/browse"
)

// Sentinel errors mapped from API error codes.
var (
	ErrDeckNotFound   = errors.New("memodeck: deck not found")
	ErrCardNotFound   = errors.New("memodeck: card not found")
	ErrScopeForbidden = errors.New("memodeck: scope forbidden")
	ErrInvalidRequest = errors.New("memodeck: invalid request")
	ErrRateLimited    = errors.New("memodeck: rate limited")
	ErrServer         = errors.New("memodeck: server error")
)

const defaultTimeout = 30 * time.Second

// Client talks to a memodeck server.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUserID sets the acting user sent with every request.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ browse.Source = (*Client)(nil)

// Page fetches one page of the deck listing.
func (c *Client) Page(ctx context.Context, deckID string, pageNumber, size int) (browse.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNumber))
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}

	var resp api.CardPage
	err := c.do(ctx, http.MethodGet, c.deckPath(deckID, "cards")+"?"+q.Encode(), nil, &resp)
	if err != nil {
		return browse.Page{}, err
	}
	return pageFromAPI(&resp), nil
}

// Search fetches one page of full-text search results.
func (c *Client) Search(
	ctx context.Context, deckID, query string, pageNumber, size int,
) (browse.Page, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(pageNumber))
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}

	var resp api.CardPage
	err := c.do(ctx, http.MethodGet, c.deckPath(deckID, "cards/search")+"?"+q.Encode(), nil, &resp)
	if err != nil {
		return browse.Page{}, err
	}
	return pageFromAPI(&resp), nil
}

// PatchCard applies a partial update at the given scope and returns the
// server's echo of the card.
func (c *Client) PatchCard(
	ctx context.Context, deckID, cardID string, req api.PatchCardRequest, scope browse.Scope,
) (api.Card, error) {
	q := url.Values{}
	q.Set("scope", string(scope))

	var resp api.Card
	err := c.do(ctx, http.MethodPatch, c.deckPath(deckID, "cards/"+cardID)+"?"+q.Encode(), req, &resp)
	if err != nil {
		return api.Card{}, err
	}
	return resp, nil
}

// DeleteCard removes a card at the given scope. opID makes global deletes
// idempotent across retries and may be empty.
func (c *Client) DeleteCard(
	ctx context.Context, deckID, cardID string, scope browse.Scope, opID string,
) error {
	q := url.Values{}
	q.Set("scope", string(scope))
	if opID != "" {
		q.Set("op", opID)
	}
	return c.do(ctx, http.MethodDelete, c.deckPath(deckID, "cards/"+cardID)+"?"+q.Encode(), nil, nil)
}

// DuplicateGroups runs duplicate detection on the deck.
func (c *Client) DuplicateGroups(
	ctx context.Context, deckID string, opts browse.DuplicateOptions,
) ([]api.DuplicateGroup, error) {
	q := url.Values{}
	if len(opts.Fields) > 0 {
		q.Set("fields", strings.Join(opts.Fields, ","))
	}
	if opts.MaxGroups > 0 {
		q.Set("max_groups", strconv.Itoa(opts.MaxGroups))
	}
	if opts.PerGroup > 0 {
		q.Set("per_group", strconv.Itoa(opts.PerGroup))
	}
	if opts.Semantic {
		q.Set("semantic", "true")
	}
	if opts.Threshold > 0 {
		q.Set("threshold", strconv.FormatFloat(opts.Threshold, 'f', -1, 64))
	}

	path := c.deckPath(deckID, "duplicates")
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var resp api.DuplicateGroupList
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// CreateDeck creates a deck.
func (c *Client) CreateDeck(ctx context.Context, req api.CreateDeckRequest) (api.Deck, error) {
	var resp api.Deck
	if err := c.do(ctx, http.MethodPost, "/api/v1/decks", req, &resp); err != nil {
		return api.Deck{}, err
	}
	return resp, nil
}

// CreateCard adds a card to a deck.
func (c *Client) CreateCard(ctx context.Context, deckID string, req api.CreateCardRequest) (api.Card, error) {
	var resp api.Card
	if err := c.do(ctx, http.MethodPost, c.deckPath(deckID, "cards"), req, &resp); err != nil {
		return api.Card{}, err
	}
	return resp, nil
}

// Health fetches the server readiness report.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return api.HealthResponse{}, err
	}
	return resp, nil
}

func (c *Client) deckPath(deckID, suffix string) string {
	return "/api/v1/decks/" + url.PathEscape(deckID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var apiErr api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	sentinel := ErrServer
	switch apiErr.Code {
	case api.ErrorCodeDeckNotFound:
		sentinel = ErrDeckNotFound
	case api.ErrorCodeCardNotFound:
		sentinel = ErrCardNotFound
	case api.ErrorCodeScopeForbidden:
		sentinel = ErrScopeForbidden
	case api.ErrorCodeBadRequest, api.ErrorCodeValidationFailed, api.ErrorCodeInvalidScope:
		sentinel = ErrInvalidRequest
	case api.ErrorCodeRateLimited:
		sentinel = ErrRateLimited
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Message)
}

func pageFromAPI(p *api.CardPage) browse.Page {
	return browse.Page{
		Cards:      p.Items,
		PageNumber: p.PageNumber,
		HasMore:    p.HasMore,
		TotalCount: p.TotalCount,
	}
}
