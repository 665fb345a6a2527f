// Package api defines the wire types shared by the HTTP server and the SDK client.
package api

// ErrorCode is a machine-readable error discriminator.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeDeckNotFound           ErrorCode = "deck_not_found"
	ErrorCodeCardNotFound           ErrorCode = "card_not_found"
	ErrorCodeScopeForbidden         ErrorCode = "scope_forbidden"
	ErrorCodeInvalidScope           ErrorCode = "invalid_scope"
	ErrorCodeRateLimited            ErrorCode = "rate_limited"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the error envelope for all non-2xx responses.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Card is a flashcard as seen by the acting user.
type Card struct {
	ID       string            `json:"id"`
	Fields   map[string]string `json:"fields"`
	Tags     []string          `json:"tags,omitempty"`
	IsCustom bool              `json:"is_custom,omitempty"`
	Revision int               `json:"revision"`
}

// CardPage is one page of a deck or search listing.
type CardPage struct {
	Items      []Card `json:"items"`
	PageNumber int    `json:"page_number"`
	HasMore    bool   `json:"has_more"`
	TotalCount int    `json:"total_count"`
}

// Deck is deck metadata.
type Deck struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AuthorID string `json:"author_id"`
}

// CreateDeckRequest creates a deck.
type CreateDeckRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AuthorID string `json:"author_id"`
}

// CreateCardRequest adds a card to a deck.
type CreateCardRequest struct {
	ID       string            `json:"id"`
	Fields   map[string]string `json:"fields"`
	Tags     []string          `json:"tags,omitempty"`
	IsCustom bool              `json:"is_custom,omitempty"`
}

// PatchCardRequest is a partial card update. A field mapped to an empty
// string removes the field; a non-nil Tags replaces the tag list wholesale.
type PatchCardRequest struct {
	Fields map[string]string `json:"fields,omitempty"`
	Tags   *[]string         `json:"tags,omitempty"`
}

// DuplicateGroup is a backend-computed cluster of near-identical cards.
type DuplicateGroup struct {
	MatchType  string  `json:"match_type"`
	Confidence float64 `json:"confidence,omitempty"`
	Cards      []Card  `json:"cards"`
}

// DuplicateGroupList is the duplicate detection response.
type DuplicateGroupList struct {
	Groups []DuplicateGroup `json:"groups"`
}

// HealthResponse reports component readiness.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
