package domain

import "errors"

var (
	// ErrDeckNotFound signals a missing deck.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrCardNotFound signals a missing card.
	ErrCardNotFound = errors.New("card not found")
	// ErrInvalidCard signals invalid card data.
	ErrInvalidCard = errors.New("invalid card")
	// ErrInvalidRequest signals malformed request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidScope signals an unknown mutation scope value.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrScopeForbidden signals a global mutation attempted without eligibility.
	ErrScopeForbidden = errors.New("global scope not permitted")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
