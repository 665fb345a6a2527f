package openai

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memodeck/memodeck/internal/domain"
)

func TestParseAPIError(t *testing.T) {
	reqErr := &openai.RequestError{
		HTTPStatusCode: 429,
		Body:           []byte(`{"detail":"quota exceeded"}`),
	}
	err := parseAPIError(reqErr)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("request error not wrapped: %v", err)
	}

	apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "boom"}
	err = parseAPIError(apiErr)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("api error not wrapped: %v", err)
	}

	err = parseAPIError(errors.New("dial tcp: refused"))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("transport error not wrapped: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"bad key"}`)); got != "bad key" {
		t.Errorf("extractDetail = %q, want %q", got, "bad key")
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("extractDetail = %q, want empty", got)
	}
}
