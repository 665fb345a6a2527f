package dedupe

import (
	"context"
	"errors"
	"testing"

	domcard "github.com/memodeck/memodeck/internal/domain/card"
	domdedupe "github.com/memodeck/memodeck/internal/domain/dedupe"
)

// --- Mocks ---

type mockLister struct {
	cards []domcard.Card
}

func (m *mockLister) PageIDs(_ context.Context, _ string, offset, limit int) ([]string, error) {
	if offset >= len(m.cards) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.cards) {
		end = len(m.cards)
	}
	ids := make([]string, 0, end-offset)
	for _, c := range m.cards[offset:end] {
		ids = append(ids, c.ID())
	}
	return ids, nil
}

func (m *mockLister) GetMulti(_ context.Context, _ string, ids []string) ([]domcard.Card, error) {
	byID := make(map[string]domcard.Card, len(m.cards))
	for _, c := range m.cards {
		byID[c.ID()] = c
	}
	out := make([]domcard.Card, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	called  bool
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vectors[text]
	}
	return out, nil
}

func mkCard(t *testing.T, id, front string) domcard.Card {
	t.Helper()
	c, err := domcard.New(id, map[string]string{"front": front}, nil, false)
	if err != nil {
		t.Fatalf("card %s: %v", id, err)
	}
	return c
}

// --- Tests ---

func TestExactGroups(t *testing.T) {
	lister := &mockLister{cards: []domcard.Card{
		mkCard(t, "a", "Bonjour"),
		mkCard(t, "b", "bonjour "), // same after normalisation
		mkCard(t, "c", "unique"),
		mkCard(t, "d", "Au revoir"),
		mkCard(t, "e", "au  revoir"),
	}}
	svc := New(lister, nil, 0)

	groups, err := svc.Groups(context.Background(), "deck-1", domdedupe.Options{})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	for _, g := range groups {
		if g.MatchType() != domdedupe.MatchExact {
			t.Errorf("match type = %q, want exact", g.MatchType())
		}
		if len(g.Cards()) != 2 {
			t.Errorf("group size = %d, want 2", len(g.Cards()))
		}
	}
}

func TestSemanticGroups(t *testing.T) {
	lister := &mockLister{cards: []domcard.Card{
		mkCard(t, "a", "hello"),
		mkCard(t, "b", "hi"),
		mkCard(t, "c", "goodbye"),
	}}
	emb := &mockEmbedder{vectors: map[string][]float32{
		"hello":   {1, 0},
		"hi":      {0.99, 0.14}, // cos ≈ 0.99 with "hello"
		"goodbye": {0, 1},
	}}
	svc := New(lister, emb, 0)

	opts := domdedupe.Options{Semantic: true, Threshold: 0.9}
	groups, err := svc.Groups(context.Background(), "deck-1", opts)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.MatchType() != domdedupe.MatchSemantic {
		t.Errorf("match type = %q, want semantic", g.MatchType())
	}
	if g.Confidence() < 0.9 || g.Confidence() > 1 {
		t.Errorf("confidence = %g, want within [0.9, 1]", g.Confidence())
	}
	if len(g.Cards()) != 2 {
		t.Errorf("group size = %d, want 2", len(g.Cards()))
	}
}

func TestSemanticSkippedWhenDisabled(t *testing.T) {
	lister := &mockLister{cards: []domcard.Card{
		mkCard(t, "a", "hello"),
		mkCard(t, "b", "hi"),
	}}
	emb := &mockEmbedder{}
	svc := New(lister, emb, 0)

	if _, err := svc.Groups(context.Background(), "deck-1", domdedupe.Options{}); err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if emb.called {
		t.Error("embedder called with semantic matching disabled")
	}
}

func TestEmbedderFailureSurfaces(t *testing.T) {
	lister := &mockLister{cards: []domcard.Card{
		mkCard(t, "a", "hello"),
		mkCard(t, "b", "hi"),
	}}
	emb := &mockEmbedder{err: errors.New("quota")}
	svc := New(lister, emb, 0)

	_, err := svc.Groups(context.Background(), "deck-1", domdedupe.Options{Semantic: true})
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

func TestMaxGroupsCap(t *testing.T) {
	var cards []domcard.Card
	for _, pair := range []string{"aa", "bb", "cc"} {
		cards = append(cards,
			mkCard(t, pair+"1", pair),
			mkCard(t, pair+"2", pair),
		)
	}
	svc := New(&mockLister{cards: cards}, nil, 0)

	groups, err := svc.Groups(context.Background(), "deck-1", domdedupe.Options{MaxGroups: 2})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("got %d groups, want 2 (capped)", len(groups))
	}
}

func TestPerGroupLimit(t *testing.T) {
	var cards []domcard.Card
	for i := 0; i < 5; i++ {
		cards = append(cards, mkCard(t, string(rune('a'+i)), "same text"))
	}
	svc := New(&mockLister{cards: cards}, nil, 0)

	groups, err := svc.Groups(context.Background(), "deck-1", domdedupe.Options{PerGroupLimit: 3})
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0].Cards()) != 3 {
		t.Errorf("group sample = %d cards, want 3", len(groups[0].Cards()))
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("cosine(identical) = %g, want 1", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("cosine(orthogonal) = %g, want 0", got)
	}
	if got := cosine([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("cosine(length mismatch) = %g, want 0", got)
	}
}
