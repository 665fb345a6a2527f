package card

import (
	"fmt"
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Tag limits, enforced by pure validation before any storage or network call.
const (
	MaxTags      = 32
	MaxTagLength = 64
)

// MaxFieldSize is the maximum size of a single content field in bytes.
const MaxFieldSize = 65536 // 64KB

// Card is the flashcard aggregate (immutable value object).
// Fields maps a field name (front, back, ...) to text or a media reference.
type Card struct {
	id       string
	fields   map[string]string
	tags     []string
	isCustom bool
	deleted  bool
	revision int
}

// New validates and creates a Card.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. At least one non-empty field is required.
func New(id string, fields map[string]string, tags []string, isCustom bool) (Card, error) {
	if id == "" {
		return Card{}, fmt.Errorf("card ID is required")
	}
	if len(id) > 256 {
		return Card{}, fmt.Errorf("card ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Card{}, fmt.Errorf("card ID must be alphanumeric with underscores and hyphens")
	}
	if len(fields) == 0 {
		return Card{}, fmt.Errorf("at least one content field is required")
	}
	for name, v := range fields {
		if name == "" {
			return Card{}, fmt.Errorf("field name must not be empty")
		}
		if len(v) > MaxFieldSize {
			return Card{}, fmt.Errorf("field %q too large (max %d bytes)", name, MaxFieldSize)
		}
	}
	if err := ValidateTags(tags); err != nil {
		return Card{}, err
	}

	return Card{
		id:       id,
		fields:   cloneStringMap(fields),
		tags:     cloneStrings(tags),
		isCustom: isCustom,
		revision: 1,
	}, nil
}

// Reconstruct creates a Card without validation (storage hydration).
func Reconstruct(id string, fields map[string]string, tags []string, isCustom, deleted bool, revision int) Card {
	return Card{id: id, fields: fields, tags: tags, isCustom: isCustom, deleted: deleted, revision: revision}
}

// ValidateTags checks tag count and per-tag length limits.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("too many tags: %d (max %d)", len(tags), MaxTags)
	}
	for _, tag := range tags {
		if tag == "" {
			return fmt.Errorf("tag must not be empty")
		}
		if len(tag) > MaxTagLength {
			return fmt.Errorf("tag %q too long (max %d)", tag, MaxTagLength)
		}
	}
	return nil
}

// ID returns the card identifier.
func (c Card) ID() string { return c.id }

// Fields returns the content fields.
func (c Card) Fields() map[string]string { return c.fields }

// Field returns a single content field value ("" when absent).
func (c Card) Field(name string) string { return c.fields[name] }

// Tags returns the tag list.
func (c Card) Tags() []string { return c.tags }

// IsCustom reports whether the card was authored by the user directly
// rather than derived from a shared deck. Custom cards are never eligible
// for global-scope mutation.
func (c Card) IsCustom() bool { return c.isCustom }

// Deleted reports the soft-delete flag.
func (c Card) Deleted() bool { return c.deleted }

// Revision returns the optimistic revision counter.
func (c Card) Revision() int { return c.revision }

// WithPatch returns a copy of the card with the patch applied and the
// revision bumped. The patch must already be validated.
func (c Card) WithPatch(p Patch) Card {
	out := Card{
		id:       c.id,
		fields:   cloneStringMap(c.fields),
		tags:     cloneStrings(c.tags),
		isCustom: c.isCustom,
		deleted:  c.deleted,
		revision: c.revision + 1,
	}
	for name, v := range p.Fields() {
		if v == "" {
			delete(out.fields, name)
		} else {
			out.fields[name] = v
		}
	}
	if p.HasTags() {
		out.tags = cloneStrings(p.Tags())
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
