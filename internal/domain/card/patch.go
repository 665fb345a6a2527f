package card

import "fmt"

// Patch is a partial card update. An empty field value removes the field.
// Tags are replaced wholesale when set.
type Patch struct {
	fields map[string]string
	tags   *[]string
}

// NewPatch creates an empty patch.
func NewPatch() Patch {
	return Patch{}
}

// SetField stages a content field update.
func (p Patch) SetField(name, value string) Patch {
	if p.fields == nil {
		p.fields = make(map[string]string)
	}
	p.fields[name] = value
	return p
}

// SetTags stages a tag list replacement.
func (p Patch) SetTags(tags []string) Patch {
	t := cloneStrings(tags)
	p.tags = &t
	return p
}

// Fields returns the staged field updates.
func (p Patch) Fields() map[string]string { return p.fields }

// HasTags reports whether the patch replaces tags.
func (p Patch) HasTags() bool { return p.tags != nil }

// Tags returns the replacement tag list (nil when not staged).
func (p Patch) Tags() []string {
	if p.tags == nil {
		return nil
	}
	return *p.tags
}

// IsEmpty reports whether the patch stages no changes.
func (p Patch) IsEmpty() bool { return len(p.fields) == 0 && p.tags == nil }

// Validate checks the staged changes against card limits.
// It is scope-independent and runs before any storage or network call.
func (p Patch) Validate() error {
	for name, v := range p.fields {
		if len(v) > MaxFieldSize {
			return fmt.Errorf("field %q too large (max %d bytes)", name, MaxFieldSize)
		}
	}
	if p.tags != nil {
		return ValidateTags(*p.tags)
	}
	return nil
}
