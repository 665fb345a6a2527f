package card

import (
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	fields := map[string]string{"front": "Bonjour", "back": "Hello"}

	tests := []struct {
		name    string
		id      string
		fields  map[string]string
		tags    []string
		wantErr bool
	}{
		{"valid", "card-1", fields, []string{"french"}, false},
		{"empty id", "", fields, nil, true},
		{"bad id chars", "card 1!", fields, nil, true},
		{"long id", strings.Repeat("a", 257), fields, nil, true},
		{"no fields", "card-1", nil, nil, true},
		{"empty field name", "card-1", map[string]string{"": "x"}, nil, true},
		{"oversized field", "card-1", map[string]string{"front": strings.Repeat("x", MaxFieldSize+1)}, nil, true},
		{"too many tags", "card-1", fields, make([]string, MaxTags+1), true},
	}
	for i := range tests[7].tags {
		tests[7].tags[i] = "t"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.id, tt.fields, tt.tags, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTags(t *testing.T) {
	if err := ValidateTags([]string{"a", "b"}); err != nil {
		t.Errorf("valid tags rejected: %v", err)
	}
	if err := ValidateTags([]string{""}); err == nil {
		t.Error("empty tag accepted")
	}
	if err := ValidateTags([]string{strings.Repeat("x", MaxTagLength+1)}); err == nil {
		t.Error("oversized tag accepted")
	}
}

func TestWithPatch(t *testing.T) {
	c, err := New("c1", map[string]string{"front": "a", "back": "b"}, []string{"old"}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := NewPatch().SetField("front", "A").SetField("back", "").SetTags([]string{"new"})
	out := c.WithPatch(p)

	if out.Field("front") != "A" {
		t.Errorf("front = %q, want %q", out.Field("front"), "A")
	}
	if _, ok := out.Fields()["back"]; ok {
		t.Error("empty patch value should remove the field")
	}
	if len(out.Tags()) != 1 || out.Tags()[0] != "new" {
		t.Errorf("tags = %v, want [new]", out.Tags())
	}
	if out.Revision() != c.Revision()+1 {
		t.Errorf("revision = %d, want %d", out.Revision(), c.Revision()+1)
	}
	// Original untouched.
	if c.Field("front") != "a" || len(c.Tags()) != 1 || c.Tags()[0] != "old" {
		t.Error("WithPatch mutated the receiver")
	}
}

func TestCanGlobal(t *testing.T) {
	shared, _ := New("s1", map[string]string{"front": "x"}, nil, false)
	custom, _ := New("c1", map[string]string{"front": "x"}, nil, true)

	if !CanGlobal(shared, true) {
		t.Error("author of shared deck should be able to mutate globally")
	}
	if CanGlobal(shared, false) {
		t.Error("non-author must not mutate globally")
	}
	if CanGlobal(custom, true) {
		t.Error("custom cards are never eligible for global mutation")
	}
}

func TestParseScope(t *testing.T) {
	if s, err := ParseScope("local"); err != nil || s != ScopeLocal {
		t.Errorf("ParseScope(local) = %v, %v", s, err)
	}
	if s, err := ParseScope("global"); err != nil || s != ScopeGlobal {
		t.Errorf("ParseScope(global) = %v, %v", s, err)
	}
	if _, err := ParseScope("both"); err == nil {
		t.Error("ParseScope accepted unknown scope")
	}
}
