package card

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	domcard "github.com/memodeck/memodeck/internal/domain/card"
)

// Hash field layout: structured content lives in __fields (JSON); __text
// mirrors the field values as one searchable TEXT blob for FT.SEARCH.
func buildHashFields(deckID string, c *domcard.Card) map[string]string {
	fieldsJSON, _ := json.Marshal(c.Fields())

	names := make([]string, 0, len(c.Fields()))
	for name := range c.Fields() {
		names = append(names, name)
	}
	sort.Strings(names)

	var text strings.Builder
	for _, name := range names {
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(c.Fields()[name])
	}

	m := map[string]string{
		"deck":       deckID,
		"__fields":   string(fieldsJSON),
		"__text":     text.String(),
		"tags":       strings.Join(c.Tags(), ","),
		"custom":     boolField(c.IsCustom()),
		"deleted":    boolField(c.Deleted()),
		"__revision": strconv.Itoa(c.Revision()),
	}
	return m
}

func parseHashFields(id string, m map[string]string) domcard.Card {
	var fields map[string]string
	_ = json.Unmarshal([]byte(m["__fields"]), &fields)

	var tags []string
	if raw := m["tags"]; raw != "" {
		tags = strings.Split(raw, ",")
	}

	revision, _ := strconv.Atoi(m["__revision"])

	return domcard.Reconstruct(id, fields, tags, m["custom"] == "1", m["deleted"] == "1", revision)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
