package category

import (
	"fmt"
	"strings"
)

// Override maps a game title to the catalog category it is actually listed
// under.
type Override struct {
	Pattern  string
	Category string
}

// DefaultOverrides covers titles known to be catalogued under a parent
// category.
var DefaultOverrides = []Override{
	{Pattern: "The Jackbox Survey Scramble", Category: "Jackbox Party Packs"},
	{Pattern: "The Jackbox Party Pack 11", Category: "Jackbox Party Packs"},
}

// Overrides is an immutable, case-insensitive lookup table.
type Overrides struct {
	byPattern map[string]Override
}

// NewOverrides builds a table. Later entries replace earlier ones with the
// same pattern; entries with an empty pattern or category are ignored.
func NewOverrides(entries ...Override) *Overrides {
	o := &Overrides{byPattern: make(map[string]Override, len(entries))}
	for _, e := range entries {
		key := normalize(e.Pattern)
		if key == "" || strings.TrimSpace(e.Category) == "" {
			continue
		}
		o.byPattern[key] = Override{Pattern: strings.TrimSpace(e.Pattern), Category: strings.TrimSpace(e.Category)}
	}
	return o
}

// Lookup returns the override whose pattern equals title, ignoring case and
// surrounding whitespace.
func (o *Overrides) Lookup(title string) (Override, bool) {
	if o == nil {
		return Override{}, false
	}
	e, ok := o.byPattern[normalize(title)]
	return e, ok
}

// Len returns the number of entries.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.byPattern)
}

// ParseOverrides parses "pattern=Category;pattern=Category". Blank segments
// are skipped.
func ParseOverrides(s string) ([]Override, error) {
	var out []Override
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		pattern, cat, ok := strings.Cut(seg, "=")
		pattern, cat = strings.TrimSpace(pattern), strings.TrimSpace(cat)
		if !ok || pattern == "" || cat == "" {
			return nil, fmt.Errorf("invalid game override %q: want pattern=Category", seg)
		}
		out = append(out, Override{Pattern: pattern, Category: cat})
	}
	return out, nil
}
