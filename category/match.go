// Package category picks the Twitch category that best matches a game title.
//
// Matching is deterministic and tiered. Both the title and every candidate
// name are lower-cased and trimmed, then the tiers are tried in order; the
// first tier with any hit wins and, within a tier, the first candidate in
// input order wins:
//
//  1. exact: the name equals the title
//  2. the name starts with the title ("mario" -> "Mario Kart")
//  3. the title starts with the name ("cod mw" -> "COD")
//  4. the name appears in the title as a whole word ("halo: reach" -> "Reach")
//  5. every character of the name occurs in the title, and the name is not longer
//
// When nothing matches the first candidate is returned tagged TierFallback,
// so callers that want only confident matches can drop it.
package category

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidArgument signals a wiring bug, such as a nil match request.
var ErrInvalidArgument = errors.New("category: invalid argument")

// Candidate is one entry returned by a catalog search.
type Candidate struct {
	ID   string
	Name string
}

// Tier identifies which rule produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierNamePrefix
	TierTitlePrefix
	TierWholeWord
	TierCharacterSubset
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierNamePrefix:
		return "name_prefix"
	case TierTitlePrefix:
		return "title_prefix"
	case TierWholeWord:
		return "whole_word"
	case TierCharacterSubset:
		return "character_subset"
	case TierFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Match is the result of FindBestMatch. Candidate is only meaningful when
// Found reports true.
type Match struct {
	Candidate Candidate
	Tier      Tier
}

// Found reports whether any candidate was selected, including the fallback.
func (m Match) Found() bool { return m.Tier != TierNone }

// Weak reports whether the candidate was chosen only because nothing matched.
func (m Match) Weak() bool { return m.Tier == TierFallback }

// MatchRequest bundles a title with the search results to choose from.
type MatchRequest struct {
	Target     string
	Candidates []Candidate
}

// Resolve runs FindBestMatch for req. A nil request is a programming error.
func Resolve(req *MatchRequest) (Match, error) {
	if req == nil {
		return Match{}, ErrInvalidArgument
	}
	return FindBestMatch(req.Target, req.Candidates), nil
}

type tierFunc func(name, target string) bool

var tiers = []struct {
	tier  Tier
	match tierFunc
}{
	{TierExact, func(name, target string) bool { return name == target }},
	{TierNamePrefix, func(name, target string) bool { return strings.HasPrefix(name, target) }},
	{TierTitlePrefix, func(name, target string) bool { return strings.HasPrefix(target, name) }},
	{TierWholeWord, func(name, target string) bool { return ContainsWholeWord(target, name) }},
	{TierCharacterSubset, characterSubset},
}

// FindBestMatch selects the best candidate for target.
func FindBestMatch(target string, candidates []Candidate) Match {
	if len(candidates) == 0 {
		return Match{Tier: TierNone}
	}
	t := normalize(target)
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = normalize(c.Name)
	}
	active := tiers
	if t == "" {
		// every name "starts with" an empty title; only an exact hit counts
		active = tiers[:1]
	}
	for _, tr := range active {
		for i, name := range names {
			if tr.match(name, t) {
				return Match{Candidate: candidates[i], Tier: tr.tier}
			}
		}
	}
	return Match{Candidate: candidates[0], Tier: TierFallback}
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// ContainsWholeWord reports whether word occurs in text bounded on both sides
// by a non-alphanumeric rune or the edge of text. The comparison is
// case-sensitive; callers normalize first. An empty word never matches.
func ContainsWholeWord(text, word string) bool {
	if word == "" || len(word) > len(text) {
		return false
	}
	for from := 0; from <= len(text)-len(word); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// characterSubset checks each rune of name on its own, so repeated runes in
// name need only a single occurrence in target.
func characterSubset(name, target string) bool {
	if utf8.RuneCountInString(name) > utf8.RuneCountInString(target) {
		return false
	}
	for _, r := range name {
		if !strings.ContainsRune(target, r) {
			return false
		}
	}
	return true
}
