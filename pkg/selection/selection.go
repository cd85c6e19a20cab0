// Package selection resolves the tool a pipeline run should use.
//
// The selection agent names a tool, but models often pick a near miss
// (EARNINGS when the user asked for an earnings call transcript). Resolve
// scores every available tool against the query with a fixed set of rules
// and only keeps the model's choice when the rules have nothing stronger.
package selection

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Tier ranks how a decision was reached. Higher tiers are stronger.
type Tier int

const (
	TierNone Tier = iota
	TierModel
	TierCategory
	TierKeyword
	TierPhrase
	TierSynonym
)

func (t Tier) String() string {
	switch t {
	case TierModel:
		return "model"
	case TierCategory:
		return "category"
	case TierKeyword:
		return "keyword"
	case TierPhrase:
		return "phrase"
	case TierSynonym:
		return "synonym"
	default:
		return "none"
	}
}

// Decision is the outcome of Resolve.
type Decision struct {
	Tool        string
	Tier        Tier
	Reason      string
	ModelChoice string
	// Overridden is true when the rules replaced a different model choice.
	Overridden bool
}

// Resolver applies synonym and category tables to tool choices. The zero
// value is not usable; use New or Default.
type Resolver struct {
	synonyms   []synonymEntry
	categories []categoryEntry
}

type synonymEntry struct {
	phrase []string
	text   string
	tool   string
}

type categoryEntry struct {
	Category
	keywords [][]string
}

// New builds a resolver from explicit tables.
func New(synonyms []Synonym, categories []Category) *Resolver {
	r := &Resolver{}
	for _, s := range synonyms {
		toks := tokenize(s.Phrase)
		if len(toks) == 0 || s.Tool == "" {
			continue
		}
		r.synonyms = append(r.synonyms, synonymEntry{phrase: toks, text: s.Phrase, tool: strings.ToUpper(s.Tool)})
	}
	slices.SortStableFunc(r.synonyms, func(a, b synonymEntry) int {
		if c := cmp.Compare(len(b.phrase), len(a.phrase)); c != 0 {
			return c
		}
		return cmp.Compare(len(b.text), len(a.text))
	})
	for _, c := range categories {
		e := categoryEntry{Category: c}
		for _, k := range c.Keywords {
			if toks := tokenize(k); len(toks) > 0 {
				e.keywords = append(e.keywords, toks)
			}
		}
		r.categories = append(r.categories, e)
	}
	return r
}

var defaultResolver = New(DefaultSynonyms, DefaultCategories)

// Default returns the resolver built from DefaultSynonyms and DefaultCategories.
func Default() *Resolver { return defaultResolver }

// Resolve uses the default tables.
func Resolve(query string, tools []string, modelChoice string) Decision {
	return defaultResolver.Resolve(query, tools, modelChoice)
}

// Resolve picks the tool for query among tools.
//
// Rules run strongest first: synonym phrases, tool names appearing as a
// phrase, shared name tokens, then category keywords. A synonym is skipped
// when another tool's full name appears in the query and is longer than
// the synonym, and it gives way to a model choice sharing more name
// tokens with the query. The model's choice
// replaces a keyword or category result when it is available and scores
// at least as well; with no rule match it is used as is, canonicalized
// against tools when it matches one case-insensitively.
func (r *Resolver) Resolve(query string, tools []string, modelChoice string) Decision {
	modelChoice = strings.TrimSpace(modelChoice)
	d := Decision{ModelChoice: modelChoice}

	available := make(map[string]string, len(tools))
	for _, t := range tools {
		available[strings.ToUpper(t)] = t
	}
	modelTool, modelAvailable := available[strings.ToUpper(modelChoice)]

	q := tokenize(query)
	best := r.score(q, tools)

	// A synonym is generic evidence: a model choice whose name covers more
	// of the query is more specific.
	if best.Tier == TierSynonym && modelAvailable && overlap(q, modelTool) > overlap(q, best.Tool) {
		d.Tool, d.Tier, d.Reason = modelTool, TierModel, "model choice (more specific than synonym)"
		return d
	}

	if best.Tier >= TierPhrase || (best.Tier > TierNone && !modelAvailable) {
		d.Tool, d.Tier, d.Reason = best.Tool, best.Tier, best.Reason
		d.Overridden = modelChoice != "" && !strings.EqualFold(best.Tool, modelChoice)
		return d
	}

	if best.Tier > TierNone {
		own := r.score(q, []string{modelTool})
		if own.Tier < best.Tier {
			d.Tool, d.Tier, d.Reason = best.Tool, best.Tier, best.Reason
			d.Overridden = !strings.EqualFold(best.Tool, modelChoice)
			return d
		}
	}

	d.Tier = TierModel
	switch {
	case modelChoice == "":
		d.Tier = TierNone
		d.Reason = "no match"
	case modelAvailable:
		d.Tool = modelTool
		d.Reason = "model choice"
	default:
		d.Tool = modelChoice
		d.Reason = "model choice (not in tool list)"
	}
	return d
}

type scored struct {
	Tool   string
	Tier   Tier
	Reason string
}

// score returns the strongest rule match among tools.
func (r *Resolver) score(q []string, tools []string) scored {
	if len(q) == 0 || len(tools) == 0 {
		return scored{}
	}

	available := make(map[string]string, len(tools))
	for _, t := range tools {
		available[strings.ToUpper(t)] = t
	}

	for _, s := range r.synonyms {
		tool, ok := available[s.tool]
		if !ok || !containsPhrase(q, s.phrase) {
			continue
		}
		if narrower(q, tools, tool, len(s.phrase)) != "" {
			continue
		}
		return scored{Tool: tool, Tier: TierSynonym, Reason: "synonym " + quote(s.text)}
	}

	sorted := slices.Clone(tools)
	slices.SortFunc(sorted, func(a, b string) int { return cmp.Compare(strings.ToUpper(a), strings.ToUpper(b)) })

	// Phrase: every name token of a multi-token tool appears contiguously.
	var phrase string
	phraseLen := 0
	for _, t := range sorted {
		toks := nameTokens(t)
		if len(toks) < 2 || len(toks) <= phraseLen {
			continue
		}
		if containsPhrase(q, toks) {
			phrase, phraseLen = t, len(toks)
		}
	}
	if phrase != "" {
		return scored{Tool: phrase, Tier: TierPhrase, Reason: "name phrase"}
	}

	// Keyword: most name tokens present, then fewest extra tokens.
	var keyword string
	hits, extra := 0, 0
	for _, t := range sorted {
		toks := nameTokens(t)
		n := 0
		for _, tok := range toks {
			if isNoise(tok) {
				continue
			}
			if containsToken(q, tok) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		e := len(toks) - n
		if n > hits || (n == hits && e < extra) {
			keyword, hits, extra = t, n, e
		}
	}
	if keyword != "" {
		return scored{Tool: keyword, Tier: TierKeyword, Reason: "name keyword"}
	}

	for _, c := range r.categories {
		if !c.matches(q) {
			continue
		}
		if tool := c.pick(sorted, available); tool != "" {
			return scored{Tool: tool, Tier: TierCategory, Reason: "category " + quote(c.Name)}
		}
	}
	return scored{}
}

// narrower returns a tool other than synonymTool whose name tokens all
// appear in q and outnumber the synonym's phrase, or "" when there is none.
// "weekly time series" names TIME_SERIES_WEEKLY, not the "time series"
// synonym's TIME_SERIES_DAILY.
func narrower(q []string, tools []string, synonymTool string, phraseLen int) string {
	for _, t := range tools {
		if strings.EqualFold(t, synonymTool) {
			continue
		}
		toks := nameTokens(t)
		if len(toks) > phraseLen && overlap(q, t) == len(toks) {
			return t
		}
	}
	return ""
}

// overlap counts the name tokens of tool present in q.
func overlap(q []string, tool string) int {
	n := 0
	for _, tok := range nameTokens(tool) {
		if containsToken(q, tok) {
			n++
		}
	}
	return n
}

func (c categoryEntry) matches(q []string) bool {
	for _, k := range c.keywords {
		if containsPhrase(q, k) {
			return true
		}
	}
	return false
}

func (c categoryEntry) pick(sorted []string, available map[string]string) string {
	for _, p := range c.Preferred {
		if t, ok := available[strings.ToUpper(p)]; ok {
			return t
		}
	}
	for _, t := range sorted {
		if c.Contains(strings.ToUpper(t)) {
			return t
		}
	}
	return ""
}

// Tokenize splits s into case-folded words.
func Tokenize(s string) []string { return tokenize(s) }

func tokenize(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func nameTokens(tool string) []string {
	return tokenize(strings.ReplaceAll(tool, "_", " "))
}

// noise tokens are too generic to count as keyword evidence on their own.
var noise = map[string]bool{"time": true, "series": true, "and": true, "per": true, "of": true}

func isNoise(tok string) bool { return noise[tok] }

// tokenEqual tolerates a trailing plural "s".
func tokenEqual(a, b string) bool {
	return a == b || a+"s" == b || a == b+"s"
}

func containsToken(q []string, tok string) bool {
	for _, w := range q {
		if tokenEqual(w, tok) {
			return true
		}
	}
	return false
}

func containsPhrase(q, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(q) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(q); i++ {
		for j, p := range phrase {
			if !tokenEqual(q[i+j], p) {
				continue outer
			}
		}
		return true
	}
	return false
}

func quote(s string) string { return `"` + s + `"` }
