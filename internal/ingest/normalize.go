// Package ingest implements the occurrence ingestion core: message
// normalization, fingerprinting, problem matching, and the pipeline that
// ties them together.
package ingest

import (
	"regexp"
	"sort"
	"strings"
)

// variableKind describes one class of "variable" substring detected inside
// free-form error messages: the token it collapses to in placeholder mode
// and the pattern that replaces it in pattern mode. The pattern doubles as
// the detection regex, so pattern-mode output always matches the original
// text (self-match law).
type variableKind struct {
	token   string
	pattern string
}

// Detection priority order. Overlapping matches resolve leftmost first,
// then longest, with the earlier-listed kind winning exact ties (DOMAIN
// beats IP on the same span; DATE outlasts the INTEGER prefix of a
// timestamp).
var variableKinds = []variableKind{
	{"<GUID>", `\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`},
	{"<DOMAIN>", `\b[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+\b`},
	{"<IP>", `\b(?:\d{1,3}\.){3}\d{1,3}\b`},
	{"<INTEGER>", `\b\d+\b`},
	{"<EMAIL>", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
	{"<PHONE>", `\b\(?[2-9]\d{2}\)?[ \-.]?[2-9]\d{2}[ \-.]?\d{4}\b`},
	{"<DATE>", `\b\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+\-]\d{2}:?\d{2})?)?\b`},
	{"<URL>", `\bhttps?://\S+`},
	{"<FILE_PATH>", `/(?:[A-Za-z0-9._-]+/)*[A-Za-z0-9._-]+\b`},
	{"<MAC_ADDRESS>", `\b[0-9a-fA-F]{2}(?::[0-9a-fA-F]{2}){5}\b`},
	{"<HASH>", `\b[0-9a-fA-F]{7,64}\b`},
}

// Compiled once at startup; never per-call state.
var (
	kindRegexes = compileKindRegexes()

	// Quoted string literals are collapsed in a second placeholder-mode
	// pass. Spans whose contents already carry a placeholder token are
	// left alone (RE2 has no lookahead, so the skip happens in code).
	quotedStringRegex = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	placeholderToken  = regexp.MustCompile(`<[A-Z_]+>`)
)

const quotedStringToken = "<QUOTED_STRING>"

func compileKindRegexes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(variableKinds))
	for i, k := range variableKinds {
		res[i] = regexp.MustCompile(k.pattern)
	}
	return res
}

// span is one variable substring found by the shared scan.
type span struct {
	start, end int
	kind       int
}

// scanVariables finds all non-overlapping variable spans. Each kind is
// scanned independently; a single combined alternation cannot express the
// longest-wins rule because RE2's leftmost-first semantics would hand a
// timestamp's leading digits to the integer kind. Candidates are resolved
// by start position, then span length, then kind priority.
func scanVariables(input string) []span {
	var candidates []span
	for k, re := range kindRegexes {
		for _, m := range re.FindAllStringIndex(input, -1) {
			candidates = append(candidates, span{start: m[0], end: m[1], kind: k})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return a.kind < b.kind
	})

	spans := make([]span, 0, len(candidates))
	next := 0
	for _, c := range candidates {
		if c.start < next {
			continue
		}
		spans = append(spans, c)
		next = c.end
	}
	return spans
}

// Placeholder replaces every variable span with its canonical bracketed
// token, then collapses quoted string literals that do not already contain
// a token. The result is suitable for literal-equality comparison and for
// cached display text.
func Placeholder(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	last := 0
	for _, s := range scanVariables(input) {
		b.WriteString(input[last:s.start])
		b.WriteString(variableKinds[s.kind].token)
		last = s.end
	}
	b.WriteString(input[last:])

	return quotedStringRegex.ReplaceAllStringFunc(b.String(), func(quoted string) string {
		if placeholderToken.MatchString(quoted) {
			return quoted
		}
		return quotedStringToken
	})
}

// Pattern builds a regular expression that matches the input text and any
// structurally similar text with different variable values: literal spans
// are escaped, variable spans are replaced with their class pattern.
// Callers evaluate the result case-insensitively.
func Pattern(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	last := 0
	for _, s := range scanVariables(input) {
		b.WriteString(regexp.QuoteMeta(input[last:s.start]))
		b.WriteString(variableKinds[s.kind].pattern)
		last = s.end
	}
	b.WriteString(regexp.QuoteMeta(input[last:]))
	return b.String()
}
