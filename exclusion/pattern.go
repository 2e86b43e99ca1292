package exclusion

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies how a pattern matches candidates
type Kind int

const (
	// KindExact matches by string equality
	KindExact Kind = iota
	// KindWildcard matches the whole candidate against a glob-derived expression
	KindWildcard
	// KindRegex matches by regular expression search (not anchored)
	KindRegex
)

// RegexPrefix marks an exclusion-file line as a regular expression rule
const RegexPrefix = "regex:"

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindWildcard:
		return "wildcard"
	case KindRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Pattern is one compiled exclusion rule. Immutable after construction.
// Wildcard rules carry two compilations: an anchored one for identity
// checks and an unanchored one for containment searches.
type Pattern struct {
	Kind   Kind
	Raw    string
	re     *regexp.Regexp // nil for KindExact
	search *regexp.Regexp // nil except for KindWildcard
}

// ParsePattern compiles a single exclusion-file line into a Pattern.
// Lines starting with "regex:" become regex rules; lines containing * or ?
// become wildcard rules; everything else is an exact value.
func ParsePattern(line string) (Pattern, error) {
	if strings.HasPrefix(line, RegexPrefix) {
		raw := line[len(RegexPrefix):]
		re, err := regexp.Compile(raw)
		if err != nil {
			return Pattern{}, fmt.Errorf("invalid regex pattern %q: %w", raw, err)
		}
		return Pattern{Kind: KindRegex, Raw: raw, re: re}, nil
	}

	if !strings.ContainsAny(line, "*?") {
		return Pattern{Kind: KindExact, Raw: line}, nil
	}

	re, search, err := compileWildcard(line)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid wildcard pattern %q: %w", line, err)
	}
	return Pattern{Kind: KindWildcard, Raw: line, re: re, search: search}, nil
}

// compileWildcard translates a glob-style pattern to a pair of regular
// expressions: anchored for identity, unanchored for containment. Only *
// (any run of characters) and ? (exactly one character) are wildcards;
// every other character is matched literally.
func compileWildcard(raw string) (*regexp.Regexp, *regexp.Regexp, error) {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	search, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	re, err := regexp.Compile("^" + b.String() + "$")
	if err != nil {
		return nil, nil, err
	}
	return re, search, nil
}

// Matches reports whether the candidate satisfies this rule as an identity
// check. Exact and wildcard rules require the whole string to match; regex
// rules match if the expression is found anywhere in the candidate. The
// asymmetry mirrors the exclusion-file contract and is deliberate.
func (p Pattern) Matches(candidate string) bool {
	switch p.Kind {
	case KindExact:
		return candidate == p.Raw
	case KindWildcard:
		return p.re.MatchString(candidate)
	case KindRegex:
		return p.re.MatchString(candidate)
	default:
		return false
	}
}

// FoundIn reports whether this rule's text appears within the given content.
// Exact values are located as substrings; wildcard and regex rules are
// searched with their compiled expressions.
func (p Pattern) FoundIn(content string) bool {
	switch p.Kind {
	case KindExact:
		return strings.Contains(content, p.Raw)
	case KindWildcard:
		return p.search.MatchString(content)
	case KindRegex:
		return p.re.MatchString(content)
	default:
		return false
	}
}
