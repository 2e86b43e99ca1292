package exclusion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// List is an ordered, read-only collection of exclusion patterns.
// A nil or empty List matches nothing; all query methods are safe on it.
type List struct {
	patterns []Pattern
}

// Empty returns a usable list with no patterns
func Empty() *List {
	return &List{}
}

// FromFile loads an exclusion list from a line-oriented file. A missing or
// empty path yields an empty list rather than an error so call sites never
// have to branch on whether filtering was configured. Malformed pattern
// lines are skipped with a warning; filtering is best-effort.
func FromFile(path string) *List {
	if path == "" {
		return Empty()
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("Exclusion file not readable, filtering disabled")
		return Empty()
	}
	defer f.Close()

	list := parse(f)
	log.Debug().Str("path", path).Int("patterns", list.Size()).Msg("Loaded exclusion list")
	return list
}

// parse reads patterns line by line. Blank lines and lines whose first
// non-whitespace character is '#' never become patterns.
func parse(r io.Reader) *List {
	list := &List{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParsePattern(line)
		if err != nil {
			log.Warn().Str("line", line).Err(err).Msg("Skipping malformed exclusion pattern")
			continue
		}
		list.patterns = append(list.patterns, p)
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("Exclusion file read interrupted, using patterns loaded so far")
	}
	return list
}

// IsExcluded reports whether the candidate as a whole is matched by any
// configured rule. An empty candidate is never excluded.
func (l *List) IsExcluded(candidate string) bool {
	if l == nil || candidate == "" {
		return false
	}
	for _, p := range l.patterns {
		if p.Matches(candidate) {
			return true
		}
	}
	return false
}

// ContainsExcluded reports whether any configured rule is found within the
// given content. Empty content never matches.
func (l *List) ContainsExcluded(content string) bool {
	if l == nil || content == "" {
		return false
	}
	for _, p := range l.patterns {
		if p.FoundIn(content) {
			return true
		}
	}
	return false
}

// Size returns the number of loaded patterns
func (l *List) Size() int {
	if l == nil {
		return 0
	}
	return len(l.patterns)
}

// IsEmpty reports whether the list has no patterns
func (l *List) IsEmpty() bool {
	return l.Size() == 0
}

// Summary returns a diagnostic count of patterns by kind, e.g.
// "2 exact, 1 wildcard, 1 regex"
func (l *List) Summary() string {
	var exact, wildcard, regex int
	if l != nil {
		for _, p := range l.patterns {
			switch p.Kind {
			case KindExact:
				exact++
			case KindWildcard:
				wildcard++
			case KindRegex:
				regex++
			}
		}
	}
	return fmt.Sprintf("%d exact, %d wildcard, %d regex", exact, wildcard, regex)
}
