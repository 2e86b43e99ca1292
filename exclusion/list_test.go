package exclusion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExclusionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exclusions.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExactPatternIdentity(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "orders.xml\n"))
	require.Equal(t, 1, list.Size())

	assert.True(t, list.IsExcluded("orders.xml"))
	assert.False(t, list.IsExcluded("orders.xm"))
	assert.False(t, list.IsExcluded("orders.xml "))
	assert.False(t, list.IsExcluded("xorders.xml"))
}

func TestWildcardStarMatchesZeroOrMore(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "test-*.xml\n"))

	assert.True(t, list.IsExcluded("test-.xml"))
	assert.True(t, list.IsExcluded("test-anything.xml"))
	assert.False(t, list.IsExcluded("test.xml"))
	assert.False(t, list.IsExcluded("test-x.json"))
}

func TestWildcardQuestionMarkMatchesExactlyOne(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "order_???.json\n"))

	assert.True(t, list.IsExcluded("order_001.json"))
	assert.False(t, list.IsExcluded("order_01.json"))
	assert.False(t, list.IsExcluded("order_1234.json"))
}

func TestWildcardEscapesRegexMetacharacters(t *testing.T) {
	// The dot must be literal: "file.txt" matches, "fileXtxt" must not
	list := FromFile(writeExclusionFile(t, "file.*\n"))

	assert.True(t, list.IsExcluded("file.txt"))
	assert.True(t, list.IsExcluded("file."))
	assert.False(t, list.IsExcluded("fileXtxt"))
}

func TestRegexIdentityUsesSearchSemantics(t *testing.T) {
	// Regex rules match if found anywhere in the candidate, unlike exact
	// and wildcard rules which require a whole-string match.
	list := FromFile(writeExclusionFile(t, "regex:ord-\\d+\n"))

	assert.True(t, list.IsExcluded("ord-123"))
	assert.True(t, list.IsExcluded("prefix-ord-123-suffix"))
	assert.False(t, list.IsExcluded("ord-abc"))
}

func TestRegexContainment(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "regex:password=\\w+\n"))

	assert.True(t, list.ContainsExcluded("cfg: password=abc"))
	assert.False(t, list.ContainsExcluded("cfg: password= "))
}

func TestExactContainment(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "SECRET\n"))

	assert.True(t, list.ContainsExcluded("body with SECRET inside"))
	assert.False(t, list.ContainsExcluded("body with secret inside"))
}

func TestWildcardContainmentSearchesAnywhere(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "err-*-code\n"))

	// The pattern match may start and end mid-content; anchoring to the
	// whole content is identity semantics, not containment.
	assert.True(t, list.ContainsExcluded("log line: err-X-code found here"))
	assert.True(t, list.ContainsExcluded("err-42-code"))
	assert.False(t, list.ContainsExcluded("log line: err--cod found here"))
}

func TestWildcardIdentityStaysAnchored(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "err-?-code\n"))

	assert.True(t, list.IsExcluded("err-X-code"))
	assert.False(t, list.IsExcluded("log line: err-X-code found here"))
}

func TestCommentsAndBlankLinesSkipped(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "# first comment\n\n  # indented comment\nreal-pattern\n"))

	require.Equal(t, 1, list.Size())
	assert.True(t, list.IsExcluded("real-pattern"))
}

func TestMalformedRegexSkipped(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "regex:[unclosed\ngood-pattern\n"))

	require.Equal(t, 1, list.Size())
	assert.True(t, list.IsExcluded("good-pattern"))
}

func TestEmptyCandidateNeverExcluded(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "*\n"))

	assert.False(t, list.IsExcluded(""))
	assert.False(t, list.ContainsExcluded(""))
}

func TestMissingFileYieldsEmptyList(t *testing.T) {
	list := FromFile(filepath.Join(t.TempDir(), "does-not-exist.txt"))

	require.NotNil(t, list)
	assert.True(t, list.IsEmpty())
	assert.False(t, list.IsExcluded("anything"))
}

func TestUnconfiguredPathYieldsEmptyList(t *testing.T) {
	list := FromFile("")

	require.NotNil(t, list)
	assert.Equal(t, 0, list.Size())
}

func TestNilListIsSafe(t *testing.T) {
	var list *List

	assert.False(t, list.IsExcluded("anything"))
	assert.False(t, list.ContainsExcluded("anything"))
	assert.Equal(t, 0, list.Size())
}

func TestSummaryCountsByKind(t *testing.T) {
	list := FromFile(writeExclusionFile(t, "exact-one\nexact-two\nwild-*\nregex:^r$\n"))

	assert.Equal(t, "2 exact, 1 wildcard, 1 regex", list.Summary())
}

func TestWildcardWithoutMetacharactersBehavesLikeExact(t *testing.T) {
	// Whether stored as exact or wildcard internally, match results must
	// be identical to string equality.
	list := FromFile(writeExclusionFile(t, "plain-value\n"))

	assert.True(t, list.IsExcluded("plain-value"))
	assert.False(t, list.IsExcluded("plain-value-and-more"))
	assert.False(t, list.IsExcluded("almost-plain-value"))
}
